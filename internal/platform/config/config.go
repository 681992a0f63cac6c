package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix                = "QUOTATIONS_"
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 20 * time.Second
	defaultEnvironment       = "local"
	defaultOIDCJWKSURL       = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer        = "https://accounts.google.com"
	defaultEventsTopic       = "quotation-events"
	defaultSMTPPort          = 587
	defaultAdminRole         = "admin"
	defaultStaffRole         = "staff"
	defaultPaymentMethodList = "manual"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	PubSub     PubSubConfig
	Storage    StorageConfig
	Payments   PaymentsConfig
	SMTP       SMTPConfig
	Quotations QuotationsConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings used for ID token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// PubSubConfig selects the topic quotation events are published to. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID   string
	EventsTopic string
}

// StorageConfig names the bucket receiving quotation snapshots. Empty disables snapshots.
type StorageConfig struct {
	SnapshotBucket string
	SnapshotPrefix string
}

// PaymentsConfig collects payment provider settings.
type PaymentsConfig struct {
	StripeAPIKey   string
	StripeMethods  []string
	ManualMethods  []string
	StatementLabel string
}

// SMTPConfig configures outgoing quotation emails. An empty host disables email delivery.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// QuotationsConfig holds the engine's business settings.
type QuotationsConfig struct {
	// OwnerMutableStatuses lists the statuses in which owners may cancel or move items.
	OwnerMutableStatuses []string
	// RateCacheTTL enables the in-process rate quote cache when positive. Zero re-quotes every recalculation.
	RateCacheTTL         time.Duration
	DefaultTaxRate       float64
	TaxRates             map[string]float64
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment string
	AdminRoles  []string
	StaffRoles  []string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for the Pub/Sub push endpoint.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns the effective value of key under the same precedence Load uses
// (explicit map, then process environment, then .env file).
func Lookup(key string, opts ...Option) (string, bool, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return "", false, err
	}
	value, ok := lookup(key)
	return value, ok, nil
}

// Load assembles the application configuration from defaults, the .env file, environment variables,
// and secret manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}
	env := envReader{lookup: lookup}

	cfg := Config{
		Server: ServerConfig{
			Port:            env.string("SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.string("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.string("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.string("FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   env.string("FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: env.string("FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:   env.string("PUBSUB_PROJECT_ID", ""),
			EventsTopic: env.string("PUBSUB_EVENTS_TOPIC", defaultEventsTopic),
		},
		Storage: StorageConfig{
			SnapshotBucket: env.string("STORAGE_SNAPSHOT_BUCKET", ""),
			SnapshotPrefix: env.string("STORAGE_SNAPSHOT_PREFIX", "quotations"),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:   env.string("PAYMENTS_STRIPE_API_KEY", ""),
			StripeMethods:  env.csv("PAYMENTS_STRIPE_METHODS", ""),
			ManualMethods:  env.csv("PAYMENTS_MANUAL_METHODS", defaultPaymentMethodList),
			StatementLabel: env.string("PAYMENTS_STATEMENT_LABEL", ""),
		},
		SMTP: SMTPConfig{
			Host:        env.string("SMTP_HOST", ""),
			Port:        env.int("SMTP_PORT", defaultSMTPPort),
			Username:    env.string("SMTP_USERNAME", ""),
			Password:    env.string("SMTP_PASSWORD", ""),
			FromName:    env.string("SMTP_FROM_NAME", ""),
			FromAddress: env.string("SMTP_FROM_ADDRESS", ""),
		},
		Quotations: QuotationsConfig{
			OwnerMutableStatuses: env.csv("OWNER_MUTABLE_STATUSES", "new"),
			RateCacheTTL:         env.duration("RATE_CACHE_TTL", 0),
			DefaultTaxRate:       env.float("DEFAULT_TAX_RATE", 0),
			TaxRates:             env.floatMap("TAX_RATES"),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.string("SECURITY_ENVIRONMENT", defaultEnvironment)),
			AdminRoles:  env.csv("SECURITY_ADMIN_ROLES", defaultAdminRole),
			StaffRoles:  env.csv("SECURITY_STAFF_ROLES", defaultStaffRole),
			OIDC: OIDCConfig{
				JWKSURL:   env.string("SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  env.string("SECURITY_OIDC_AUDIENCE", ""),
				Audiences: env.stringMap("SECURITY_OIDC_AUDIENCES"),
				Issuers:   env.csv("SECURITY_OIDC_ISSUERS", defaultOIDCIssuer),
			},
		},
	}
	if env.err != nil {
		return Config{}, env.err
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	for _, field := range []*string{&cfg.Payments.StripeAPIKey, &cfg.SMTP.Password} {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Quotations.RateCacheTTL < 0 {
		missing = append(missing, "Quotations.RateCacheTTL")
	}
	if cfg.Quotations.DefaultTaxRate < 0 || cfg.Quotations.DefaultTaxRate >= 1 {
		missing = append(missing, "Quotations.DefaultTaxRate")
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.FromAddress == "" {
		missing = append(missing, "SMTP.FromAddress")
	}
	if len(cfg.Payments.StripeMethods) > 0 && cfg.Payments.StripeAPIKey == "" {
		missing = append(missing, "Payments.StripeAPIKey")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

// envReader reads prefixed keys and remembers the first malformed value.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) raw(key string) (string, bool) {
	value, ok := r.lookup(envPrefix + key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
}

func (r *envReader) string(key, fallback string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return fallback
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, err)
		return fallback
	}
	return d
}

func (r *envReader) int(key string, fallback int) int {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, err)
		return fallback
	}
	return parsed
}

func (r *envReader) float(key string, fallback float64) float64 {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, err)
		return fallback
	}
	return parsed
}

func (r *envReader) csv(key, fallback string) []string {
	raw, ok := r.raw(key)
	if !ok {
		raw = fallback
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// stringMap parses "name=value,name=value". Names are lower-cased.
func (r *envReader) stringMap(key string) map[string]string {
	values := make(map[string]string)
	raw, ok := r.raw(key)
	if !ok {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !found || name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}

func (r *envReader) floatMap(key string) map[string]float64 {
	out := make(map[string]float64)
	for name, value := range r.stringMap(key) {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.fail(key, fmt.Errorf("%s: %w", name, err))
			continue
		}
		out[name] = parsed
	}
	return out
}
