package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/quotations/internal/di"
	"github.com/hanko-field/quotations/internal/handlers"
	"github.com/hanko-field/quotations/internal/platform/auth"
	"github.com/hanko-field/quotations/internal/platform/config"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/platform/jobs"
	"github.com/hanko-field/quotations/internal/platform/mailer"
	"github.com/hanko-field/quotations/internal/platform/observability"
	"github.com/hanko-field/quotations/internal/platform/secrets"
	platformstorage "github.com/hanko-field/quotations/internal/platform/storage"
	"github.com/hanko-field/quotations/internal/repositories"
	firestoreRepo "github.com/hanko-field/quotations/internal/repositories/firestore"
	"github.com/hanko-field/quotations/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("quotations")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var (
		topic         *pubsub.Topic
		storageClient *cloudstorage.Client
		publishers    []services.QuotationEventPublisher
	)

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.EventsTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic = pubsubClient.Topic(cfg.PubSub.EventsTopic)
		defer topic.Stop()

		publisher, err := jobs.NewPubSubQuotationPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		publishers = append(publishers, publisher)
	}

	if bucket := strings.TrimSpace(cfg.Storage.SnapshotBucket); bucket != "" {
		storageClient, err = cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		objects, err := platformstorage.NewGCSObjectWriter(storageClient)
		if err != nil {
			logger.Fatal("failed to initialise storage writer", zap.Error(err))
		}
		snapshots, err := platformstorage.NewSnapshotWriter(objects, bucket,
			platformstorage.WithSnapshotPrefix(cfg.Storage.SnapshotPrefix),
			platformstorage.WithSnapshotLogger(logger.Named("snapshots")),
		)
		if err != nil {
			logger.Fatal("failed to initialise snapshot writer", zap.Error(err))
		}
		publishers = append(publishers, snapshots)
	}

	healthRepo, err := newHealthRepository(firestoreProvider, topic, storageClient, cfg)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	references, err := firestoreRepo.NewReferenceCounter(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise reference counter", zap.Error(err))
	}

	paymentRegistry, err := di.BuildPaymentRegistry(cfg.Payments, observability.EventLogger(logger.Named("payments")), time.Now)
	if err != nil {
		logger.Fatal("failed to initialise payment methods", zap.Error(err))
	}

	var quotationMailer services.QuotationMailer
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP, mailer.WithLogger(logger.Named("mailer")))
		if err != nil {
			logger.Fatal("failed to initialise smtp mailer", zap.Error(err))
		}
		quotationMailer = smtpMailer
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Infrastructure{
		ReferenceIDs:    references,
		Payments:        paymentRegistry,
		Mailer:          quotationMailer,
		Publishers:      publishers,
		NotifyInProcess: topic == nil,
		Clock:           time.Now,
		Logger:          observability.EventLogger(logger.Named("quotations")),
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	quotationHandlers := handlers.NewQuotationHandlers(authenticator, container.Services.Quotations)
	eventHandlers := handlers.NewQuotationEventHandlers(
		container.Services.Quotations,
		container.Services.Notifier,
		handlers.WithQuotationEventLogger(observability.EventLogger(logger.Named("events"))),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(registry.Health()),
		handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
	)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithQuotationRoutes(quotationHandlers.Routes),
		handlers.WithInternalRoutes(eventHandlers.Routes),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(logger.Named("auth"), cfg)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("quotations api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := lookupEnv("QUOTATIONS_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookupEnv("QUOTATIONS_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func newHealthRepository(provider *pfirestore.Provider, topic *pubsub.Topic, storageClient *cloudstorage.Client, cfg config.Config) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if storageClient != nil {
		bucket := storageClient.Bucket(cfg.Storage.SnapshotBucket)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "storage",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := bucket.Attrs(ctx)
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks,
		repositories.WithBuildInfo(lookupEnv("QUOTATIONS_BUILD_VERSION"), cfg.Security.Environment),
	)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project := lookupEnv("QUOTATIONS_SECRET_PROJECT_ID")
	if project == "" {
		project = lookupEnv("QUOTATIONS_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if path := lookupEnv("QUOTATIONS_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := lookupEnv("QUOTATIONS_FIREBASE_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// lookupEnv reads key from the process environment or the .env file.
func lookupEnv(key string) string {
	value, _, err := config.Lookup(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
