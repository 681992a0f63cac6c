package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanko-field/quotations/internal/payments"
	"github.com/hanko-field/quotations/internal/platform/auth"
	"github.com/hanko-field/quotations/internal/platform/config"
	"github.com/hanko-field/quotations/internal/repositories"
	"github.com/hanko-field/quotations/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Quotations services.QuotationService
	// Notifier is nil when no mailer is configured.
	Notifier services.QuotationEventPublisher
	Events   services.QuotationEventPublisher
}

// Infrastructure carries the adapters built outside the container because they own network clients.
type Infrastructure struct {
	ReferenceIDs services.ReferenceIDGenerator
	Payments     services.PaymentMethodRegistry
	Mailer       services.QuotationMailer
	// Publishers receive every committed quotation event.
	Publishers []services.QuotationEventPublisher
	// NotifyInProcess sends customer emails from the request path instead of the push endpoint.
	NotifyInProcess bool
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries and
// infrastructure fakes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	if infra.Mailer != nil {
		notifier, err := services.NewQuotationEmailNotifier(services.QuotationEmailNotifierDeps{
			Quotations: reg.Quotations(),
			Shops:      reg.Shops(),
			Mailer:     infra.Mailer,
			Clock:      clock,
			Logger:     infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build quotation notifier: %w", err)
		}
		svc.Notifier = notifier
	}

	publishers := make(services.QuotationEventFanout, 0, len(infra.Publishers)+1)
	for _, publisher := range infra.Publishers {
		if publisher != nil {
			publishers = append(publishers, publisher)
		}
	}
	if infra.NotifyInProcess && svc.Notifier != nil {
		publishers = append(publishers, svc.Notifier)
	}
	if len(publishers) > 0 {
		svc.Events = publishers
	}

	providers, err := buildProviders(reg, cfg, infra, clock)
	if err != nil {
		return Services{}, err
	}

	quotations, err := services.NewQuotationService(services.QuotationServiceDeps{
		Quotations:           reg.Quotations(),
		Shops:                reg.Shops(),
		Carts:                reg.Carts(),
		Providers:            providers,
		Permissions:          auth.NewRolePermissionChecker(),
		Events:               svc.Events,
		OwnerMutableStatuses: cfg.Quotations.OwnerMutableStatuses,
		Clock:                clock,
		Logger:               infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quotation service: %w", err)
	}
	svc.Quotations = quotations

	return svc, nil
}

func buildProviders(reg repositories.Registry, cfg config.Config, infra Infrastructure, clock func() time.Time) (services.QuotationProviders, error) {
	providers := services.QuotationProviders{
		Tax:          services.NewRegionTaxProvider(cfg.Quotations.TaxRates, cfg.Quotations.DefaultTaxRate),
		Payments:     infra.Payments,
		ReferenceIDs: infra.ReferenceIDs,
	}

	if catalog := reg.Catalog(); catalog != nil {
		items, err := services.NewCatalogItemBuilder(catalog)
		if err != nil {
			return services.QuotationProviders{}, fmt.Errorf("build catalog item builder: %w", err)
		}
		providers.Items = items
	}

	if methods := reg.FulfillmentMethods(); methods != nil {
		quoter, err := services.NewShopRateQuoter(methods)
		if err != nil {
			return services.QuotationProviders{}, fmt.Errorf("build rate quoter: %w", err)
		}
		var rates services.FulfillmentRateQuoter = quoter
		if ttl := cfg.Quotations.RateCacheTTL; ttl > 0 {
			cached, err := services.NewCachedRateQuoter(quoter, ttl, clock)
			if err != nil {
				return services.QuotationProviders{}, fmt.Errorf("build rate cache: %w", err)
			}
			rates = cached
		}
		providers.Rates = rates
	}

	if rules := reg.SurchargeRules(); rules != nil {
		surcharges, err := services.NewSurchargeRuleProvider(rules)
		if err != nil {
			return services.QuotationProviders{}, fmt.Errorf("build surcharge provider: %w", err)
		}
		providers.Surcharges = []services.SurchargeProvider{surcharges}
	}

	return providers, nil
}

// BuildPaymentRegistry registers a manual authorizer for every manual method and a Stripe authorizer for
// every Stripe method.
func BuildPaymentRegistry(cfg config.PaymentsConfig, logger payments.StripeLogger, clock func() time.Time) (*payments.Registry, error) {
	if clock == nil {
		clock = time.Now
	}
	methods := make(map[string]services.PaymentAuthorizer)
	for _, name := range cfg.ManualMethods {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		manual, err := payments.NewManualProvider(name, clock)
		if err != nil {
			return nil, fmt.Errorf("build manual payment method %s: %w", name, err)
		}
		methods[name] = manual
	}

	if len(cfg.StripeMethods) > 0 {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:                    cfg.StripeAPIKey,
			StatementDescriptorSuffix: cfg.StatementLabel,
			Logger:                    logger,
			Clock:                     clock,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe payment provider: %w", err)
		}
		for _, name := range cfg.StripeMethods {
			if name = strings.TrimSpace(name); name != "" {
				methods[name] = stripe
			}
		}
	}

	return payments.NewRegistry(methods)
}
