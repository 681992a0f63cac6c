package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"golang.org/x/text/currency"

	"github.com/hanko-field/quotations/internal/services"
)

// ErrAuthenticationRequired is returned when the card needs customer authentication, which the
// server-side placement flow cannot complete.
var ErrAuthenticationRequired = errors.New("payments: payment requires customer authentication")

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey string
	// AccountID sends requests on behalf of a connected account.
	AccountID string
	// StatementDescriptorSuffix is appended to the card statement descriptor.
	StatementDescriptorSuffix string
	Backends                  *stripe.Backends
	Logger                    StripeLogger
	Clock                     func() time.Time
	intents                   stripePaymentIntentAPI
}

// StripeProvider authorizes card payments as manual-capture PaymentIntents. Funds are held at placement and
// captured by the fulfillment back office.
type StripeProvider struct {
	intents    stripePaymentIntentAPI
	account    string
	descriptor string
	clock      func() time.Time
	logger     StripeLogger
}

// NewStripeProvider constructs a Stripe provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.intents
	if intents == nil {
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:    intents,
		account:    strings.TrimSpace(cfg.AccountID),
		descriptor: strings.TrimSpace(cfg.StatementDescriptorSuffix),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateAuthorizedPayment implements services.PaymentAuthorizer. Data must carry "paymentMethodId"; an
// optional "customerId" attaches the intent to a Stripe customer.
func (p *StripeProvider) CreateAuthorizedPayment(ctx context.Context, input services.PaymentAuthorizationInput) (services.Payment, error) {
	paymentMethod := dataString(input.Data, "paymentMethodId")
	if paymentMethod == "" {
		return services.Payment{}, errors.New("stripe: paymentMethodId is required")
	}
	amount, err := minorUnits(input.Amount, input.CurrencyCode)
	if err != nil {
		return services.Payment{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(strings.ToLower(input.CurrencyCode)),
		PaymentMethod:      stripe.String(paymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:            stripe.Bool(true),
		Metadata: map[string]string{
			"quotationId": input.QuotationID,
			"shopId":      input.ShopID,
			"method":      input.Method,
		},
	}
	params.Context = ctx
	params.AddExpand("payment_method")
	params.SetIdempotencyKey(fmt.Sprintf("quotation:%s:%s:%d", input.QuotationID, input.Method, amount))
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if customer := dataString(input.Data, "customerId"); customer != "" {
		params.Customer = stripe.String(customer)
	}
	if input.AccountID != "" {
		params.Metadata["accountId"] = input.AccountID
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if p.descriptor != "" {
		params.StatementDescriptorSuffix = stripe.String(p.descriptor)
	}
	if addr := input.ShippingAddress; addr != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name:  stripe.String(addr.Recipient),
			Phone: optionalString(addr.Phone),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(addr.Line1),
				Line2:      optionalString(addr.Line2),
				City:       stripe.String(addr.City),
				State:      optionalString(addr.State),
				PostalCode: stripe.String(addr.PostalCode),
				Country:    stripe.String(addr.Country),
			},
		}
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return services.Payment{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	var status string
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		status = StatusAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusCaptured
	case stripe.PaymentIntentStatusRequiresAction:
		p.cancel(ctx, intent.ID)
		return services.Payment{}, ErrAuthenticationRequired
	default:
		p.cancel(ctx, intent.ID)
		return services.Payment{}, fmt.Errorf("stripe: payment intent %s not authorized (status %s)", intent.ID, intent.Status)
	}

	p.logger(ctx, "payments.stripe.intent.authorized", map[string]any{
		"paymentIntent": intent.ID,
		"quotationId":   input.QuotationID,
		"status":        intent.Status,
	})

	return services.Payment{
		Method:         input.Method,
		Name:           "stripe_card",
		Provider:       "stripe",
		ProviderRef:    intent.ID,
		Status:         status,
		Amount:         input.Amount,
		CurrencyCode:   strings.ToUpper(input.CurrencyCode),
		DisplayName:    cardDisplayName(intent.PaymentMethod),
		BillingAddress: input.BillingAddress,
		Data: map[string]any{
			"paymentIntentId": intent.ID,
			"paymentMethodId": paymentMethod,
			"amountMinor":     amount,
		},
		CreatedAt: p.clock(),
	}, nil
}

// VoidAuthorizedPayment implements services.PaymentVoider by canceling the held PaymentIntent. Captured
// payments need a refund and are rejected.
func (p *StripeProvider) VoidAuthorizedPayment(ctx context.Context, payment services.Payment) error {
	intentID := strings.TrimSpace(payment.ProviderRef)
	if intentID == "" {
		return errors.New("stripe: payment has no payment intent reference")
	}
	if payment.Status != StatusAuthorized {
		return fmt.Errorf("stripe: payment intent %s is %s and cannot be voided", intentID, payment.Status)
	}
	if err := p.cancelIntent(ctx, intentID); err != nil {
		return err
	}
	p.logger(ctx, "payments.stripe.intent.voided", map[string]any{"paymentIntent": intentID})
	return nil
}

// cancel releases an intent that will not be used. Failures are logged only.
func (p *StripeProvider) cancel(ctx context.Context, intentID string) {
	if err := p.cancelIntent(ctx, intentID); err != nil {
		p.logger(ctx, "payments.stripe.intent.cancel_failed", map[string]any{
			"paymentIntent": intentID,
			"error":         err.Error(),
		})
	}
}

func (p *StripeProvider) cancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if _, err := p.intents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("stripe: cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

// minorUnits converts an amount in currency units to the integer minor units Stripe expects, using the
// ISO 4217 scale of the currency.
func minorUnits(amount float64, currencyCode string) (int64, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(currencyCode))
	if err != nil {
		return 0, fmt.Errorf("stripe: unsupported currency %q: %w", currencyCode, err)
	}
	if amount <= 0 {
		return 0, errors.New("stripe: amount must be positive")
	}
	scale, _ := currency.Standard.Rounding(unit)
	return decimal.NewFromFloat(amount).Shift(int32(scale)).Round(0).IntPart(), nil
}

func cardDisplayName(pm *stripe.PaymentMethod) string {
	if pm == nil || pm.Card == nil {
		return "Card"
	}
	brand := strings.ToUpper(string(pm.Card.Brand))
	if brand == "" {
		brand = "CARD"
	}
	return fmt.Sprintf("%s ****%s", brand, strings.TrimSpace(pm.Card.Last4))
}

func optionalString(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return stripe.String(strings.TrimSpace(*value))
}

func dataString(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	value, _ := data[key].(string)
	return strings.TrimSpace(value)
}

var (
	_ services.PaymentAuthorizer = (*StripeProvider)(nil)
	_ services.PaymentVoider     = (*StripeProvider)(nil)
)
