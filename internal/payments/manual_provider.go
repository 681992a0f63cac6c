package payments

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/hanko-field/quotations/internal/services"
)

// ManualProvider records offline payments (bank transfer, invoice, cash on delivery) without contacting a
// payment processor.
type ManualProvider struct {
	name  string
	clock func() time.Time
}

// NewManualProvider constructs a provider that labels its payments with name.
func NewManualProvider(name string, clock func() time.Time) (*ManualProvider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("payments: manual provider name is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ManualProvider{name: name, clock: clock}, nil
}

// CreateAuthorizedPayment implements services.PaymentAuthorizer.
func (p *ManualProvider) CreateAuthorizedPayment(_ context.Context, input services.PaymentAuthorizationInput) (services.Payment, error) {
	if input.Amount <= 0 {
		return services.Payment{}, errors.New("payments: amount must be positive")
	}
	return services.Payment{
		Method:         input.Method,
		Name:           p.name,
		Provider:       "manual",
		Status:         StatusCreated,
		Amount:         input.Amount,
		CurrencyCode:   strings.ToUpper(input.CurrencyCode),
		DisplayName:    p.name,
		BillingAddress: input.BillingAddress,
		Data:           maps.Clone(input.Data),
		CreatedAt:      p.clock().UTC(),
	}, nil
}

var _ services.PaymentAuthorizer = (*ManualProvider)(nil)
