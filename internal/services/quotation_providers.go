package services

import (
	"context"
	"time"
)

// QuotationItemBuilder validates requested items against the catalog and returns priced quotation items.
type QuotationItemBuilder interface {
	BuildQuotationItem(ctx context.Context, input QuotationItemInput, currencyCode string) (QuotationItem, error)
}

// FulfillmentRateQuoter lists fulfillment options with prices for a group's contents and destination.
type FulfillmentRateQuoter interface {
	QuoteFulfillment(ctx context.Context, view CommonQuotation) ([]FulfillmentRate, error)
}

// FulfillmentRate is one quoted fulfillment option.
type FulfillmentRate struct {
	Method        ShipmentMethod
	HandlingPrice float64
	ShippingPrice float64
	Rate          float64
	RequestStatus string
	Message       string
}

// RateRequestStatusError marks a quote source that failed to produce a rate.
const RateRequestStatusError = "error"

// SurchargeProvider returns extra fees for a group.
type SurchargeProvider interface {
	GetSurcharges(ctx context.Context, view CommonQuotation) ([]Surcharge, error)
}

// TaxProvider computes taxes for a group given its common view, including surcharges.
type TaxProvider interface {
	CalculateTaxes(ctx context.Context, view CommonQuotation) (TaxResult, error)
}

// TaxResult carries tax totals for one group.
type TaxResult struct {
	TaxTotal      float64
	TaxableAmount float64
}

// PaymentAuthorizer authorizes a payment with a payment method's provider.
type PaymentAuthorizer interface {
	CreateAuthorizedPayment(ctx context.Context, input PaymentAuthorizationInput) (Payment, error)
}

// PaymentVoider is implemented by authorizers whose authorizations hold funds with the provider. Place
// voids them when the quotation is not stored.
type PaymentVoider interface {
	VoidAuthorizedPayment(ctx context.Context, payment Payment) error
}

// PaymentMethodRegistry resolves payment authorizers by payment method name.
type PaymentMethodRegistry interface {
	PaymentMethod(name string) (PaymentAuthorizer, bool)
}

// PaymentAuthorizationInput is passed to payment authorizers.
type PaymentAuthorizationInput struct {
	QuotationID     string
	AccountID       string
	ShopID          string
	Method          string
	Amount          float64
	CurrencyCode    string
	Email           string
	BillingAddress  *Address
	ShippingAddress *Address
	Data            map[string]any
}

// ReferenceIDGenerator produces the human-facing reference id for a new quotation.
type ReferenceIDGenerator interface {
	CreateReferenceID(ctx context.Context, quotation Quotation, cart *Cart) (string, error)
}

// CustomFieldsTransformer adjusts client supplied custom fields at placement. Transformers run in order.
type CustomFieldsTransformer interface {
	TransformCustomFields(ctx context.Context, quotation Quotation, fields map[string]any) (map[string]any, error)
}

// PermissionChecker validates that the caller holds a capability for an action within a scope.
type PermissionChecker interface {
	Validate(ctx context.Context, capability, action string, scope PermissionScope) error
}

// QuotationEventPublisher publishes quotation domain events.
type QuotationEventPublisher interface {
	PublishQuotationEvent(ctx context.Context, event QuotationEvent) error
}

const (
	QuotationEventCreated  = "quotation.created"
	QuotationEventUpdated  = "quotation.updated"
	QuotationEventCanceled = "quotation.canceled"
)

// QuotationEvent captures a quotation change for downstream consumers.
type QuotationEvent struct {
	Type        string
	QuotationID string
	ReferenceID string
	ShopID      string
	ActorID     string
	OccurredAt  time.Time
	Quotation   Quotation
	Metadata    map[string]any
}

// QuotationProviders collects the pluggable collaborators consulted during pricing and placement.
type QuotationProviders struct {
	Items        QuotationItemBuilder
	Rates        FulfillmentRateQuoter
	Surcharges   []SurchargeProvider
	Tax          TaxProvider
	Payments     PaymentMethodRegistry
	ReferenceIDs ReferenceIDGenerator
	CustomFields []CustomFieldsTransformer
}
