package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage represents a page of results alongside the next cursor token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address captures a postal address used for billing, shipping, and shop origin.
type Address struct {
	Recipient  string
	Company    *string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// Money is an amount in currency units (fractional, e.g. 9.99) alongside its currency.
type Money struct {
	Amount       float64
	CurrencyCode string
}

// Workflow tracks the current status and the append-only history of statuses an entity has held.
type Workflow struct {
	Status  string
	History []string
}

// Quotation is the root aggregate owning fulfillment groups, items, payments, and surcharges.
type Quotation struct {
	ID                    string
	ReferenceID           string
	AccountID             *string
	ShopID                string
	CartID                *string
	CurrencyCode          string
	Email                 string
	BillingAddress        *Address
	PreferredLanguage     string
	Shipping              []QuotationFulfillmentGroup
	Payments              []Payment
	Surcharges            []Surcharge
	Discounts             []AppliedDiscount
	TotalItemQuantity     int
	Workflow              Workflow
	AnonymousAccessTokens []AnonymousAccessToken
	CustomFields          map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// QuotationFulfillmentGroup groups items sharing one fulfillment method and destination.
type QuotationFulfillmentGroup struct {
	ID                string
	ShopID            string
	Type              string
	Address           *Address
	Items             []QuotationItem
	ItemIDs           []string
	ShipmentMethod    *ShipmentMethod
	Invoice           Invoice
	TotalItemQuantity int
	Workflow          Workflow
	Tracking          string
	TrackingURL       string
	UpdatedAt         *time.Time
}

// QuotationItem is a single line inside a fulfillment group.
type QuotationItem struct {
	ID           string
	ProductID    string
	VariantID    string
	ShopID       string
	Title        string
	VariantTitle string
	Quantity     int
	Price        Money
	Subtotal     float64
	IsTaxable    bool
	TaxCode      string
	Attributes   map[string]string
	CancelReason *string
	Workflow     Workflow
}

// Invoice holds the derived totals of a fulfillment group.
type Invoice struct {
	CurrencyCode     string
	Subtotal         float64
	Shipping         float64
	Taxes            float64
	TaxableAmount    float64
	Discounts        float64
	Surcharges       float64
	Total            float64
	EffectiveTaxRate float64
}

// ShipmentMethod is the fulfillment method resolved from rate quotes.
type ShipmentMethod struct {
	ID           string
	Carrier      string
	Label        string
	Group        string
	Name         string
	Handling     float64
	Rate         float64
	CurrencyCode string
}

// Surcharge is an extra fee attached to a fulfillment group by a surcharge provider.
type Surcharge struct {
	ID                 string
	FulfillmentGroupID string
	SurchargeID        string
	Name               string
	Message            string
	Amount             Money
}

// AppliedDiscount records a discount taken from the originating cart.
type AppliedDiscount struct {
	DiscountID string
	Code       string
	Amount     float64
}

// Payment stores an authorized payment attached to a quotation.
type Payment struct {
	ID             string
	Method         string
	Name           string
	Provider       string
	ProviderRef    string
	Status         string
	Amount         float64
	CurrencyCode   string
	DisplayName    string
	BillingAddress *Address
	Data           map[string]any
	CreatedAt      time.Time
}

// AnonymousAccessToken grants deferred access to a quotation placed without an account.
type AnonymousAccessToken struct {
	HashedToken string
	CreatedAt   time.Time
}

// Shop carries the shop-level settings consulted while placing and presenting quotations.
type Shop struct {
	ID                      string
	Name                    string
	Currency                string
	AllowGuestCheckout      bool
	AvailablePaymentMethods []string
	AddressBook             []Address
	StatusLabels            map[string][]StatusLabel
	StorefrontQuotationURL  string
	EmailFrom               string
}

// StatusLabel is a translated label for a workflow status.
type StatusLabel struct {
	Language string
	Label    string
}

// Cart is the subset of a shopper cart consulted at placement time.
type Cart struct {
	ID            string
	ReferenceID   string
	AccountID     *string
	ShopID        string
	Discounts     []AppliedDiscount
	DiscountTotal float64
	UpdatedAt     time.Time
}

// PermissionScope narrows a capability check to a shop and, where ownership matters, an owning account.
type PermissionScope struct {
	ShopID  string
	OwnerID string
}

// CatalogVariant is the sellable variant consulted when building quotation items.
type CatalogVariant struct {
	ProductID    string
	VariantID    string
	ShopID       string
	Title        string
	VariantTitle string
	Price        Money
	IsTaxable    bool
	TaxCode      string
	Attributes   map[string]string
	Visible      bool
}

// FulfillmentMethod is a shop-configured way of fulfilling a group, with its flat pricing.
type FulfillmentMethod struct {
	ID               string
	ShopID           string
	Name             string
	Label            string
	Group            string
	Carrier          string
	FulfillmentTypes []string
	Rate             float64
	Handling         float64
	// FreeOver waives the rate when the group item total reaches it; zero disables.
	FreeOver  float64
	Countries []string
	Enabled   bool
}

// SurchargeRule is a shop-configured extra fee applied to matching fulfillment groups.
type SurchargeRule struct {
	ID                   string
	ShopID               string
	Name                 string
	Message              string
	Amount               float64
	PerItem              bool
	ProductIDs           []string
	DestinationCountries []string
	Enabled              bool
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but the service keeps running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency is unavailable.
	HealthStatusError = "error"
)

// DependencyHealth describes the outcome of a single dependency probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for the readiness endpoint.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Version     string
	Environment string
	GeneratedAt time.Time
}
