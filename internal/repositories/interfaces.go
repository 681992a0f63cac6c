package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/quotations/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Quotations() QuotationRepository
	Shops() ShopRepository
	Carts() CartRepository
	Catalog() CatalogRepository
	FulfillmentMethods() FulfillmentMethodRepository
	SurchargeRules() SurchargeRuleRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// QuotationRepository persists quotation aggregates. Nested groups and items are owned by the quotation
// document and are only written through the replace and group patch operations.
type QuotationRepository interface {
	Insert(ctx context.Context, quotation domain.Quotation) error
	FindByID(ctx context.Context, quotationID string) (domain.Quotation, error)
	FindByReferenceID(ctx context.Context, shopID, referenceID string) (domain.Quotation, error)
	// ReplaceFulfillment atomically replaces shipping, surcharges, and totals (and workflow when set)
	// and returns the updated document.
	ReplaceFulfillment(ctx context.Context, quotationID string, update QuotationFulfillmentUpdate) (domain.Quotation, error)
	// UpdateFulfillmentGroup patches a single group in place without touching its siblings.
	UpdateFulfillmentGroup(ctx context.Context, quotationID, groupID string, patch FulfillmentGroupPatch) (domain.Quotation, error)
	UpdateHeader(ctx context.Context, quotationID string, patch QuotationHeaderPatch) (domain.Quotation, error)
	AppendAnonymousToken(ctx context.Context, quotationID string, token domain.AnonymousAccessToken) error
	List(ctx context.Context, filter QuotationListFilter) (domain.CursorPage[domain.Quotation], error)
}

// QuotationFulfillmentUpdate is the replace-style update issued by item and group mutations.
type QuotationFulfillmentUpdate struct {
	Shipping          []domain.QuotationFulfillmentGroup
	Surcharges        []domain.Surcharge
	TotalItemQuantity int
	Workflow          *domain.Workflow
	UpdatedAt         time.Time
}

// FulfillmentGroupPatch updates tracking and status fields of one group. Nil fields are left untouched.
type FulfillmentGroupPatch struct {
	Tracking    *string
	TrackingURL *string
	Workflow    *domain.Workflow
	UpdatedAt   time.Time
}

// QuotationHeaderPatch updates quotation-level fields. Nil fields are left untouched.
type QuotationHeaderPatch struct {
	Email        *string
	CustomFields map[string]any
	Workflow     *domain.Workflow
	UpdatedAt    time.Time
}

// QuotationListFilter narrows quotation listings.
type QuotationListFilter struct {
	ShopIDs           []string
	AccountID         string
	Status            []string
	FulfillmentStatus []string
	PaymentStatus     []string
	CreatedAt         domain.RangeQuery[time.Time]
	SearchField       string
	Pagination        domain.Pagination
}

// MaxListDisjunctions is the largest disjunctive form a listing query may expand to.
const MaxListDisjunctions = 30

// searchFields is the number of fields SearchField is matched against.
const searchFields = 3

// Disjunctions reports how many equality branches the filter expands to once its multi-value
// conditions are multiplied out.
func (f QuotationListFilter) Disjunctions() int {
	n := 1
	for _, values := range [][]string{f.ShopIDs, f.Status, f.FulfillmentStatus} {
		if len(values) > 0 {
			n *= len(values)
		}
	}
	if f.SearchField != "" {
		n *= searchFields
	}
	return n
}

// ShopRepository loads shop settings.
type ShopRepository interface {
	FindByID(ctx context.Context, shopID string) (domain.Shop, error)
}

// CartRepository loads the carts quotations are placed from.
type CartRepository interface {
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
}

// CatalogRepository loads sellable variants.
type CatalogRepository interface {
	FindVariant(ctx context.Context, productID, variantID string) (domain.CatalogVariant, error)
}

// FulfillmentMethodRepository lists the fulfillment methods configured for a shop.
type FulfillmentMethodRepository interface {
	ListByShop(ctx context.Context, shopID string) ([]domain.FulfillmentMethod, error)
}

// SurchargeRuleRepository lists the surcharge rules configured for a shop.
type SurchargeRuleRepository interface {
	ListEnabled(ctx context.Context, shopID string) ([]domain.SurchargeRule, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
