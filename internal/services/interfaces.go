package services

import (
	"context"

	domain "github.com/hanko-field/quotations/internal/domain"
	"github.com/hanko-field/quotations/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination                = domain.Pagination
	Address                   = domain.Address
	Money                     = domain.Money
	Workflow                  = domain.Workflow
	Quotation                 = domain.Quotation
	QuotationFulfillmentGroup = domain.QuotationFulfillmentGroup
	QuotationItem             = domain.QuotationItem
	Invoice                   = domain.Invoice
	ShipmentMethod            = domain.ShipmentMethod
	Surcharge                 = domain.Surcharge
	AppliedDiscount           = domain.AppliedDiscount
	Payment                   = domain.Payment
	AnonymousAccessToken      = domain.AnonymousAccessToken
	Shop                      = domain.Shop
	StatusLabel               = domain.StatusLabel
	Cart                      = domain.Cart
	PermissionScope           = domain.PermissionScope
	QuotationListFilter       = repositories.QuotationListFilter
)

// QuotationService exposes the quotation lifecycle: placement, item surgery, and status updates.
type QuotationService interface {
	Place(ctx context.Context, cmd PlaceQuotationCommand) (PlaceQuotationResult, error)
	AddFulfillmentGroup(ctx context.Context, cmd AddFulfillmentGroupCommand) (AddFulfillmentGroupResult, error)
	CancelItem(ctx context.Context, cmd CancelQuotationItemCommand) (Quotation, error)
	SplitItem(ctx context.Context, cmd SplitQuotationItemCommand) (SplitQuotationItemResult, error)
	MoveItems(ctx context.Context, cmd MoveQuotationItemsCommand) (Quotation, error)
	UpdateFulfillmentGroup(ctx context.Context, cmd UpdateFulfillmentGroupCommand) (Quotation, error)
	UpdateQuotation(ctx context.Context, cmd UpdateQuotationCommand) (Quotation, error)
	AddAnonymousToken(ctx context.Context, cmd AddAnonymousTokenCommand) (string, error)

	GetQuotation(ctx context.Context, query QuotationLookup) (Quotation, error)
	ListQuotations(ctx context.Context, filter QuotationListFilter) (domain.CursorPage[Quotation], error)
	DisplayStatus(ctx context.Context, shopID, status, language string) (string, error)
}

// QuotationActor identifies who is performing a mutation.
type QuotationActor struct {
	// AccountID is the acting account; empty for anonymous callers.
	AccountID string
	// UserID is recorded on emitted events.
	UserID string
}

// QuotationItemInput describes an item requested for a new fulfillment group.
type QuotationItemInput struct {
	ProductID string  `validate:"required"`
	VariantID string  `validate:"required"`
	Quantity  int     `validate:"min=1"`
	Price     float64 `validate:"gte=0"`
}

// FulfillmentGroupInput describes a fulfillment group to build.
type FulfillmentGroupInput struct {
	ShopID                      string `validate:"required"`
	Type                        string `validate:"required"`
	ShippingAddress             *Address
	SelectedFulfillmentMethodID string               `validate:"required"`
	Items                       []QuotationItemInput `validate:"dive"`
	// TotalPrice is the total the caller expects for the group; checked when set.
	TotalPrice *float64
}

// PaymentInput is one payment requested at placement time.
type PaymentInput struct {
	Method         string  `validate:"required"`
	Amount         float64 `validate:"gt=0"`
	BillingAddress *Address
	Data           map[string]any
}

// PlaceQuotationCommand creates a new quotation from fulfillment group input and payments.
type PlaceQuotationCommand struct {
	Actor             QuotationActor
	ShopID            string `validate:"required"`
	CurrencyCode      string `validate:"required,len=3"`
	Email             string `validate:"omitempty,email"`
	CartID            string
	BillingAddress    *Address
	PreferredLanguage string
	CustomFields      map[string]any
	FulfillmentGroups []FulfillmentGroupInput `validate:"min=1,dive"`
	Payments          []PaymentInput          `validate:"dive"`
}

// PlaceQuotationResult carries the created quotation and the raw anonymous token when one was issued.
type PlaceQuotationResult struct {
	Quotation Quotation
	Token     string
}

// AddFulfillmentGroupCommand adds a group built from input, optionally moving existing items into it.
type AddFulfillmentGroupCommand struct {
	Actor            QuotationActor
	QuotationID      string `validate:"required"`
	FulfillmentGroup FulfillmentGroupInput
	MoveItemIDs      []string
}

// AddFulfillmentGroupResult returns the updated quotation and the new group id.
type AddFulfillmentGroupResult struct {
	Quotation             Quotation
	NewFulfillmentGroupID string
}

// CancelQuotationItemCommand cancels all or part of one item.
type CancelQuotationItemCommand struct {
	Actor          QuotationActor
	QuotationID    string `validate:"required"`
	ItemID         string `validate:"required"`
	CancelQuantity int    `validate:"min=1"`
	Reason         *string
}

// SplitQuotationItemCommand moves part of an item's quantity to a new sibling item.
type SplitQuotationItemCommand struct {
	Actor           QuotationActor
	QuotationID     string `validate:"required"`
	ItemID          string `validate:"required"`
	NewItemQuantity int    `validate:"min=1"`
}

// SplitQuotationItemResult returns the updated quotation and the new item id.
type SplitQuotationItemResult struct {
	Quotation Quotation
	NewItemID string
}

// MoveQuotationItemsCommand moves items between two existing groups.
type MoveQuotationItemsCommand struct {
	Actor                  QuotationActor
	QuotationID            string   `validate:"required"`
	FromFulfillmentGroupID string   `validate:"required"`
	ToFulfillmentGroupID   string   `validate:"required"`
	ItemIDs                []string `validate:"min=1,dive,required"`
}

// UpdateFulfillmentGroupCommand updates tracking and status of one group in place.
type UpdateFulfillmentGroupCommand struct {
	Actor              QuotationActor
	QuotationID        string `validate:"required"`
	FulfillmentGroupID string `validate:"required"`
	Tracking           string
	TrackingURL        string `validate:"omitempty,url"`
	Status             string
}

// UpdateQuotationCommand updates quotation-level status, email, and custom fields.
type UpdateQuotationCommand struct {
	Actor        QuotationActor
	QuotationID  string `validate:"required"`
	Email        string `validate:"omitempty,email"`
	Status       string
	CustomFields map[string]any
}

// QuotationLookup selects a quotation by id or reference id, optionally with an anonymous token.
type QuotationLookup struct {
	QuotationID string
	ReferenceID string
	ShopID      string
	Token       string
}

// AddAnonymousTokenCommand issues a fresh anonymous access token for a quotation.
type AddAnonymousTokenCommand struct {
	Actor       QuotationActor
	QuotationID string `validate:"required"`
}
