package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/quotations/internal/domain"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/repositories"
)

const cartCollection = "carts"

type cartDocument struct {
	ReferenceID   string             `firestore:"referenceId,omitempty"`
	AccountID     *string            `firestore:"accountId"`
	ShopID        string             `firestore:"shopId"`
	Discounts     []discountDocument `firestore:"discounts,omitempty"`
	DiscountTotal float64            `firestore:"discountTotal"`
	UpdatedAt     time.Time          `firestore:"updatedAt"`
}

// CartRepository reads the cart headers quotations are placed from.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// FindByID loads a cart.
func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(cartID))
	if err != nil {
		return domain.Cart{}, err
	}
	cart := domain.Cart{
		ID:            doc.ID,
		ReferenceID:   doc.Data.ReferenceID,
		AccountID:     doc.Data.AccountID,
		ShopID:        doc.Data.ShopID,
		DiscountTotal: doc.Data.DiscountTotal,
		UpdatedAt:     doc.Data.UpdatedAt,
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	for _, discount := range doc.Data.Discounts {
		cart.Discounts = append(cart.Discounts, domain.AppliedDiscount(discount))
	}
	return cart, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)
