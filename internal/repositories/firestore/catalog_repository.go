package firestore

import (
	"context"
	"errors"
	"maps"
	"strings"

	domain "github.com/hanko-field/quotations/internal/domain"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/repositories"
)

const productCollection = "products"

type productDocument struct {
	ShopID    string `firestore:"shopId"`
	Title     string `firestore:"title"`
	IsVisible bool   `firestore:"isVisible"`
	IsDeleted bool   `firestore:"isDeleted"`
	IsTaxable bool   `firestore:"isTaxable"`
	TaxCode   string `firestore:"taxCode,omitempty"`
}

type variantDocument struct {
	Title      string            `firestore:"title"`
	Price      moneyDocument     `firestore:"price"`
	IsVisible  bool              `firestore:"isVisible"`
	IsDeleted  bool              `firestore:"isDeleted"`
	IsTaxable  *bool             `firestore:"isTaxable,omitempty"`
	TaxCode    string            `firestore:"taxCode,omitempty"`
	Attributes map[string]string `firestore:"attributes,omitempty"`
}

// CatalogRepository reads products and their variants from products/{productId}/variants/{variantId}.
type CatalogRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection),
	}, nil
}

// FindVariant loads a variant merged with its product. Variants inherit taxability from the product
// unless they override it.
func (r *CatalogRepository) FindVariant(ctx context.Context, productID, variantID string) (domain.CatalogVariant, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)

	product, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.CatalogVariant{}, err
	}
	variants := pfirestore.NewBaseRepository[variantDocument](r.provider, productCollection+"/"+productID+"/variants")
	variant, err := variants.Get(ctx, variantID)
	if err != nil {
		return domain.CatalogVariant{}, err
	}

	taxable := product.Data.IsTaxable
	if variant.Data.IsTaxable != nil {
		taxable = *variant.Data.IsTaxable
	}
	taxCode := variant.Data.TaxCode
	if taxCode == "" {
		taxCode = product.Data.TaxCode
	}
	return domain.CatalogVariant{
		ProductID:    productID,
		VariantID:    variantID,
		ShopID:       product.Data.ShopID,
		Title:        product.Data.Title,
		VariantTitle: variant.Data.Title,
		Price:        domain.Money(variant.Data.Price),
		IsTaxable:    taxable,
		TaxCode:      taxCode,
		Attributes:   maps.Clone(variant.Data.Attributes),
		Visible:      product.Data.IsVisible && variant.Data.IsVisible && !product.Data.IsDeleted && !variant.Data.IsDeleted,
	}, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
