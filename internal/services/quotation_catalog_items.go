package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/quotations/internal/platform/textutil"
	"github.com/hanko-field/quotations/internal/repositories"
)

// CatalogItemBuilder prices requested items from the catalog and rejects stale client prices.
type CatalogItemBuilder struct {
	catalog repositories.CatalogRepository
}

// NewCatalogItemBuilder constructs a CatalogItemBuilder.
func NewCatalogItemBuilder(catalog repositories.CatalogRepository) (*CatalogItemBuilder, error) {
	if catalog == nil {
		return nil, errors.New("catalog item builder: catalog repository is required")
	}
	return &CatalogItemBuilder{catalog: catalog}, nil
}

// BuildQuotationItem implements QuotationItemBuilder.
func (b *CatalogItemBuilder) BuildQuotationItem(ctx context.Context, input QuotationItemInput, currencyCode string) (QuotationItem, error) {
	productID := strings.TrimSpace(input.ProductID)
	variantID := strings.TrimSpace(input.VariantID)
	if input.Quantity <= 0 {
		return QuotationItem{}, fmt.Errorf("%w: item quantity must be positive", ErrQuotationInvalidParam)
	}

	variant, err := b.catalog.FindVariant(ctx, productID, variantID)
	if err != nil {
		mapped := mapQuotationRepositoryError(err)
		if errors.Is(mapped, ErrQuotationNotFound) {
			return QuotationItem{}, fmt.Errorf("%w: catalog product %s variant %s not found", ErrQuotationNotFound, productID, variantID)
		}
		return QuotationItem{}, mapped
	}
	if !variant.Visible {
		return QuotationItem{}, fmt.Errorf("%w: catalog product %s variant %s is not available", ErrQuotationInvalid, productID, variantID)
	}
	if !strings.EqualFold(variant.Price.CurrencyCode, currencyCode) {
		return QuotationItem{}, fmt.Errorf("%w: variant %s is not priced in %s", ErrQuotationInvalid, variantID, currencyCode)
	}
	if !amountsMatch(input.Price, variant.Price.Amount) {
		return QuotationItem{}, fmt.Errorf("%w: provided price %s for variant %s does not match current price %s",
			ErrQuotationInvalid, formatAmount(input.Price), variantID, formatAmount(variant.Price.Amount))
	}

	return QuotationItem{
		ProductID:    variant.ProductID,
		VariantID:    variant.VariantID,
		ShopID:       variant.ShopID,
		Title:        textutil.PlainText(variant.Title),
		VariantTitle: textutil.PlainText(variant.VariantTitle),
		Quantity:     input.Quantity,
		Price:        Money{Amount: roundAmount(variant.Price.Amount), CurrencyCode: strings.ToUpper(currencyCode)},
		IsTaxable:    variant.IsTaxable,
		TaxCode:      variant.TaxCode,
		Attributes:   textutil.NormalizeStringMap(variant.Attributes),
	}, nil
}

var _ QuotationItemBuilder = (*CatalogItemBuilder)(nil)
