package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind a shared provider.
type Registry struct {
	provider   *pfirestore.Provider
	quotations *QuotationRepository
	shops      *ShopRepository
	carts      *CartRepository
	catalog    *CatalogRepository
	health     repositories.HealthRepository
}

// NewRegistry wires every repository against provider. The health repository is supplied by the caller
// because its checks span dependencies beyond Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("repository registry requires firestore provider")
	}
	if health == nil {
		return nil, errors.New("repository registry requires health repository")
	}
	quotations, err := NewQuotationRepository(provider)
	if err != nil {
		return nil, err
	}
	shops, err := NewShopRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		quotations: quotations,
		shops:      shops,
		carts:      carts,
		catalog:    catalog,
		health:     health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Quotations() repositories.QuotationRepository { return r.quotations }

func (r *Registry) Shops() repositories.ShopRepository { return r.shops }

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *Registry) FulfillmentMethods() repositories.FulfillmentMethodRepository { return r.shops }

func (r *Registry) SurchargeRules() repositories.SurchargeRuleRepository { return r.shops }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx runs fn inside a Firestore transaction bound to ctx. Repository calls made with the derived
// context join the transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

var _ repositories.Registry = (*Registry)(nil)
