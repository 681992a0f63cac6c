package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/quotations/internal/domain"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/repositories"
)

const shopCollection = "shops"

type shopDocument struct {
	Name                    string                      `firestore:"name"`
	Currency                string                      `firestore:"currency"`
	AllowGuestCheckout      bool                        `firestore:"allowGuestCheckout"`
	AvailablePaymentMethods []string                    `firestore:"availablePaymentMethods"`
	AddressBook             []addressDocument           `firestore:"addressBook"`
	StatusLabels            map[string][]statusLabelDoc `firestore:"statusLabels,omitempty"`
	StorefrontQuotationURL  string                      `firestore:"storefrontQuotationUrl,omitempty"`
	EmailFrom               string                      `firestore:"emailFrom,omitempty"`
}

type statusLabelDoc struct {
	Language string `firestore:"language"`
	Label    string `firestore:"label"`
}

type fulfillmentMethodDocument struct {
	Name             string   `firestore:"name"`
	Label            string   `firestore:"label"`
	Group            string   `firestore:"group,omitempty"`
	Carrier          string   `firestore:"carrier,omitempty"`
	FulfillmentTypes []string `firestore:"fulfillmentTypes,omitempty"`
	Rate             float64  `firestore:"rate"`
	Handling         float64  `firestore:"handling"`
	FreeOver         float64  `firestore:"freeOver,omitempty"`
	Countries        []string `firestore:"countries,omitempty"`
	Enabled          bool     `firestore:"isEnabled"`
}

type surchargeRuleDocument struct {
	Name                 string   `firestore:"name"`
	Message              string   `firestore:"message,omitempty"`
	Amount               float64  `firestore:"amount"`
	PerItem              bool     `firestore:"perItem"`
	ProductIDs           []string `firestore:"productIds,omitempty"`
	DestinationCountries []string `firestore:"destinationCountries,omitempty"`
	Enabled              bool     `firestore:"enabled"`
}

// ShopRepository loads shop settings and the per-shop fulfillment and surcharge configuration stored in
// shops/{shopId}/fulfillmentMethods and shops/{shopId}/surcharges.
type ShopRepository struct {
	provider *pfirestore.Provider
	shops    *pfirestore.BaseRepository[shopDocument]
}

// NewShopRepository constructs a Firestore-backed shop repository.
func NewShopRepository(provider *pfirestore.Provider) (*ShopRepository, error) {
	if provider == nil {
		return nil, errors.New("shop repository requires firestore provider")
	}
	return &ShopRepository{
		provider: provider,
		shops:    pfirestore.NewBaseRepository[shopDocument](provider, shopCollection),
	}, nil
}

// FindByID loads a shop.
func (r *ShopRepository) FindByID(ctx context.Context, shopID string) (domain.Shop, error) {
	doc, err := r.shops.Get(ctx, strings.TrimSpace(shopID))
	if err != nil {
		return domain.Shop{}, err
	}
	shop := domain.Shop{
		ID:                      doc.ID,
		Name:                    doc.Data.Name,
		Currency:                strings.ToUpper(doc.Data.Currency),
		AllowGuestCheckout:      doc.Data.AllowGuestCheckout,
		AvailablePaymentMethods: doc.Data.AvailablePaymentMethods,
		StorefrontQuotationURL:  doc.Data.StorefrontQuotationURL,
		EmailFrom:               doc.Data.EmailFrom,
	}
	for _, address := range doc.Data.AddressBook {
		shop.AddressBook = append(shop.AddressBook, domain.Address(address))
	}
	if len(doc.Data.StatusLabels) > 0 {
		shop.StatusLabels = make(map[string][]domain.StatusLabel, len(doc.Data.StatusLabels))
		for status, labels := range doc.Data.StatusLabels {
			for _, label := range labels {
				shop.StatusLabels[status] = append(shop.StatusLabels[status], domain.StatusLabel(label))
			}
		}
	}
	return shop, nil
}

// ListByShop returns every fulfillment method configured for the shop, enabled or not.
func (r *ShopRepository) ListByShop(ctx context.Context, shopID string) ([]domain.FulfillmentMethod, error) {
	shopID = strings.TrimSpace(shopID)
	methods := pfirestore.NewBaseRepository[fulfillmentMethodDocument](r.provider, shopCollection+"/"+shopID+"/fulfillmentMethods")
	docs, err := methods.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("rate", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.FulfillmentMethod, len(docs))
	for i, doc := range docs {
		out[i] = domain.FulfillmentMethod{
			ID:               doc.ID,
			ShopID:           shopID,
			Name:             doc.Data.Name,
			Label:            doc.Data.Label,
			Group:            doc.Data.Group,
			Carrier:          doc.Data.Carrier,
			FulfillmentTypes: doc.Data.FulfillmentTypes,
			Rate:             doc.Data.Rate,
			Handling:         doc.Data.Handling,
			FreeOver:         doc.Data.FreeOver,
			Countries:        doc.Data.Countries,
			Enabled:          doc.Data.Enabled,
		}
	}
	return out, nil
}

// ListEnabled returns the shop's enabled surcharge rules.
func (r *ShopRepository) ListEnabled(ctx context.Context, shopID string) ([]domain.SurchargeRule, error) {
	shopID = strings.TrimSpace(shopID)
	rules := pfirestore.NewBaseRepository[surchargeRuleDocument](r.provider, shopCollection+"/"+shopID+"/surcharges")
	docs, err := rules.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("enabled", "==", true)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.SurchargeRule, len(docs))
	for i, doc := range docs {
		out[i] = domain.SurchargeRule{
			ID:                   doc.ID,
			ShopID:               shopID,
			Name:                 doc.Data.Name,
			Message:              doc.Data.Message,
			Amount:               doc.Data.Amount,
			PerItem:              doc.Data.PerItem,
			ProductIDs:           doc.Data.ProductIDs,
			DestinationCountries: doc.Data.DestinationCountries,
			Enabled:              doc.Data.Enabled,
		}
	}
	return out, nil
}

var (
	_ repositories.ShopRepository              = (*ShopRepository)(nil)
	_ repositories.FulfillmentMethodRepository = (*ShopRepository)(nil)
	_ repositories.SurchargeRuleRepository     = (*ShopRepository)(nil)
)
