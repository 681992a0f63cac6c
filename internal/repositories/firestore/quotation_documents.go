package firestore

import (
	"maps"
	"slices"
	"time"

	domain "github.com/hanko-field/quotations/internal/domain"
)

type quotationDocument struct {
	ID                    string                   `firestore:"id"`
	ReferenceID           string                   `firestore:"referenceId"`
	AccountID             *string                  `firestore:"accountId"`
	ShopID                string                   `firestore:"shopId"`
	CartID                *string                  `firestore:"cartId,omitempty"`
	CurrencyCode          string                   `firestore:"currencyCode"`
	Email                 string                   `firestore:"email,omitempty"`
	BillingAddress        *addressDocument         `firestore:"billingAddress,omitempty"`
	PreferredLanguage     string                   `firestore:"preferredLanguage,omitempty"`
	Shipping              []fulfillmentGroupDoc    `firestore:"shipping"`
	ShippingStatuses      []string                 `firestore:"shippingStatuses"`
	Payments              []paymentDocument        `firestore:"payments"`
	PaymentStatuses       []string                 `firestore:"paymentStatuses"`
	Surcharges            []surchargeDocument      `firestore:"surcharges"`
	Discounts             []discountDocument       `firestore:"discounts,omitempty"`
	TotalItemQuantity     int                      `firestore:"totalItemQuantity"`
	Workflow              workflowDocument         `firestore:"workflow"`
	AnonymousAccessTokens []anonymousTokenDocument `firestore:"anonymousAccessTokens,omitempty"`
	CustomFields          map[string]any           `firestore:"customFields,omitempty"`
	CreatedAt             time.Time                `firestore:"createdAt"`
	UpdatedAt             time.Time                `firestore:"updatedAt"`
}

type addressDocument struct {
	Recipient  string  `firestore:"fullName"`
	Company    *string `firestore:"company,omitempty"`
	Line1      string  `firestore:"address1"`
	Line2      *string `firestore:"address2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"region,omitempty"`
	PostalCode string  `firestore:"postal"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type moneyDocument struct {
	Amount       float64 `firestore:"amount"`
	CurrencyCode string  `firestore:"currencyCode"`
}

type workflowDocument struct {
	Status   string   `firestore:"status"`
	Workflow []string `firestore:"workflow"`
}

type fulfillmentGroupDoc struct {
	ID                string             `firestore:"_id"`
	ShopID            string             `firestore:"shopId"`
	Type              string             `firestore:"type"`
	Address           *addressDocument   `firestore:"address,omitempty"`
	Items             []itemDocument     `firestore:"items"`
	ItemIDs           []string           `firestore:"itemIds"`
	ShipmentMethod    *shipmentMethodDoc `firestore:"shipmentMethod,omitempty"`
	Invoice           invoiceDocument    `firestore:"invoice"`
	TotalItemQuantity int                `firestore:"totalItemQuantity"`
	Workflow          workflowDocument   `firestore:"workflow"`
	Tracking          string             `firestore:"tracking,omitempty"`
	TrackingURL       string             `firestore:"trackingUrl,omitempty"`
	UpdatedAt         *time.Time         `firestore:"updatedAt,omitempty"`
}

type itemDocument struct {
	ID           string            `firestore:"_id"`
	ProductID    string            `firestore:"productId"`
	VariantID    string            `firestore:"variantId"`
	ShopID       string            `firestore:"shopId"`
	Title        string            `firestore:"title"`
	VariantTitle string            `firestore:"variantTitle,omitempty"`
	Quantity     int               `firestore:"quantity"`
	Price        moneyDocument     `firestore:"price"`
	Subtotal     float64           `firestore:"subtotal"`
	IsTaxable    bool              `firestore:"isTaxable"`
	TaxCode      string            `firestore:"taxCode,omitempty"`
	Attributes   map[string]string `firestore:"attributes,omitempty"`
	CancelReason *string           `firestore:"cancelReason,omitempty"`
	Workflow     workflowDocument  `firestore:"workflow"`
}

type invoiceDocument struct {
	CurrencyCode     string  `firestore:"currencyCode"`
	Subtotal         float64 `firestore:"subtotal"`
	Shipping         float64 `firestore:"shipping"`
	Taxes            float64 `firestore:"taxes"`
	TaxableAmount    float64 `firestore:"taxableAmount"`
	Discounts        float64 `firestore:"discounts"`
	Surcharges       float64 `firestore:"surcharges"`
	Total            float64 `firestore:"total"`
	EffectiveTaxRate float64 `firestore:"effectiveTaxRate"`
}

type shipmentMethodDoc struct {
	ID           string  `firestore:"_id"`
	Carrier      string  `firestore:"carrier,omitempty"`
	Label        string  `firestore:"label"`
	Group        string  `firestore:"group,omitempty"`
	Name         string  `firestore:"name"`
	Handling     float64 `firestore:"handling"`
	Rate         float64 `firestore:"rate"`
	CurrencyCode string  `firestore:"currencyCode"`
}

type surchargeDocument struct {
	ID                 string        `firestore:"_id"`
	FulfillmentGroupID string        `firestore:"fulfillmentGroupId"`
	SurchargeID        string        `firestore:"surchargeId"`
	Name               string        `firestore:"name"`
	Message            string        `firestore:"message,omitempty"`
	Amount             moneyDocument `firestore:"amount"`
}

type discountDocument struct {
	DiscountID string  `firestore:"discountId"`
	Code       string  `firestore:"code,omitempty"`
	Amount     float64 `firestore:"amount"`
}

type paymentDocument struct {
	ID             string           `firestore:"_id"`
	Method         string           `firestore:"method"`
	Name           string           `firestore:"name"`
	Provider       string           `firestore:"paymentPluginName"`
	ProviderRef    string           `firestore:"transactionId,omitempty"`
	Status         string           `firestore:"status"`
	Amount         float64          `firestore:"amount"`
	CurrencyCode   string           `firestore:"currencyCode"`
	DisplayName    string           `firestore:"displayName"`
	BillingAddress *addressDocument `firestore:"address,omitempty"`
	Data           map[string]any   `firestore:"data,omitempty"`
	CreatedAt      time.Time        `firestore:"createdAt"`
}

type anonymousTokenDocument struct {
	HashedToken string    `firestore:"hashedToken"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toQuotationDocument(q domain.Quotation) quotationDocument {
	doc := quotationDocument{
		ID:                q.ID,
		ReferenceID:       q.ReferenceID,
		AccountID:         q.AccountID,
		ShopID:            q.ShopID,
		CartID:            q.CartID,
		CurrencyCode:      q.CurrencyCode,
		Email:             q.Email,
		BillingAddress:    toAddressDocument(q.BillingAddress),
		PreferredLanguage: q.PreferredLanguage,
		Shipping:          make([]fulfillmentGroupDoc, len(q.Shipping)),
		Payments:          make([]paymentDocument, len(q.Payments)),
		Surcharges:        toSurchargeDocuments(q.Surcharges),
		TotalItemQuantity: q.TotalItemQuantity,
		Workflow:          toWorkflowDocument(q.Workflow),
		CustomFields:      maps.Clone(q.CustomFields),
		CreatedAt:         q.CreatedAt,
		UpdatedAt:         q.UpdatedAt,
	}
	for i, group := range q.Shipping {
		doc.Shipping[i] = toGroupDocument(group)
	}
	doc.ShippingStatuses = groupStatuses(q.Shipping)
	for i, payment := range q.Payments {
		doc.Payments[i] = paymentDocument{
			ID:             payment.ID,
			Method:         payment.Method,
			Name:           payment.Name,
			Provider:       payment.Provider,
			ProviderRef:    payment.ProviderRef,
			Status:         payment.Status,
			Amount:         payment.Amount,
			CurrencyCode:   payment.CurrencyCode,
			DisplayName:    payment.DisplayName,
			BillingAddress: toAddressDocument(payment.BillingAddress),
			Data:           maps.Clone(payment.Data),
			CreatedAt:      payment.CreatedAt,
		}
	}
	doc.PaymentStatuses = paymentStatuses(q.Payments)
	for _, discount := range q.Discounts {
		doc.Discounts = append(doc.Discounts, discountDocument(discount))
	}
	for _, token := range q.AnonymousAccessTokens {
		doc.AnonymousAccessTokens = append(doc.AnonymousAccessTokens, anonymousTokenDocument(token))
	}
	return doc
}

func (d quotationDocument) toDomain() domain.Quotation {
	q := domain.Quotation{
		ID:                d.ID,
		ReferenceID:       d.ReferenceID,
		AccountID:         d.AccountID,
		ShopID:            d.ShopID,
		CartID:            d.CartID,
		CurrencyCode:      d.CurrencyCode,
		Email:             d.Email,
		BillingAddress:    d.BillingAddress.toDomain(),
		PreferredLanguage: d.PreferredLanguage,
		Shipping:          make([]domain.QuotationFulfillmentGroup, len(d.Shipping)),
		Payments:          make([]domain.Payment, len(d.Payments)),
		Surcharges:        make([]domain.Surcharge, len(d.Surcharges)),
		TotalItemQuantity: d.TotalItemQuantity,
		Workflow:          d.Workflow.toDomain(),
		CustomFields:      maps.Clone(d.CustomFields),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	for i, group := range d.Shipping {
		q.Shipping[i] = group.toDomain()
	}
	for i, payment := range d.Payments {
		q.Payments[i] = domain.Payment{
			ID:             payment.ID,
			Method:         payment.Method,
			Name:           payment.Name,
			Provider:       payment.Provider,
			ProviderRef:    payment.ProviderRef,
			Status:         payment.Status,
			Amount:         payment.Amount,
			CurrencyCode:   payment.CurrencyCode,
			DisplayName:    payment.DisplayName,
			BillingAddress: payment.BillingAddress.toDomain(),
			Data:           maps.Clone(payment.Data),
			CreatedAt:      payment.CreatedAt,
		}
	}
	for i, surcharge := range d.Surcharges {
		q.Surcharges[i] = surcharge.toDomain()
	}
	for _, discount := range d.Discounts {
		q.Discounts = append(q.Discounts, domain.AppliedDiscount(discount))
	}
	for _, token := range d.AnonymousAccessTokens {
		q.AnonymousAccessTokens = append(q.AnonymousAccessTokens, domain.AnonymousAccessToken(token))
	}
	return q
}

func toGroupDocument(group domain.QuotationFulfillmentGroup) fulfillmentGroupDoc {
	doc := fulfillmentGroupDoc{
		ID:                group.ID,
		ShopID:            group.ShopID,
		Type:              group.Type,
		Address:           toAddressDocument(group.Address),
		Items:             make([]itemDocument, len(group.Items)),
		ItemIDs:           slices.Clone(group.ItemIDs),
		Invoice:           invoiceDocument(group.Invoice),
		TotalItemQuantity: group.TotalItemQuantity,
		Workflow:          toWorkflowDocument(group.Workflow),
		Tracking:          group.Tracking,
		TrackingURL:       group.TrackingURL,
		UpdatedAt:         group.UpdatedAt,
	}
	if doc.ItemIDs == nil {
		doc.ItemIDs = []string{}
	}
	if group.ShipmentMethod != nil {
		method := shipmentMethodDoc(*group.ShipmentMethod)
		doc.ShipmentMethod = &method
	}
	for i, item := range group.Items {
		doc.Items[i] = itemDocument{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			ShopID:       item.ShopID,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			Price:        moneyDocument(item.Price),
			Subtotal:     item.Subtotal,
			IsTaxable:    item.IsTaxable,
			TaxCode:      item.TaxCode,
			Attributes:   maps.Clone(item.Attributes),
			CancelReason: item.CancelReason,
			Workflow:     toWorkflowDocument(item.Workflow),
		}
	}
	return doc
}

func (d fulfillmentGroupDoc) toDomain() domain.QuotationFulfillmentGroup {
	group := domain.QuotationFulfillmentGroup{
		ID:                d.ID,
		ShopID:            d.ShopID,
		Type:              d.Type,
		Address:           d.Address.toDomain(),
		Items:             make([]domain.QuotationItem, len(d.Items)),
		ItemIDs:           slices.Clone(d.ItemIDs),
		Invoice:           domain.Invoice(d.Invoice),
		TotalItemQuantity: d.TotalItemQuantity,
		Workflow:          d.Workflow.toDomain(),
		Tracking:          d.Tracking,
		TrackingURL:       d.TrackingURL,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.ShipmentMethod != nil {
		method := domain.ShipmentMethod(*d.ShipmentMethod)
		group.ShipmentMethod = &method
	}
	for i, item := range d.Items {
		group.Items[i] = domain.QuotationItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			ShopID:       item.ShopID,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			Price:        domain.Money(item.Price),
			Subtotal:     item.Subtotal,
			IsTaxable:    item.IsTaxable,
			TaxCode:      item.TaxCode,
			Attributes:   maps.Clone(item.Attributes),
			CancelReason: item.CancelReason,
			Workflow:     item.Workflow.toDomain(),
		}
	}
	return group
}

func toSurchargeDocuments(surcharges []domain.Surcharge) []surchargeDocument {
	out := make([]surchargeDocument, len(surcharges))
	for i, surcharge := range surcharges {
		out[i] = surchargeDocument{
			ID:                 surcharge.ID,
			FulfillmentGroupID: surcharge.FulfillmentGroupID,
			SurchargeID:        surcharge.SurchargeID,
			Name:               surcharge.Name,
			Message:            surcharge.Message,
			Amount:             moneyDocument(surcharge.Amount),
		}
	}
	return out
}

func (d surchargeDocument) toDomain() domain.Surcharge {
	return domain.Surcharge{
		ID:                 d.ID,
		FulfillmentGroupID: d.FulfillmentGroupID,
		SurchargeID:        d.SurchargeID,
		Name:               d.Name,
		Message:            d.Message,
		Amount:             domain.Money(d.Amount),
	}
}

func toAddressDocument(address *domain.Address) *addressDocument {
	if address == nil {
		return nil
	}
	doc := addressDocument(*address)
	return &doc
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	address := domain.Address(*d)
	return &address
}

func toWorkflowDocument(w domain.Workflow) workflowDocument {
	history := slices.Clone(w.History)
	if history == nil {
		history = []string{}
	}
	return workflowDocument{Status: w.Status, Workflow: history}
}

func (d workflowDocument) toDomain() domain.Workflow {
	return domain.Workflow{Status: d.Status, History: slices.Clone(d.Workflow)}
}

// groupStatuses denormalises group statuses so listings can filter on fulfillment status.
func groupStatuses(groups []domain.QuotationFulfillmentGroup) []string {
	out := []string{}
	for _, group := range groups {
		if !slices.Contains(out, group.Workflow.Status) {
			out = append(out, group.Workflow.Status)
		}
	}
	return out
}

func paymentStatuses(payments []domain.Payment) []string {
	out := []string{}
	for _, payment := range payments {
		if !slices.Contains(out, payment.Status) {
			out = append(out, payment.Status)
		}
	}
	return out
}
