package handlers

import (
	"maps"
	"slices"
	"time"

	"github.com/hanko-field/quotations/internal/services"
)

type addressPayload struct {
	Recipient  string  `json:"recipient"`
	Company    *string `json:"company,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

func (p *addressPayload) toAddress() *services.Address {
	if p == nil {
		return nil
	}
	return &services.Address{
		Recipient:  p.Recipient,
		Company:    p.Company,
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
		Phone:      p.Phone,
	}
}

func newAddressPayload(addr *services.Address) *addressPayload {
	if addr == nil {
		return nil
	}
	return &addressPayload{
		Recipient:  addr.Recipient,
		Company:    addr.Company,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

type itemInputPayload struct {
	ProductID string  `json:"productId" validate:"required"`
	VariantID string  `json:"variantId" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	Price     float64 `json:"price" validate:"gte=0"`
}

type fulfillmentGroupPayload struct {
	ShopID                      string             `json:"shopId"`
	Type                        string             `json:"type"`
	ShippingAddress             *addressPayload    `json:"shippingAddress,omitempty"`
	SelectedFulfillmentMethodID string             `json:"selectedFulfillmentMethodId"`
	Items                       []itemInputPayload `json:"items" validate:"dive"`
	TotalPrice                  *float64           `json:"totalPrice,omitempty"`
}

func (p fulfillmentGroupPayload) toInput() services.FulfillmentGroupInput {
	items := make([]services.QuotationItemInput, len(p.Items))
	for i, item := range p.Items {
		items[i] = services.QuotationItemInput{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}
	return services.FulfillmentGroupInput{
		ShopID:                      p.ShopID,
		Type:                        p.Type,
		ShippingAddress:             p.ShippingAddress.toAddress(),
		SelectedFulfillmentMethodID: p.SelectedFulfillmentMethodID,
		Items:                       items,
		TotalPrice:                  p.TotalPrice,
	}
}

type paymentPayload struct {
	Method         string          `json:"method" validate:"required"`
	Amount         float64         `json:"amount" validate:"gte=0"`
	BillingAddress *addressPayload `json:"billingAddress,omitempty"`
	Data           map[string]any  `json:"data,omitempty"`
}

type placeQuotationRequest struct {
	ShopID            string                    `json:"shopId"`
	CurrencyCode      string                    `json:"currencyCode"`
	Email             string                    `json:"email" validate:"omitempty,email"`
	CartID            string                    `json:"cartId,omitempty"`
	BillingAddress    *addressPayload           `json:"billingAddress,omitempty"`
	PreferredLanguage string                    `json:"preferredLanguage,omitempty"`
	CustomFields      map[string]any            `json:"customFields,omitempty"`
	FulfillmentGroups []fulfillmentGroupPayload `json:"fulfillmentGroups" validate:"dive"`
	Payments          []paymentPayload          `json:"payments" validate:"dive"`
}

func (req placeQuotationRequest) toCommand(actor services.QuotationActor) services.PlaceQuotationCommand {
	groups := make([]services.FulfillmentGroupInput, len(req.FulfillmentGroups))
	for i, group := range req.FulfillmentGroups {
		groups[i] = group.toInput()
	}
	payments := make([]services.PaymentInput, len(req.Payments))
	for i, payment := range req.Payments {
		payments[i] = services.PaymentInput{
			Method:         payment.Method,
			Amount:         payment.Amount,
			BillingAddress: payment.BillingAddress.toAddress(),
			Data:           payment.Data,
		}
	}
	return services.PlaceQuotationCommand{
		Actor:             actor,
		ShopID:            req.ShopID,
		CurrencyCode:      req.CurrencyCode,
		Email:             req.Email,
		CartID:            req.CartID,
		BillingAddress:    req.BillingAddress.toAddress(),
		PreferredLanguage: req.PreferredLanguage,
		CustomFields:      req.CustomFields,
		FulfillmentGroups: groups,
		Payments:          payments,
	}
}

type addFulfillmentGroupRequest struct {
	FulfillmentGroup fulfillmentGroupPayload `json:"fulfillmentGroup"`
	MoveItemIDs      []string                `json:"moveItemIds,omitempty"`
}

type cancelItemRequest struct {
	CancelQuantity int     `json:"cancelQuantity" validate:"gte=1"`
	Reason         *string `json:"reason,omitempty"`
}

type splitItemRequest struct {
	NewItemQuantity int `json:"newItemQuantity" validate:"gte=1"`
}

type moveItemsRequest struct {
	FromFulfillmentGroupID string   `json:"fromFulfillmentGroupId" validate:"required"`
	ToFulfillmentGroupID   string   `json:"toFulfillmentGroupId" validate:"required"`
	ItemIDs                []string `json:"itemIds" validate:"required,min=1,dive,required"`
}

type updateFulfillmentGroupRequest struct {
	Tracking    string `json:"tracking,omitempty"`
	TrackingURL string `json:"trackingUrl,omitempty" validate:"omitempty,url"`
	Status      string `json:"status,omitempty"`
}

type updateQuotationRequest struct {
	Email        string         `json:"email,omitempty" validate:"omitempty,email"`
	Status       string         `json:"status,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

type workflowPayload struct {
	Status  string   `json:"status"`
	History []string `json:"history"`
}

func newWorkflowPayload(w services.Workflow) workflowPayload {
	history := slices.Clone(w.History)
	if history == nil {
		history = []string{}
	}
	return workflowPayload{Status: w.Status, History: history}
}

type shipmentMethodPayload struct {
	ID       string  `json:"id"`
	Carrier  string  `json:"carrier,omitempty"`
	Label    string  `json:"label"`
	Group    string  `json:"group,omitempty"`
	Name     string  `json:"name"`
	Handling float64 `json:"handling"`
	Rate     float64 `json:"rate"`
}

type invoicePayload struct {
	CurrencyCode     string  `json:"currencyCode"`
	Subtotal         float64 `json:"subtotal"`
	Shipping         float64 `json:"shipping"`
	Taxes            float64 `json:"taxes"`
	TaxableAmount    float64 `json:"taxableAmount"`
	Discounts        float64 `json:"discounts"`
	Surcharges       float64 `json:"surcharges"`
	Total            float64 `json:"total"`
	EffectiveTaxRate float64 `json:"effectiveTaxRate"`
}

type itemPayload struct {
	ID           string            `json:"id"`
	ProductID    string            `json:"productId"`
	VariantID    string            `json:"variantId"`
	Title        string            `json:"title,omitempty"`
	VariantTitle string            `json:"variantTitle,omitempty"`
	Quantity     int               `json:"quantity"`
	Price        float64           `json:"price"`
	Subtotal     float64           `json:"subtotal"`
	IsTaxable    bool              `json:"isTaxable"`
	TaxCode      string            `json:"taxCode,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	CancelReason *string           `json:"cancelReason,omitempty"`
	Workflow     workflowPayload   `json:"workflow"`
}

type fulfillmentGroupResponse struct {
	ID                string                 `json:"id"`
	ShopID            string                 `json:"shopId"`
	Type              string                 `json:"type"`
	Address           *addressPayload        `json:"address,omitempty"`
	ShipmentMethod    *shipmentMethodPayload `json:"shipmentMethod,omitempty"`
	Items             []itemPayload          `json:"items"`
	TotalItemQuantity int                    `json:"totalItemQuantity"`
	Invoice           invoicePayload         `json:"invoice"`
	Workflow          workflowPayload        `json:"workflow"`
	Tracking          string                 `json:"tracking,omitempty"`
	TrackingURL       string                 `json:"trackingUrl,omitempty"`
}

type paymentResponse struct {
	ID           string    `json:"id"`
	Method       string    `json:"method"`
	Provider     string    `json:"provider,omitempty"`
	Status       string    `json:"status"`
	Amount       float64   `json:"amount"`
	CurrencyCode string    `json:"currencyCode"`
	DisplayName  string    `json:"displayName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type surchargeResponse struct {
	ID                 string  `json:"id"`
	FulfillmentGroupID string  `json:"fulfillmentGroupId"`
	Name               string  `json:"name"`
	Message            string  `json:"message,omitempty"`
	Amount             float64 `json:"amount"`
}

type summaryResponse struct {
	ItemTotal         float64 `json:"itemTotal"`
	ShippingTotal     float64 `json:"shippingTotal"`
	SurchargeTotal    float64 `json:"surchargeTotal"`
	TaxTotal          float64 `json:"taxTotal"`
	DiscountTotal     float64 `json:"discountTotal"`
	Total             float64 `json:"total"`
	TotalItemQuantity int     `json:"totalItemQuantity"`
}

type quotationResponse struct {
	ID                string                     `json:"id"`
	ReferenceID       string                     `json:"referenceId"`
	ShopID            string                     `json:"shopId"`
	AccountID         *string                    `json:"accountId,omitempty"`
	CurrencyCode      string                     `json:"currencyCode"`
	Email             string                     `json:"email,omitempty"`
	DisplayStatus     string                     `json:"displayStatus"`
	Workflow          workflowPayload            `json:"workflow"`
	BillingAddress    *addressPayload            `json:"billingAddress,omitempty"`
	FulfillmentGroups []fulfillmentGroupResponse `json:"fulfillmentGroups"`
	Payments          []paymentResponse          `json:"payments"`
	Surcharges        []surchargeResponse        `json:"surcharges"`
	Summary           summaryResponse            `json:"summary"`
	CustomFields      map[string]any             `json:"customFields,omitempty"`
	PreferredLanguage string                     `json:"preferredLanguage,omitempty"`
	CreatedAt         time.Time                  `json:"createdAt"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
}

func newQuotationResponse(q services.Quotation, displayStatus string) quotationResponse {
	groups := make([]fulfillmentGroupResponse, len(q.Shipping))
	for i, group := range q.Shipping {
		items := make([]itemPayload, len(group.Items))
		for j, item := range group.Items {
			items[j] = itemPayload{
				ID:           item.ID,
				ProductID:    item.ProductID,
				VariantID:    item.VariantID,
				Title:        item.Title,
				VariantTitle: item.VariantTitle,
				Quantity:     item.Quantity,
				Price:        item.Price.Amount,
				Subtotal:     item.Subtotal,
				IsTaxable:    item.IsTaxable,
				TaxCode:      item.TaxCode,
				Attributes:   maps.Clone(item.Attributes),
				CancelReason: item.CancelReason,
				Workflow:     newWorkflowPayload(item.Workflow),
			}
		}
		var method *shipmentMethodPayload
		if m := group.ShipmentMethod; m != nil {
			method = &shipmentMethodPayload{
				ID:       m.ID,
				Carrier:  m.Carrier,
				Label:    m.Label,
				Group:    m.Group,
				Name:     m.Name,
				Handling: m.Handling,
				Rate:     m.Rate,
			}
		}
		groups[i] = fulfillmentGroupResponse{
			ID:                group.ID,
			ShopID:            group.ShopID,
			Type:              group.Type,
			Address:           newAddressPayload(group.Address),
			ShipmentMethod:    method,
			Items:             items,
			TotalItemQuantity: group.TotalItemQuantity,
			Invoice:           invoicePayload(group.Invoice),
			Workflow:          newWorkflowPayload(group.Workflow),
			Tracking:          group.Tracking,
			TrackingURL:       group.TrackingURL,
		}
	}

	payments := make([]paymentResponse, len(q.Payments))
	for i, p := range q.Payments {
		payments[i] = paymentResponse{
			ID:           p.ID,
			Method:       p.Method,
			Provider:     p.Provider,
			Status:       p.Status,
			Amount:       p.Amount,
			CurrencyCode: p.CurrencyCode,
			DisplayName:  p.DisplayName,
			CreatedAt:    p.CreatedAt,
		}
	}

	surcharges := make([]surchargeResponse, len(q.Surcharges))
	for i, s := range q.Surcharges {
		surcharges[i] = surchargeResponse{
			ID:                 s.ID,
			FulfillmentGroupID: s.FulfillmentGroupID,
			Name:               s.Name,
			Message:            s.Message,
			Amount:             s.Amount.Amount,
		}
	}

	summary := services.SummarizeQuotation(q)
	if displayStatus == "" {
		displayStatus = q.Workflow.Status
	}
	return quotationResponse{
		ID:                q.ID,
		ReferenceID:       q.ReferenceID,
		ShopID:            q.ShopID,
		AccountID:         q.AccountID,
		CurrencyCode:      q.CurrencyCode,
		Email:             q.Email,
		DisplayStatus:     displayStatus,
		Workflow:          newWorkflowPayload(q.Workflow),
		BillingAddress:    newAddressPayload(q.BillingAddress),
		FulfillmentGroups: groups,
		Payments:          payments,
		Surcharges:        surcharges,
		Summary: summaryResponse{
			ItemTotal:         summary.ItemTotal,
			ShippingTotal:     summary.ShippingTotal,
			SurchargeTotal:    summary.SurchargeTotal,
			TaxTotal:          summary.TaxTotal,
			DiscountTotal:     summary.DiscountTotal,
			Total:             summary.Total,
			TotalItemQuantity: summary.TotalItemQuantity,
		},
		CustomFields:      q.CustomFields,
		PreferredLanguage: q.PreferredLanguage,
		CreatedAt:         q.CreatedAt,
		UpdatedAt:         q.UpdatedAt,
	}
}
