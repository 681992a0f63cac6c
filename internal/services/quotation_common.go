package services

// CommonQuotation is the read-only projection of one fulfillment group handed to rate, surcharge,
// and tax providers. It is rebuilt from copies on every call.
type CommonQuotation struct {
	QuotationID         string
	GroupID             string
	AccountID           string
	CartID              string
	ShopID              string
	CurrencyCode        string
	SourceType          string
	FulfillmentType     string
	FulfillmentMethodID string
	FulfillmentPrices   CommonFulfillmentPrices
	Items               []CommonQuotationItem
	BillingAddress      *Address
	ShippingAddress     *Address
	OriginAddress       *Address
	Totals              CommonQuotationTotals
	Surcharges          []Surcharge
}

// CommonQuotationItem is the provider-facing shape of a quotation item.
type CommonQuotationItem struct {
	ID           string
	ProductID    string
	VariantID    string
	ShopID       string
	Title        string
	VariantTitle string
	Quantity     int
	Price        Money
	Subtotal     Money
	IsTaxable    bool
	TaxCode      string
	Attributes   map[string]string
}

// CommonFulfillmentPrices are nil until a shipment method is resolved.
type CommonFulfillmentPrices struct {
	Handling *Money
	Shipping *Money
	Total    *Money
}

// CommonQuotationTotals are running totals visible to providers.
type CommonQuotationTotals struct {
	GroupDiscountTotal     Money
	GroupItemTotal         Money
	GroupTotal             Money
	QuotationDiscountTotal Money
	QuotationItemTotal     Money
	QuotationTotal         Money
}

const commonQuotationSourceType = "quotation"

// groupPricingContext holds quotation-level data shared by every group recalculation of one mutation.
type groupPricingContext struct {
	QuotationID    string
	AccountID      string
	CartID         string
	CurrencyCode   string
	BillingAddress *Address
	OriginAddress  *Address
}

func buildCommonQuotation(pc groupPricingContext, group QuotationFulfillmentGroup, discountTotal float64, surcharges []Surcharge) CommonQuotation {
	currency := pc.CurrencyCode
	items := make([]CommonQuotationItem, len(group.Items))
	itemAmounts := make([]float64, len(group.Items))
	for i, item := range group.Items {
		subtotal := itemSubtotal(item.Price.Amount, item.Quantity)
		items[i] = CommonQuotationItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			ShopID:       item.ShopID,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			Price:        item.Price,
			Subtotal:     Money{Amount: subtotal, CurrencyCode: currency},
			IsTaxable:    item.IsTaxable,
			TaxCode:      item.TaxCode,
			Attributes:   cloneItem(item).Attributes,
		}
		itemAmounts[i] = item.Subtotal
	}

	view := CommonQuotation{
		QuotationID:     pc.QuotationID,
		GroupID:         group.ID,
		AccountID:       pc.AccountID,
		CartID:          pc.CartID,
		ShopID:          group.ShopID,
		CurrencyCode:    currency,
		SourceType:      commonQuotationSourceType,
		FulfillmentType: group.Type,
		Items:           items,
		BillingAddress:  cloneAddress(pc.BillingAddress),
		ShippingAddress: cloneAddress(group.Address),
		OriginAddress:   cloneAddress(pc.OriginAddress),
	}

	if method := group.ShipmentMethod; method != nil {
		view.FulfillmentMethodID = method.ID
		view.FulfillmentPrices = CommonFulfillmentPrices{
			Handling: &Money{Amount: method.Handling, CurrencyCode: currency},
			Shipping: &Money{Amount: method.Rate, CurrencyCode: currency},
			Total:    &Money{Amount: sumAmounts(method.Handling, method.Rate), CurrencyCode: currency},
		}
	}

	// Discounts are tracked per quotation, so the group and quotation totals coincide.
	groupItemTotal := sumAmounts(itemAmounts...)
	view.Totals = CommonQuotationTotals{
		GroupDiscountTotal:     Money{Amount: discountTotal, CurrencyCode: currency},
		GroupItemTotal:         Money{Amount: groupItemTotal, CurrencyCode: currency},
		GroupTotal:             Money{Amount: subtractAmount(groupItemTotal, discountTotal), CurrencyCode: currency},
		QuotationDiscountTotal: Money{Amount: discountTotal, CurrencyCode: currency},
		QuotationItemTotal:     Money{Amount: groupItemTotal, CurrencyCode: currency},
		QuotationTotal:         Money{Amount: subtractAmount(groupItemTotal, discountTotal), CurrencyCode: currency},
	}

	if len(surcharges) > 0 {
		view.Surcharges = append([]Surcharge(nil), surcharges...)
	}
	return view
}
