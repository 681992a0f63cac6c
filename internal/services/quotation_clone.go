package services

import (
	"maps"
	"slices"
	"time"
)

func cloneQuotation(q Quotation) Quotation {
	out := q
	out.AccountID = cloneStringPtr(q.AccountID)
	out.CartID = cloneStringPtr(q.CartID)
	out.BillingAddress = cloneAddress(q.BillingAddress)
	out.Shipping = cloneGroups(q.Shipping)
	out.Payments = slices.Clone(q.Payments)
	out.Surcharges = slices.Clone(q.Surcharges)
	out.Discounts = slices.Clone(q.Discounts)
	out.Workflow = cloneWorkflow(q.Workflow)
	out.AnonymousAccessTokens = slices.Clone(q.AnonymousAccessTokens)
	out.CustomFields = maps.Clone(q.CustomFields)
	return out
}

func cloneGroups(groups []QuotationFulfillmentGroup) []QuotationFulfillmentGroup {
	if groups == nil {
		return nil
	}
	out := make([]QuotationFulfillmentGroup, len(groups))
	for i, group := range groups {
		out[i] = cloneGroup(group)
	}
	return out
}

func cloneGroup(group QuotationFulfillmentGroup) QuotationFulfillmentGroup {
	out := group
	out.Address = cloneAddress(group.Address)
	out.Items = cloneItems(group.Items)
	out.ItemIDs = slices.Clone(group.ItemIDs)
	if group.ShipmentMethod != nil {
		method := *group.ShipmentMethod
		out.ShipmentMethod = &method
	}
	out.Workflow = cloneWorkflow(group.Workflow)
	out.UpdatedAt = cloneTimePtr(group.UpdatedAt)
	return out
}

func cloneItems(items []QuotationItem) []QuotationItem {
	if items == nil {
		return nil
	}
	out := make([]QuotationItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item QuotationItem) QuotationItem {
	out := item
	out.Attributes = maps.Clone(item.Attributes)
	out.CancelReason = cloneStringPtr(item.CancelReason)
	out.Workflow = cloneWorkflow(item.Workflow)
	return out
}

func cloneWorkflow(w Workflow) Workflow {
	return Workflow{Status: w.Status, History: slices.Clone(w.History)}
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	copy := *addr
	copy.Company = cloneStringPtr(addr.Company)
	copy.Line2 = cloneStringPtr(addr.Line2)
	copy.State = cloneStringPtr(addr.State)
	copy.Phone = cloneStringPtr(addr.Phone)
	return &copy
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
