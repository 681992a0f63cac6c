package services

import (
	"fmt"
	"slices"
)

// refreshGroupProjections rebuilds the derived item id list and quantity total of a group.
func refreshGroupProjections(group *QuotationFulfillmentGroup) {
	ids := make([]string, len(group.Items))
	total := 0
	for i, item := range group.Items {
		ids[i] = item.ID
		total += item.Quantity
	}
	group.ItemIDs = ids
	group.TotalItemQuantity = total
}

func totalItemQuantity(groups []QuotationFulfillmentGroup) int {
	total := 0
	for _, group := range groups {
		total += group.TotalItemQuantity
	}
	return total
}

func findGroupIndex(groups []QuotationFulfillmentGroup, groupID string) int {
	return slices.IndexFunc(groups, func(g QuotationFulfillmentGroup) bool { return g.ID == groupID })
}

type itemCancellation struct {
	ItemID   string
	Quantity int
	Reason   *string
	// NewItemID is used for the sibling carrying any remaining quantity.
	NewItemID string
}

// cancelGroupItem cancels quantity of one item. Groups are modified in place; callers pass a clone.
// Returns the index of the group that held the item.
func cancelGroupItem(groups []QuotationFulfillmentGroup, req itemCancellation, gate ownerGate) (int, error) {
	for gi := range groups {
		group := &groups[gi]
		ii := slices.IndexFunc(group.Items, func(item QuotationItem) bool { return item.ID == req.ItemID })
		if ii < 0 {
			continue
		}
		item := group.Items[ii]
		if err := gate.checkItem(item); err != nil {
			return gi, err
		}
		if req.Quantity > item.Quantity {
			return gi, fmt.Errorf("%w: cancelQuantity may not be greater than item quantity", ErrQuotationInvalidParam)
		}

		if item.Quantity > req.Quantity {
			remaining := cloneItem(item)
			remaining.ID = req.NewItemID
			remaining.Quantity = item.Quantity - req.Quantity
			remaining.Subtotal = itemSubtotal(item.Price.Amount, remaining.Quantity)
			group.Items = append(group.Items, remaining)
		}

		canceled := cloneItem(item)
		canceled.Quantity = req.Quantity
		canceled.Subtotal = itemSubtotal(item.Price.Amount, req.Quantity)
		canceled.CancelReason = cloneStringPtr(req.Reason)
		canceled.Workflow, _ = pushStatus(item.Workflow, QuotationItemStatusCanceled)
		group.Items[ii] = canceled

		refreshGroupProjections(group)
		rollUpGroupStatus(group)
		return gi, nil
	}
	return -1, fmt.Errorf("%w: quotation item not found", ErrQuotationNotFound)
}

// splitGroupItem moves newQuantity units of an item into a new sibling with the same price and status.
func splitGroupItem(groups []QuotationFulfillmentGroup, itemID string, newQuantity int, newItemID string) (int, error) {
	for gi := range groups {
		group := &groups[gi]
		ii := slices.IndexFunc(group.Items, func(item QuotationItem) bool { return item.ID == itemID })
		if ii < 0 {
			continue
		}
		item := group.Items[ii]
		if item.Quantity <= newQuantity {
			return gi, fmt.Errorf("%w: quantity must be less than current item quantity", ErrQuotationInvalidParam)
		}

		sibling := cloneItem(item)
		sibling.ID = newItemID
		sibling.Quantity = newQuantity
		sibling.Subtotal = itemSubtotal(item.Price.Amount, newQuantity)

		original := cloneItem(item)
		original.Quantity = item.Quantity - newQuantity
		original.Subtotal = itemSubtotal(item.Price.Amount, original.Quantity)

		group.Items[ii] = original
		group.Items = append(group.Items, sibling)
		refreshGroupProjections(group)
		return gi, nil
	}
	return -1, fmt.Errorf("%w: quotation item not found", ErrQuotationNotFound)
}

// moveGroupItems moves items from one group to the end of another, preserving their relative order.
// Nothing is modified unless every requested item is found in the source group.
func moveGroupItems(groups []QuotationFulfillmentGroup, itemIDs []string, fromID, toID string, gate ownerGate) (int, int, error) {
	if fromID == toID {
		return -1, -1, fmt.Errorf("%w: source and destination fulfillment groups must differ", ErrQuotationInvalidParam)
	}
	from := findGroupIndex(groups, fromID)
	if from < 0 {
		return -1, -1, fmt.Errorf("%w: quotation fulfillment group (from) not found", ErrQuotationNotFound)
	}
	to := findGroupIndex(groups, toID)
	if to < 0 {
		return -1, -1, fmt.Errorf("%w: quotation fulfillment group (to) not found", ErrQuotationNotFound)
	}

	var moved, kept []QuotationItem
	found := make(map[string]struct{}, len(itemIDs))
	for _, item := range groups[from].Items {
		if !slices.Contains(itemIDs, item.ID) {
			kept = append(kept, item)
			continue
		}
		if err := gate.checkItem(item); err != nil {
			return from, to, err
		}
		moved = append(moved, item)
		found[item.ID] = struct{}{}
	}
	for _, id := range itemIDs {
		if _, ok := found[id]; !ok {
			return from, to, fmt.Errorf("%w: some quotation items not found", ErrQuotationNotFound)
		}
	}
	if len(kept) == 0 {
		return from, to, fmt.Errorf("%w: move would result in group having no items", ErrQuotationInvalidParam)
	}

	groups[from].Items = kept
	groups[to].Items = append(groups[to].Items, moved...)
	refreshGroupProjections(&groups[from])
	refreshGroupProjections(&groups[to])
	return from, to, nil
}

// pullItems removes the given items from whichever groups hold them, for moving into a new group.
// Returns the removed items in encounter order and the indexes of the groups that changed.
func pullItems(groups []QuotationFulfillmentGroup, itemIDs []string) ([]QuotationItem, []int, error) {
	wanted := slices.Compact(slices.Sorted(slices.Values(itemIDs)))

	var moved []QuotationItem
	var changed []int
	for gi := range groups {
		group := &groups[gi]
		var kept []QuotationItem
		pulled := false
		for _, item := range group.Items {
			if _, ok := slices.BinarySearch(wanted, item.ID); ok {
				moved = append(moved, item)
				pulled = true
				continue
			}
			kept = append(kept, item)
		}
		if !pulled {
			continue
		}
		if len(kept) == 0 {
			return nil, nil, fmt.Errorf("%w: moveItemIds would result in group having no items", ErrQuotationInvalidParam)
		}
		group.Items = kept
		refreshGroupProjections(group)
		changed = append(changed, gi)
	}
	if len(moved) != len(wanted) {
		return nil, nil, fmt.Errorf("%w: some moveItemIds did not match any item ids on the quotation", ErrQuotationInvalidParam)
	}
	return moved, changed, nil
}
