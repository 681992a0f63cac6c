package services

import (
	"errors"
	"slices"
	"testing"
)

func TestPushStatusAppendsOnlyOnChange(t *testing.T) {
	w := newWorkflow(QuotationStatusNew)

	next, changed := pushStatus(w, QuotationStatusNew)
	if changed || len(next.History) != 1 {
		t.Fatalf("pushing the current status must be a no-op, got %+v", next)
	}

	next, changed = pushStatus(w, QuotationStatusCanceled)
	if !changed || next.Status != QuotationStatusCanceled {
		t.Fatalf("expected canceled, got %+v", next)
	}
	if !slices.Equal(next.History, []string{QuotationStatusNew, QuotationStatusCanceled}) {
		t.Fatalf("unexpected history %v", next.History)
	}
	if len(w.History) != 1 {
		t.Fatalf("original workflow must not be modified")
	}
}

func TestCancelGroupItemConservesQuantity(t *testing.T) {
	groups := []QuotationFulfillmentGroup{testGroup("fg_1", testItem("qi_1", 7, 1.115))}

	if _, err := cancelGroupItem(groups, itemCancellation{ItemID: "qi_1", Quantity: 4, NewItemID: "qi_2"}, ownerGate{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	items := groups[0].Items
	if items[0].Quantity+items[1].Quantity != 7 {
		t.Fatalf("quantities should sum to 7, got %d + %d", items[0].Quantity, items[1].Quantity)
	}
	if items[0].Subtotal != 4.46 || items[1].Subtotal != 3.345 {
		t.Fatalf("unexpected subtotals %v / %v", items[0].Subtotal, items[1].Subtotal)
	}
	if !slices.Equal(groups[0].ItemIDs, []string{"qi_1", "qi_2"}) || groups[0].TotalItemQuantity != 7 {
		t.Fatalf("projections not refreshed: %+v", groups[0])
	}
}

func TestCancelGroupItemOwnerGateChecksItemStatus(t *testing.T) {
	item := testItem("qi_1", 2, 10)
	item.Workflow, _ = pushStatus(item.Workflow, "coreQuotationItemWorkflow/shipped")
	groups := []QuotationFulfillmentGroup{testGroup("fg_1", item)}

	gate := ownerGate{enforced: true, allowed: []string{QuotationStatusNew}}
	_, err := cancelGroupItem(groups, itemCancellation{ItemID: "qi_1", Quantity: 1, NewItemID: "qi_2"}, gate)
	if !errors.Is(err, ErrQuotationInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if len(groups[0].Items) != 1 {
		t.Fatalf("group must be unchanged")
	}
}

func TestMoveGroupItemsRejectsSameGroup(t *testing.T) {
	groups := []QuotationFulfillmentGroup{testGroup("fg_1", testItem("a", 1, 1), testItem("b", 1, 1))}
	if _, _, err := moveGroupItems(groups, []string{"a"}, "fg_1", "fg_1", ownerGate{}); !errors.Is(err, ErrQuotationInvalidParam) {
		t.Fatalf("expected invalid param, got %v", err)
	}
}

func TestPullItemsAcrossGroups(t *testing.T) {
	groups := []QuotationFulfillmentGroup{
		testGroup("fg_1", testItem("a", 1, 1), testItem("b", 2, 1)),
		testGroup("fg_2", testItem("c", 1, 1), testItem("d", 1, 1)),
		testGroup("fg_3", testItem("e", 1, 1)),
	}

	moved, changed, err := pullItems(groups, []string{"d", "b", "d"})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	ids := make([]string, len(moved))
	for i, item := range moved {
		ids[i] = item.ID
	}
	if !slices.Equal(ids, []string{"b", "d"}) || !slices.Equal(changed, []int{0, 1}) {
		t.Fatalf("unexpected pull result %v / %v", ids, changed)
	}
	if groups[0].TotalItemQuantity != 1 || !slices.Equal(groups[1].ItemIDs, []string{"c"}) {
		t.Fatalf("projections not refreshed")
	}
}

func TestRollUpGroupStatus(t *testing.T) {
	canceled := testItem("a", 1, 1)
	canceled.Workflow, _ = pushStatus(canceled.Workflow, QuotationItemStatusCanceled)

	mixed := testGroup("fg_1", canceled, testItem("b", 1, 1))
	rollUpGroupStatus(&mixed)
	if mixed.Workflow.Status != QuotationStatusNew {
		t.Fatalf("group with live items must stay open")
	}

	done := testGroup("fg_2", canceled)
	rollUpGroupStatus(&done)
	rollUpGroupStatus(&done)
	if done.Workflow.Status != QuotationStatusCanceled || len(done.Workflow.History) != 2 {
		t.Fatalf("unexpected workflow %+v", done.Workflow)
	}
}

func TestMoneyHelpers(t *testing.T) {
	if got := sumAmounts(0.1, 0.2); got != 0.3 {
		t.Fatalf("sumAmounts(0.1, 0.2) = %v", got)
	}
	if got := sumAmounts(9.99, 50, 40); !amountsMatch(got, 99.99) {
		t.Fatalf("expected 99.99, got %v", got)
	}
	if got := itemSubtotal(19.999, 3); got != 59.997 {
		t.Fatalf("itemSubtotal = %v", got)
	}
	if got := roundAmount(1.0005); got != 1.001 {
		t.Fatalf("roundAmount = %v", got)
	}
	if got := ratio(10, 0); got != 0 {
		t.Fatalf("ratio with zero denominator = %v", got)
	}
	if formatAmount(5) != "5.000" {
		t.Fatalf("formatAmount = %s", formatAmount(5))
	}
}

func TestAnonymousTokenHashing(t *testing.T) {
	secret, err := newAnonymousTokenSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	tokens := []AnonymousAccessToken{{HashedToken: hashAnonymousToken(secret)}}
	if !tokenMatches(tokens, secret) {
		t.Fatalf("token should match its hash")
	}
	if tokenMatches(tokens, "") || tokenMatches(tokens, secret+"x") {
		t.Fatalf("unexpected match")
	}
}
