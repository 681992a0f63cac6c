package services

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// QuotationStatusNew is the initial status of quotations, groups, and items.
	QuotationStatusNew = "new"
	// QuotationStatusCanceled is the canceled status shared by quotations and fulfillment groups.
	QuotationStatusCanceled = "coreQuotationWorkflow/canceled"
	// QuotationItemStatusCanceled is the canceled item status.
	QuotationItemStatusCanceled = "coreQuotationItemWorkflow/canceled"
)

// defaultOwnerMutableStatuses lists the statuses in which the placing account may still cancel or move.
var defaultOwnerMutableStatuses = []string{QuotationStatusNew}

func newWorkflow(status string) Workflow {
	return Workflow{Status: status, History: []string{status}}
}

// pushStatus appends status to the workflow unless it is already the current status.
func pushStatus(w Workflow, status string) (Workflow, bool) {
	if status == "" || w.Status == status {
		return w, false
	}
	history := make([]string, len(w.History), len(w.History)+1)
	copy(history, w.History)
	return Workflow{Status: status, History: append(history, status)}, true
}

// rollUpGroupStatus cancels the group once every item in it is canceled.
func rollUpGroupStatus(group *QuotationFulfillmentGroup) {
	if len(group.Items) == 0 {
		return
	}
	for _, item := range group.Items {
		if item.Workflow.Status != QuotationItemStatusCanceled {
			return
		}
	}
	group.Workflow, _ = pushStatus(group.Workflow, QuotationStatusCanceled)
}

func allGroupsCanceled(groups []QuotationFulfillmentGroup) bool {
	if len(groups) == 0 {
		return false
	}
	for _, group := range groups {
		if group.Workflow.Status != QuotationStatusCanceled {
			return false
		}
	}
	return true
}

// ownerGate restricts the placing account to early lifecycle statuses; other actors pass freely.
type ownerGate struct {
	enforced bool
	allowed  []string
}

func newOwnerGate(quotation Quotation, actor QuotationActor, allowed []string) ownerGate {
	owner := ""
	if quotation.AccountID != nil {
		owner = *quotation.AccountID
	}
	actorID := strings.TrimSpace(actor.AccountID)
	return ownerGate{
		enforced: owner != "" && actorID == owner,
		allowed:  allowed,
	}
}

func (g ownerGate) checkQuotation(status string) error {
	if !g.enforced || slices.Contains(g.allowed, status) {
		return nil
	}
	return fmt.Errorf("%w: quotation status (%s) is not one of: %s", ErrQuotationInvalid, status, strings.Join(g.allowed, ", "))
}

func (g ownerGate) checkItem(item QuotationItem) error {
	if !g.enforced || slices.Contains(g.allowed, item.Workflow.Status) {
		return nil
	}
	return fmt.Errorf("%w: item status (%s) is not one of: %s", ErrQuotationInvalid, item.Workflow.Status, strings.Join(g.allowed, ", "))
}
