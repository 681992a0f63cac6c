package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hanko-field/quotations/internal/repositories"
)

const (
	emailTemplatePrefix = "quotations/"
	orderURLTokenParam  = ":token"
)

// Email actions that select a dedicated template instead of the status template.
const (
	EmailActionShipped    = "shipped"
	EmailActionRefunded   = "refunded"
	EmailActionItemRefund = "itemRefund"
)

// EventMetadataEmailAction is the event metadata key naming the email action an update should trigger.
const EventMetadataEmailAction = "emailAction"

// QuotationMailer delivers rendered quotation emails.
type QuotationMailer interface {
	SendQuotationEmail(ctx context.Context, email QuotationEmail) error
}

// QuotationEmail is a quotation email ready for rendering by the mailer.
type QuotationEmail struct {
	To       string
	From     string
	Subject  string
	Template string
	Language string
	Data     QuotationEmailData
}

// QuotationEmailData is the template model for quotation emails.
type QuotationEmailData struct {
	ShopName       string
	ReferenceID    string
	Status         string
	DisplayStatus  string
	OrderURL       string
	BillingAddress *Address
	Groups         []QuotationEmailGroup
	Summary        QuotationSummary
	PlacedAt       time.Time
}

// QuotationEmailGroup is the per-group section of a quotation email.
type QuotationEmailGroup struct {
	ShipmentMethod string
	Address        *Address
	Tracking       string
	TrackingURL    string
	Items          []QuotationEmailItem
	Total          float64
}

// QuotationEmailItem is one line in a quotation email.
type QuotationEmailItem struct {
	Title        string
	VariantTitle string
	Quantity     int
	Price        float64
	Subtotal     float64
	Canceled     bool
}

// QuotationEmailNotifierDeps bundles collaborators for the email notifier.
type QuotationEmailNotifierDeps struct {
	Quotations repositories.QuotationRepository
	Shops      repositories.ShopRepository
	Mailer     QuotationMailer
	Clock      func() time.Time
	Tokens     func() (string, error)
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// QuotationEmailNotifier sends customer emails in response to quotation events.
type QuotationEmailNotifier struct {
	quotations repositories.QuotationRepository
	shops      repositories.ShopRepository
	mailer     QuotationMailer
	clock      func() time.Time
	tokens     func() (string, error)
	logger     func(context.Context, string, map[string]any)
}

// NewQuotationEmailNotifier constructs the notifier.
func NewQuotationEmailNotifier(deps QuotationEmailNotifierDeps) (*QuotationEmailNotifier, error) {
	if deps.Mailer == nil {
		return nil, errors.New("quotation email notifier: mailer is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("quotation email notifier: shop repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	tokens := deps.Tokens
	if tokens == nil {
		tokens = newAnonymousTokenSecret
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &QuotationEmailNotifier{
		quotations: deps.Quotations,
		shops:      deps.Shops,
		mailer:     deps.Mailer,
		clock:      clock,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// PublishQuotationEvent sends the creation and cancellation emails, and the action email an update asks for.
func (n *QuotationEmailNotifier) PublishQuotationEvent(ctx context.Context, event QuotationEvent) error {
	switch event.Type {
	case QuotationEventCreated, QuotationEventCanceled:
		return n.Send(ctx, event.Quotation, "")
	case QuotationEventUpdated:
		action, _ := event.Metadata[EventMetadataEmailAction].(string)
		if action == "" {
			return nil
		}
		return n.Send(ctx, event.Quotation, action)
	default:
		return nil
	}
}

// Send emails the quotation's customer. Action selects a dedicated template; otherwise the current status does.
// Quotations without an email address are skipped.
func (n *QuotationEmailNotifier) Send(ctx context.Context, quotation Quotation, action string) error {
	to := strings.TrimSpace(quotation.Email)
	if to == "" {
		n.logger(ctx, "quotation.email.skipped", map[string]any{
			"quotationId": quotation.ID,
			"reason":      "no email address",
		})
		return nil
	}

	shop, err := n.shops.FindByID(ctx, quotation.ShopID)
	if err != nil {
		return fmt.Errorf("quotation email: load shop %s: %w", quotation.ShopID, err)
	}

	orderURL, err := n.orderURL(ctx, shop, quotation)
	if err != nil {
		return err
	}

	status := quotation.Workflow.Status
	displayStatus := statusLabel(shop.StatusLabels[status], quotation.PreferredLanguage, status)

	email := QuotationEmail{
		To:       to,
		From:     shop.EmailFrom,
		Subject:  emailSubject(shop, quotation, action),
		Template: emailTemplateName(action, quotation.Workflow.Status),
		Language: quotation.PreferredLanguage,
		Data:     buildEmailData(shop, quotation, orderURL, displayStatus),
	}
	if err := n.mailer.SendQuotationEmail(ctx, email); err != nil {
		n.logger(ctx, "quotation.email.failed", map[string]any{
			"quotationId": quotation.ID,
			"template":    email.Template,
			"error":       err.Error(),
		})
		return fmt.Errorf("quotation email: send %s: %w", email.Template, err)
	}
	return nil
}

func emailTemplateName(action, status string) string {
	switch action {
	case EmailActionShipped, EmailActionRefunded, EmailActionItemRefund:
		return emailTemplatePrefix + action
	}
	return emailTemplatePrefix + status
}

func emailSubject(shop Shop, quotation Quotation, action string) string {
	name := strings.TrimSpace(shop.Name)
	switch {
	case action == EmailActionShipped:
		return fmt.Sprintf("%s: quotation %s has shipped", name, quotation.ReferenceID)
	case action == EmailActionRefunded || action == EmailActionItemRefund:
		return fmt.Sprintf("%s: refund for quotation %s", name, quotation.ReferenceID)
	case quotation.Workflow.Status == QuotationStatusCanceled:
		return fmt.Sprintf("%s: quotation %s was canceled", name, quotation.ReferenceID)
	default:
		return fmt.Sprintf("%s: quotation %s received", name, quotation.ReferenceID)
	}
}

// orderURL fills the storefront URL template. Anonymous quotations get a fresh access token when the
// template asks for one.
func (n *QuotationEmailNotifier) orderURL(ctx context.Context, shop Shop, quotation Quotation) (string, error) {
	tmpl := strings.TrimSpace(shop.StorefrontQuotationURL)
	if tmpl == "" {
		return "", nil
	}
	result := strings.ReplaceAll(tmpl, ":referenceId", url.PathEscape(quotation.ReferenceID))
	if !strings.Contains(result, orderURLTokenParam) {
		return result, nil
	}
	if quotation.AccountID != nil || n.quotations == nil {
		return strings.ReplaceAll(result, orderURLTokenParam, ""), nil
	}

	secret, err := n.tokens()
	if err != nil {
		return "", fmt.Errorf("quotation email: %w", err)
	}
	stored := AnonymousAccessToken{HashedToken: hashAnonymousToken(secret), CreatedAt: n.clock().UTC()}
	if err := n.quotations.AppendAnonymousToken(ctx, quotation.ID, stored); err != nil {
		return "", fmt.Errorf("quotation email: store access token: %w", err)
	}
	return strings.ReplaceAll(result, orderURLTokenParam, url.QueryEscape(secret)), nil
}

func buildEmailData(shop Shop, quotation Quotation, orderURL, displayStatus string) QuotationEmailData {
	groups := make([]QuotationEmailGroup, len(quotation.Shipping))
	for i, group := range quotation.Shipping {
		items := make([]QuotationEmailItem, len(group.Items))
		for j, item := range group.Items {
			items[j] = QuotationEmailItem{
				Title:        item.Title,
				VariantTitle: item.VariantTitle,
				Quantity:     item.Quantity,
				Price:        item.Price.Amount,
				Subtotal:     item.Subtotal,
				Canceled:     item.Workflow.Status == QuotationItemStatusCanceled,
			}
		}
		method := ""
		if group.ShipmentMethod != nil {
			method = group.ShipmentMethod.Label
		}
		groups[i] = QuotationEmailGroup{
			ShipmentMethod: method,
			Address:        cloneAddress(group.Address),
			Tracking:       group.Tracking,
			TrackingURL:    group.TrackingURL,
			Items:          items,
			Total:          group.Invoice.Total,
		}
	}
	return QuotationEmailData{
		ShopName:       shop.Name,
		ReferenceID:    quotation.ReferenceID,
		Status:         quotation.Workflow.Status,
		DisplayStatus:  displayStatus,
		OrderURL:       orderURL,
		BillingAddress: cloneAddress(quotation.BillingAddress),
		Groups:         groups,
		Summary:        SummarizeQuotation(quotation),
		PlacedAt:       quotation.CreatedAt,
	}
}

var _ QuotationEventPublisher = (*QuotationEmailNotifier)(nil)
