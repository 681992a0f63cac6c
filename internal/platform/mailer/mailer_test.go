package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/hanko-field/quotations/internal/platform/config"
	"github.com/hanko-field/quotations/internal/services"
)

func testEmailData() services.QuotationEmailData {
	return services.QuotationEmailData{
		ShopName:      "Hanko Field",
		ReferenceID:   "R-1",
		Status:        "new",
		DisplayStatus: "New",
		OrderURL:      "https://shop.example.com/quotations/R-1?token=abc",
		Groups: []services.QuotationEmailGroup{{
			ShipmentMethod: "Yamato",
			Items: []services.QuotationEmailItem{
				{Title: "Round seal", VariantTitle: "15mm", Quantity: 2, Price: 1200, Subtotal: 2400},
				{Title: "Case", Quantity: 1, Price: 500, Subtotal: 500, Canceled: true},
			},
			Total: 3200,
		}},
		Summary:  services.QuotationSummary{CurrencyCode: "JPY", ItemTotal: 2400, ShippingTotal: 800, Total: 3200},
		PlacedAt: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSMTPMailerRendersAndSends(t *testing.T) {
	var sent *gomail.Msg
	m, err := NewSMTPMailer(config.SMTPConfig{FromName: "Hanko Field", FromAddress: "orders@example.com"},
		WithSender(func(_ context.Context, msg *gomail.Msg) error {
			sent = msg
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	err = m.SendQuotationEmail(context.Background(), services.QuotationEmail{
		To:       "buyer@example.com",
		Subject:  "Hanko Field: quotation R-1 received",
		Template: "quotations/new",
		Data:     testEmailData(),
	})
	if err != nil {
		t.Fatalf("SendQuotationEmail: %v", err)
	}
	if sent == nil {
		t.Fatal("expected message to be sent")
	}
	if subject := sent.GetGenHeader(gomail.HeaderSubject); len(subject) != 1 || subject[0] != "Hanko Field: quotation R-1 received" {
		t.Fatalf("unexpected subject %v", subject)
	}
	from := sent.GetFromString()
	if len(from) != 1 || !strings.Contains(from[0], "orders@example.com") {
		t.Fatalf("unexpected from %v", from)
	}

	var buf bytes.Buffer
	if _, err := sent.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "R-1") {
		t.Fatalf("expected rendered body to mention reference")
	}
}

func TestSMTPMailerUsesShopSenderAndPropagatesFailure(t *testing.T) {
	sendErr := errors.New("smtp down")
	var from []string
	m, err := NewSMTPMailer(config.SMTPConfig{FromAddress: "orders@example.com"},
		WithSender(func(_ context.Context, msg *gomail.Msg) error {
			from = msg.GetFromString()
			return sendErr
		}),
	)
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	err = m.SendQuotationEmail(context.Background(), services.QuotationEmail{
		To:       "buyer@example.com",
		From:     "Shop <shop@example.com>",
		Template: "quotations/coreQuotationWorkflow/canceled",
		Data:     testEmailData(),
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	if len(from) != 1 || !strings.Contains(from[0], "shop@example.com") {
		t.Fatalf("expected shop sender, got %v", from)
	}
}

func TestSMTPMailerValidation(t *testing.T) {
	if _, err := NewSMTPMailer(config.SMTPConfig{}); err == nil {
		t.Fatal("expected error without smtp host")
	}
	m, err := NewSMTPMailer(config.SMTPConfig{}, WithSender(func(context.Context, *gomail.Msg) error { return nil }))
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	if err := m.SendQuotationEmail(context.Background(), services.QuotationEmail{Template: "quotations/new"}); err == nil {
		t.Fatal("expected error without recipient")
	}
	if err := m.SendQuotationEmail(context.Background(), services.QuotationEmail{To: "a@example.com", Template: "quotations/new"}); err == nil {
		t.Fatal("expected error without sender address")
	}
}

func TestRendererResolvesLanguageAndFallback(t *testing.T) {
	r := NewRenderer()
	cases := []struct {
		name string
		lang string
		want string
	}{
		{"quotations/new", "ja-JP", "new.ja.html"},
		{"quotations/new", "fr", "new.html"},
		{"quotations/coreQuotationWorkflow/canceled", "", "canceled.html"},
		{"quotations/coreQuotationWorkflow/processing", "en", "default.html"},
		{"", "en", "default.html"},
	}
	for _, tc := range cases {
		if got := r.resolve(tc.name, tc.lang); got != tc.want {
			t.Errorf("resolve(%q, %q) = %s, want %s", tc.name, tc.lang, got, tc.want)
		}
	}

	body, err := r.Render("quotations/new", "ja", testEmailData())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "見積もり") || !strings.Contains(body, "line-through") {
		t.Fatalf("unexpected japanese body: %s", body)
	}
	if !strings.Contains(body, "lang=\"ja\"") {
		t.Fatalf("expected html lang attribute")
	}
}
