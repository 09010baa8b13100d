package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestAddressAndNumber(t *testing.T) {
	if got := Address("+15550001"); got != "whatsapp:+15550001" {
		t.Errorf("Address() = %q", got)
	}
	if got := Address("whatsapp:+15550001"); got != "whatsapp:+15550001" {
		t.Errorf("Address() double-prefixed: %q", got)
	}
	if got := Number("whatsapp:+15550001"); got != "+15550001" {
		t.Errorf("Number() = %q", got)
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without sender number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+1555"))
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if c.fromWhats != "whatsapp:+1555" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	var _ TwilioWhatsAppSender = mock
	var _ TwilioWhatsAppSender = (*Client)(nil)

	if err := mock.SendMessage(ctx, "+12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.SendMedia(ctx, "+12345", "Your reward", "https://example.com/book.pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[1].MediaURL != "https://example.com/book.pdf" {
		t.Errorf("media url = %q", mock.SentMessages[1].MediaURL)
	}

	mock.Fail["+999"] = errors.New("unreachable")
	if err := mock.SendMessage(ctx, "+999", "hi"); err == nil {
		t.Error("expected configured failure")
	}
}
