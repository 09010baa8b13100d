package messaging

import (
	"context"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/whatsapp"
)

// Ensure the services implement Service
func TestServices_ImplementService(t *testing.T) {
	var _ Service = (*WhatsAppService)(nil)
	var _ Service = (*TwilioService)(nil)
	var _ Service = (*TelegramService)(nil)
	var _ Service = (*MockService)(nil)
}

func waMessage(id, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("15550001111", whatsapp.JIDSuffix),
				Sender: types.NewJID("15550001111", whatsapp.JIDSuffix),
			},
			ID:        types.MessageID(id),
			PushName:  "Ann",
			Timestamp: time.Now(),
		},
		Message: &waE2E.Message{Conversation: &text},
	}
}

func receive(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("expected an event, got none")
		return models.Event{}
	}
}

func TestWhatsAppService_SendRendersMenu(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	r := models.Reply{Text: "Pick", Buttons: []models.Button{{Label: "Reading", Data: "challenge_reading"}}}
	if err := svc.Send(context.Background(), "15550001111", r); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(mockClient.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mockClient.SentMessages))
	}
	want := "Pick\n\n1. Reading\n\nReply with a number."
	if got := mockClient.SentMessages[0].Body; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestWhatsAppService_InboundMenuAnswer(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	ctx := context.Background()
	r := models.Reply{Text: "Pick", Buttons: []models.Button{{Label: "Reading", Data: "challenge_reading"}}}
	if err := svc.Send(ctx, "15550001111", r); err != nil {
		t.Fatal(err)
	}

	svc.HandleMessage(waMessage("m1", "1"))
	evt := receive(t, svc.Events())
	if evt.Kind != models.EventCallback || evt.Data != "challenge_reading" || evt.CallbackID != "15550001111" {
		t.Errorf("unexpected event: %+v", evt)
	}

	svc.HandleMessage(waMessage("m2", "/start"))
	evt = receive(t, svc.Events())
	if evt.Kind != models.EventCommand || evt.Command != "start" {
		t.Errorf("unexpected command event: %+v", evt)
	}
}

func TestWhatsAppService_AnswerCallbackSendsText(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	ctx := context.Background()
	if err := svc.AnswerCallback(ctx, "15550001111", "", false); err != nil {
		t.Fatal(err)
	}
	if err := svc.AnswerCallback(ctx, "15550001111", "Not enough points", true); err != nil {
		t.Fatal(err)
	}
	if len(mockClient.SentMessages) != 1 || mockClient.SentMessages[0].Body != "Not enough points" {
		t.Errorf("unexpected messages: %+v", mockClient.SentMessages)
	}
}

// Test Start and Stop do not error and close channels
func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if evt, ok := <-svc.Events(); ok {
		t.Errorf("expected events channel closed, got value %v", evt)
	}
	if err := svc.Send(context.Background(), "1", models.Text("x")); err != ErrServiceStopped {
		t.Errorf("Send after Stop = %v, want ErrServiceStopped", err)
	}
	// Inbound messages after Stop are dropped, not sent on a closed channel.
	svc.HandleMessage(waMessage("m3", "hi"))
}
