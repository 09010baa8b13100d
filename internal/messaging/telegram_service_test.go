package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/telegram"
)

func TestTelegramService_Delegates(t *testing.T) {
	mock := telegram.NewMockClient()
	svc := NewTelegramService(mock)
	ctx := context.Background()

	if err := svc.Send(ctx, "42", models.Markdown("*hi*")); err != nil {
		t.Fatal(err)
	}
	if err := svc.SendFile(ctx, "42", "BQACAgI", "Your book"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AnswerCallback(ctx, "cb1", "Redeemed", false); err != nil {
		t.Fatal(err)
	}
	if len(mock.Replies) != 1 || !mock.Replies[0].Reply.Markdown {
		t.Errorf("replies = %+v", mock.Replies)
	}
	if len(mock.Documents) != 1 || mock.Documents[0].FileID != "BQACAgI" {
		t.Errorf("documents = %+v", mock.Documents)
	}
	if len(mock.Callbacks) != 1 || mock.Callbacks[0].CallbackID != "cb1" {
		t.Errorf("callbacks = %+v", mock.Callbacks)
	}
}

func TestTelegramService_Webhook(t *testing.T) {
	svc := NewTelegramService(telegram.NewMockClient())
	body := `{"update_id":1,"message":{"message_id":1,"date":1700000000,"text":"hello",
		"from":{"id":42,"first_name":"Ann"},"chat":{"id":42,"type":"private"}}}`
	req := httptest.NewRequest(http.MethodPost, "/secret", strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	evt := receive(t, svc.Events())
	if evt.Kind != models.EventText || evt.Text != "hello" || evt.UserID != "42" || evt.ID != "1" {
		t.Errorf("unexpected event: %+v", evt)
	}

	bad := httptest.NewRecorder()
	svc.WebhookHandler(bad, httptest.NewRequest(http.MethodPost, "/secret", strings.NewReader("not json")))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", bad.Code)
	}
}

func TestTelegramService_Stop(t *testing.T) {
	svc := NewTelegramService(telegram.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-svc.Events(); ok {
		t.Error("expected events channel closed")
	}
	if err := svc.AnswerCallback(context.Background(), "cb", "x", false); err != ErrServiceStopped {
		t.Errorf("AnswerCallback after Stop = %v", err)
	}
}
