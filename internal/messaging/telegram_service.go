package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/telegram"
)

// updatePoller is implemented by telegram.Client in long-polling mode.
type updatePoller interface {
	Updates() tgbotapi.UpdatesChannel
	StopUpdates()
}

// TelegramService implements Service using the Telegram Bot API.
// Updates arrive by long polling or through WebhookHandler.
type TelegramService struct {
	client  telegram.TelegramSender
	poller  updatePoller
	events  chan models.Event
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTelegramService creates a TelegramService. A real client that is not
// in webhook mode is polled for updates once Start is called.
func NewTelegramService(client telegram.TelegramSender) *TelegramService {
	s := &TelegramService{
		client: client,
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
	if c, ok := client.(*telegram.Client); ok && !c.UsesWebhook() {
		s.poller = c
		slog.Debug("TelegramService created in polling mode")
	} else {
		slog.Debug("TelegramService created in webhook mode")
	}
	return s
}

// Start begins long polling when configured.
func (s *TelegramService) Start(ctx context.Context) error {
	if s.poller == nil {
		return nil
	}
	updates := s.poller.Updates()
	go func() {
		defer s.poller.StopUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				s.HandleUpdate(u)
			}
		}
	}()
	slog.Info("TelegramService polling started")
	return nil
}

// Stop closes the events channel. It is safe to call more than once.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.events)
	slog.Info("TelegramService stopped and channels closed")
	return nil
}

// Send delivers a reply.
func (s *TelegramService) Send(ctx context.Context, chatID string, r models.Reply) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.SendReply(ctx, chatID, r)
}

// SendFile sends a document by its Telegram file id.
func (s *TelegramService) SendFile(ctx context.Context, chatID, fileRef, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.SendDocument(ctx, chatID, fileRef, caption)
}

// AnswerCallback acknowledges an inline button press.
func (s *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.AnswerCallback(ctx, callbackID, text, alert)
}

// Events returns the channel of inbound events.
func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// HandleUpdate normalizes an update and forwards it to Events.
func (s *TelegramService) HandleUpdate(u tgbotapi.Update) {
	evt, ok := telegram.EventFromUpdate(u)
	if !ok {
		slog.Debug("TelegramService ignoring update", "updateID", u.UpdateID)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TelegramService dropping update (service stopped)", "updateID", u.UpdateID)
		return
	}
	emit(s.events, evt, "TelegramService")
}

// WebhookHandler receives updates pushed by Telegram.
func (s *TelegramService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	u, err := telegram.DecodeUpdate(r.Body)
	if err != nil {
		slog.Warn("TelegramService webhook decode failed", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	s.HandleUpdate(u)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TelegramService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
