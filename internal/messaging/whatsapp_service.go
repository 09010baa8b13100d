package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
// Menus are rendered as numbered text.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // underlying client for event handling
	menus    *MenuTracker
	events   chan models.Event
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		menus:  NewMenuTracker(),
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.waClient.AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.HandleMessage(msg)
		}
	})
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.waClient.Disconnect()
	}()
	slog.Info("WhatsAppService event handler registered")
	return nil
}

// Stop closes the events channel. It is safe to call more than once.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.events)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// Send renders the reply as text, numbering any menu options.
func (s *WhatsAppService) Send(ctx context.Context, chatID string, r models.Reply) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if err := s.client.SendMessage(ctx, chatID, s.menus.Render(chatID, r)); err != nil {
		slog.Error("WhatsAppService Send error", "error", err, "chatID", chatID)
		return err
	}
	return nil
}

// SendFile sends the caption followed by the file reference.
func (s *WhatsAppService) SendFile(ctx context.Context, chatID, fileRef, caption string) error {
	return s.Send(ctx, chatID, models.Text(strings.TrimSpace(caption+"\n"+fileRef)))
}

// AnswerCallback delivers the acknowledgement text as a message; callbackID
// is the chat id for text transports.
func (s *WhatsAppService) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if text == "" {
		return nil
	}
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.SendMessage(ctx, callbackID, text)
}

// Events returns the channel of inbound events.
func (s *WhatsAppService) Events() <-chan models.Event {
	return s.events
}

// HandleMessage converts an inbound whatsmeow message and forwards it.
func (s *WhatsAppService) HandleMessage(msg *events.Message) {
	evt, ok := whatsapp.EventFromMessage(msg)
	if !ok {
		return
	}
	evt = s.menus.textEvent(evt)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "userID", evt.UserID)
		return
	}
	emit(s.events, evt, "WhatsAppService")
}

func (s *WhatsAppService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
