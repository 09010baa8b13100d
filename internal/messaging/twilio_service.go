package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
// Inbound messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client  twiliowhatsapp.TwilioWhatsAppSender // real Twilio client or MockClient
	menus   *MenuTracker
	events  chan models.Event
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{
		client: client,
		menus:  NewMenuTracker(),
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
}

// Start is a no-op; Twilio pushes messages to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the events channel. It is safe to call more than once.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.events)
	slog.Info("TwilioService stopped and channels closed")
	return nil
}

// Send renders the reply as text, numbering any menu options.
func (s *TwilioService) Send(ctx context.Context, chatID string, r models.Reply) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.SendMessage(ctx, chatID, s.menus.Render(chatID, r))
}

// SendFile attaches http(s) references as media; other references are sent as text.
func (s *TwilioService) SendFile(ctx context.Context, chatID, fileRef, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if strings.HasPrefix(fileRef, "http://") || strings.HasPrefix(fileRef, "https://") {
		return s.client.SendMedia(ctx, chatID, caption, fileRef)
	}
	return s.client.SendMessage(ctx, chatID, strings.TrimSpace(caption+"\n"+fileRef))
}

// AnswerCallback delivers the acknowledgement text as a message; callbackID
// is the chat id for text transports.
func (s *TwilioService) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if text == "" {
		return nil
	}
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.client.SendMessage(ctx, callbackID, text)
}

// Events returns the channel of inbound events.
func (s *TwilioService) Events() <-chan models.Event {
	return s.events
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them
// as events. A media attachment becomes a document event carrying its URL.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService failed to parse webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := twiliowhatsapp.Number(r.FormValue("From"))
	body := r.FormValue("Body")
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	mediaURL := r.FormValue("MediaUrl0")
	if from == "" || (body == "" && (numMedia == 0 || mediaURL == "")) {
		slog.Warn("TwilioService webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	evt := models.Event{
		ID:        r.FormValue("MessageSid"),
		UserID:    from,
		ChatID:    from,
		FirstName: r.FormValue("ProfileName"),
		Private:   true,
		Text:      body,
		Time:      time.Now().UTC(),
	}
	if numMedia > 0 && mediaURL != "" {
		evt.Kind = models.EventDocument
		evt.FileID = mediaURL
	} else {
		evt = s.menus.textEvent(evt)
	}
	s.safeEmit(evt)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmit(evt models.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "userID", evt.UserID)
		return
	}
	emit(s.events, evt, "TwilioService")
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
