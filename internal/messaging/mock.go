package messaging

import (
	"context"
	"sync"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// MockService records outbound calls and lets tests inject inbound events.
type MockService struct {
	mu        sync.Mutex
	Sent      []SentReply
	Files     []SentFile
	Callbacks []Acknowledgement
	// Fail maps chat ids to the error returned by Send for them.
	Fail map[string]error
	// Reject, when set, can refuse individual replies, e.g. ones a transport
	// would fail to parse.
	Reject func(models.Reply) error

	events  chan models.Event
	stopped bool
}

// SentReply is one recorded Send call.
type SentReply struct {
	ChatID string
	Reply  models.Reply
}

// SentFile is one recorded SendFile call.
type SentFile struct {
	ChatID  string
	FileRef string
	Caption string
}

// Acknowledgement is one recorded AnswerCallback call.
type Acknowledgement struct {
	CallbackID string
	Text       string
	Alert      bool
}

// NewMockService creates a MockService.
func NewMockService() *MockService {
	return &MockService{
		Fail:   map[string]error{},
		events: make(chan models.Event, DefaultChannelBufferSize),
	}
}

func (m *MockService) Send(ctx context.Context, chatID string, r models.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[chatID]; err != nil {
		return err
	}
	if m.Reject != nil {
		if err := m.Reject(r); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, SentReply{ChatID: chatID, Reply: r})
	return nil
}

func (m *MockService) SendFile(ctx context.Context, chatID, fileRef, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[chatID]; err != nil {
		return err
	}
	m.Files = append(m.Files, SentFile{ChatID: chatID, FileRef: fileRef, Caption: caption})
	return nil
}

func (m *MockService) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Callbacks = append(m.Callbacks, Acknowledgement{CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.events)
	}
	return nil
}

func (m *MockService) Events() <-chan models.Event { return m.events }

// Emit injects an inbound event.
func (m *MockService) Emit(evt models.Event) {
	m.events <- evt
}

// SentTo returns the replies sent to chatID, in order.
func (m *MockService) SentTo(chatID string) []models.Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reply
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s.Reply)
		}
	}
	return out
}

// LastCallback returns the most recent acknowledgement.
func (m *MockService) LastCallback() (Acknowledgement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Callbacks) == 0 {
		return Acknowledgement{}, false
	}
	return m.Callbacks[len(m.Callbacks)-1], true
}

// Reset forgets recorded calls.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
	m.Files = nil
	m.Callbacks = nil
}
