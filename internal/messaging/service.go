// Package messaging provides the transport-neutral delivery abstraction used
// by the bot, along with its Telegram, WhatsApp and Twilio implementations.
package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// Constants shared by the service implementations
const (
	// DefaultChannelBufferSize defines the default buffer size for the events channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by sends after Stop.
var ErrServiceStopped = models.ErrServiceStopped

// Service defines a pluggable message transport.
// It delivers replies, files and button acknowledgements, and exposes a
// channel of normalized inbound events.
type Service interface {
	// Send delivers one reply to a chat, including any buttons or keyboard.
	Send(ctx context.Context, chatID string, r models.Reply) error

	// SendFile delivers a previously stored file reference with a caption.
	SendFile(ctx context.Context, chatID, fileRef, caption string) error

	// AnswerCallback acknowledges a button press. alert asks for a modal
	// popup instead of a toast where the transport supports it.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the events channel.
	Stop() error

	// Events returns the channel of inbound events.
	Events() <-chan models.Event
}

// ParseCommand splits "/name args" into the command name without the slash.
// A "@botname" suffix is dropped.
func ParseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 || text[1] == ' ' {
		return "", false
	}
	name := fields[0]
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// emit forwards an event without blocking forever on a full channel.
func emit(ch chan<- models.Event, evt models.Event, component string) {
	select {
	case ch <- evt:
		slog.Debug(component+": event forwarded", "kind", evt.Kind, "userID", evt.UserID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(component+": events channel blocked, dropping event", "kind", evt.Kind, "userID", evt.UserID, "timeout", DefaultChannelTimeout)
	}
}
