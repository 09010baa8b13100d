// Package telegram wraps the Telegram Bot API client.
//
// It converts transport-neutral replies into Bot API requests and Bot API
// updates into models.Event values.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// DefaultPollTimeout is the long-polling timeout in seconds.
const DefaultPollTimeout = 60

// TelegramSender is the subset of the client used by the messaging service.
type TelegramSender interface {
	SendReply(ctx context.Context, chatID string, r models.Reply) error
	SendDocument(ctx context.Context, chatID, fileID, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token      string
	WebhookURL string // when set, updates arrive by webhook instead of polling
	Debug      bool
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithWebhookURL registers the given public URL as the bot's webhook.
func WithWebhookURL(url string) Option {
	return func(o *Opts) { o.WebhookURL = url }
}

// WithDebug enables request logging inside the Bot API library.
func WithDebug(debug bool) Option {
	return func(o *Opts) { o.Debug = debug }
}

// Client wraps tgbotapi.BotAPI.
type Client struct {
	bot     *tgbotapi.BotAPI
	webhook bool
}

// NewClient authenticates with the Bot API and, if a webhook URL is
// configured, registers it. Otherwise any stale webhook is removed so long
// polling works.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	slog.Debug("Telegram NewClient options set", "Token_set", cfg.Token != "", "WebhookURL_set", cfg.WebhookURL != "", "Debug", cfg.Debug)
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	slog.Info("Telegram client authorized", "username", bot.Self.UserName)

	if cfg.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.WebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url: %w", err)
		}
		if _, err := bot.Request(wh); err != nil {
			return nil, fmt.Errorf("failed to register webhook: %w", err)
		}
		slog.Info("Telegram webhook registered")
	} else if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		slog.Warn("Telegram failed to delete webhook before polling", "error", err)
	}

	return &Client{bot: bot, webhook: cfg.WebhookURL != ""}, nil
}

// UsesWebhook reports whether updates arrive through the webhook endpoint.
func (c *Client) UsesWebhook() bool {
	return c.webhook
}

// Updates starts long polling.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = DefaultPollTimeout
	return c.bot.GetUpdatesChan(u)
}

// StopUpdates stops long polling.
func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

// SendReply sends a text message with its inline menu or reply keyboard.
func (c *Client) SendReply(ctx context.Context, chatID string, r models.Reply) error {
	msg, err := BuildMessage(chatID, r)
	if err != nil {
		return err
	}
	if _, err := c.bot.Send(msg); err != nil {
		slog.Error("Telegram SendReply failed", "chatID", chatID, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", chatID, err)
	}
	return nil
}

// SendDocument sends a file previously uploaded to Telegram by its file id.
func (c *Client) SendDocument(ctx context.Context, chatID, fileID, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(id, tgbotapi.FileID(fileID))
	doc.Caption = caption
	if _, err := c.bot.Send(doc); err != nil {
		slog.Error("Telegram SendDocument failed", "chatID", chatID, "error", err)
		return fmt.Errorf("failed to send document to %s: %w", chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press as a toast or an alert.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := c.bot.Request(cb); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// BuildMessage converts a reply into a Bot API message. Inline buttons take
// precedence over a reply keyboard since a message carries one markup.
func BuildMessage(chatID string, r models.Reply) (tgbotapi.MessageConfig, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return tgbotapi.MessageConfig{}, err
	}
	msg := tgbotapi.NewMessage(id, r.Text)
	if r.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	switch {
	case len(r.Buttons) > 0:
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, row := range r.ButtonRows() {
			var buttons []tgbotapi.InlineKeyboardButton
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	case len(r.Keyboard) > 0:
		var rows [][]tgbotapi.KeyboardButton
		for _, row := range r.Keyboard {
			var buttons []tgbotapi.KeyboardButton
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.ResizeKeyboard = true
		msg.ReplyMarkup = kb
	}
	return msg, nil
}

// DecodeUpdate reads one webhook update body.
func DecodeUpdate(r io.Reader) (tgbotapi.Update, error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return tgbotapi.Update{}, fmt.Errorf("decode telegram update: %w", err)
	}
	return u, nil
}

// EventFromUpdate normalizes an update. ok is false for update types the
// bot does not handle.
func EventFromUpdate(u tgbotapi.Update) (models.Event, bool) {
	evt := models.Event{ID: strconv.Itoa(u.UpdateID)}
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return models.Event{}, false
		}
		evt.Kind = models.EventCallback
		evt.CallbackID = q.ID
		evt.Data = q.Data
		setSender(&evt, q.From)
		if q.Message != nil && q.Message.Chat != nil {
			evt.ChatID = strconv.FormatInt(q.Message.Chat.ID, 10)
			evt.Private = q.Message.Chat.IsPrivate()
			evt.Time = q.Message.Time()
		} else {
			evt.ChatID = evt.UserID
			evt.Private = true
		}
		return evt, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return models.Event{}, false
		}
		setSender(&evt, m.From)
		evt.ChatID = strconv.FormatInt(m.Chat.ID, 10)
		evt.Private = m.Chat.IsPrivate()
		evt.Time = m.Time()
		switch {
		case m.Document != nil:
			evt.Kind = models.EventDocument
			evt.FileID = m.Document.FileID
			evt.Text = m.Caption
		case m.IsCommand():
			evt.Kind = models.EventCommand
			evt.Command = m.Command()
			evt.Text = m.Text
		case m.Text != "":
			evt.Kind = models.EventText
			evt.Text = m.Text
		default:
			return models.Event{}, false
		}
		return evt, true
	}
	return models.Event{}, false
}

func setSender(evt *models.Event, u *tgbotapi.User) {
	evt.UserID = strconv.FormatInt(u.ID, 10)
	evt.FirstName = u.FirstName
	evt.LastName = u.LastName
	evt.Username = u.UserName
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}

// MockClient records calls instead of talking to Telegram (for tests).
type MockClient struct {
	Replies   []SentReply
	Documents []SentDocument
	Callbacks []AnsweredCallback
	// Err, when set, is returned by every call.
	Err error
}

// SentReply is one recorded SendReply call.
type SentReply struct {
	ChatID string
	Reply  models.Reply
}

// SentDocument is one recorded SendDocument call.
type SentDocument struct {
	ChatID  string
	FileID  string
	Caption string
}

// AnsweredCallback is one recorded AnswerCallback call.
type AnsweredCallback struct {
	CallbackID string
	Text       string
	Alert      bool
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendReply(ctx context.Context, chatID string, r models.Reply) error {
	if m.Err != nil {
		return m.Err
	}
	m.Replies = append(m.Replies, SentReply{ChatID: chatID, Reply: r})
	return nil
}

func (m *MockClient) SendDocument(ctx context.Context, chatID, fileID, caption string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Documents = append(m.Documents, SentDocument{ChatID: chatID, FileID: fileID, Caption: caption})
	return nil
}

func (m *MockClient) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if m.Err != nil {
		return m.Err
	}
	m.Callbacks = append(m.Callbacks, AnsweredCallback{CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}
