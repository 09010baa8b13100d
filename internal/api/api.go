// Package api provides the HTTP server of the challenge bot.
//
// It receives transport webhooks (Telegram updates, Twilio WhatsApp messages)
// and exposes a health check and the read-only monthly leaderboard as JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/scheduler"
)

// Default server settings
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	// TwilioWebhookPath is where Twilio posts inbound WhatsApp messages.
	TwilioWebhookPath = "/twilio/webhook"
)

// StandingsSource is the part of store.Store the leaderboard endpoint reads.
type StandingsSource interface {
	PeriodStandings(ctx context.Context, month string) ([]models.Standing, error)
}

// JobLister reports the scheduled jobs. scheduler.Scheduler implements it.
type JobLister interface {
	Jobs() []scheduler.Job
}

// Opts holds configuration options for the Server.
type Opts struct {
	Addr            string
	WebhookSecret   string           // path segment of the Telegram webhook
	TelegramWebhook http.HandlerFunc // nil disables the route
	TwilioWebhook   http.HandlerFunc // nil disables the route
	Jobs            JobLister
	Now             func() time.Time
}

// Option defines a configuration option for the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTelegramWebhook mounts h at POST /{secret}.
func WithTelegramWebhook(secret string, h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.WebhookSecret = secret
		o.TelegramWebhook = h
	}
}

// WithTwilioWebhook mounts h at POST /twilio/webhook.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.TwilioWebhook = h }
}

// WithJobs reports the given scheduler's jobs on the health endpoint.
func WithJobs(j JobLister) Option {
	return func(o *Opts) { o.Jobs = j }
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Server serves the bot's HTTP endpoints.
type Server struct {
	opts   Opts
	st     StandingsSource
	router *chi.Mux
}

// NewServer creates a Server and mounts its routes.
func NewServer(st StandingsSource, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{opts: o, st: st, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLog)

	r.Get("/healthz", s.healthHandler)
	r.Get("/api/leaderboard", s.leaderboardHandler)
	if s.opts.TwilioWebhook != nil {
		r.Post(TwilioWebhookPath, s.opts.TwilioWebhook)
	}
	if s.opts.TelegramWebhook != nil {
		if s.opts.WebhookSecret == "" {
			slog.Warn("Server.routes: telegram webhook mounted without a secret path")
		}
		r.Post("/{secret}", s.telegramWebhookHandler)
	}
}

// ServeHTTP implements http.Handler so the server can be used directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		// The route pattern keeps the webhook secret out of the logs.
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		slog.Debug("Server.request", "method", r.Method, "route", route, "status", ww.Status(),
			"duration", time.Since(start), "requestID", chimw.GetReqID(r.Context()))
	})
}
