// Package server exposes the booking authority over JSON/HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"roombook/internal/config"
	"roombook/internal/icalfeed"
	"roombook/internal/manager"
	"roombook/internal/store"
)

// ReportWriter renders the admin workbook export.
type ReportWriter interface {
	WriteReport(ctx context.Context, w io.Writer) error
}

// Deps are the collaborators of the HTTP server. Reports, Feed and Redis are
// optional.
type Deps struct {
	DB       *store.DB
	Bookings *manager.Service
	Reports  ReportWriter
	Feed     *icalfeed.Feed
	Redis    *redis.Client
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	cfg     *config.Config
	db      *store.DB
	svc     *manager.Service
	reports ReportWriter
	feed    *icalfeed.Feed
	tokens  *tokenCache
	limiter *IPRateLimiter
	logger  zerolog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

// New wires the routes.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:     cfg,
		db:      deps.DB,
		svc:     deps.Bookings,
		reports: deps.Reports,
		feed:    deps.Feed,
		tokens:  newTokenCache(deps.Redis, tokenCacheTTL),
		limiter: NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
		logger:  logger.With().Str("component", "http").Logger(),
		mux:     http.NewServeMux(),
	}
	s.routes()

	readTimeout := time.Duration(cfg.Server.ReadTimeoutSec) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the root handler with recovery and rate limiting applied.
func (s *HTTPServer) Handler() http.Handler {
	return requestID(s.recoverer(s.rateLimit(s.mux)))
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go s.evictLimiters(ctx, time.Minute)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) routes() {
	s.handle("GET /healthz", "healthz", s.handleHealth)
	s.handle("GET /readyz", "readyz", s.handleReady)

	s.handle("POST /api/auth/login/{$}", "auth_login", s.handleLogin)
	s.handle("POST /api/auth/refresh/{$}", "auth_refresh", s.handleRefresh)
	s.handle("POST /api/auth/register/{$}", "auth_register", s.handleRegister)
	s.handle("GET /api/auth/user/{$}", "auth_user", s.authed(s.handleCurrentUser))

	s.handle("GET /api/floors/{$}", "floors", s.authed(s.handleFloors))
	s.handle("GET /api/rooms/{$}", "rooms", s.authed(s.handleRooms))
	s.handle("GET /api/check_availability/{$}", "check_availability", s.authed(s.handleCheckAvailability))

	s.handle("GET /api/bookings/{$}", "bookings_list", s.authed(s.handleListBookings))
	s.handle("GET /api/bookings/my", "bookings_my", s.authed(s.handleMyBookings))
	s.handle("GET /api/bookings/{id}/{$}", "booking_get", s.authed(s.handleGetBooking))
	s.handle("PUT /api/bookings/{id}/{$}", "booking_update", s.authed(s.handleUpdateBooking))
	s.handle("DELETE /api/bookings/{id}/{$}", "booking_cancel", s.authed(s.handleCancelBooking))
	s.handle("POST /api/create_booking/{$}", "booking_create", s.authed(s.handleCreateBooking))
	s.handle("GET /api/calendar.ics", "calendar", s.authed(s.handleCalendar))

	s.handle("POST /api/admin/bookings/{id}/status/{$}", "admin_booking_status", s.authed(s.handleSetStatus))
	s.handle("DELETE /api/admin/bookings/{$}", "admin_bookings_delete", s.authed(s.handleDeleteAll))
	s.handle("GET /api/admin/pending-users/{$}", "admin_pending_users", s.authed(s.handlePendingUsers))
	s.handle("POST /api/admin/approve-user/{id}/{$}", "admin_approve_user", s.authed(s.handleApproveUser))
	s.handle("GET /api/admin/export.xlsx", "admin_export", s.authed(s.handleExport))
}

func (s *HTTPServer) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(route, h))
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.db.HealthCheck(ctx); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	if err := s.tokens.ping(ctx); err != nil {
		http.Error(w, "redis not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
