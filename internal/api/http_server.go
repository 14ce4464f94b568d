package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/export"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services are the workflows the HTTP adapter exposes.
type Services struct {
	Schedule *service.ScheduleService
	Booking  *service.BookingService
	Settings *service.SettingsService
	Users    *service.UserService
	Exporter *export.Exporter
}

// HTTPServer exposes the scheduling workflows as a JSON API.
type HTTPServer struct {
	cfg      config.APIConfig
	services Services
	db       Pinger
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, services Services, db Pinger, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, services: services, db: db, logger: zerolog.Nop()}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux, srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/v1/server-date", s.handleServerDate)

	mux.HandleFunc("GET /api/v1/days", s.handleDayStatusRange)
	mux.HandleFunc("GET /api/v1/days/{date}", s.handleDayStatus)
	mux.HandleFunc("GET /api/v1/days/{date}/appointments", s.handleGetAppointments)
	mux.HandleFunc("DELETE /api/v1/days/{date}/appointments", s.handleDeleteAll)
	mux.HandleFunc("GET /api/v1/days/{date}/timeline", s.handleTimeline)
	mux.HandleFunc("POST /api/v1/days/{date}/generate", s.handleGenerateSlots)

	mux.HandleFunc("GET /api/v1/appointments", s.handleListAppointments)
	mux.HandleFunc("POST /api/v1/appointments", s.handleAddAppointment)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", s.handleDeleteAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/book", s.handleBookExisting)
	mux.HandleFunc("POST /api/v1/appointments/{id}/book-new", s.handleBookNew)
	mux.HandleFunc("POST /api/v1/appointments/{id}/force-book-new", s.handleForceBookNew)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/appointments/{id}/remove-user", s.handleRemoveUser)
	mux.HandleFunc("POST /api/v1/appointments/{id}/block", s.handleBlock)
	mux.HandleFunc("POST /api/v1/appointments/{id}/unblock", s.handleUnblock)

	mux.HandleFunc("GET /api/v1/blocks", s.handleListBlocks)
	mux.HandleFunc("POST /api/v1/blocks", s.handleCreateBlock)
	mux.HandleFunc("DELETE /api/v1/blocks/{id}", s.handleDeleteBlock)

	mux.HandleFunc("GET /api/v1/users/search", s.handleSearchUsers)
	mux.HandleFunc("GET /api/v1/users/{id}", s.handleGetUser)

	mux.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	mux.HandleFunc("GET /api/v1/settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /api/v1/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/v1/export", s.handleExport)
}

// Handler is the fully wrapped handler, as served.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// loggingMiddleware tags every request with an id, logs it and records
// metrics by route pattern. mux is only used to resolve the pattern.
func (s *HTTPServer) loggingMiddleware(mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		metrics.ObserveHTTP(pattern, strconv.Itoa(recorder.status), dur.Seconds())
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// response is the envelope of every JSON reply.
type response struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Data       any            `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Field      string         `json:"field,omitempty"`
	Candidates []*models.User `json:"candidates,omitempty"`
	Proposed   *models.User   `json:"proposed,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, response{Success: false, Message: message})
}

// writeDomainError maps workflow errors onto HTTP status codes. Conflicts
// carry the matching users so the operator can pick or force.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	resp := response{Success: false, Message: err.Error(), Error: service.Outcome(err)}

	var (
		validation *domain.ValidationError
		identity   *domain.IdentityConflict
		mismatch   *domain.NameMismatchConflict
	)
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	if errors.As(err, &identity) {
		resp.Candidates = identity.Candidates
	}
	if errors.As(err, &mismatch) {
		resp.Candidates = mismatch.Candidates
		resp.Proposed = &mismatch.Proposed
	}

	code := statusFor(err, AuthFromContext(r.Context()))
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp.Message = "internal error"
	}
	writeJSON(w, code, resp)
}

func statusFor(err error, auth domain.AuthContext) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		if auth.Authenticated {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSlotConflict),
		errors.Is(err, domain.ErrIdentity),
		errors.Is(err, domain.ErrNameMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
