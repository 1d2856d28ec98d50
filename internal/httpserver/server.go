package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rizztempo/rizztempo/internal/account"
	"github.com/rizztempo/rizztempo/internal/auth"
	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/health"
	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/ledger"
	"github.com/rizztempo/rizztempo/internal/metrics"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/practice"
	"github.com/rizztempo/rizztempo/internal/ratelimit"
	"github.com/rizztempo/rizztempo/internal/remote"
	"github.com/rizztempo/rizztempo/internal/state"
	"github.com/rizztempo/rizztempo/internal/version"
	"github.com/rizztempo/rizztempo/internal/voice"
)

// VoiceFactory opens a conversation that reports to cb.
type VoiceFactory func(cb voice.Callbacks) voice.Conversation

// Services are the collaborators behind the API. Journal, Metrics, Events
// and Voice are optional.
type Services struct {
	Auth     *auth.Manager
	Accounts *account.Service
	State    *state.State
	Journal  ledger.Store
	Metrics  *metrics.Collector
	Events   *hooks.Dispatcher
	Plans    []model.Plan

	// Policy is the template for every practice timer.
	Policy practice.Config
	Clock  practice.Clock

	Voice        VoiceFactory
	VoiceAgentID string
	PartnerName  string

	// Health probes the backend and local stores on /health.
	Health *health.Checker
	// AuthLimiter throttles sign-in and sign-up attempts per client.
	AuthLimiter *ratelimit.Limiter
}

// Server exposes the client core as a local JSON API.
type Server struct {
	svc      Services
	logger   *log.Logger
	logLevel string

	practiceMu sync.Mutex
	practice   *practice.Session

	voiceMu    sync.Mutex
	conv       voice.Conversation
	transcript *voice.Transcript
}

// New builds a server. Missing plans fall back to the built-in catalogue.
func New(svc Services) *Server {
	if len(svc.Plans) == 0 {
		svc.Plans = model.DefaultPlans()
	}
	if svc.Clock == nil {
		svc.Clock = practice.SystemClock()
	}
	return &Server{
		svc:    svc,
		logger: log.New(io.Discard, "", 0),
	}
}

// SetLogger sets the request logger and level; nil keeps the current logger.
func (s *Server) SetLogger(level string, logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	if s.isDebug() {
		s.logger.Printf("[DEBUG] "+format, args...)
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(authRoutes chi.Router) {
			authRoutes.Use(ratelimit.Middleware(s.svc.AuthLimiter, ratelimit.ClientKey, s.logger))
			authRoutes.Post("/auth/signup", s.handleSignUp)
			authRoutes.Post("/auth/signin", s.handleSignIn)
		})
		api.Get("/plans", s.handlePlans)

		api.Group(func(private chi.Router) {
			private.Use(s.sessionMiddleware)
			private.Post("/auth/signout", s.handleSignOut)
			s.registerEndpoints(private,
				newAccountEndpoint(s),
				newBillingEndpoint(s),
				newPracticeEndpoint(s),
				newVoiceEndpoint(s),
			)
		})
	})
	return r
}

// Shutdown closes the voice conversation and settles a running practice
// timer so its time is billed and journaled.
func (s *Server) Shutdown(ctx context.Context) {
	s.closeVoice(ctx)
	s.resetPractice(ctx)
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Auth == nil || s.svc.Auth.UserID() == "" {
			s.respondError(w, http.StatusUnauthorized, auth.ErrNotSignedIn)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.svc.Metrics.RecordRequest(r.Method+" "+route, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"time":      time.Now().UTC().Format(time.RFC3339),
		"version":   version.Version,
		"signed_in": s.svc.Auth != nil && s.svc.Auth.UserID() != "",
	}
	status := http.StatusOK
	if s.svc.Health != nil {
		checks := s.svc.Health.Check(r.Context())
		payload["status"] = checks.Status
		payload["components"] = checks.Components
		if checks.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
	}
	s.respondJSON(w, status, payload)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.svc.Metrics == nil {
		s.respondError(w, http.StatusNotFound, errors.New("metrics disabled"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, metrics.FormatPrometheus(s.svc.Metrics.GetSnapshot()))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

// fail answers with the status that matches the error kind.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Printf("request failed: %v", err)
	}
	s.respondError(w, status, err)
}

// badRequest marks request decoding and validation failures.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(err error) error { return badRequest{err: err} }

func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.Is(err, state.ErrNoUser), errors.Is(err, auth.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, practice.ErrInsufficientTokens):
		return http.StatusPaymentRequired
	case errors.Is(err, state.ErrNoSubscription), errors.Is(err, state.ErrNoChallenge):
		return http.StatusNotFound
	case errors.Is(err, practice.ErrInvalidTransition), errors.Is(err, state.ErrChallengeCompleted),
		errors.Is(err, voice.ErrActive), errors.Is(err, errPracticeActive), errors.Is(err, errNoPractice),
		errors.Is(err, errNoConversation), errors.Is(err, errNoFeedback), errors.Is(err, errTextUnsupported):
		return http.StatusConflict
	case errors.As(err, &br), errors.Is(err, account.ErrMissingField):
		return http.StatusBadRequest
	case backend.IsProcedureError(err):
		return http.StatusConflict
	case remote.IsRemote(err), voice.IsVoiceError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid(errors.New("request body required"))
		}
		return invalid(fmt.Errorf("decode request: %w", err))
	}
	return nil
}
