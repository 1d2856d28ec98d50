package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rizztempo/rizztempo/internal/insights"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/practice"
)

// settleTimeout bounds a settle that has been detached from its request.
const settleTimeout = 30 * time.Second

// settleContext keeps the request's values but not its cancellation, so a
// client hanging up mid-settle cannot strand a debit without its record.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

var (
	errPracticeActive = errors.New("a practice session is already in progress")
	errNoPractice     = errors.New("no practice session")
)

type practiceEndpoint struct {
	server *Server
}

func newPracticeEndpoint(server *Server) endpoint {
	return &practiceEndpoint{server: server}
}

func (e *practiceEndpoint) Name() string { return "practice" }

func (e *practiceEndpoint) Routes() []endpointRoute {
	s := e.server
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/scenarios", Handler: s.handleScenarios},
		{Method: http.MethodGet, Path: "/sessions", Handler: s.handleSessions},
		{Method: http.MethodPost, Path: "/sessions/{id}/feedback", Handler: s.handleSessionFeedback},
		{Method: http.MethodGet, Path: "/stats", Handler: s.handleStats},
		{Method: http.MethodGet, Path: "/challenge", Handler: s.handleChallenge},
		{Method: http.MethodGet, Path: "/practice", Handler: s.handlePracticeSnapshot},
		{Method: http.MethodPost, Path: "/practice", Handler: s.handlePracticeCreate},
		{Method: http.MethodPost, Path: "/practice/{action}", Handler: s.handlePracticeAction},
		{Method: http.MethodGet, Path: "/journal", Handler: s.handleJournal},
	}
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	sc := s.svc.State.Scenarios
	if r.URL.Query().Get("refresh") == "1" || sc.Loading() {
		if err := sc.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"scenarios": sc.Value()})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.svc.State.Sessions
	if r.URL.Query().Get("refresh") == "1" || sessions.Loading() {
		if err := sessions.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions.Value()})
}

func (s *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var fb model.SessionFeedback
	if err := decodeJSON(r, &fb); err != nil {
		s.fail(w, err)
		return
	}
	if err := fb.Validate(); err != nil {
		s.fail(w, invalid(err))
		return
	}
	updated, err := s.svc.State.Sessions.AttachFeedback(r.Context(), id, fb)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"session": updated})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sessions := s.svc.State.Sessions
	if sessions.Loading() {
		if err := sessions.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	days := insights.DefaultWindow
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 366 {
			s.fail(w, invalid(fmt.Errorf("invalid days %q", v)))
			return
		}
		days = n
	}
	s.respondJSON(w, http.StatusOK, insights.Summarize(sessions.Value(), s.svc.Clock.Now(), days))
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ch := s.svc.State.Challenge
	if r.URL.Query().Get("refresh") == "1" || ch.Loading() {
		if err := ch.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	_, startErr := ch.CanStart()
	payload := map[string]any{
		"date":      ch.Today(),
		"status":    ch.Value(),
		"can_start": startErr == nil,
	}
	if startErr != nil {
		payload["reason"] = startErr.Error()
	}
	s.respondJSON(w, http.StatusOK, payload)
}

type practiceRequest struct {
	Scenario       string   `json:"scenario"`
	DailyChallenge bool     `json:"daily_challenge"`
	Tags           []string `json:"tags"`
}

func (s *Server) handlePracticeCreate(w http.ResponseWriter, r *http.Request) {
	var req practiceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	label, tags, err := s.practiceLabel(r, req)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.practiceMu.Lock()
	defer s.practiceMu.Unlock()
	if cur := s.practice; cur != nil {
		if st := cur.State(); st == practice.Running || st == practice.Paused {
			s.fail(w, errPracticeActive)
			return
		}
	}
	cfg := s.svc.Policy
	cfg.Scenario = label
	cfg.UserID = s.svc.Auth.UserID()
	cfg.Tags = append(append([]string(nil), cfg.Tags...), tags...)

	st := s.svc.State
	deps := practice.Deps{
		Balance:  st.Tokens,
		Debiter:  st.Tokens,
		Recorder: st.Sessions,
		Events:   s.svc.Events,
		Clock:    s.svc.Clock,
		Logger:   s.logger,
	}
	if s.svc.Journal != nil {
		deps.Journal = s.svc.Journal
	}
	if s.svc.Metrics != nil {
		deps.Metrics = s.svc.Metrics
	}
	session, err := practice.NewSession(cfg, deps)
	if err != nil {
		s.fail(w, invalid(err))
		return
	}
	s.practice = session
	s.respondJSON(w, http.StatusCreated, session.Snapshot())
}

// practiceLabel resolves the stored scenario label and journal tags.
func (s *Server) practiceLabel(r *http.Request, req practiceRequest) (string, []string, error) {
	tags := append([]string(nil), req.Tags...)
	if req.DailyChallenge {
		ch := s.svc.State.Challenge
		if ch.Loading() {
			if err := ch.Refetch(r.Context()); err != nil {
				return "", nil, err
			}
		}
		challenge, err := ch.CanStart()
		if err != nil {
			return "", nil, err
		}
		label := firstNonEmpty(challenge.ScenarioType, challenge.Title)
		return label, append(tags, "daily_challenge"), nil
	}
	key := strings.TrimSpace(req.Scenario)
	if key == "" {
		return "", nil, invalid(errors.New("scenario required"))
	}
	sc := s.svc.State.Scenarios
	if sc.Loading() {
		if err := sc.Refetch(r.Context()); err != nil {
			return "", nil, err
		}
	}
	if found, ok := sc.Find(key); ok {
		return found.Title, tags, nil
	}
	return "", nil, invalid(fmt.Errorf("unknown scenario %q", key))
}

func (s *Server) currentPractice() (*practice.Session, error) {
	s.practiceMu.Lock()
	defer s.practiceMu.Unlock()
	if s.practice == nil {
		return nil, errNoPractice
	}
	return s.practice, nil
}

// resetPractice settles a running timer while the user is still signed in
// and forgets it.
func (s *Server) resetPractice(ctx context.Context) {
	s.practiceMu.Lock()
	cur := s.practice
	s.practice = nil
	s.practiceMu.Unlock()
	if cur == nil {
		return
	}
	if st := cur.State(); st == practice.Running || st == practice.Paused {
		if _, err := cur.End(ctx); err != nil {
			s.logger.Printf("settle practice %s: %v", cur.ID(), err)
		}
	}
}

func (s *Server) handlePracticeSnapshot(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentPractice()
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"practice": nil})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"practice": session.Snapshot()})
}

func (s *Server) handlePracticeAction(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentPractice()
	if err != nil {
		s.fail(w, err)
		return
	}
	action := chi.URLParam(r, "action")
	switch action {
	case "start":
		err = session.Start()
	case "pause":
		err = session.Pause()
	case "resume":
		err = session.Resume()
	case "end":
		ctx, cancel := settleContext(r.Context())
		res, endErr := session.End(ctx)
		cancel()
		if endErr != nil {
			s.respondJSON(w, statusFor(endErr), map[string]any{"error": endErr.Error(), "result": res})
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"result": res, "practice": session.Snapshot()})
		return
	default:
		s.fail(w, invalid(fmt.Errorf("unknown practice action %q", action)))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.debugf("practice %s %s", session.ID(), action)
	s.respondJSON(w, http.StatusOK, map[string]any{"practice": session.Snapshot()})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.svc.Journal == nil {
		s.respondError(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, invalid(fmt.Errorf("invalid limit %q", v)))
			return
		}
		limit = n
	}
	uid := s.svc.Auth.UserID()
	entries, err := s.svc.Journal.ListRecent(r.Context(), uid, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	summary, err := s.svc.Journal.Summary(r.Context(), uid)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries, "summary": summary})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
