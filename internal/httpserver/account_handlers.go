package httpserver

import (
	"net/http"

	"github.com/rizztempo/rizztempo/internal/account"
	"github.com/rizztempo/rizztempo/internal/auth"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/ratelimit"
)

type accountEndpoint struct {
	server *Server
}

func newAccountEndpoint(server *Server) endpoint {
	return &accountEndpoint{server: server}
}

func (e *accountEndpoint) Name() string { return "account" }

func (e *accountEndpoint) Routes() []endpointRoute {
	s := e.server
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/me", Handler: s.handleMe},
		{Method: http.MethodGet, Path: "/profile", Handler: s.handleProfile},
		{Method: http.MethodPatch, Path: "/profile", Handler: s.handleProfileUpdate},
		{Method: http.MethodPost, Path: "/onboarding", Handler: s.handleOnboarding},
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req account.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	out, err := s.svc.Accounts.SignUp(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusCreated
	if out.Pending {
		status = http.StatusAccepted
	}
	s.respondJSON(w, status, out)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req account.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	out, err := s.svc.Accounts.SignIn(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.svc.AuthLimiter != nil {
		s.svc.AuthLimiter.Reset(ratelimit.ClientKey(r))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := settleContext(r.Context())
	defer cancel()
	s.resetPractice(ctx)
	s.closeVoice(ctx)
	if err := s.svc.Accounts.SignOut(r.Context()); err != nil {
		// The local session is gone either way.
		s.logger.Printf("remote sign-out: %v", err)
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := s.svc.Auth.Session()
	if session == nil {
		s.respondError(w, http.StatusUnauthorized, auth.ErrNotSignedIn)
		return
	}
	st := s.svc.State
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user":         session.User,
		"expires_at":   session.ExpiresAt,
		"profile":      st.Profile.Value(),
		"tokens":       balancePayload(st.Tokens.Value()),
		"subscription": st.Subscription.Value(),
		"loading":      st.Profile.Loading() || st.Tokens.Loading(),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile := s.svc.State.Profile
	if r.URL.Query().Get("refresh") == "1" || profile.Loading() {
		if err := profile.Refetch(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"profile": profile.Value()})
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, err)
		return
	}
	if err := patch.Validate(); err != nil {
		s.fail(w, invalid(err))
		return
	}
	updated, err := s.svc.State.Profile.Update(r.Context(), patch)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"profile": updated})
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var req account.Onboarding
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, invalid(err))
		return
	}
	updated, err := s.svc.Accounts.CompleteOnboarding(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"profile": updated})
}
