// Package auth manages the signed-in session against the backend's auth
// endpoints: sign-up, password sign-in, refresh and sign-out. The session is
// persisted in local storage and observers are notified of every change.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/kvstore"
	"github.com/rizztempo/rizztempo/internal/remote"
	"github.com/rizztempo/rizztempo/internal/version"
)

// SessionKey is the storage key of the persisted session.
const SessionKey = "rizztempo:auth_session"

// refreshLeeway is how early before expiry the access token is renewed.
const refreshLeeway = time.Minute

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in")

// User is the authenticated identity.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the credential pair issued at sign-in.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is past (or within leeway of) expiry.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// SignUpResult carries the created user and, when the backend confirms
// sign-ups immediately, the new session.
type SignUpResult struct {
	User    User
	Session *Session
}

// Listener observes session changes. session is nil after sign-out.
type Listener func(ctx context.Context, event hooks.EventType, session *Session)

// Manager owns the process-wide auth session.
type Manager struct {
	baseURL    *url.URL
	anonKey    string
	httpClient remote.HTTPClient
	store      kvstore.Store
	dispatcher *hooks.Dispatcher
	logger     *log.Logger
	now        func() time.Time

	mu      sync.RWMutex
	session *Session
	loading bool
}

// NewManager builds a manager that reuses the remote client's endpoint, key
// and transport.
func NewManager(client *remote.Client, store kvstore.Store, dispatcher *hooks.Dispatcher) *Manager {
	if dispatcher == nil {
		dispatcher = &hooks.Dispatcher{}
	}
	return &Manager{
		baseURL:    client.BaseURL(),
		anonKey:    client.AnonKey(),
		httpClient: client.HTTP(),
		store:      store,
		dispatcher: dispatcher,
		logger:     log.New(log.Writer(), "[rizztempo/auth] ", log.LstdFlags|log.Lmicroseconds),
		now:        time.Now,
		loading:    true,
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (m *Manager) SetLogger(logger *log.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Restore loads the persisted session, if any. It ends the initial loading
// phase regardless of the outcome.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	defer m.setLoading(false)
	if m.store == nil {
		return nil, nil
	}
	raw, err := m.store.Get(ctx, SessionKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		m.logger.Printf("discarding unreadable session: %v", err)
		_ = m.store.Delete(ctx, SessionKey)
		return nil, nil
	}
	m.mu.Lock()
	m.session = &s
	m.mu.Unlock()
	return &s, nil
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// UserID returns the signed-in user id or "".
func (m *Manager) UserID() string {
	if s := m.Session(); s != nil {
		return s.User.ID
	}
	return ""
}

// Loading reports whether the initial restore has not finished yet.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Subscribe registers fn for session changes. The returned function must be
// called to stop delivery.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	return m.dispatcher.Register(func(ctx context.Context, evt hooks.Event) error {
		switch evt.Type {
		case hooks.EventSignedIn, hooks.EventSignedOut, hooks.EventTokenRefreshed:
			fn(ctx, evt.Type, m.Session())
		}
		return nil
	})
}

// SignUp creates an account. phone is stored in the user metadata as
// phone_number when non-empty.
func (m *Manager) SignUp(ctx context.Context, email, password, phone string) (SignUpResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return SignUpResult{}, errors.New("email and password required")
	}
	body := map[string]any{"email": email, "password": password}
	if strings.TrimSpace(phone) != "" {
		body["data"] = map[string]any{"phone_number": phone}
	}
	var resp tokenResponse
	if err := m.post(ctx, "auth/v1/signup", nil, body, &resp); err != nil {
		return SignUpResult{}, err
	}
	if resp.AccessToken == "" {
		// Email confirmation pending: the body is the user itself.
		user := resp.User
		if user.ID == "" {
			user = User{ID: resp.ID, Email: resp.Email, Phone: resp.Phone, UserMetadata: resp.UserMetadata}
		}
		return SignUpResult{User: user}, nil
	}
	s := m.sessionFrom(resp)
	if err := m.setSession(ctx, s, hooks.EventSignedIn); err != nil {
		return SignUpResult{}, err
	}
	return SignUpResult{User: s.User, Session: s}, nil
}

// SignIn exchanges email and password for a session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.New("email and password required")
	}
	var resp tokenResponse
	q := url.Values{"grant_type": {"password"}}
	if err := m.post(ctx, "auth/v1/token", q, map[string]string{"email": email, "password": password}, &resp); err != nil {
		return nil, err
	}
	s := m.sessionFrom(resp)
	if err := m.setSession(ctx, s, hooks.EventSignedIn); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh renews the access token with the refresh token.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	cur := m.Session()
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNotSignedIn
	}
	var resp tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := m.post(ctx, "auth/v1/token", q, map[string]string{"refresh_token": cur.RefreshToken}, &resp); err != nil {
		return nil, err
	}
	s := m.sessionFrom(resp)
	if s.User.ID == "" {
		s.User = cur.User
	}
	if err := m.setSession(ctx, s, hooks.EventTokenRefreshed); err != nil {
		return nil, err
	}
	return s, nil
}

// SignOut revokes the session remotely and always clears it locally.
func (m *Manager) SignOut(ctx context.Context) error {
	cur := m.Session()
	if cur == nil {
		return nil
	}
	remoteErr := m.postWithToken(ctx, "auth/v1/logout", nil, nil, nil, cur.AccessToken)
	if remoteErr != nil {
		m.logger.Printf("remote sign-out failed: %v", remoteErr)
	}
	if err := m.setSession(ctx, nil, hooks.EventSignedOut); err != nil {
		return err
	}
	return remoteErr
}

// AccessToken implements remote.TokenSource. It refreshes an expiring token
// and returns "" when nobody is signed in.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	cur := m.Session()
	if cur == nil {
		return "", nil
	}
	if cur.Expired(m.now(), refreshLeeway) && cur.RefreshToken != "" {
		s, err := m.Refresh(ctx)
		if err != nil {
			return "", err
		}
		return s.AccessToken, nil
	}
	return cur.AccessToken, nil
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) setSession(ctx context.Context, s *Session, evt hooks.EventType) error {
	m.mu.Lock()
	m.session = s
	m.loading = false
	m.mu.Unlock()

	if m.store != nil {
		var err error
		if s == nil {
			err = m.store.Delete(ctx, SessionKey)
		} else {
			var raw []byte
			if raw, err = json.Marshal(s); err == nil {
				err = m.store.Set(ctx, SessionKey, string(raw))
			}
		}
		if err != nil {
			m.logger.Printf("persist session: %v", err)
		}
	}

	userID := ""
	if s != nil {
		userID = s.User.ID
	}
	if err := m.dispatcher.Emit(ctx, hooks.NewEvent(evt, userID, nil)); err != nil {
		m.logger.Printf("auth listeners: %v", err)
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`

	// Present when sign-up returns the bare user.
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (m *Manager) sessionFrom(resp tokenResponse) *Session {
	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		User:         resp.User,
	}
	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		s.ExpiresAt = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	claims, err := ParseClaims(resp.AccessToken)
	if err != nil {
		m.logger.Printf("access token claims: %v", err)
		return s
	}
	if s.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.UTC()
	}
	if s.User.ID == "" {
		s.User.ID = claims.Subject
	}
	if s.User.Email == "" {
		s.User.Email = claims.Email
	}
	return s
}

// Claims is the subset of access-token claims the client reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the access token without verifying its signature; the
// backend verifies it on every request.
func ParseClaims(token string) (Claims, error) {
	var c Claims
	if token == "" {
		return c, errors.New("empty token")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return c, fmt.Errorf("parse access token: %w", err)
	}
	return c, nil
}

func (m *Manager) post(ctx context.Context, path string, query url.Values, payload any, out any) error {
	return m.postWithToken(ctx, path, query, payload, out, "")
}

func (m *Manager) postWithToken(ctx context.Context, path string, query url.Values, payload any, out any, token string) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	rel := &url.URL{Path: path}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL.ResolveReference(rel).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", m.anonKey)
	req.Header.Set("Authorization", "Bearer "+firstNonEmpty(token, m.anonKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &remote.Error{Message: err.Error()}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &remote.Error{Message: fmt.Sprintf("read response: %v", err), Status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return remote.DecodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &remote.Error{Message: fmt.Sprintf("decode auth response: %v", err), Status: resp.StatusCode}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
