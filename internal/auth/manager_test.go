package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/kvstore"
	"github.com/rizztempo/rizztempo/internal/logging"
	"github.com/rizztempo/rizztempo/internal/remote"
)

type stubHTTPClient struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handler  func(*http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()
	return s.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newManager(t *testing.T, stub *stubHTTPClient, store kvstore.Store, d *hooks.Dispatcher) *Manager {
	t.Helper()
	client, err := remote.NewClient("https://project.example.co", "anon", stub)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	m := NewManager(client, store, d)
	m.SetLogger(logging.Discard())
	return m
}

func TestSignInPersistsAndNotifies(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, "user-1", exp)
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/auth/v1/logout" {
			return jsonResponse(204, ""), nil
		}
		if req.URL.Path != "/auth/v1/token" || req.URL.Query().Get("grant_type") != "password" {
			t.Fatalf("unexpected request %s", req.URL)
		}
		return jsonResponse(200, `{"access_token":"`+token+`","refresh_token":"r1","token_type":"bearer"}`), nil
	}}
	store := kvstore.NewMemory()
	d := &hooks.Dispatcher{}
	m := newManager(t, stub, store, d)

	var seen []hooks.EventType
	var seenUser string
	unsubscribe := m.Subscribe(func(_ context.Context, evt hooks.EventType, s *Session) {
		seen = append(seen, evt)
		if s != nil {
			seenUser = s.User.ID
		}
	})

	s, err := m.SignIn(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if s.User.ID != "user-1" || !s.ExpiresAt.Equal(exp) {
		t.Fatalf("claims not applied: %+v", s)
	}
	if len(seen) != 1 || seen[0] != hooks.EventSignedIn || seenUser != "user-1" {
		t.Fatalf("unexpected notifications %v %q", seen, seenUser)
	}
	raw, err := store.Get(context.Background(), SessionKey)
	if err != nil || !strings.Contains(raw, "r1") {
		t.Fatalf("session not persisted: %q %v", raw, err)
	}

	unsubscribe()
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("listener called after unsubscribe")
	}
	if m.Session() != nil {
		t.Fatalf("session should be cleared")
	}
	if _, err := store.Get(context.Background(), SessionKey); err != kvstore.ErrNotFound {
		t.Fatalf("persisted session should be removed, got %v", err)
	}
}

func TestSignUpSendsPhoneMetadata(t *testing.T) {
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"id":"user-2","email":"b@example.com"}`), nil
	}}
	m := newManager(t, stub, kvstore.NewMemory(), nil)
	res, err := m.SignUp(context.Background(), "b@example.com", "pw", "+15550100")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if res.Session != nil || res.User.ID != "user-2" {
		t.Fatalf("unexpected result %+v", res)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(stub.bodies[0]), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	data, _ := body["data"].(map[string]any)
	if data["phone_number"] != "+15550100" {
		t.Fatalf("phone metadata missing: %v", body)
	}
	if m.Session() != nil {
		t.Fatalf("unconfirmed sign-up must not create a session")
	}
}

func TestSignInErrorIsRemoteError(t *testing.T) {
	stub := &stubHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return jsonResponse(400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`), nil
	}}
	m := newManager(t, stub, nil, nil)
	_, err := m.SignIn(context.Background(), "a@example.com", "bad")
	var re *remote.Error
	if !errors.As(err, &re) || re.Message != "Invalid login credentials" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestAccessTokenRefreshesWhenExpiring(t *testing.T) {
	fresh := signedToken(t, "user-1", time.Now().Add(time.Hour))
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Query().Get("grant_type") != "refresh_token" {
			t.Fatalf("unexpected grant %s", req.URL)
		}
		return jsonResponse(200, `{"access_token":"`+fresh+`","refresh_token":"r2","expires_in":3600}`), nil
	}}
	store := kvstore.NewMemory()
	old := Session{AccessToken: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(10 * time.Second), User: User{ID: "user-1"}}
	raw, _ := json.Marshal(old)
	_ = store.Set(context.Background(), SessionKey, string(raw))

	m := newManager(t, stub, store, nil)
	if !m.Loading() {
		t.Fatalf("manager should start loading")
	}
	if _, err := m.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if m.Loading() {
		t.Fatalf("restore should end loading")
	}
	tok, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if tok != fresh || m.Session().RefreshToken != "r2" {
		t.Fatalf("token not refreshed")
	}
}

func TestAccessTokenAnonymous(t *testing.T) {
	m := newManager(t, &stubHTTPClient{}, nil, nil)
	tok, err := m.AccessToken(context.Background())
	if err != nil || tok != "" {
		t.Fatalf("expected empty token, got %q %v", tok, err)
	}
	if _, err := m.Refresh(context.Background()); err != ErrNotSignedIn {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}
