package remote

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"
)

type stubHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return s.handler(req)
}

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}
}

func newTestClient(t *testing.T, handler func(*http.Request) (*http.Response, error)) *Client {
	t.Helper()
	c, err := NewClient("https://project.example.co", "anon-key", &stubHTTPClient{handler: handler})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.SetLogger(log.New(io.Discard, "", 0))
	return c
}

type tokenRow struct {
	UserID    string  `json:"user_id"`
	Permanent float64 `json:"permanent_tokens"`
}

func TestSelectEncodesEqualityFilter(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet || req.URL.Path != "/rest/v1/user_tokens" {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		q := req.URL.Query()
		if q.Get("user_id") != "eq.u-1" || q.Get("select") != "permanent_tokens" || q.Get("is_active") != "is.true" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		if req.Header.Get("apikey") != "anon-key" || req.Header.Get("Authorization") != "Bearer anon-key" {
			t.Fatalf("unexpected auth headers %v", req.Header)
		}
		return jsonResponse(http.StatusOK, `[{"user_id":"u-1","permanent_tokens":6}]`), nil
	})

	var rows []tokenRow
	if err := c.Select(context.Background(), "user_tokens", "permanent_tokens", Filter{"user_id": "u-1", "is_active": true}, &rows); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 1 || rows[0].Permanent != 6 {
		t.Fatalf("unexpected rows %#v", rows)
	}
}

func TestUserTokenIsSentWhenAvailable(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer user-jwt" {
			t.Fatalf("expected user bearer, got %q", req.Header.Get("Authorization"))
		}
		return jsonResponse(http.StatusOK, `[]`), nil
	})
	c.SetTokenSource(staticToken("user-jwt"))
	if err := c.Select(context.Background(), "profiles", "", nil, &[]map[string]any{}); err != nil {
		t.Fatalf("Select: %v", err)
	}
}

func TestInsertUpdateDeleteAskForRepresentation(t *testing.T) {
	var methods []string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		methods = append(methods, req.Method)
		if req.Header.Get("Prefer") != "return=representation" {
			t.Fatalf("missing Prefer header on %s", req.Method)
		}
		if req.Method != http.MethodPost && req.URL.Query().Get("id") != "eq.7" {
			t.Fatalf("missing filter on %s: %s", req.Method, req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `[{"user_id":"u","permanent_tokens":1}]`), nil
	})
	ctx := context.Background()
	var rows []tokenRow
	if err := c.Insert(ctx, "t", map[string]any{"user_id": "u"}, &rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := c.Update(ctx, "t", map[string]any{"a": 1}, Filter{"id": 7}, &rows); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := c.Delete(ctx, "t", Filter{"id": 7}, &rows); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if strings.Join(methods, ",") != "POST,PATCH,DELETE" {
		t.Fatalf("unexpected methods %v", methods)
	}
}

func TestUpdateWithoutFilterIsRejected(t *testing.T) {
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if err := c.Update(context.Background(), "profiles", map[string]any{"x": 1}, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCallPostsNamedArgs(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/rest/v1/rpc/consume_tokens" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"p_seconds":12.5`) {
			t.Fatalf("unexpected body %s", body)
		}
		return jsonResponse(http.StatusOK, `{"success":true}`), nil
	})
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.Call(context.Background(), "consume_tokens", map[string]any{"p_user_id": "u", "p_seconds": 12.5}, &out); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success")
	}
}

func TestErrorsAreUniform(t *testing.T) {
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/broken") {
			return nil, errors.New("connection refused")
		}
		return jsonResponse(http.StatusBadRequest, `{"code":"23505","message":"duplicate key","details":"Key (id) exists"}`), nil
	})
	err := c.Insert(context.Background(), "profiles", map[string]any{"id": "u"}, nil)
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if re.Status != http.StatusBadRequest || re.Message != "duplicate key" || re.Code != "23505" {
		t.Fatalf("unexpected error %+v", re)
	}

	err = c.Select(context.Background(), "broken", "", nil, nil)
	if !IsRemote(err) {
		t.Fatalf("transport failure should be a remote error, got %v", err)
	}
}

func TestLocalFailuresAreRemoteErrors(t *testing.T) {
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	ctx := context.Background()
	err := c.Delete(ctx, "profiles", nil, nil)
	if !IsRemote(err) || !errors.Is(err, ErrNoFilter) {
		t.Fatalf("unfiltered delete: got %T %v", err, err)
	}
	if err := c.Update(ctx, "profiles", map[string]any{"x": 1}, nil, nil); !IsRemote(err) || !errors.Is(err, ErrNoFilter) {
		t.Fatalf("unfiltered update: got %T %v", err, err)
	}
	if err := c.Insert(ctx, "profiles", map[string]any{"bad": make(chan int)}, nil); !IsRemote(err) {
		t.Fatalf("unencodable payload: got %T %v", err, err)
	}
	var missing context.Context
	if err := c.Select(missing, "profiles", "", nil, nil); !IsRemote(err) {
		t.Fatalf("unbuildable request: got %T %v", err, err)
	}
}

func TestObserverSeesCalls(t *testing.T) {
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `[]`), nil
	})
	var seen []CallInfo
	c.SetObserver(func(ci CallInfo) { seen = append(seen, ci) })
	_ = c.Select(context.Background(), "conversation_scenarios", "", nil, &[]map[string]any{})
	if len(seen) != 1 || seen[0].Op != "select" || seen[0].Target != "conversation_scenarios" {
		t.Fatalf("unexpected observations %+v", seen)
	}
}

type checkedRow struct {
	Name string `json:"name"`
}

func (r checkedRow) Validate() error {
	if r.Name == "" {
		return errors.New("name required")
	}
	return nil
}

func TestTableValidatesBeforeWrite(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(http.StatusCreated, `[{"name":"ok"}]`), nil
	})
	table := NewTable[checkedRow](c, "things")
	if _, err := table.Insert(context.Background(), checkedRow{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if calls != 0 {
		t.Fatalf("invalid row must not reach the backend")
	}
	rows, err := table.Insert(context.Background(), checkedRow{Name: "ok"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("Insert: %v %v", rows, err)
	}
	first, err := table.First(context.Background(), Filter{"name": "none"})
	if err != nil || first == nil {
		t.Fatalf("First: %v %v", first, err)
	}
}
