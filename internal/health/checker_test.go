package health

import (
	"context"
	"errors"
	"testing"

	"github.com/rizztempo/rizztempo/internal/testutil"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckAllHealthy(t *testing.T) {
	backend := testutil.NewBackend()
	backend.On("GET /auth/v1/health", 200, `{"name":"GoTrue"}`)
	c := New(Config{
		BackendURL: "https://project.example.co/",
		AnonKey:    "anon",
		HTTPClient: backend,
		Stores:     map[string]Pinger{"state": pinger{}, "journal": pinger{}},
	})
	status := c.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", status)
	}
	if len(status.Components) != 3 || status.Components[0].Name != "backend" || status.Components[1].Name != "journal" {
		t.Fatalf("unexpected components %+v", status.Components)
	}
	if !backend.Called("GET /auth/v1/health") {
		t.Fatalf("backend probe not sent: %v", backend.Calls())
	}
}

func TestBackendOutageDegrades(t *testing.T) {
	backend := testutil.NewBackend()
	backend.On("GET /auth/v1/health", 503, `{"message":"down"}`)
	c := New(Config{BackendURL: "https://project.example.co", HTTPClient: backend, Stores: map[string]Pinger{"state": pinger{}}})
	if got := c.Check(context.Background()).Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
}

func TestStoreFailureIsUnhealthy(t *testing.T) {
	c := New(Config{Stores: map[string]Pinger{"journal": pinger{err: errors.New("database is locked")}}})
	status := c.Check(context.Background())
	if status.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", status.Status)
	}
	if status.Components[0].Error != "database is locked" {
		t.Fatalf("error not reported: %+v", status.Components[0])
	}
	if last := c.LastStatus(); last.Status != StatusUnhealthy {
		t.Fatalf("LastStatus should reflect the last check, got %s", last.Status)
	}
}

func TestLastStatusBeforeFirstCheck(t *testing.T) {
	if got := New(Config{}).LastStatus().Status; got != StatusHealthy {
		t.Fatalf("expected healthy before any check, got %s", got)
	}
}
