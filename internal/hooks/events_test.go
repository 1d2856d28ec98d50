package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDispatcherEmitJoinsErrors(t *testing.T) {
	d := &Dispatcher{}
	var sequence []string
	d.Register(func(ctx context.Context, evt Event) error {
		sequence = append(sequence, "first:"+string(evt.Type))
		return nil
	})
	d.Register(func(ctx context.Context, evt Event) error {
		sequence = append(sequence, "second:"+evt.Metadata["scenario"].(string))
		return errors.New("second handler failed")
	})

	err := d.Emit(context.Background(), NewEvent(EventSessionCompleted, "user-1", map[string]any{"scenario": "Coffee Shop"}))
	if err == nil || !strings.Contains(err.Error(), "second handler failed") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(sequence) != 2 || sequence[0] != "first:"+string(EventSessionCompleted) || sequence[1] != "second:Coffee Shop" {
		t.Fatalf("unexpected sequence %v", sequence)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	d := &Dispatcher{}
	calls := 0
	unregister := d.Register(func(context.Context, Event) error {
		calls++
		return nil
	})
	_ = d.Emit(context.Background(), NewEvent(EventSignedIn, "u", nil))
	unregister()
	unregister()
	_ = d.Emit(context.Background(), NewEvent(EventSignedOut, "u", nil))
	if calls != 1 {
		t.Fatalf("expected one delivery, got %d", calls)
	}
	if d.Len() != 0 {
		t.Fatalf("expected no handlers left, got %d", d.Len())
	}
}

func TestNilDispatcherEmit(t *testing.T) {
	var d *Dispatcher
	if err := d.Emit(context.Background(), NewEvent(EventSignedIn, "u", nil)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewScriptHandlerRunsCommand(t *testing.T) {
	MarshalEvent = JSONMarshaler

	evt := NewEvent(EventSessionUnbilled, "42", map[string]any{"elapsed_seconds": 12.5})
	handler := NewScriptHandler(ScriptConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcessScriptHandler", "--"},
		Env: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
			"HOOK_EXPECT_ID":         evt.ID,
			"HOOK_EXPECT_TYPE":       string(evt.Type),
		},
		Timeout: 5 * time.Second,
	})
	if err := handler(context.Background(), evt); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
}

func TestHelperProcessScriptHandler(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	var payload struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		io.WriteString(os.Stderr, "decode error: "+err.Error())
		os.Exit(2)
	}
	if payload.ID != os.Getenv("HOOK_EXPECT_ID") {
		io.WriteString(os.Stderr, "unexpected id")
		os.Exit(3)
	}
	if payload.Type != os.Getenv("HOOK_EXPECT_TYPE") {
		io.WriteString(os.Stderr, "unexpected type")
		os.Exit(4)
	}
	os.Exit(0)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when enabled without script path")
	}
	cfg.ScriptPath = "/tmp/hook.sh"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.BuildScriptHandler() == nil {
		t.Fatalf("expected handler when enabled")
	}
	if (Config{}).BuildScriptHandler() != nil {
		t.Fatalf("expected nil handler when disabled")
	}
}
