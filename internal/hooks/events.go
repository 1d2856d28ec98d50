package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names the client-side transitions other components can observe.
type EventType string

const (
	// EventSignedIn fires when the backend reports a new session for a user.
	EventSignedIn EventType = "auth.signed_in"
	// EventSignedOut fires when the session is dropped locally or remotely.
	EventSignedOut EventType = "auth.signed_out"
	// EventTokenRefreshed fires when the access token was rotated.
	EventTokenRefreshed EventType = "auth.token_refreshed"
	// EventBalanceRefreshed fires after a token balance resync.
	EventBalanceRefreshed EventType = "tokens.refreshed"
	// EventSessionCompleted fires once the debit and the session record both succeeded.
	EventSessionCompleted EventType = "practice.completed"
	// EventSessionUnbilled fires when a timed session ended without a durable record.
	EventSessionUnbilled EventType = "practice.unbilled"
)

// Event is what handlers receive.
type Event struct {
	ID         string
	Type       EventType
	OccurredAt time.Time
	UserID     string
	Metadata   map[string]any
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ EventType, userID string, metadata map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		Metadata:   metadata,
	}
}

// Handler reacts to an Event.
type Handler func(context.Context, Event) error

// Dispatcher fans events out to registered handlers in registration order.
// Registrations are explicit: every Register must be paired with the returned
// unregister func once the observer goes away.
type Dispatcher struct {
	mu       sync.RWMutex
	next     uint64
	handlers []registration
}

type registration struct {
	id uint64
	h  Handler
}

// Register adds a handler and returns the func that removes it. Calling the
// returned func more than once is harmless.
func (d *Dispatcher) Register(h Handler) (unregister func()) {
	d.mu.Lock()
	d.next++
	id := d.next
	d.handlers = append(d.handlers, registration{id: id, h: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, r := range d.handlers {
				if r.id == id {
					d.handlers = append(d.handlers[:i], d.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Len reports how many handlers are currently registered.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Emit delivers the event to every handler and joins their errors.
func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.handlers))
	for _, r := range d.handlers {
		handlers = append(handlers, r.h)
	}
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScriptConfig describes an external command fed with each event on stdin.
type ScriptConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
}

// MarshalEvent encodes events for script handlers.
var MarshalEvent = JSONMarshaler

// NewScriptHandler pipes every event, marshalled by MarshalEvent, into cfg.Command.
func NewScriptHandler(cfg ScriptConfig) Handler {
	return func(parentCtx context.Context, evt Event) error {
		if cfg.Command == "" {
			return fmt.Errorf("hooks: command not configured")
		}
		payload, err := MarshalEvent(evt)
		if err != nil {
			return fmt.Errorf("hooks: marshal event: %w", err)
		}

		ctx := parentCtx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parentCtx, cfg.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			env := cmd.Environ()
			for key, val := range cfg.Env {
				env = append(env, fmt.Sprintf("%s=%s", key, val))
			}
			cmd.Env = env
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("hooks: stdin pipe: %w", err)
		}
		go func() {
			defer stdin.Close()
			_, _ = stdin.Write(payload)
		}()
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hooks: command failed: %w", err)
		}
		return nil
	}
}

// JSONMarshaler renders the event as a flat JSON envelope.
func JSONMarshaler(evt Event) ([]byte, error) {
	envelope := struct {
		ID         string         `json:"id"`
		Type       EventType      `json:"type"`
		OccurredAt time.Time      `json:"occurred_at"`
		UserID     string         `json:"user_id"`
		Metadata   map[string]any `json:"metadata"`
	}{
		ID:         evt.ID,
		Type:       evt.Type,
		OccurredAt: evt.OccurredAt,
		UserID:     evt.UserID,
		Metadata:   evt.Metadata,
	}
	return json.Marshal(envelope)
}
