// Package practice implements the timed practice session: a stopwatch that
// estimates token cost while the user talks and, when the session ends,
// hands the elapsed time to the backend for the authoritative debit.
//
// The estimate is display-only. Only a successful consume_tokens call debits
// the balance, and only after it succeeds is the session record stored.
package practice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rizztempo/rizztempo/internal/backend"
	"github.com/rizztempo/rizztempo/internal/hooks"
	"github.com/rizztempo/rizztempo/internal/ledger"
	"github.com/rizztempo/rizztempo/internal/model"
)

// Timer policy defaults.
const (
	DefaultRate         = 1.0 / 36.0
	DefaultMinBalance   = 1.0
	DefaultTickInterval = 100 * time.Millisecond
)

var (
	// ErrInvalidTransition is returned for an operation the current state forbids.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrInsufficientTokens is returned by Start when the cached balance is below the minimum.
	ErrInsufficientTokens = errors.New("insufficient tokens to start a session")
)

// State of the timer. Ended is terminal.
type State int

const (
	Idle State = iota
	Running
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// BalanceSource yields the locally cached balance.
type BalanceSource interface {
	Value() model.TokenBalance
}

// Debiter asks the backend to consume seconds of practice.
type Debiter interface {
	Consume(ctx context.Context, seconds float64) (backend.Result, error)
}

// Recorder stores the durable session record.
type Recorder interface {
	Add(ctx context.Context, scenarioType string, durationSeconds int) (model.PracticeSession, error)
}

// Journal receives every end outcome.
type Journal interface {
	Record(ctx context.Context, entry ledger.Entry) error
}

// Metrics receives timer counters.
type Metrics interface {
	RecordSessionStarted()
	RecordSessionEnded(outcome string, elapsedSeconds, estimatedTokens float64, debited bool)
}

// Config is the per-session policy.
type Config struct {
	// Scenario is the label stored as scenario_type.
	Scenario string
	UserID   string
	// Rate is tokens per second; zero means DefaultRate.
	Rate float64
	// MinBalance is the total balance required by Start; zero means DefaultMinBalance.
	MinBalance float64
	// TickInterval is the sampling period; zero means DefaultTickInterval.
	TickInterval time.Duration
	// Tags are copied into the journal entry.
	Tags []string
}

// Deps are the collaborators of a session. Balance, Debiter and Recorder are
// required; the rest are optional.
type Deps struct {
	Balance  BalanceSource
	Debiter  Debiter
	Recorder Recorder
	Journal  Journal
	Metrics  Metrics
	Events   *hooks.Dispatcher
	Clock    Clock
	Logger   *log.Logger

	// OnTick receives a snapshot on every sampling tick.
	OnTick func(Snapshot)
	// OnComplete receives the stored record; it runs at most once.
	OnComplete func(model.PracticeSession)
}

// Snapshot is the display view of the timer.
type Snapshot struct {
	ID              string  `json:"id"`
	Scenario        string  `json:"scenario"`
	State           State   `json:"state"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	EstimatedTokens float64 `json:"estimated_tokens"`
	Display         string  `json:"display"`
}

// Result describes how End finished.
type Result struct {
	Outcome         ledger.Outcome         `json:"outcome"`
	ElapsedSeconds  float64                `json:"elapsed_seconds"`
	EstimatedTokens float64                `json:"estimated_tokens"`
	Session         *model.PracticeSession `json:"session,omitempty"`
}

// Session is one timed practice session. It is safe for concurrent use.
type Session struct {
	id   string
	cfg  Config
	deps Deps

	mu        sync.Mutex
	state     State
	start     time.Time     // effective start while Running
	elapsed   time.Duration // frozen value while Paused or Ended
	wasPaused bool
	stop      chan struct{}
}

// NewSession builds an Idle session.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Balance == nil || deps.Debiter == nil || deps.Recorder == nil {
		return nil, errors.New("practice session requires balance, debiter and recorder")
	}
	if cfg.Rate < 0 || cfg.MinBalance < 0 || cfg.TickInterval < 0 {
		return nil, errors.New("practice policy values must not be negative")
	}
	if cfg.Rate == 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.MinBalance == 0 {
		cfg.MinBalance = DefaultMinBalance
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	return &Session{id: uuid.NewString(), cfg: cfg, deps: deps}, nil
}

// ID identifies the session in the journal and events.
func (s *Session) ID() string { return s.id }

// Scenario returns the scenario label.
func (s *Session) Scenario() string { return s.cfg.Scenario }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves Idle to Running if the cached balance allows it.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}
	if total := s.deps.Balance.Value().Total(); total < s.cfg.MinBalance {
		return fmt.Errorf("%w: balance %.2f below %.2f", ErrInsufficientTokens, total, s.cfg.MinBalance)
	}
	s.start = s.deps.Clock.Now()
	s.elapsed = 0
	s.state = Running
	s.startLoopLocked()
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSessionStarted()
	}
	return nil
}

// Pause freezes the elapsed time.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.state)
	}
	s.elapsed = s.liveElapsedLocked()
	s.state = Paused
	s.wasPaused = true
	s.stopLoopLocked()
	return nil
}

// Resume continues from the frozen elapsed time.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.state)
	}
	s.start = s.deps.Clock.Now().Add(-s.elapsed)
	s.state = Running
	s.startLoopLocked()
	return nil
}

// End stops the timer and settles the session with the backend. The state
// becomes Ended before any remote call, so a second End fails with
// ErrInvalidTransition instead of submitting a second debit.
//
// A zero elapsed time makes no remote call. A failed debit or record leaves
// the session Ended without a stored record and returns the remote error
// alongside a Result describing what happened.
func (s *Session) End(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state != Running && s.state != Paused {
		st := s.state
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: end from %s", ErrInvalidTransition, st)
	}
	if s.state == Running {
		s.elapsed = s.liveElapsedLocked()
	}
	s.state = Ended
	s.stopLoopLocked()
	elapsed := s.elapsed
	s.mu.Unlock()

	seconds := elapsed.Seconds()
	res := Result{ElapsedSeconds: seconds, EstimatedTokens: EstimateTokens(seconds, s.cfg.Rate)}

	if elapsed <= 0 {
		res.Outcome = ledger.OutcomeSkipped
		s.settle(ctx, res, nil)
		return res, nil
	}

	if _, err := s.deps.Debiter.Consume(ctx, seconds); err != nil {
		res.Outcome = ledger.OutcomeDebitFailed
		s.settle(ctx, res, err)
		return res, fmt.Errorf("debit practice time: %w", err)
	}

	rec, err := s.deps.Recorder.Add(ctx, s.cfg.Scenario, int(math.Round(seconds)))
	if err != nil {
		res.Outcome = ledger.OutcomeRecordFailed
		s.settle(ctx, res, err)
		return res, fmt.Errorf("record practice session: %w", err)
	}
	res.Outcome = ledger.OutcomeDebited
	res.Session = &rec
	s.settle(ctx, res, nil)
	if s.deps.OnComplete != nil {
		s.deps.OnComplete(rec)
	}
	return res, nil
}

// Snapshot returns the live elapsed time and estimate.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	var elapsed time.Duration
	switch s.state {
	case Running:
		elapsed = s.liveElapsedLocked()
	case Paused, Ended:
		elapsed = s.elapsed
	}
	secs := elapsed.Seconds()
	return Snapshot{
		ID:              s.id,
		Scenario:        s.cfg.Scenario,
		State:           s.state,
		ElapsedSeconds:  secs,
		EstimatedTokens: EstimateTokens(secs, s.cfg.Rate),
		Display:         FormatElapsed(secs),
	}
}

func (s *Session) liveElapsedLocked() time.Duration {
	d := s.deps.Clock.Now().Sub(s.start)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Session) startLoopLocked() {
	stop := make(chan struct{})
	s.stop = stop
	ticker := s.deps.Clock.NewTicker(s.cfg.TickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				s.mu.Lock()
				select {
				case <-stop:
					s.mu.Unlock()
					return
				default:
				}
				snap := s.snapshotLocked()
				s.mu.Unlock()
				if s.deps.OnTick != nil {
					s.deps.OnTick(snap)
				}
			}
		}
	}()
}

func (s *Session) stopLoopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// settle journals, counts and announces an end outcome.
func (s *Session) settle(ctx context.Context, res Result, cause error) {
	debited := res.Outcome == ledger.OutcomeDebited || res.Outcome == ledger.OutcomeRecordFailed
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSessionEnded(string(res.Outcome), res.ElapsedSeconds, res.EstimatedTokens, debited)
	}

	tags := append([]string(nil), s.cfg.Tags...)
	if s.wasPausedSafe() {
		tags = append(tags, "paused")
	}
	memo := ""
	if cause != nil {
		memo = cause.Error()
		s.deps.Logger.Printf("session %s ended as %s: %v", s.id, res.Outcome, cause)
	}
	if s.deps.Journal != nil && s.cfg.UserID != "" {
		err := s.deps.Journal.Record(ctx, ledger.Entry{
			UUID:            s.id,
			UserID:          s.cfg.UserID,
			Scenario:        s.cfg.Scenario,
			ElapsedSeconds:  res.ElapsedSeconds,
			EstimatedTokens: res.EstimatedTokens,
			Outcome:         res.Outcome,
			Tags:            tags,
			Memo:            memo,
			CreatedAt:       s.deps.Clock.Now().UTC(),
		})
		if err != nil {
			s.deps.Logger.Printf("journal session %s: %v", s.id, err)
		}
	}

	meta := map[string]any{
		"session_id":       s.id,
		"scenario":         s.cfg.Scenario,
		"outcome":          string(res.Outcome),
		"elapsed_seconds":  res.ElapsedSeconds,
		"estimated_tokens": res.EstimatedTokens,
	}
	evt := hooks.EventSessionCompleted
	switch res.Outcome {
	case ledger.OutcomeSkipped:
		return
	case ledger.OutcomeDebitFailed, ledger.OutcomeRecordFailed:
		evt = hooks.EventSessionUnbilled
		meta["error"] = memo
	default:
		meta["duration_seconds"] = res.Session.DurationSeconds
	}
	if err := s.deps.Events.Emit(ctx, hooks.NewEvent(evt, s.cfg.UserID, meta)); err != nil {
		s.deps.Logger.Printf("session %s event: %v", s.id, err)
	}
}

func (s *Session) wasPausedSafe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wasPaused
}

// EstimateTokens is the advisory cost of seconds at rate tokens per second.
func EstimateTokens(seconds, rate float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return seconds * rate
}

// FormatElapsed renders seconds as m:ss, truncating fractions.
func FormatElapsed(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int64(seconds)
	return fmt.Sprintf("%d:%02d", whole/60, whole%60)
}
