// Package rizztempo is the embedding surface for UI shells written in Go.
// It re-exports the client core so callers need not import internal packages.
package rizztempo

import (
	"io"

	"github.com/rizztempo/rizztempo/internal/app"
	internalcfg "github.com/rizztempo/rizztempo/internal/config"
	"github.com/rizztempo/rizztempo/internal/model"
	"github.com/rizztempo/rizztempo/internal/practice"
	"github.com/rizztempo/rizztempo/internal/voice"
)

// Config re-exports the parsed configuration.
type Config = internalcfg.Config

// Core is the wired client: auth, cached data, fingerprint and journal.
type Core = app.Core

type (
	Profile         = model.Profile
	TokenBalance    = model.TokenBalance
	PracticeSession = model.PracticeSession
	Scenario        = model.Scenario
	DailyChallenge  = model.DailyChallenge
	Subscription    = model.Subscription
	Plan            = model.Plan

	PracticeConfig = practice.Config
	PracticeDeps   = practice.Deps
	Session        = practice.Session
	Snapshot       = practice.Snapshot

	Conversation   = voice.Conversation
	VoiceCallbacks = voice.Callbacks
	Transcript     = voice.Transcript
)

// LoadConfig reads the layered configuration rooted at root.
func LoadConfig(root string) (Config, error) {
	return internalcfg.Load(root)
}

// Open wires the core; logs go to out with the given component prefix.
func Open(cfg Config, out io.Writer, component string) (*Core, error) {
	return app.Open(cfg, out, component)
}

// NewSession builds an idle practice timer.
func NewSession(cfg PracticeConfig, deps PracticeDeps) (*Session, error) {
	return practice.NewSession(cfg, deps)
}

// NewVoiceClient opens a conversation against the hosted voice agent.
func NewVoiceClient(endpoint, apiKey string, cb VoiceCallbacks) Conversation {
	return voice.NewClient(endpoint, apiKey, cb)
}

// NewTranscript starts a transcript seeded with the partner greeting.
func NewTranscript(partner string) *Transcript {
	return voice.NewTranscript(partner)
}
