package voice

import (
	"sync"
	"time"
)

// Scripted partner lines.
const (
	Greeting        = "Hi! Ready to practice your conversation skills?"
	ConnectGreeting = "Great! Let's start our conversation. How are you doing today?"
	UserSpeaker     = "You"
)

// Line is one transcript entry.
type Line struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Transcript is the ordered conversation log shown next to the voice UI.
type Transcript struct {
	mu      sync.Mutex
	partner string
	lines   []Line
	muted   bool
	now     func() time.Time
}

// NewTranscript starts a transcript with the partner's greeting.
func NewTranscript(partner string) *Transcript {
	if partner == "" {
		partner = "Alex"
	}
	t := &Transcript{partner: partner, now: time.Now}
	t.add(partner, Greeting)
	return t
}

// Partner is the agent's display name.
func (t *Transcript) Partner() string { return t.partner }

func (t *Transcript) add(speaker, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, Line{Speaker: speaker, Text: text, At: t.now().UTC()})
}

// Lines returns a copy of the transcript.
func (t *Transcript) Lines() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Line(nil), t.lines...)
}

// ToggleMute flips the local mute flag and returns the new value.
func (t *Transcript) ToggleMute() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = !t.muted
	return t.muted
}

// Muted reports the local mute flag.
func (t *Transcript) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// Bind returns callbacks that record into the transcript before calling next.
func (t *Transcript) Bind(next Callbacks) Callbacks {
	return Callbacks{
		OnConnect: func(id string) {
			t.add(t.partner, ConnectGreeting)
			if next.OnConnect != nil {
				next.OnConnect(id)
			}
		},
		OnDisconnect: next.OnDisconnect,
		OnUserTranscript: func(text string) {
			t.add(UserSpeaker, text)
			if next.OnUserTranscript != nil {
				next.OnUserTranscript(text)
			}
		},
		OnAgentResponse: func(text string) {
			t.add(t.partner, text)
			if next.OnAgentResponse != nil {
				next.OnAgentResponse(text)
			}
		},
		OnError: next.OnError,
	}
}
