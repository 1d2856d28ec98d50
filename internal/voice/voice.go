// Package voice is the client side of the hosted conversational-voice agent.
// Audio capture and playback belong to the agent SDK on the device; this
// package carries the session lifecycle, text events and feedback.
package voice

import (
	"context"
	"errors"
)

// Status is the connection state of a conversation.
type Status string

const (
	StatusDisconnected  Status = "disconnected"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
)

// ErrActive is returned by StartSession while a session is open.
var ErrActive = errors.New("voice session already active")

// ErrEnded is returned by StartSession when EndSession ran during the dial.
var ErrEnded = errors.New("voice session ended while connecting")

// Error wraps every failure coming from the voice agent.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "voice " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// IsVoiceError reports whether err came from the voice agent.
func IsVoiceError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Callbacks receive conversation events. Any field may be nil.
type Callbacks struct {
	OnConnect        func(conversationID string)
	OnDisconnect     func()
	OnUserTranscript func(text string)
	OnAgentResponse  func(text string)
	OnError          func(err error)
}

// Conversation is one agent session.
type Conversation interface {
	StartSession(ctx context.Context, agentID string, vars map[string]any) error
	EndSession(ctx context.Context) error
	Status() Status
	IsSpeaking() bool
}

// FeedbackSender rates the agent's latest response.
type FeedbackSender interface {
	CanSendFeedback() bool
	SendFeedback(like bool) error
}

// TextSender sends a typed user turn instead of speech.
type TextSender interface {
	SendText(text string) error
}

// FeedbackSenderOf returns the feedback capability of conv when it has one
// and feedback is currently accepted.
func FeedbackSenderOf(conv Conversation) (FeedbackSender, bool) {
	fs, ok := conv.(FeedbackSender)
	if !ok || !fs.CanSendFeedback() {
		return nil, false
	}
	return fs, true
}

// TextSenderOf returns the typed-input capability of conv, if any.
func TextSenderOf(conv Conversation) (TextSender, bool) {
	ts, ok := conv.(TextSender)
	return ts, ok
}
