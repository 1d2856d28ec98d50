package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rizztempo/rizztempo/internal/voice"
)

var (
	errVoiceDisabled   = errors.New("voice agent not configured")
	errNoConversation  = errors.New("no voice conversation")
	errNoFeedback      = errors.New("feedback is not available right now")
	errTextUnsupported = errors.New("voice agent does not accept text input")
)

type voiceEndpoint struct {
	server *Server
}

func newVoiceEndpoint(server *Server) endpoint {
	return &voiceEndpoint{server: server}
}

func (e *voiceEndpoint) Name() string { return "voice" }

func (e *voiceEndpoint) Routes() []endpointRoute {
	s := e.server
	return []endpointRoute{
		{Method: http.MethodGet, Path: "/voice", Handler: s.handleVoiceStatus},
		{Method: http.MethodPost, Path: "/voice/start", Handler: s.handleVoiceStart},
		{Method: http.MethodPost, Path: "/voice/end", Handler: s.handleVoiceEnd},
		{Method: http.MethodPost, Path: "/voice/feedback", Handler: s.handleVoiceFeedback},
		{Method: http.MethodPost, Path: "/voice/text", Handler: s.handleVoiceText},
		{Method: http.MethodPost, Path: "/voice/mute", Handler: s.handleVoiceMute},
	}
}

func (s *Server) voicePayload() map[string]any {
	s.voiceMu.Lock()
	conv, tr := s.conv, s.transcript
	s.voiceMu.Unlock()
	payload := map[string]any{"status": voice.StatusDisconnected}
	if conv == nil {
		return payload
	}
	_, canRate := voice.FeedbackSenderOf(conv)
	payload["status"] = conv.Status()
	payload["speaking"] = conv.IsSpeaking()
	payload["can_send_feedback"] = canRate
	payload["partner"] = tr.Partner()
	payload["muted"] = tr.Muted()
	payload["transcript"] = tr.Lines()
	return payload
}

func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.voicePayload())
}

func (s *Server) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	if s.svc.Voice == nil {
		s.respondError(w, http.StatusServiceUnavailable, errVoiceDisabled)
		return
	}
	var req struct {
		AgentID   string         `json:"agent_id"`
		Variables map[string]any `json:"variables"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, err)
			return
		}
	}
	agentID := firstNonEmpty(req.AgentID, s.svc.VoiceAgentID)
	if strings.TrimSpace(agentID) == "" {
		s.fail(w, invalid(errors.New("agent_id required")))
		return
	}

	s.voiceMu.Lock()
	if s.conv != nil && s.conv.Status() != voice.StatusDisconnected {
		s.voiceMu.Unlock()
		s.fail(w, voice.ErrActive)
		return
	}
	tr := voice.NewTranscript(s.svc.PartnerName)
	conv := s.svc.Voice(tr.Bind(voice.Callbacks{
		OnDisconnect: func() { s.debugf("voice conversation closed") },
		OnError:      func(err error) { s.logger.Printf("voice: %v", err) },
	}))
	s.conv, s.transcript = conv, tr
	s.voiceMu.Unlock()

	vars := map[string]any{"partner_name": tr.Partner()}
	if cur, err := s.currentPractice(); err == nil {
		vars["scenario"] = cur.Scenario()
	}
	for k, v := range req.Variables {
		vars[k] = v
	}
	err := conv.StartSession(r.Context(), agentID, vars)
	if s.svc.Metrics != nil {
		s.svc.Metrics.RecordVoiceConnect(err)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.voicePayload())
}

func (s *Server) handleVoiceEnd(w http.ResponseWriter, r *http.Request) {
	s.voiceMu.Lock()
	conv := s.conv
	s.voiceMu.Unlock()
	if conv == nil {
		s.fail(w, errNoConversation)
		return
	}
	if err := conv.EndSession(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.voicePayload())
}

func (s *Server) handleVoiceFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Like *bool `json:"like"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Like == nil {
		s.fail(w, invalid(errors.New("like required")))
		return
	}
	s.voiceMu.Lock()
	conv := s.conv
	s.voiceMu.Unlock()
	if conv == nil {
		s.fail(w, errNoConversation)
		return
	}
	fs, ok := voice.FeedbackSenderOf(conv)
	if !ok {
		s.fail(w, errNoFeedback)
		return
	}
	if err := fs.SendFeedback(*req.Like); err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleVoiceText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.voiceMu.Lock()
	conv := s.conv
	s.voiceMu.Unlock()
	if conv == nil {
		s.fail(w, errNoConversation)
		return
	}
	ts, ok := voice.TextSenderOf(conv)
	if !ok {
		s.fail(w, errTextUnsupported)
		return
	}
	if err := ts.SendText(req.Text); err != nil {
		s.fail(w, err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleVoiceMute(w http.ResponseWriter, r *http.Request) {
	s.voiceMu.Lock()
	tr := s.transcript
	s.voiceMu.Unlock()
	if tr == nil {
		s.fail(w, errNoConversation)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"muted": tr.ToggleMute()})
}

// closeVoice ends any open conversation; used on sign-out and shutdown.
func (s *Server) closeVoice(ctx context.Context) {
	s.voiceMu.Lock()
	conv := s.conv
	s.conv, s.transcript = nil, nil
	s.voiceMu.Unlock()
	if conv != nil && conv.Status() != voice.StatusDisconnected {
		if err := conv.EndSession(ctx); err != nil {
			s.logger.Printf("end voice session: %v", err)
		}
	}
}
