package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the hosted agent's conversation endpoint.
const DefaultURL = "wss://api.elevenlabs.io/v1/convai/conversation"

const writeTimeout = 10 * time.Second

// Client speaks the agent's JSON websocket protocol.
type Client struct {
	endpoint string
	apiKey   string
	dialer   *websocket.Dialer
	cb       Callbacks
	logger   *log.Logger

	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	speaking       bool
	conversationID string
	lastAgentEvent int64
	ratedEvent     int64
	closing        bool
	done           chan struct{}
}

// NewClient returns a disconnected client. An empty endpoint uses DefaultURL.
func NewClient(endpoint, apiKey string, cb Callbacks) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		dialer:   websocket.DefaultDialer,
		cb:       cb,
		logger:   log.New(log.Writer(), "[rizztempo/voice] ", log.LstdFlags|log.Lmicroseconds),
		status:   StatusDisconnected,
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (c *Client) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Status returns the connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsSpeaking reports whether the agent is currently streaming audio.
func (c *Client) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// ConversationID is assigned by the agent once the session is initiated.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// StartSession connects to agentID and sends vars as dynamic variables.
func (c *Client) StartSession(ctx context.Context, agentID string, vars map[string]any) error {
	if strings.TrimSpace(agentID) == "" {
		return &Error{Op: "start", Err: errors.New("agent id required")}
	}
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return ErrActive
	}
	c.status = StatusConnecting
	c.closing = false
	c.mu.Unlock()

	conn, err := c.dial(ctx, agentID)
	if err == nil {
		init := map[string]any{"type": "conversation_initiation_client_data"}
		if len(vars) > 0 {
			init["dynamic_variables"] = vars
		}
		if werr := c.writeConn(conn, init); werr != nil {
			_ = conn.Close()
			err = werr
		}
	}
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		verr := &Error{Op: "start", Err: err}
		c.fail(verr)
		return verr
	}

	done := make(chan struct{})
	c.mu.Lock()
	if c.closing {
		c.status = StatusDisconnected
		c.closing = false
		c.mu.Unlock()
		_ = conn.Close()
		return &Error{Op: "start", Err: ErrEnded}
	}
	c.conn = conn
	c.status = StatusConnected
	c.speaking = false
	c.lastAgentEvent, c.ratedEvent = 0, 0
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

func (c *Client) dial(ctx context.Context, agentID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid voice url: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("xi-api-key", c.apiKey)
	}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return conn, nil
}

// EndSession closes the connection and waits for the reader to stop.
func (c *Client) EndSession(ctx context.Context) error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		if c.status == StatusConnecting {
			c.status = StatusDisconnecting
			c.closing = true
		}
		c.mu.Unlock()
		return nil
	}
	c.status = StatusDisconnecting
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
	c.writeMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		_ = conn.Close()
		<-done
	case <-time.After(2 * time.Second):
		_ = conn.Close()
		<-done
	}
	return nil
}

// CanSendFeedback reports whether an unrated agent response exists.
func (c *Client) CanSendFeedback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected && c.lastAgentEvent > c.ratedEvent
}

// SendFeedback rates the latest agent response.
func (c *Client) SendFeedback(like bool) error {
	c.mu.Lock()
	if c.status != StatusConnected || c.lastAgentEvent <= c.ratedEvent {
		c.mu.Unlock()
		return &Error{Op: "feedback", Err: errors.New("no response to rate")}
	}
	event := c.lastAgentEvent
	c.ratedEvent = event
	c.mu.Unlock()

	score := "dislike"
	if like {
		score = "like"
	}
	return c.write("feedback", map[string]any{"type": "feedback", "score": score, "event_id": event})
}

// SendText sends a typed user turn.
func (c *Client) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &Error{Op: "text", Err: errors.New("empty message")}
	}
	return c.write("text", map[string]any{"type": "user_message", "text": text})
}

func (c *Client) write(op string, msg any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &Error{Op: op, Err: errors.New("not connected")}
	}
	if err := c.writeConn(conn, msg); err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}

func (c *Client) writeConn(conn *websocket.Conn, msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

type envelope struct {
	Type     string          `json:"type"`
	Metadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event"`
	UserTranscript *struct {
		Text string `json:"user_transcript"`
	} `json:"user_transcription_event"`
	AgentResponse *struct {
		Text    string `json:"agent_response"`
		EventID int64  `json:"event_id"`
	} `json:"agent_response_event"`
	Audio *struct {
		EventID int64 `json:"event_id"`
	} `json:"audio_event"`
	Ping *struct {
		EventID int64 `json:"event_id"`
	} `json:"ping_event"`
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, err)
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Printf("ignoring malformed message: %v", err)
			continue
		}
		c.dispatch(conn, msg)
	}
}

func (c *Client) dispatch(conn *websocket.Conn, msg envelope) {
	switch msg.Type {
	case "conversation_initiation_metadata":
		id := ""
		if msg.Metadata != nil {
			id = msg.Metadata.ConversationID
		}
		c.mu.Lock()
		c.conversationID = id
		c.mu.Unlock()
		if c.cb.OnConnect != nil {
			c.cb.OnConnect(id)
		}
	case "user_transcript":
		c.setSpeaking(false)
		if msg.UserTranscript != nil && c.cb.OnUserTranscript != nil {
			c.cb.OnUserTranscript(msg.UserTranscript.Text)
		}
	case "agent_response":
		if msg.AgentResponse == nil {
			return
		}
		c.mu.Lock()
		if msg.AgentResponse.EventID > c.lastAgentEvent {
			c.lastAgentEvent = msg.AgentResponse.EventID
		}
		c.mu.Unlock()
		if c.cb.OnAgentResponse != nil {
			c.cb.OnAgentResponse(msg.AgentResponse.Text)
		}
	case "audio":
		c.mu.Lock()
		c.speaking = true
		if msg.Audio != nil && msg.Audio.EventID > c.lastAgentEvent {
			c.lastAgentEvent = msg.Audio.EventID
		}
		c.mu.Unlock()
	case "interruption", "agent_response_correction":
		c.setSpeaking(false)
	case "ping":
		if msg.Ping == nil {
			return
		}
		if err := c.writeConn(conn, map[string]any{"type": "pong", "event_id": msg.Ping.EventID}); err != nil {
			c.logger.Printf("pong: %v", err)
		}
	}
}

func (c *Client) setSpeaking(v bool) {
	c.mu.Lock()
	c.speaking = v
	c.mu.Unlock()
}

func (c *Client) finish(conn *websocket.Conn, readErr error) {
	_ = conn.Close()
	c.mu.Lock()
	closing := c.closing
	if c.conn == conn {
		c.conn = nil
		c.status = StatusDisconnected
		c.speaking = false
	}
	c.mu.Unlock()

	if !closing && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure) {
		c.fail(&Error{Op: "read", Err: readErr})
	}
	if c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}
}

func (c *Client) fail(err error) {
	c.logger.Printf("%v", err)
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}
