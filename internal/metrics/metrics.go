package metrics

import (
	"sync"
	"time"
)

// Collector collects counters and exports them in Prometheus text format.
type Collector struct {
	mu sync.RWMutex

	// Daemon API
	totalRequests    map[string]int64 // by route
	totalRequestsDur map[string]int64 // total duration in ms
	requestErrors    map[string]int64 // by route

	// Backend traffic
	remoteCalls   map[string]int64 // by op:target
	remoteErrors  map[string]int64
	remoteLatency map[string]int64 // total latency in ms

	// Practice sessions
	sessionsStarted  int64
	sessionsByResult map[string]int64 // by journal outcome
	secondsDebited   float64
	tokensEstimated  float64

	voiceConnects map[string]int64 // by result

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		totalRequests:    make(map[string]int64),
		totalRequestsDur: make(map[string]int64),
		requestErrors:    make(map[string]int64),
		remoteCalls:      make(map[string]int64),
		remoteErrors:     make(map[string]int64),
		remoteLatency:    make(map[string]int64),
		sessionsByResult: make(map[string]int64),
		voiceConnects:    make(map[string]int64),
		startTime:        time.Now(),
	}
}

// RecordRequest records a daemon API request; status >= 400 counts as an error.
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests[route]++
	c.totalRequestsDur[route] += duration.Milliseconds()
	if status >= 400 {
		c.requestErrors[route]++
	}
}

// RecordRemoteCall records one backend request.
func (c *Collector) RecordRemoteCall(op, target string, duration time.Duration, err error) {
	key := op + ":" + target
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remoteCalls[key]++
	c.remoteLatency[key] += duration.Milliseconds()
	if err != nil {
		c.remoteErrors[key]++
	}
}

// RecordSessionStarted counts a timer entering Running.
func (c *Collector) RecordSessionStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionsStarted++
}

// RecordSessionEnded counts a finished timer by outcome. debited reports
// whether the backend accepted the debit.
func (c *Collector) RecordSessionEnded(outcome string, elapsedSeconds, estimatedTokens float64, debited bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionsByResult[outcome]++
	c.tokensEstimated += estimatedTokens
	if debited {
		c.secondsDebited += elapsedSeconds
	}
}

// RecordVoiceConnect counts a voice session attempt.
func (c *Collector) RecordVoiceConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.voiceConnects["error"]++
		return
	}
	c.voiceConnects["ok"]++
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime           int64
	TotalRequests    map[string]int64
	TotalRequestsDur map[string]int64
	RequestErrors    map[string]int64
	RemoteCalls      map[string]int64
	RemoteErrors     map[string]int64
	RemoteLatency    map[string]int64
	SessionsStarted  int64
	SessionsByResult map[string]int64
	SecondsDebited   float64
	TokensEstimated  float64
	VoiceConnects    map[string]int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:           int64(time.Since(c.startTime).Seconds()),
		TotalRequests:    copyMap(c.totalRequests),
		TotalRequestsDur: copyMap(c.totalRequestsDur),
		RequestErrors:    copyMap(c.requestErrors),
		RemoteCalls:      copyMap(c.remoteCalls),
		RemoteErrors:     copyMap(c.remoteErrors),
		RemoteLatency:    copyMap(c.remoteLatency),
		SessionsStarted:  c.sessionsStarted,
		SessionsByResult: copyMap(c.sessionsByResult),
		SecondsDebited:   c.secondsDebited,
		TokensEstimated:  c.tokensEstimated,
		VoiceConnects:    copyMap(c.voiceConnects),
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
