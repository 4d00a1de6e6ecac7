// Package tail serves the backoffice live event feed: a WebSocket endpoint
// that broadcasts every relayed integration event envelope to connected
// clients, replaying a bounded ring of recent events on connect.
package tail

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	// defaultReplayEvents bounds the ring replayed to new clients.
	defaultReplayEvents = 256
	// subscriberBuffer is the per-client frame queue; a client that falls
	// this far behind the live feed is evicted.
	subscriberBuffer = 32
)

// Frame is the envelope for every message on the event tail socket.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type helloPayload struct {
	Replayed       int    `json:"replayed"`
	LatestSequence int64  `json:"latest_sequence"`
	ServerTime     string `json:"server_time"`
}

type eventPayload struct {
	Sequence   int64           `json:"sequence"`
	Topic      string          `json:"topic"`
	ObservedAt string          `json:"observed_at"`
	Envelope   json.RawMessage `json:"envelope"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// peer serializes frame writes onto one connection.
type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newPeer(encoder *json.Encoder) *peer {
	return &peer{encoder: encoder}
}

func (p *peer) write(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

type subscriber struct {
	frames chan Frame
}

// Options configures the event tail.
type Options struct {
	// ReplayEvents bounds the ring of recent events replayed to new
	// clients; zero applies the default.
	ReplayEvents int
	// Clock defaults to the wall clock.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Tail fans relayed event envelopes out to WebSocket clients. The relay
// feeds it through Broadcast; slow clients are dropped rather than allowed
// to stall the feed.
type Tail struct {
	replay int
	clock  func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	nextSeq     int64
	ring        []Frame
	subscribers map[*subscriber]struct{}
}

// New builds an event tail hub.
func New(opts Options) *Tail {
	replay := opts.ReplayEvents
	if replay <= 0 {
		replay = defaultReplayEvents
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tail{
		replay:      replay,
		clock:       clock,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Broadcast appends an event envelope to the replay ring and fans it out.
// The signature matches the relay's publish sink.
func (t *Tail) Broadcast(topic string, envelope []byte) {
	if !json.Valid(envelope) {
		t.logger.Warn("event tail dropped non-JSON envelope", "topic", topic)
		return
	}
	// Retained for replay after the caller's buffer is reused.
	retained := append([]byte(nil), envelope...)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	frame := Frame{
		Type: "tail.event",
		Payload: t.marshalPayload(eventPayload{
			Sequence:   t.nextSeq,
			Topic:      topic,
			ObservedAt: t.clock().UTC().Format(time.RFC3339),
			Envelope:   retained,
		}),
	}

	t.ring = append(t.ring, frame)
	if len(t.ring) > t.replay {
		t.ring = t.ring[len(t.ring)-t.replay:]
	}

	for sub := range t.subscribers {
		select {
		case sub.frames <- frame:
		default:
			delete(t.subscribers, sub)
			t.logger.Warn("evicted slow event tail client", "queued", len(sub.frames))
			close(sub.frames)
		}
	}
}

// Subscribers reports the connected client count.
func (t *Tail) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// Handler serves the WebSocket endpoint.
func (t *Tail) Handler() http.Handler {
	wsHandler := websocket.Handler(t.handleConn)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

// subscribe registers a client and snapshots the replay ring under the
// same lock so the live feed resumes exactly where the replay ends.
func (t *Tail) subscribe() (*subscriber, []Frame, int64) {
	sub := &subscriber{frames: make(chan Frame, subscriberBuffer)}

	t.mu.Lock()
	defer t.mu.Unlock()
	replay := make([]Frame, len(t.ring))
	copy(replay, t.ring)
	t.subscribers[sub] = struct{}{}
	return sub, replay, t.nextSeq
}

func (t *Tail) unsubscribe(sub *subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subscribers[sub]; ok {
		delete(t.subscribers, sub)
		close(sub.frames)
	}
}

func (t *Tail) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	client := newPeer(json.NewEncoder(conn))
	sub, replay, latest := t.subscribe()
	defer t.unsubscribe(sub)

	t.logger.Debug("event tail client connected", "subscribers", t.Subscribers())

	_ = client.write(Frame{
		Type: "tail.hello",
		Payload: t.marshalPayload(helloPayload{
			Replayed:       len(replay),
			LatestSequence: latest,
			ServerTime:     t.clock().UTC().Format(time.RFC3339),
		}),
	})
	for _, frame := range replay {
		if err := client.write(frame); err != nil {
			return
		}
	}

	// Live frames queued during the replay flush follow it in order.
	go func() {
		for frame := range sub.frames {
			if err := client.write(frame); err != nil {
				return
			}
		}
	}()

	decoder := json.NewDecoder(conn)
	windowStart := t.clock()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = t.writeError(client, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = t.writeError(client, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := t.clock()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = t.writeError(client, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "tail.ping":
			_ = client.write(Frame{Type: "tail.pong", RequestID: frame.RequestID})
		default:
			_ = t.writeError(client, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (t *Tail) writeError(p *peer, requestID, code, message string) error {
	return p.write(Frame{
		Type:      "tail.error",
		RequestID: requestID,
		Payload: t.marshalPayload(errorEnvelope{
			Error: errorBody{Code: code, Message: message},
		}),
	})
}

func (t *Tail) marshalPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		t.logger.Error("marshal event tail frame payload", "error", err)
		return nil
	}
	return b
}
