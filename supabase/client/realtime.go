package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// ChangeHandler receives one row change.
type ChangeHandler func(ChangeEvent)

// ChangeEvent is a Postgres row change delivered over Realtime.
type ChangeEvent struct {
	Schema    string
	Table     string
	Type      string // INSERT, UPDATE or DELETE
	Record    gjson.Result
	OldRecord gjson.Result
	CommitAt  string
}

// RealtimeClient subscribes to Postgres changes over the Phoenix websocket.
type RealtimeClient struct {
	url               string
	heartbeatInterval time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	topics   map[string][]ChangeHandler
	ref      int
	done     chan struct{}
	finished chan struct{}
}

// NewRealtimeClient derives the websocket URL from the project URL.
func NewRealtimeClient(projectURL, apiKey string) (*RealtimeClient, error) {
	u, err := url.Parse(strings.TrimSuffix(projectURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("realtime url scheme %q not supported", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	return &RealtimeClient{
		url:               u.String(),
		heartbeatInterval: 30 * time.Second,
		topics:            make(map[string][]ChangeHandler),
	}, nil
}

// Realtime builds a RealtimeClient for the same project.
func (c *Client) Realtime() (*RealtimeClient, error) {
	return NewRealtimeClient(c.baseURL, c.apiKey)
}

// TopicFor returns the channel topic for changes on schema.table.
func TopicFor(schema, table string) string {
	if schema == "" {
		schema = "public"
	}
	return "realtime:" + schema + ":" + table
}

// Connect dials the websocket and starts the reader and heartbeat loops.
// Channels joined before Connect are joined once the socket is up.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("realtime dial: %w", err)
	}
	r.conn = conn
	r.done = make(chan struct{})
	r.finished = make(chan struct{})

	for topic := range r.topics {
		if err := r.joinLocked(topic); err != nil {
			conn.Close()
			r.conn = nil
			return err
		}
	}

	go r.read(conn, r.done, r.finished)
	go r.heartbeat(r.done)
	return nil
}

// Close ends the session.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	conn := r.conn
	if conn == nil {
		r.mu.Unlock()
		return nil
	}
	close(r.done)
	finished := r.finished
	r.conn = nil
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.mu.Unlock()

	conn.Close()
	<-finished
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("realtime close: %w", err)
	}
	return nil
}

// Subscribe registers handler for changes on schema.table and joins the
// channel if the socket is connected.
func (r *RealtimeClient) Subscribe(schema, table string, handler ChangeHandler) error {
	topic := TopicFor(schema, table)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, joined := r.topics[topic]
	r.topics[topic] = append(r.topics[topic], handler)
	if joined || r.conn == nil {
		return nil
	}
	return r.joinLocked(topic)
}

func (r *RealtimeClient) nextRef() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

func (r *RealtimeClient) joinLocked(topic string) error {
	ref := r.nextRef()
	msg := map[string]any{
		"topic":    topic,
		"event":    "phx_join",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime join %s: %w", topic, err)
	}
	return nil
}

func (r *RealtimeClient) read(conn *websocket.Conn, done <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}
		r.dispatch(message)
	}
}

func (r *RealtimeClient) dispatch(message []byte) {
	if !gjson.ValidBytes(message) {
		return
	}
	msg := gjson.ParseBytes(message)
	topic := msg.Get("topic").String()
	payload := msg.Get("payload")
	change := ChangeEvent{
		Schema:    payload.Get("schema").String(),
		Table:     payload.Get("table").String(),
		Type:      payload.Get("type").String(),
		Record:    payload.Get("record"),
		OldRecord: payload.Get("old_record"),
		CommitAt:  payload.Get("commit_timestamp").String(),
	}
	switch change.Type {
	case "INSERT", "UPDATE", "DELETE":
	default:
		return
	}

	r.mu.Lock()
	handlers := append([]ChangeHandler(nil), r.topics[topic]...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(change)
	}
}

func (r *RealtimeClient) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				_ = r.conn.WriteJSON(map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     r.nextRef(),
				})
			}
			r.mu.Unlock()
		}
	}
}
