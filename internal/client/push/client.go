// Package push is the client side of the gateway's websocket push channel.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sdui/internal/condition"
	"sdui/internal/screen"
)

const (
	writeWait = 10 * time.Second

	defaultHeartbeat      = 30 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxAttempts    = 10
	defaultRequestTimeout = 10 * time.Second
	defaultEventBuffer    = 64
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}

var (
	ErrNotRegistered = errors.New("push: not registered")
	ErrDisconnected  = errors.New("push: connection closed")
)

// RemoteError is an {type:"error"} reply from the gateway.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("push: %s: %s", e.Code, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	return target == screen.ErrNotFound && e.Code == "not_found"
}

// Event is one server message as received. Data is left encoded.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("push: %s event has no data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

type Registration struct {
	UserID     string `json:"userId,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Segment    string `json:"userSegment,omitempty"`
}

type Options struct {
	URL          string
	Registration Registration
	Dialer       *websocket.Dialer

	Heartbeat      time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts bounds consecutive failed connects before Run gives up.
	MaxAttempts    int
	RequestTimeout time.Duration
	EventBuffer    int

	// OnState observes every state transition.
	OnState func(State)
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = defaultHeartbeat
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaultMaxBackoff
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
}

// Client keeps one push connection alive. Broadcast events arrive on Events;
// replies to requests are routed to their caller by requestId.
type Client struct {
	opts   Options
	events chan Event

	state atomic.Int32
	seq   atomic.Uint64

	mu       sync.Mutex
	conn     *websocket.Conn
	clientID string
	pending  map[string]chan Event

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	opts.defaults()
	return &Client{
		opts:    opts,
		events:  make(chan Event, opts.EventBuffer),
		pending: make(map[string]chan Event),
	}
}

// Events carries broadcasts and unsolicited replies. It is never closed.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) State() State { return State(c.state.Load()) }

// ClientID is the id assigned at the last successful register.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// Backoff returns the delay before reconnect attempt n (1-based).
func Backoff(n int, initial, ceiling time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := initial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Run connects and reconnects until ctx ends or MaxAttempts consecutive
// connects fail. Giving up leaves the client Disconnected and returns nil.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)
	failures := 0
	for {
		registered, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if registered {
			failures = 0
		}
		failures++
		if failures >= c.opts.MaxAttempts {
			log.Printf("push client: giving up after %d attempts: %v", failures, err)
			return nil
		}
		delay := Backoff(failures, c.opts.InitialBackoff, c.opts.MaxBackoff)
		log.Printf("push client: reconnecting in %s: %v", delay, err)
		c.setState(StateDisconnected)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session runs one connection from dial to close.
func (c *Client) session(ctx context.Context) (registered bool, err error) {
	c.setState(StateConnecting)
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(conn) }()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.failPending()
	}()

	reply, err := c.roundTrip(ctx, "register", c.opts.Registration)
	if err != nil {
		_ = conn.Close()
		<-readErr
		return false, fmt.Errorf("register: %w", err)
	}
	var reg struct {
		ClientID string `json:"clientId"`
	}
	if err := reply.Decode(&reg); err != nil {
		_ = conn.Close()
		<-readErr
		return false, fmt.Errorf("register: %w", err)
	}
	c.mu.Lock()
	c.clientID = reg.ClientID
	c.mu.Unlock()
	c.setState(StateRegistered)

	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			c.writeMu.Unlock()
			_ = conn.Close()
			<-readErr
			return true, ctx.Err()
		case <-ticker.C:
			if err := c.write(conn, envelope{Type: "heartbeat"}); err != nil {
				_ = conn.Close()
				<-readErr
				return true, err
			}
		case err := <-readErr:
			_ = conn.Close()
			return true, err
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		if evt.RequestID != "" && c.deliver(evt) {
			continue
		}
		switch evt.Type {
		case "heartbeat_ack", "analytics_ack":
			continue
		}
		select {
		case c.events <- evt:
		default:
			log.Printf("push client: event buffer full, dropping %s", evt.Type)
		}
	}
}

func (c *Client) deliver(evt Event) bool {
	c.mu.Lock()
	ch, ok := c.pending[evt.RequestID]
	if ok {
		delete(c.pending, evt.RequestID)
	}
	c.mu.Unlock()
	if ok {
		ch <- evt
	}
	return ok
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

type envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func (c *Client) write(conn *websocket.Conn, msg envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// Request sends one message and waits for its correlated reply.
func (c *Client) Request(ctx context.Context, msgType string, data any) (Event, error) {
	if c.State() != StateRegistered {
		return Event{}, ErrNotRegistered
	}
	return c.roundTrip(ctx, msgType, data)
}

func (c *Client) roundTrip(ctx context.Context, msgType string, data any) (Event, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Event{}, ErrDisconnected
	}
	id := fmt.Sprintf("%s-%d", msgType, c.seq.Add(1))
	ch := make(chan Event, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}
	if err := c.write(conn, envelope{Type: msgType, RequestID: id, Data: data}); err != nil {
		cleanup()
		return Event{}, err
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case evt, ok := <-ch:
		if !ok {
			return Event{}, ErrDisconnected
		}
		if evt.Type == "error" {
			re := &RemoteError{}
			if err := evt.Decode(re); err != nil {
				return Event{}, err
			}
			return Event{}, re
		}
		return evt, nil
	case <-ctx.Done():
		cleanup()
		return Event{}, ctx.Err()
	case <-timer.C:
		cleanup()
		return Event{}, fmt.Errorf("push: %s timed out after %s", msgType, c.opts.RequestTimeout)
	}
}

// send writes a message without waiting for a reply.
func (c *Client) send(msgType string, data any) error {
	if c.State() != StateRegistered {
		return ErrNotRegistered
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}
	return c.write(conn, envelope{Type: msgType, Data: data})
}

type actionResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
	Error   string         `json:"error"`
}

// ExecuteModuleAction runs a domain action on the gateway.
func (c *Client) ExecuteModuleAction(ctx context.Context, moduleID, actionType string, payload map[string]any) (map[string]any, error) {
	evt, err := c.Request(ctx, "execute_module_action", map[string]any{
		"moduleId":   moduleID,
		"actionType": actionType,
		"payload":    payload,
	})
	if err != nil {
		return nil, err
	}
	var res actionResult
	if err := evt.Decode(&res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("module action %s/%s: %s", moduleID, actionType, res.Error)
	}
	return res.Result, nil
}

type FlagResult struct {
	Enabled       bool `json:"enabled"`
	ConditionsMet bool `json:"conditionsMet"`
}

func (c *Client) CheckFeatureFlag(ctx context.Context, moduleID, flagName string) (FlagResult, error) {
	evt, err := c.Request(ctx, "check_feature_flag", map[string]any{
		"moduleId": moduleID,
		"flagName": flagName,
	})
	if err != nil {
		return FlagResult{}, err
	}
	var res FlagResult
	err = evt.Decode(&res)
	return res, err
}

// ResolveFlag lets the renderer's condition evaluator ask the gateway about
// featureFlag conditions. The gateway evaluates the flag against the
// registration, not ec.
func (c *Client) ResolveFlag(ctx context.Context, moduleID, flagName string, _ condition.Context) (condition.FlagResult, error) {
	res, err := c.CheckFeatureFlag(ctx, moduleID, flagName)
	if err != nil {
		return condition.FlagResult{}, err
	}
	return condition.FlagResult{Enabled: res.Enabled, ConditionsMet: res.ConditionsMet}, nil
}

type ScreenRequest struct {
	ScreenName      string `json:"screenName"`
	Variant         string `json:"variant,omitempty"`
	ExperimentGroup string `json:"experimentGroup,omitempty"`
	Platform        string `json:"platform,omitempty"`
	Geo             string `json:"geo,omitempty"`
}

// ScreenUpdate is the payload of a screen_updated event.
type ScreenUpdate struct {
	ScreenName string               `json:"screenName"`
	Variant    string               `json:"variant"`
	Config     *screen.ScreenConfig `json:"config"`
}

func (c *Client) RequestScreenUpdate(ctx context.Context, req ScreenRequest) (ScreenUpdate, error) {
	if strings.TrimSpace(req.ScreenName) == "" {
		return ScreenUpdate{}, errors.New("push: screenName is required")
	}
	evt, err := c.Request(ctx, "request_screen_update", req)
	if err != nil {
		return ScreenUpdate{}, err
	}
	var out ScreenUpdate
	err = evt.Decode(&out)
	return out, err
}

// Track forwards an analytics event. Delivery is best effort.
func (c *Client) Track(_ context.Context, event string, properties map[string]any) error {
	return c.send("analytics_event", map[string]any{
		"event":      event,
		"properties": properties,
	})
}
