package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"sdui/internal/condition"
	"sdui/internal/gateway/analytics"
	"sdui/internal/gateway/push"
	screensvc "sdui/internal/gateway/service/screen"
	"sdui/internal/screen"
)

const (
	pushWSWriteWait = 10 * time.Second
	pushWSPongWait  = 60 * time.Second
	pushWSPingEvery = (pushWSPongWait * 9) / 10
	pushWSQueue     = 64

	defaultInboundRate  = 20
	defaultInboundBurst = 40
)

var pushWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Inbound message types.
const (
	msgRegister            = "register"
	msgRequestScreenUpdate = "request_screen_update"
	msgExecuteModuleAction = "execute_module_action"
	msgCheckFeatureFlag    = "check_feature_flag"
	msgAnalyticsEvent      = "analytics_event"
	msgHeartbeat           = "heartbeat"
)

type Registered struct {
	ClientID   string    `json:"clientId"`
	ServerTime time.Time `json:"serverTime"`
}

type screenUpdateRequest struct {
	ScreenName      string `json:"screenName"`
	Variant         string `json:"variant,omitempty"`
	ExperimentGroup string `json:"experimentGroup,omitempty"`
	Platform        string `json:"platform,omitempty"`
	Geo             string `json:"geo,omitempty"`
}

type moduleActionRequest struct {
	ModuleID   string         `json:"moduleId"`
	ActionType string         `json:"actionType"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type ActionResult struct {
	ModuleID   string         `json:"moduleId"`
	ActionType string         `json:"actionType"`
	Success    bool           `json:"success"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type UserActionExecuted struct {
	ModuleID   string `json:"moduleId"`
	ActionType string `json:"actionType"`
	ClientID   string `json:"clientId"`
}

type flagCheckRequest struct {
	ModuleID string `json:"moduleId,omitempty"`
	FlagName string `json:"flagName"`
}

type FlagCheckResult struct {
	ModuleID      string `json:"moduleId,omitempty"`
	FlagName      string `json:"flagName"`
	Enabled       bool   `json:"enabled"`
	ConditionsMet bool   `json:"conditionsMet"`
}

type PushOption func(*PushHandler)

// WithInboundRate limits messages per connection. Zero disables the limit.
func WithInboundRate(perSecond float64, burst int) PushOption {
	return func(h *PushHandler) {
		h.rate = rate.Limit(perSecond)
		h.burst = burst
	}
}

func WithAnalytics(sink analytics.Sink) PushOption {
	return func(h *PushHandler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// PushHandler serves the /ws push channel.
type PushHandler struct {
	svc   *screensvc.Service
	hub   *push.Hub
	sink  analytics.Sink
	rate  rate.Limit
	burst int
}

func NewPushHandler(svc *screensvc.Service, hub *push.Hub, opts ...PushOption) *PushHandler {
	h := &PushHandler{
		svc:   svc,
		hub:   hub,
		sink:  analytics.LogSink{},
		rate:  defaultInboundRate,
		burst: defaultInboundBurst,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PushHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleWS)
}

// wsSender is the hub's handle on one socket. Broadcasts that do not fit the
// queue are dropped; direct replies evict the oldest queued event instead.
type wsSender struct {
	conn   *websocket.Conn
	out    chan push.Event
	closed chan struct{}
	once   sync.Once
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{
		conn:   conn,
		out:    make(chan push.Event, pushWSQueue),
		closed: make(chan struct{}),
	}
}

func (s *wsSender) Send(evt push.Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- evt:
		return true
	default:
		return false
	}
}

func (s *wsSender) reply(evt push.Event) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.out <- evt:
		return
	default:
	}
	select {
	case <-s.out:
	default:
	}
	select {
	case s.out <- evt:
	default:
	}
}

func (s *wsSender) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.conn.Close()
}

// conn is the per-socket state machine: unregistered until a register
// message arrives, then bound to one hub session until the socket closes.
type conn struct {
	h         *PushHandler
	sender    *wsSender
	limiter   *rate.Limiter
	sessionID string
	reg       push.Registration
}

func (h *PushHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := pushWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sender := newWSSender(ws)
	defer sender.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws.SetReadLimit(maxBodyBytes)
	if err := ws.SetReadDeadline(time.Now().Add(pushWSPongWait)); err != nil {
		log.Printf("push ws set read deadline failed: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pushWSPongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pushWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sender.closed:
				return
			case evt := <-sender.out:
				if err := ws.SetWriteDeadline(time.Now().Add(pushWSWriteWait)); err != nil {
					return
				}
				if err := ws.WriteJSON(evt); err != nil {
					return
				}
			case <-ticker.C:
				if err := ws.SetWriteDeadline(time.Now().Add(pushWSWriteWait)); err != nil {
					return
				}
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	c := &conn{h: h, sender: sender}
	if h.rate > 0 {
		c.limiter = rate.NewLimiter(h.rate, h.burst)
	}
	defer func() {
		if c.sessionID != "" {
			h.hub.Unregister(c.sessionID)
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			cancel()
			<-writerDone
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pushWSPongWait))
		c.handle(ctx, raw)
	}
}

func (c *conn) handle(ctx context.Context, raw []byte) {
	if !gjson.ValidBytes(raw) {
		c.fail("", "invalid_argument", "message is not valid json")
		return
	}
	msgType := strings.ToLower(strings.TrimSpace(gjson.GetBytes(raw, "type").String()))
	requestID := gjson.GetBytes(raw, "requestId").String()
	data := []byte(gjson.GetBytes(raw, "data").Raw)

	if c.limiter != nil && !c.limiter.Allow() {
		c.fail(requestID, "rate_limited", "too many messages")
		return
	}
	if msgType == "" {
		c.fail(requestID, "invalid_argument", "type is required")
		return
	}
	if msgType != msgRegister && c.sessionID == "" {
		c.fail(requestID, "not_registered", "register before sending "+msgType)
		return
	}
	if c.sessionID != "" {
		c.h.hub.Touch(c.sessionID)
	}

	switch msgType {
	case msgRegister:
		c.register(data, requestID)
	case msgRequestScreenUpdate:
		c.requestScreen(ctx, data, requestID)
	case msgExecuteModuleAction:
		c.executeAction(ctx, data, requestID)
	case msgCheckFeatureFlag:
		c.checkFlag(ctx, data, requestID)
	case msgAnalyticsEvent:
		c.trackEvent(ctx, data, requestID)
	case msgHeartbeat:
		c.send(push.EventHeartbeatAck, requestID, map[string]any{"serverTime": time.Now().UTC()})
	default:
		c.fail(requestID, "invalid_argument", "unsupported type: "+msgType)
	}
}

func (c *conn) register(data []byte, requestID string) {
	var reg push.Registration
	if len(data) > 0 {
		if err := json.Unmarshal(data, &reg); err != nil {
			c.fail(requestID, "invalid_argument", "invalid register payload")
			return
		}
	}
	if c.sessionID != "" {
		c.h.hub.Unregister(c.sessionID)
	}
	s := c.h.hub.Register(c.sender, reg)
	c.sessionID = s.ID
	c.reg = reg
	c.send(push.EventRegistered, requestID, Registered{ClientID: s.ID, ServerTime: s.ConnectedAt.UTC()})
}

func (c *conn) requestScreen(ctx context.Context, data []byte, requestID string) {
	var in screenUpdateRequest
	if err := json.Unmarshal(data, &in); err != nil || strings.TrimSpace(in.ScreenName) == "" {
		c.fail(requestID, "invalid_argument", "screenName is required")
		return
	}
	res, err := c.h.svc.GetScreen(ctx, screensvc.Request{
		Screen:          in.ScreenName,
		Variant:         in.Variant,
		UserID:          c.reg.UserID,
		ExperimentGroup: in.ExperimentGroup,
		Platform:        in.Platform,
		Segment:         c.reg.Segment,
		Geo:             in.Geo,
		AppVersion:      c.reg.AppVersion,
	})
	if err != nil {
		c.failErr(requestID, err)
		return
	}
	c.send(push.EventScreenUpdated, requestID, screensvc.ScreenUpdated{
		ScreenName: in.ScreenName,
		Variant:    res.Variant,
		Config:     res.Config,
	})
}

func (c *conn) executeAction(ctx context.Context, data []byte, requestID string) {
	var in moduleActionRequest
	if err := json.Unmarshal(data, &in); err != nil || in.ModuleID == "" || in.ActionType == "" {
		c.fail(requestID, "invalid_argument", "moduleId and actionType are required")
		return
	}
	out := ActionResult{ModuleID: in.ModuleID, ActionType: in.ActionType}
	result, err := c.h.svc.Modules().ExecuteModuleAction(ctx, in.ModuleID, in.ActionType, in.Payload)
	if err != nil {
		out.Error = err.Error()
		c.send(push.EventActionResult, requestID, out)
		return
	}
	out.Success = true
	out.Result = result
	c.send(push.EventActionResult, requestID, out)
	c.h.hub.BroadcastUserExcept(c.reg.UserID, c.sessionID, push.NewEvent(push.EventUserActionExecuted, UserActionExecuted{
		ModuleID:   in.ModuleID,
		ActionType: in.ActionType,
		ClientID:   c.sessionID,
	}))
}

func (c *conn) checkFlag(ctx context.Context, data []byte, requestID string) {
	var in flagCheckRequest
	if err := json.Unmarshal(data, &in); err != nil || in.FlagName == "" {
		c.fail(requestID, "invalid_argument", "flagName is required")
		return
	}
	res, err := c.h.svc.Modules().ResolveFlag(ctx, in.ModuleID, in.FlagName, condition.Context{
		Platform:    c.reg.Platform,
		UserSegment: c.reg.Segment,
		UserID:      c.reg.UserID,
		AppVersion:  c.reg.AppVersion,
	})
	if err != nil && !errors.Is(err, screen.ErrNotFound) {
		c.failErr(requestID, err)
		return
	}
	c.send(push.EventFeatureFlagResult, requestID, FlagCheckResult{
		ModuleID:      in.ModuleID,
		FlagName:      in.FlagName,
		Enabled:       res.Enabled,
		ConditionsMet: res.ConditionsMet,
	})
}

func (c *conn) trackEvent(ctx context.Context, data []byte, requestID string) {
	var evt analytics.Event
	if err := json.Unmarshal(data, &evt); err != nil || evt.Name == "" {
		c.fail(requestID, "invalid_argument", "event is required")
		return
	}
	evt.UserID = c.reg.UserID
	evt.ClientID = c.sessionID
	evt.Platform = c.reg.Platform
	evt.ReceivedAt = time.Now().UTC()
	c.h.sink.Track(ctx, evt)
	c.send(push.EventAnalyticsAck, requestID, map[string]any{"event": evt.Name})
}

func (c *conn) send(t push.EventType, requestID string, data any) {
	evt := push.NewEvent(t, data)
	evt.RequestID = requestID
	c.sender.reply(evt)
}

func (c *conn) fail(requestID, code, message string) {
	evt := push.ErrorEvent(code, message)
	evt.RequestID = requestID
	c.sender.reply(evt)
}

func (c *conn) failErr(requestID string, err error) {
	switch {
	case screen.IsValidation(err):
		c.fail(requestID, "validation_failed", err.Error())
	case errors.Is(err, screen.ErrNotFound):
		c.fail(requestID, "not_found", err.Error())
	default:
		log.Printf("push ws: internal error: %v", err)
		c.fail(requestID, "internal", err.Error())
	}
}
