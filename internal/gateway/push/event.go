package push

import (
	"encoding/json"
	"strings"
	"time"
)

type EventType string

// Server to client broadcasts.
const (
	EventScreenUpdated       EventType = "screen_updated"
	EventModuleEnabled       EventType = "module_enabled"
	EventModuleDisabled      EventType = "module_disabled"
	EventModuleConfigUpdated EventType = "module_config_updated"
	EventThemeUpdated        EventType = "theme_updated"
	EventComponentUpdated    EventType = "component_updated"
	EventFeatureFlagUpdated  EventType = "feature_flag_updated"
	EventForceRefresh        EventType = "force_refresh"
)

// Replies to a single connection.
const (
	EventRegistered         EventType = "registered"
	EventActionResult       EventType = "action_result"
	EventUserActionExecuted EventType = "user_action_executed"
	EventFeatureFlagResult  EventType = "feature_flag_result"
	EventAnalyticsAck       EventType = "analytics_ack"
	EventHeartbeatAck       EventType = "heartbeat_ack"
	EventError              EventType = "error"
)

// Event is one server to client message. Data is encoded as is.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// ErrorEvent builds an {type:"error"} reply.
func ErrorEvent(code, message string) Event {
	return NewEvent(EventError, map[string]string{"code": code, "message": message})
}

type ScopeKind string

const (
	ScopeAll      ScopeKind = "all"
	ScopeUser     ScopeKind = "user"
	ScopePlatform ScopeKind = "platform"
	ScopeSegment  ScopeKind = "segment"
)

// Scope names a broadcast group.
type Scope struct {
	Kind  ScopeKind `json:"kind"`
	Value string    `json:"value,omitempty"`
}

func All() Scope { return Scope{Kind: ScopeAll} }
func User(id string) Scope { return Scope{Kind: ScopeUser, Value: id} }
func Platform(p string) Scope { return Scope{Kind: ScopePlatform, Value: p} }
func Segment(seg string) Scope { return Scope{Kind: ScopeSegment, Value: seg} }

// ParseScope accepts "all", "user:<id>", "platform:<p>" and "segment:<s>".
func ParseScope(raw string) (Scope, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, string(ScopeAll)) {
		return All(), true
	}
	kind, value, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(value) == "" {
		return Scope{}, false
	}
	switch ScopeKind(strings.ToLower(kind)) {
	case ScopeUser, ScopePlatform, ScopeSegment:
		return Scope{Kind: ScopeKind(strings.ToLower(kind)), Value: strings.TrimSpace(value)}, true
	}
	return Scope{}, false
}

func (s Scope) group() string {
	if s.Kind == ScopeAll || s.Kind == "" {
		return ""
	}
	return string(s.Kind) + ":" + normalizeGroupValue(s.Kind, s.Value)
}

func (s Scope) String() string {
	if g := s.group(); g != "" {
		return g
	}
	return string(ScopeAll)
}

// platform and segment are matched case-insensitively; user ids are not.
func normalizeGroupValue(kind ScopeKind, v string) string {
	v = strings.TrimSpace(v)
	if kind == ScopeUser {
		return v
	}
	return strings.ToLower(v)
}

func encodeEvent(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}
