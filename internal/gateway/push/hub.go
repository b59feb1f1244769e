package push

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultStaleAfter = 90 * time.Second
	DefaultSweepEvery = 30 * time.Second
)

// Sender is the send-capable handle a session owns. Send must not block; it
// reports false when the event was dropped.
type Sender interface {
	Send(evt Event) bool
	Close() error
}

// Registration is what a client announces in its register message.
type Registration struct {
	UserID     string `json:"userId,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Segment    string `json:"userSegment,omitempty"`
}

type Session struct {
	ID          string
	UserID      string
	DeviceID    string
	AppVersion  string
	Platform    string
	Segment     string
	ConnectedAt time.Time

	sender       Sender
	lastActivity time.Time
}

func (s *Session) groups() []string {
	var out []string
	if s.UserID != "" {
		out = append(out, User(s.UserID).group())
	}
	if s.Platform != "" {
		out = append(out, Platform(s.Platform).group())
	}
	if s.Segment != "" {
		out = append(out, Segment(s.Segment).group())
	}
	return out
}

// Publisher forwards broadcasts to other instances.
type Publisher interface {
	Publish(ctx context.Context, scope Scope, evt Event) error
}

// Hub tracks registered sessions and their broadcast groups. Delivery
// iterates the group and sends to each handle without blocking.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	groups   map[string]map[string]*Session

	staleAfter time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	relay   Publisher
	metrics *hubMetrics
}

type HubOption func(*Hub)

func WithStaleAfter(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.staleAfter = d
		}
	}
}

func WithSweepEvery(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.sweepEvery = d
		}
	}
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions:   make(map[string]*Session),
		groups:     make(map[string]map[string]*Session),
		staleAfter: DefaultStaleAfter,
		sweepEvery: DefaultSweepEvery,
		now:        time.Now,
		metrics:    newHubMetrics(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetRelay attaches a cross-instance publisher. Call before serving.
func (h *Hub) SetRelay(p Publisher) {
	h.relay = p
}

// Register creates a session for sender and joins its groups.
func (h *Hub) Register(sender Sender, reg Registration) *Session {
	now := h.now()
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       strings.TrimSpace(reg.UserID),
		DeviceID:     strings.TrimSpace(reg.DeviceID),
		AppVersion:   strings.TrimSpace(reg.AppVersion),
		Platform:     strings.TrimSpace(reg.Platform),
		Segment:      strings.TrimSpace(reg.Segment),
		ConnectedAt:  now,
		sender:       sender,
		lastActivity: now,
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	for _, g := range s.groups() {
		members := h.groups[g]
		if members == nil {
			members = make(map[string]*Session)
			h.groups[g] = members
		}
		members[s.ID] = s
	}
	h.mu.Unlock()
	h.metrics.sessionOpened()
	return s
}

// Unregister removes the session and its group memberships. It does not
// close the sender.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	_, ok := h.removeLocked(id)
	h.mu.Unlock()
	if ok {
		h.metrics.sessionClosed()
	}
	return ok
}

func (h *Hub) removeLocked(id string) (*Session, bool) {
	s, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	delete(h.sessions, id)
	for _, g := range s.groups() {
		members := h.groups[g]
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, g)
		}
	}
	return s, true
}

// Touch records activity for the session.
func (h *Hub) Touch(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if ok {
		s.lastActivity = h.now()
	}
	return ok
}

func (h *Hub) Session(id string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast delivers evt to the scope on this instance and forwards it to
// the relay when one is attached. It returns the local delivery count.
func (h *Hub) Broadcast(ctx context.Context, scope Scope, evt Event) int {
	n := h.Deliver(scope, evt)
	if h.relay != nil {
		if err := h.relay.Publish(ctx, scope, evt); err != nil {
			log.Printf("push: relay publish %s %s failed: %v", evt.Type, scope, err)
		}
	}
	return n
}

// Deliver sends evt to the scope on this instance only.
func (h *Hub) Deliver(scope Scope, evt Event) int {
	return h.deliver(h.targets(scope, ""), evt)
}

// BroadcastUserExcept delivers to the user's sessions other than exceptID.
func (h *Hub) BroadcastUserExcept(userID, exceptID string, evt Event) int {
	if strings.TrimSpace(userID) == "" {
		return 0
	}
	return h.deliver(h.targets(User(userID), exceptID), evt)
}

// SendTo delivers to one session.
func (h *Hub) SendTo(id string, evt Event) bool {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver([]*Session{s}, evt) == 1
}

func (h *Hub) targets(scope Scope, except string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var src map[string]*Session
	if g := scope.group(); g == "" {
		src = h.sessions
	} else {
		src = h.groups[g]
	}
	out := make([]*Session, 0, len(src))
	for id, s := range src {
		if id == except {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (h *Hub) deliver(targets []*Session, evt Event) int {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = h.now().UTC()
	}
	n := 0
	for _, s := range targets {
		if s.sender == nil {
			continue
		}
		if s.sender.Send(evt) {
			n++
			continue
		}
		h.metrics.dropped(evt.Type)
	}
	h.metrics.delivered(evt.Type, n)
	return n
}

// Sweep evicts sessions idle for longer than the staleness window and
// closes their connections. It returns the evicted ids.
func (h *Hub) Sweep(now time.Time) []string {
	h.mu.Lock()
	var stale []*Session
	for id, s := range h.sessions {
		if now.Sub(s.lastActivity) > h.staleAfter {
			if removed, ok := h.removeLocked(id); ok {
				stale = append(stale, removed)
			}
		}
	}
	h.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		h.metrics.sessionClosed()
		ids = append(ids, s.ID)
		if s.sender != nil {
			if err := s.sender.Close(); err != nil {
				log.Printf("push: close stale session %s: %v", s.ID, err)
			}
		}
	}
	if len(ids) > 0 {
		log.Printf("push: evicted %d stale session(s)", len(ids))
	}
	return ids
}

// RunSweeper sweeps at a fixed interval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(h.now())
		}
	}
}
