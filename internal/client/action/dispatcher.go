package action

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"sdui/internal/screen"
)

// Context is where an action fired from.
type Context struct {
	ScreenName string
	Variant    string
	NodeID     string
	UserID     string
}

type Navigator interface {
	Navigate(ctx context.Context, payload map[string]any) error
}

type ModuleExecutor interface {
	ExecuteModuleAction(ctx context.Context, moduleID, actionType string, payload map[string]any) (map[string]any, error)
}

type APICaller interface {
	Call(ctx context.Context, payload map[string]any) error
}

type Analytics interface {
	Track(ctx context.Context, event string, properties map[string]any) error
}

// ErrNoCollaborator is returned when the action's collaborator is not wired.
var ErrNoCollaborator = errors.New("no collaborator for action")

// ActionError is one failed action of a list.
type ActionError struct {
	Index int
	Type  screen.ActionType
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

type Option func(*Dispatcher)

func WithNavigator(n Navigator) Option { return func(d *Dispatcher) { d.nav = n } }
func WithModules(m ModuleExecutor) Option { return func(d *Dispatcher) { d.modules = m } }
func WithAPICaller(a APICaller) Option { return func(d *Dispatcher) { d.api = a } }
func WithAnalytics(a Analytics) Option { return func(d *Dispatcher) { d.analytics = a } }
func WithResultHandler(fn ResultFunc) Option { return func(d *Dispatcher) { d.onResult = fn } }

// ResultFunc observes module action results.
type ResultFunc func(ac Context, moduleID, actionType string, result map[string]any)

// Dispatcher routes action descriptors to their collaborators by type.
type Dispatcher struct {
	nav       Navigator
	modules   ModuleExecutor
	api       APICaller
	analytics Analytics
	onResult  ResultFunc
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one action. Unknown types are logged and ignored, and
// analytics failures never surface.
func (d *Dispatcher) Dispatch(ctx context.Context, a screen.Action, ac Context) error {
	switch a.Type {
	case screen.ActionNavigate:
		if d.nav == nil {
			return ErrNoCollaborator
		}
		return d.nav.Navigate(ctx, screen.CloneMap(a.Payload))
	case screen.ActionModuleAction:
		return d.moduleAction(ctx, a.Payload, ac)
	case screen.ActionAPICall:
		if d.api == nil {
			return ErrNoCollaborator
		}
		return d.api.Call(ctx, screen.CloneMap(a.Payload))
	case screen.ActionAnalyticsTrack:
		d.track(ctx, a.Payload, ac)
		return nil
	default:
		log.Printf("action: ignoring unknown action type %q on %s/%s", a.Type, ac.ScreenName, ac.NodeID)
		return nil
	}
}

// DispatchAll runs actions in order. Each runs regardless of earlier
// failures or panics; the failures are joined.
func (d *Dispatcher) DispatchAll(ctx context.Context, actions []screen.Action, ac Context) error {
	var errs []error
	for i, a := range actions {
		if err := d.dispatchSafe(ctx, a, ac); err != nil {
			log.Printf("action: %s/%s action %d (%s) failed: %v", ac.ScreenName, ac.NodeID, i, a.Type, err)
			errs = append(errs, &ActionError{Index: i, Type: a.Type, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) dispatchSafe(ctx context.Context, a screen.Action, ac Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Dispatch(ctx, a, ac)
}

func (d *Dispatcher) moduleAction(ctx context.Context, payload map[string]any, ac Context) error {
	if d.modules == nil {
		return ErrNoCollaborator
	}
	moduleID, _ := payload["moduleId"].(string)
	actionType, _ := payload["actionType"].(string)
	moduleID, actionType = strings.TrimSpace(moduleID), strings.TrimSpace(actionType)
	if moduleID == "" || actionType == "" {
		return errors.New("module_action needs moduleId and actionType")
	}

	var args map[string]any
	if inner, ok := payload["payload"].(map[string]any); ok {
		args = screen.CloneMap(inner)
	} else {
		args = screen.CloneMap(payload)
		delete(args, "moduleId")
		delete(args, "actionType")
	}
	if ac.UserID != "" {
		if _, ok := args["userId"]; !ok {
			if args == nil {
				args = make(map[string]any)
			}
			args["userId"] = ac.UserID
		}
	}

	result, err := d.modules.ExecuteModuleAction(ctx, moduleID, actionType, args)
	if err != nil {
		return err
	}
	if d.onResult != nil {
		d.onResult(ac, moduleID, actionType, result)
	}
	return nil
}

func (d *Dispatcher) track(ctx context.Context, payload map[string]any, ac Context) {
	if d.analytics == nil {
		return
	}
	event, _ := payload["event"].(string)
	if event == "" {
		event = "tap"
	}
	props := screen.CloneMap(payload)
	delete(props, "event")
	if props == nil {
		props = make(map[string]any)
	}
	if ac.ScreenName != "" {
		props["screen"] = ac.ScreenName
	}
	if ac.NodeID != "" {
		props["nodeId"] = ac.NodeID
	}
	if err := d.analytics.Track(ctx, event, props); err != nil {
		log.Printf("action: analytics %s dropped: %v", event, err)
	}
}
