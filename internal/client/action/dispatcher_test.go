package action

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/screen"
)

type calls struct {
	order []string
}

type navFunc func(ctx context.Context, payload map[string]any) error

func (f navFunc) Navigate(ctx context.Context, payload map[string]any) error { return f(ctx, payload) }

type moduleFunc func(ctx context.Context, moduleID, actionType string, payload map[string]any) (map[string]any, error)

func (f moduleFunc) ExecuteModuleAction(ctx context.Context, moduleID, actionType string, payload map[string]any) (map[string]any, error) {
	return f(ctx, moduleID, actionType, payload)
}

type analyticsFunc func(ctx context.Context, event string, props map[string]any) error

func (f analyticsFunc) Track(ctx context.Context, event string, props map[string]any) error {
	return f(ctx, event, props)
}

func TestDispatchAllRunsEveryActionInOrder(t *testing.T) {
	c := &calls{}
	d := New(
		WithNavigator(navFunc(func(_ context.Context, p map[string]any) error {
			c.order = append(c.order, "navigate:"+p["route"].(string))
			return errors.New("no route")
		})),
		WithModules(moduleFunc(func(_ context.Context, m, a string, p map[string]any) (map[string]any, error) {
			c.order = append(c.order, "module:"+m+"/"+a)
			assert.Equal(t, "s1", p["selectionId"])
			assert.Equal(t, "u1", p["userId"])
			assert.NotContains(t, p, "moduleId")
			return map[string]any{"ok": true}, nil
		})),
		WithAnalytics(analyticsFunc(func(_ context.Context, event string, props map[string]any) error {
			c.order = append(c.order, "track:"+event)
			assert.Equal(t, "home", props["screen"])
			return errors.New("analytics down")
		})),
	)

	err := d.DispatchAll(context.Background(), []screen.Action{
		{Type: screen.ActionNavigate, Payload: map[string]any{"route": "/sports"}},
		{Type: "teleport"},
		{Type: screen.ActionModuleAction, Payload: map[string]any{"moduleId": "betslip", "actionType": "add_selection", "selectionId": "s1"}},
		{Type: screen.ActionAnalyticsTrack, Payload: map[string]any{"event": "tap"}},
		{Type: screen.ActionAPICall, Payload: map[string]any{"url": "/x"}},
	}, Context{ScreenName: "home", NodeID: "cta", UserID: "u1"})

	assert.Equal(t, []string{"navigate:/sports", "module:betslip/add_selection", "track:tap"}, c.order)
	require.Error(t, err)

	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 0, ae.Index)
	assert.ErrorIs(t, err, ErrNoCollaborator, "api_call has no caller")
}

func TestDispatchAllContinuesAfterPanic(t *testing.T) {
	var tracked []string
	d := New(
		WithNavigator(navFunc(func(context.Context, map[string]any) error {
			panic("router not mounted")
		})),
		WithAnalytics(analyticsFunc(func(_ context.Context, event string, _ map[string]any) error {
			tracked = append(tracked, event)
			return nil
		})),
	)

	var err error
	require.NotPanics(t, func() {
		err = d.DispatchAll(context.Background(), []screen.Action{
			{Type: screen.ActionNavigate, Payload: map[string]any{"route": "/live"}},
			{Type: screen.ActionAnalyticsTrack, Payload: map[string]any{"event": "open_live"}},
		}, Context{ScreenName: "home", NodeID: "live"})
	})

	assert.Equal(t, []string{"open_live"}, tracked)
	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 0, ae.Index)
	assert.Equal(t, screen.ActionNavigate, ae.Type)
	assert.Contains(t, ae.Err.Error(), "router not mounted")
}

func TestModuleActionNestedPayload(t *testing.T) {
	var got map[string]any
	d := New(WithModules(moduleFunc(func(_ context.Context, _, _ string, p map[string]any) (map[string]any, error) {
		got = p
		return nil, nil
	})))
	require.NoError(t, d.Dispatch(context.Background(), screen.Action{
		Type:    screen.ActionModuleAction,
		Payload: map[string]any{"moduleId": "casino", "actionType": "launch_game", "payload": map[string]any{"gameId": "g1"}},
	}, Context{}))
	assert.Equal(t, map[string]any{"gameId": "g1"}, got)

	err := d.Dispatch(context.Background(), screen.Action{Type: screen.ActionModuleAction, Payload: map[string]any{"moduleId": "casino"}}, Context{})
	assert.Error(t, err)
}

func TestResultHandlerSeesModuleResult(t *testing.T) {
	var seen map[string]any
	d := New(
		WithModules(moduleFunc(func(context.Context, string, string, map[string]any) (map[string]any, error) {
			return map[string]any{"n": 1}, nil
		})),
		WithResultHandler(func(_ Context, _, _ string, result map[string]any) { seen = result }),
	)
	require.NoError(t, d.Dispatch(context.Background(), screen.Action{
		Type:    screen.ActionModuleAction,
		Payload: map[string]any{"moduleId": "m", "actionType": "a"},
	}, Context{}))
	assert.Equal(t, map[string]any{"n": 1}, seen)
}

func TestHTTPCaller(t *testing.T) {
	var gotMethod, gotHeader string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Trace")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPCaller(srv.URL)
	d := New(WithAPICaller(c))
	err := d.Dispatch(context.Background(), screen.Action{Type: screen.ActionAPICall, Payload: map[string]any{
		"method":  "put",
		"url":     "/promo/claim",
		"body":    map[string]any{"id": "p1"},
		"headers": map[string]any{"X-Trace": "abc"},
	}}, Context{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "abc", gotHeader)
	assert.Equal(t, "p1", gotBody["id"])

	assert.Error(t, c.Call(context.Background(), map[string]any{"url": "/fail"}))
	assert.Error(t, c.Call(context.Background(), map[string]any{}))
}
