// Package api fetches screen configs from the gateway over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sdui/internal/screen"
	"sdui/internal/util/jsonutil"
)

const maxResponseBytes = 4 << 20

// Query carries the resolution inputs of a screen request.
type Query struct {
	Variant         string
	UserID          string
	ExperimentGroup string
	Platform        string
	Segment         string
	Geo             string
	AppVersion      string
}

func (q Query) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val = strings.TrimSpace(val); val != "" {
			v.Set(k, val)
		}
	}
	set("variant", q.Variant)
	set("userId", q.UserID)
	set("experimentGroup", q.ExperimentGroup)
	set("platform", q.Platform)
	set("segment", q.Segment)
	set("geo", q.Geo)
	set("appVersion", q.AppVersion)
	return v
}

// Fetched is one resolved screen as served.
type Fetched struct {
	Config        *screen.ScreenConfig
	Variant       string
	ConfigVersion int64
}

type Client struct {
	HTTP    *http.Client
	BaseURL string
}

func NewClient(baseURL string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FetchScreen resolves name on the gateway. A missing screen is reported as
// screen.ErrNotFound.
func (c *Client) FetchScreen(ctx context.Context, name string, q Query) (*Fetched, error) {
	endpoint := c.BaseURL + "/screen/" + url.PathEscape(name)
	if qs := q.values().Encode(); qs != "" {
		endpoint += "?" + qs
	}
	raw, hdr, err := c.get(ctx, endpoint, "screen", name)
	if err != nil {
		return nil, err
	}
	cfg, err := screen.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode screen %s: %w", name, err)
	}
	out := &Fetched{Config: cfg, Variant: hdr.Get("X-Screen-Variant")}
	if out.Variant == "" {
		out.Variant = screen.DefaultVariant
	}
	if v, err := strconv.ParseInt(hdr.Get("X-Config-Version"), 10, 64); err == nil {
		out.ConfigVersion = v
	}
	return out, nil
}

// ConfigVersion reads the gateway's global ConfigVersion.
func (c *Client) ConfigVersion(ctx context.Context) (int64, error) {
	raw, _, err := c.get(ctx, c.BaseURL+"/config/version", "config", "version")
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(raw, "configVersion").Int(), nil
}

func (c *Client) get(ctx context.Context, endpoint, kind, key string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := jsonutil.ReadBody(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, nil, err
	}
	if err := statusError(resp.StatusCode, raw, kind, key); err != nil {
		return nil, nil, err
	}
	return raw, resp.Header, nil
}

func statusError(status int, raw []byte, kind, key string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return screen.NotFound(kind, key)
	case status == http.StatusUnprocessableEntity:
		var ve screen.ValidationError
		if err := json.Unmarshal(raw, &ve); err == nil && len(ve.Errors) > 0 {
			return &ve
		}
		return screen.Invalid("", "%s", gjson.GetBytes(raw, "message").String())
	}
	msg := gjson.GetBytes(raw, "message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return fmt.Errorf("gateway %s: %d %s", kind, status, msg)
}
