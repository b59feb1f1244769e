package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPCaller performs api_call actions. The payload carries method, url,
// body and headers. Retries are left to the caller.
type HTTPCaller struct {
	Client  *http.Client
	BaseURL string
}

func NewHTTPCaller(baseURL string) *HTTPCaller {
	return &HTTPCaller{
		Client:  &http.Client{Timeout: 10 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *HTTPCaller) Call(ctx context.Context, payload map[string]any) error {
	url, _ := payload["url"].(string)
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("api_call: url is required")
	}
	if strings.HasPrefix(url, "/") && c.BaseURL != "" {
		url = c.BaseURL + url
	}
	method, _ := payload["method"].(string)
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if b, ok := payload["body"]; ok && b != nil {
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("api_call: encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("api_call: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := payload["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api_call %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("api_call %s %s: status %d", method, url, resp.StatusCode)
	}
	return nil
}
