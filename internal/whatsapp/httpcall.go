package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxHTTPCallBody caps how much of a configured endpoint's response is read.
const maxHTTPCallBody = 64 << 10

// HTTPCall is an outbound request configured on a flow node.
type HTTPCall struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// ExecuteHTTPCall performs call and returns the response body. Non-2xx statuses are errors
// carrying the body so callers can surface them.
func (c *Client) ExecuteHTTPCall(ctx context.Context, call HTTPCall) (string, error) {
	if call.URL == "" {
		return "", fmt.Errorf("missing url")
	}
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if call.Body != "" {
		body = strings.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return "", err
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}
	if call.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPCallBody))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return string(respBody), nil
}
