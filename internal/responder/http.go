// Package responder calls the external AI service used by "ai" automation rules.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP posts the rule prompt and the customer's message to an AI service and returns
// its answer.
type HTTP struct {
	URL    string
	Client *http.Client
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{URL: url, Client: &http.Client{Timeout: timeout}}
}

type request struct {
	Prompt  string `json:"prompt"`
	Message string `json:"message"`
}

type response struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

func (h *HTTP) Respond(ctx context.Context, prompt, message string) (string, error) {
	data, err := json.Marshal(request{Prompt: prompt, Message: message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode responder reply (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("responder error %d: %s", resp.StatusCode, out.Error)
	}
	return out.Answer, nil
}
