package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// HTTPResponder implements Responder against an external completion
// service. The wire format is a minimal prompt-plus-context exchange; the
// service decides model and safety handling.
type HTTPResponder struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

type responderTurn struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

type responderRequest struct {
	Prompt  string          `json:"prompt"`
	Context []responderTurn `json:"context,omitempty"`
}

type responderResponse struct {
	Reply string `json:"reply"`
}

func NewHTTPResponder(endpoint, apiKey string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResponder{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

func (h *HTTPResponder) Reply(ctx context.Context, prompt string, history []domain.ChatMessage) (string, error) {
	turns := make([]responderTurn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, responderTurn{Author: msg.UserName, Content: msg.Content})
	}
	body, err := json.Marshal(responderRequest{Prompt: prompt, Context: turns})
	if err != nil {
		return "", fmt.Errorf("chat: marshal responder request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: build responder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: responder request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat: responder returned status %d", resp.StatusCode)
	}
	var out responderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("chat: decode responder response: %w", err)
	}
	return out.Reply, nil
}
