// Package llm is the chat-completions client for the conversation agent.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/varannik/dental-saas/agent"
	"github.com/varannik/dental-saas/config"
	"github.com/varannik/dental-saas/tools"
)

// Client talks to an OpenAI-compatible chat completions endpoint. It
// implements agent.CompletionProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    cfg.OpenAIBaseURL,
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []tools.Spec  `json:"tools,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete asks the provider for the next assistant message, given the
// conversation so far and the declared tool schemas. At most one tool
// call is honored per response.
func (c *Client) Complete(ctx context.Context, messages []agent.Message, specs []tools.Spec) (agent.Message, error) {
	request := completionRequest{
		Model:    c.model,
		Messages: toWire(messages),
		Tools:    specs,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return agent.Message{}, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return agent.Message{}, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return agent.Message{}, fmt.Errorf("failed to send completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return agent.Message{}, fmt.Errorf("completion provider returned %s: %s", resp.Status, body)
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return agent.Message{}, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if completion.Error != nil {
		return agent.Message{}, fmt.Errorf("completion provider error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return agent.Message{}, fmt.Errorf("completion response had no choices")
	}

	return fromWire(completion.Choices[0].Message), nil
}

func toWire(messages []agent.Message) []wireMessage {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.ToolName,
			ToolCallID: m.ToolCallID,
		}
		if m.ToolCall != nil {
			var call wireToolCall
			call.ID = m.ToolCall.ID
			call.Type = "function"
			call.Function.Name = m.ToolCall.Name
			call.Function.Arguments = m.ToolCall.Arguments
			wm.ToolCalls = []wireToolCall{call}
		}
		wire = append(wire, wm)
	}
	return wire
}

func fromWire(wm wireMessage) agent.Message {
	msg := agent.Message{
		Role:    agent.RoleAssistant,
		Content: wm.Content,
	}
	if len(wm.ToolCalls) > 0 {
		call := wm.ToolCalls[0]
		msg.ToolCall = &agent.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return msg
}
