// Package agent runs the bounded tool-calling conversation state machine.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/varannik/dental-saas/session"
	"github.com/varannik/dental-saas/tools"
)

// Fallback is the answer returned when no final assistant message could
// be produced within the round budget.
const Fallback = "I'm sorry, I couldn't generate a response at this time."

const systemPrompt = `You are an AI assistant for a dental clinic. Your job is to help staff manage
appointments, retrieve patient information, and assist with other administrative tasks.
Respond in a friendly, professional manner as if speaking to dental staff.
Keep your responses concise and focused on the task at hand.`

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a provider request to invoke one named capability. ID is
// assigned by the provider and echoed back on the tool-result message.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in the conversational sequence for a turn.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCall   *ToolCall `json:"tool_call,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

// CompletionProvider produces the next assistant message, optionally
// carrying a single tool call, given the conversation so far.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []Message, specs []tools.Spec) (Message, error)
}

// State of the turn state machine.
type State int

const (
	Deciding State = iota
	ExecutingTool
	Done
)

func (s State) String() string {
	switch s {
	case Deciding:
		return "deciding"
	case ExecutingTool:
		return "executing_tool"
	case Done:
		return "done"
	}
	return "unknown"
}

// Orchestrator drives one conversational turn per Invoke call. State is
// rehydrated from the session store and discarded when the turn ends.
type Orchestrator struct {
	provider  CompletionProvider
	table     *tools.Table
	sessions  *session.Store
	maxRounds int
	logger    *slog.Logger

	// Trace, when set, observes every state transition. Used by tests.
	Trace func(from, to State)
}

// New creates an orchestrator. maxRounds bounds the number of
// deciding/executing round trips within a single turn.
func New(provider CompletionProvider, table *tools.Table, sessions *session.Store, maxRounds int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		table:     table,
		sessions:  sessions,
		maxRounds: maxRounds,
		logger:    logger.With("component", "agent"),
	}
}

func (o *Orchestrator) transition(from, to State) State {
	if o.Trace != nil {
		o.Trace(from, to)
	}
	return to
}

// Invoke runs the state machine for one turn and returns the content of
// the final assistant message, or the fallback answer if none was
// produced. Provider and tool failures degrade rather than propagate;
// only context cancellation surfaces as an error.
func (o *Orchestrator) Invoke(ctx context.Context, messages []Message, sessionID string) (string, error) {
	seq := o.seed(ctx, messages, sessionID)

	state := Deciding
	rounds := 0

	for state != Done {
		if err := ctx.Err(); err != nil {
			return Fallback, err
		}

		reply, err := o.provider.Complete(ctx, seq, o.table.Specs())
		if err != nil {
			o.logger.Error("completion provider failed", "session_id", sessionID, "error", err)
			o.transition(state, Done)
			return Fallback, nil
		}
		seq = append(seq, reply)

		if reply.ToolCall == nil {
			o.transition(state, Done)
			if reply.Content == "" {
				return Fallback, nil
			}
			return reply.Content, nil
		}

		if rounds >= o.maxRounds {
			o.logger.Warn("tool round budget exhausted", "session_id", sessionID, "rounds", rounds)
			o.transition(state, Done)
			return Fallback, nil
		}
		rounds++

		state = o.transition(state, ExecutingTool)
		seq = append(seq, o.executeTool(ctx, *reply.ToolCall))
		state = o.transition(state, Deciding)
	}

	return Fallback, nil
}

// executeTool dispatches the requested capability and folds the outcome,
// success or failure, into a tool-result message so the conversation can
// continue either way.
func (o *Orchestrator) executeTool(ctx context.Context, call ToolCall) Message {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return toolErrorMessage(call, fmt.Errorf("invalid tool arguments: %w", err))
		}
	}

	result, err := o.table.Dispatch(ctx, call.Name, args)
	if err != nil {
		o.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return toolErrorMessage(call, err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return toolErrorMessage(call, fmt.Errorf("could not encode tool result: %w", err))
	}
	return Message{Role: RoleTool, ToolName: call.Name, ToolCallID: call.ID, Content: string(payload)}
}

func toolErrorMessage(call ToolCall, err error) Message {
	return Message{
		Role:       RoleTool,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Content:    fmt.Sprintf("Error executing tool %s: %v", call.Name, err),
	}
}

// seed builds the initial message sequence: the system prompt, prior
// session history, then the caller's messages for this turn.
func (o *Orchestrator) seed(ctx context.Context, messages []Message, sessionID string) []Message {
	seq := []Message{{Role: RoleSystem, Content: systemPrompt}}

	if sessionID != "" && o.sessions != nil {
		history, err := o.sessions.History(ctx, sessionID)
		if err != nil {
			o.logger.Error("could not load session history", "session_id", sessionID, "error", err)
		}
		for _, h := range history {
			seq = append(seq,
				Message{Role: RoleUser, Content: h.Transcript},
				Message{Role: RoleAssistant, Content: h.Response},
			)
		}
	}

	return append(seq, messages...)
}
