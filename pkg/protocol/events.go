// Package protocol names the wire vocabulary the conversation supervisor
// emits to and accepts from its caller: event type strings, method names,
// and the typed event envelopes carried over the event-per-record stream.
package protocol

import "time"

// EventType is the discriminator carried by every event emitted on a
// session's output stream.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventAssistant         EventType = "assistant"
	EventPermissionRequest EventType = "permission_request"
	EventAskUserQuestion   EventType = "ask_user_question"
	EventResult            EventType = "result"
	EventError             EventType = "error"
)

// Method names the supervisor-facing calls a caller can make against a
// live or suspended session.
type Method string

const (
	MethodStartTurn               Method = "start_turn"
	MethodContinueWithAnswer      Method = "continue_with_answer"
	MethodContinueWithPermission  Method = "continue_with_permission"
	MethodInterrupt               Method = "interrupt"
)

// Event is the envelope every record on a session's output stream shares.
// SessionID is empty only on the very first event of a brand-new session,
// before the model agent's init event assigns one.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// SessionStartPayload accompanies the first event of a brand-new session.
type SessionStartPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
}

// ContentBlockKind discriminates the typed content blocks that make up an
// assistant message, matching the data model's content_blocks[] shape.
type ContentBlockKind string

const (
	BlockText       ContentBlockKind = "text"
	BlockToolUse    ContentBlockKind = "tool_use"
	BlockToolResult ContentBlockKind = "tool_result"
	BlockImage      ContentBlockKind = "image"
	BlockDocument   ContentBlockKind = "document"
)

// ContentBlock is one typed element of an assistant or user message.
type ContentBlock struct {
	Kind       ContentBlockKind `json:"kind"`
	Text       string           `json:"text,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
	ToolUseID  string           `json:"tool_use_id,omitempty"`
	ToolInput  map[string]any   `json:"tool_input,omitempty"`
	ToolOutput string           `json:"tool_output,omitempty"`
	IsError    bool             `json:"is_error,omitempty"`
	MediaURI   string           `json:"media_uri,omitempty"`
}

// AssistantPayload carries streamed assistant content, which the supervisor
// both forwards to the caller and accumulates into the pending message.
type AssistantPayload struct {
	Blocks []ContentBlock `json:"blocks"`
}

// PermissionRequestPayload is forwarded to the caller unchanged; the
// suspended hook resolves out-of-band via continue_with_permission.
type PermissionRequestPayload struct {
	RequestID string         `json:"request_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	Reason    string         `json:"reason"`
}

// AskUserQuestionPayload terminates the turn awaiting continue_with_answer.
type AskUserQuestionPayload struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices,omitempty"`
}

// ResultPayload ends a turn.
type ResultPayload struct {
	SessionID string        `json:"session_id"`
	Duration  time.Duration `json:"duration"`
	CostUSD   float64       `json:"cost_usd,omitempty"`
	NumTurns  int           `json:"num_turns"`
}

// ErrorPayload carries a terminal, non-recoverable turn failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PermissionAcknowledgedPayload answers a continue_with_permission call.
type PermissionAcknowledgedPayload struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
}
