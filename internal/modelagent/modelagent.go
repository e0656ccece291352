// Package modelagent names the narrow collaborator interface the
// conversation supervisor drives: the model-driven subprocess itself is
// out of scope (spec §1), but the supervisor still needs a concrete seam
// to start it, stream its events, and interrupt it — the same way the
// teacher's Loop depends on providers.Provider rather than talking to an
// LLM backend directly.
package modelagent

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/hooks"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// EventKind discriminates the events a running model agent emits on its
// own stream, distinct from (and narrower than) protocol.EventType: the
// model agent never emits permission_request or session_start itself —
// those are fusion-layer concepts the supervisor derives from init/assistant.
type EventKind string

const (
	EventInit      EventKind = "init"
	EventAssistant EventKind = "assistant"
	EventResult    EventKind = "result"
	EventError     EventKind = "error"
)

// Event is one record on a model agent's raw event stream.
type Event struct {
	Kind      EventKind
	SessionID string // populated from EventInit onward
	Blocks    []protocol.ContentBlock
	Result    *ResultInfo
	Err       error
}

// ResultInfo carries the terminal accounting a model agent reports when a
// turn finishes.
type ResultInfo struct {
	Duration time.Duration
	CostUSD  float64
	NumTurns int
}

// MCPServerDescriptor is a resolved launch descriptor for one MCP server,
// the shape internal/mcpservers hands to the model agent.
type MCPServerDescriptor struct {
	Name      string
	Transport string
	Connected bool
}

// StartOptions carries every option enumerated in spec.md §6 that the
// supervisor has resolved before starting (or resuming) a turn.
type StartOptions struct {
	WorkDir           string
	SettingSources    []string // "project", "user"
	AllowedTools      []string
	AllowedSkillNames []string
	PluginInstallPaths []string
	MCPServers        []MCPServerDescriptor
	Sandbox           *config.SandboxSettings
	PermissionMode    store.PermissionMode
	Model             string
	SystemPrompt      string

	// ResumeSessionID is non-empty when this call continues an existing
	// session (continue_with_answer) rather than starting a fresh one.
	ResumeSessionID string

	// Hooks is the pre-tool policy chain the model agent must run before
	// executing any tool call (spec.md §4.7 step 2 "installs hooks"); the
	// hook pipeline itself lives in the supervisor, not the model agent,
	// so it is handed across this seam rather than reimplemented per
	// model-agent backend.
	Hooks *hooks.Chain
	// SessionKeyFunc returns the session key hooks.Input.SessionID should
	// carry for the *current* tool call: the shared session context's
	// value mutates once the model assigns a real session id (spec.md §9),
	// so the model agent must call this at each tool call rather than
	// capture a snapshot.
	SessionKeyFunc func() string
}

// UserInput is the content handed to the model agent at turn start.
type UserInput struct {
	Text   string
	Blocks []protocol.ContentBlock
}

// Handle is a live model agent run: the reader side of its event stream,
// plus the ability to ask it to stop.
type Handle interface {
	// Events returns the channel the model agent publishes Events on. The
	// channel is closed when the run ends (normally or via Interrupt).
	Events() <-chan Event
	// Interrupt asks the model agent to cancel the in-flight run.
	Interrupt(ctx context.Context) error
	// Close releases any resources Interrupt didn't already release.
	Close() error
}

// Agent starts model agent runs. A single Agent value is shared by every
// concurrent turn; Start itself must be safe for concurrent use.
type Agent interface {
	Start(ctx context.Context, opts StartOptions, input UserInput) (Handle, error)
}
