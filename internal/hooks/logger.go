package hooks

import (
	"context"
	"log/slog"
)

// Logger is a PreToolUse hook matching every tool; it records the
// invocation and always passes. It runs first in the chain so every tool
// call is logged regardless of what a later hook decides.
type Logger struct {
	log *slog.Logger
}

func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log}
}

func (l *Logger) Matches(toolName string) bool { return true }

func (l *Logger) Run(ctx context.Context, in Input) (Outcome, error) {
	l.log.Info("pre_tool_use",
		"session_id", in.SessionID,
		"agent_id", in.AgentID,
		"tool", in.ToolName,
	)
	return Pass(), nil
}
