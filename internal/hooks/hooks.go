// Package hooks implements the pre-tool policy pipeline: an ordered chain
// of checks that run before the model agent's tool call is allowed to
// execute, producing pass/deny/suspend-for-approval outcomes.
package hooks

import "context"

// Outcome is the result of running one hook.
type Outcome struct {
	Pass      bool
	Deny      bool
	DenyMsg   string
	Suspended bool
	RequestID string
}

// Pass is the outcome (Pass=true) that lets the chain continue evaluating;
// the zero Outcome is not a pass.
func Pass() Outcome { return Outcome{Pass: true} }

// Deny short-circuits the chain with a reason surfaced to the model as a
// tool error, never to the caller as a turn failure.
func Deny(reason string) Outcome { return Outcome{Deny: true, DenyMsg: reason} }

// Suspend builds an outcome carrying a pending permission request id. It
// does not block anything itself, and Chain.Run treats it like any other
// non-pass outcome: evaluation stops and the outcome is returned.
func Suspend(requestID string) Outcome { return Outcome{Suspended: true, RequestID: requestID} }

// Input describes the tool invocation a hook evaluates.
type Input struct {
	SessionID string
	AgentID   string
	ToolName  string
	ToolInput map[string]any
}

// Hook is addressed by tool-name matcher; the first non-pass outcome in a
// chain wins.
type Hook interface {
	// Matches reports whether this hook applies to toolName.
	Matches(toolName string) bool
	// Run evaluates the hook against in. Implementations that need a human
	// decision block internally (e.g. on the permission broker) and, once
	// it is known, return Pass (carrying the request id) or Deny.
	Run(ctx context.Context, in Input) (Outcome, error)
}

// Chain runs an ordered list of hooks, short-circuiting on the first
// non-pass outcome.
type Chain struct {
	hooks []Hook
}

// NewChain builds a chain from hooks in declared, evaluation order.
func NewChain(hooks ...Hook) *Chain {
	return &Chain{hooks: hooks}
}

// Run evaluates every hook matching in.ToolName in order, stopping at the
// first non-pass outcome. A chain with no matching hooks passes.
func (c *Chain) Run(ctx context.Context, in Input) (Outcome, error) {
	for _, h := range c.hooks {
		if !h.Matches(in.ToolName) {
			continue
		}
		out, err := h.Run(ctx, in)
		if err != nil {
			return Outcome{}, err
		}
		if out.Pass {
			continue
		}
		return out, nil
	}
	return Pass(), nil
}
