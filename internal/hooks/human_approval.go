package hooks

import (
	"context"
	"fmt"
)

// ApprovalBroker is the subset of the permission broker the
// HumanApprovalGate needs: create-or-reuse a request for this exact
// command in this session, and block until it is decided. Implementations
// own the session approval memoization described by the spec — repeating
// an already-approved command in the same session must not re-prompt.
type ApprovalBroker interface {
	RequestApproval(ctx context.Context, sessionID, toolName string, toolInput map[string]any, reason string) (approved bool, requestID string, err error)
}

// HumanApprovalGate applies a regex table of broadly dangerous Bash
// patterns. A match that isn't already approved for the session suspends
// the hook on a permission request; approvals are remembered per session,
// keyed by command hash, by the broker.
type HumanApprovalGate struct {
	broker  ApprovalBroker
	enabled func(agentID string) bool
}

// NewHumanApprovalGate builds the gate. enabled reports, per agent, whether
// human approval is turned on; when it isn't, a dangerous match is denied
// outright rather than suspended.
func NewHumanApprovalGate(broker ApprovalBroker, enabled func(agentID string) bool) *HumanApprovalGate {
	return &HumanApprovalGate{broker: broker, enabled: enabled}
}

func (g *HumanApprovalGate) Matches(toolName string) bool { return toolName == "Bash" }

func (g *HumanApprovalGate) Run(ctx context.Context, in Input) (Outcome, error) {
	cmd, _ := in.ToolInput["command"].(string)
	cat := IsDangerous(cmd)
	if cat == "" {
		return Pass(), nil
	}
	if !g.enabled(in.AgentID) {
		return Deny(fmt.Sprintf("dangerous command requires approval, which is disabled for this agent: %s", cat)), nil
	}

	reason := fmt.Sprintf("dangerous command: %s", cat)
	approved, requestID, err := g.broker.RequestApproval(ctx, in.SessionID, in.ToolName, in.ToolInput, reason)
	if err != nil {
		return Outcome{}, err
	}
	if !approved {
		return Deny("command not approved"), nil
	}
	return Outcome{Pass: true, RequestID: requestID}, nil
}
