package hooks

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestDangerousCommandAutoBlocker(t *testing.T) {
	b := NewDangerousCommandAutoBlocker()
	tests := []struct {
		name    string
		cmd     string
		wantOut string // "" = pass
	}{
		{"safe command passes", "ls -la /tmp", ""},
		{"rm -rf root denied", "rm -rf /", "blocked"},
		{"rm -rf home denied", "rm -rf ~", "blocked"},
		{"disk zero denied", "dd if=/dev/zero of=/dev/sda", "blocked"},
		{"fork bomb denied", ":(){ :|:& };:", "blocked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := b.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": tt.cmd}})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if tt.wantOut == "" && !out.Pass {
				t.Errorf("want pass, got deny %q", out.DenyMsg)
			}
			if tt.wantOut != "" && !out.Deny {
				t.Errorf("want deny, got pass")
			}
		})
	}
}

func TestDangerousCommandAutoBlocker_OnlyMatchesBash(t *testing.T) {
	b := NewDangerousCommandAutoBlocker()
	if b.Matches("Read") {
		t.Error("should not match non-Bash tools")
	}
	if !b.Matches("Bash") {
		t.Error("should match Bash")
	}
}

type fakeBroker struct {
	approved  bool
	requestID string
	err       error
	calls     int
}

func (f *fakeBroker) RequestApproval(ctx context.Context, sessionID, toolName string, toolInput map[string]any, reason string) (bool, string, error) {
	f.calls++
	return f.approved, f.requestID, f.err
}

func TestHumanApprovalGate(t *testing.T) {
	t.Run("safe command passes without consulting broker", func(t *testing.T) {
		broker := &fakeBroker{}
		g := NewHumanApprovalGate(broker, func(string) bool { return true })
		out, err := g.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": "ls"}})
		if err != nil || !out.Pass {
			t.Fatalf("want pass, got %+v err=%v", out, err)
		}
		if broker.calls != 0 {
			t.Errorf("broker should not be consulted for safe commands, got %d calls", broker.calls)
		}
	})

	t.Run("dangerous command with approval disabled is denied outright", func(t *testing.T) {
		broker := &fakeBroker{}
		g := NewHumanApprovalGate(broker, func(string) bool { return false })
		out, err := g.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /tmp/x"}})
		if err != nil || !out.Deny {
			t.Fatalf("want deny, got %+v err=%v", out, err)
		}
		if broker.calls != 0 {
			t.Errorf("broker should not be consulted when approval is disabled, got %d calls", broker.calls)
		}
	})

	t.Run("dangerous command approved passes", func(t *testing.T) {
		broker := &fakeBroker{approved: true, requestID: "req-1"}
		g := NewHumanApprovalGate(broker, func(string) bool { return true })
		out, err := g.Run(context.Background(), Input{SessionID: "s1", ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /tmp/x"}})
		if err != nil || !out.Pass {
			t.Fatalf("want pass, got %+v err=%v", out, err)
		}
		if out.RequestID != "req-1" {
			t.Errorf("RequestID = %q, want req-1", out.RequestID)
		}
	})

	t.Run("dangerous command rejected denies", func(t *testing.T) {
		broker := &fakeBroker{approved: false}
		g := NewHumanApprovalGate(broker, func(string) bool { return true })
		out, err := g.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /tmp/x"}})
		if err != nil || !out.Deny {
			t.Fatalf("want deny, got %+v err=%v", out, err)
		}
	})

	t.Run("broker error propagates", func(t *testing.T) {
		broker := &fakeBroker{err: errors.New("broker down")}
		g := NewHumanApprovalGate(broker, func(string) bool { return true })
		_, err := g.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /tmp/x"}})
		if err == nil {
			t.Fatal("want error")
		}
	})
}

func TestSkillAccessGate(t *testing.T) {
	allowed := map[string]bool{"pdf-tools": true}
	g := NewSkillAccessGate(func(agentID string) map[string]bool { return allowed })

	t.Run("allowed skill passes", func(t *testing.T) {
		out, err := g.Run(context.Background(), Input{ToolName: "Skill", ToolInput: map[string]any{"skill_name": "pdf-tools"}})
		if err != nil || !out.Pass {
			t.Fatalf("want pass, got %+v err=%v", out, err)
		}
	})

	t.Run("disallowed skill denies", func(t *testing.T) {
		out, err := g.Run(context.Background(), Input{ToolName: "Skill", ToolInput: map[string]any{"skill_name": "web-search"}})
		if err != nil || !out.Deny {
			t.Fatalf("want deny, got %+v err=%v", out, err)
		}
	})

	t.Run("empty allowed set denies", func(t *testing.T) {
		g := NewSkillAccessGate(func(string) map[string]bool { return nil })
		out, err := g.Run(context.Background(), Input{ToolName: "Skill", ToolInput: map[string]any{"skill_name": "anything"}})
		if err != nil || !out.Deny {
			t.Fatalf("want deny, got %+v err=%v", out, err)
		}
	})
}

func TestChain_FirstNonPassWins(t *testing.T) {
	log := NewLogger(slog.Default())
	blocker := NewDangerousCommandAutoBlocker()
	broker := &fakeBroker{approved: true}
	approval := NewHumanApprovalGate(broker, func(string) bool { return true })
	chain := NewChain(log, blocker, approval)

	out, err := chain.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Deny {
		t.Errorf("want the auto-blocker's deny to win over the approval gate, got %+v", out)
	}
	if broker.calls != 0 {
		t.Errorf("approval gate should never run once the auto-blocker denies, got %d broker calls", broker.calls)
	}
}

func TestChain_UnmatchedToolPasses(t *testing.T) {
	chain := NewChain(NewDangerousCommandAutoBlocker())
	out, err := chain.Run(context.Background(), Input{ToolName: "Read", ToolInput: map[string]any{"path": "/tmp/x"}})
	if err != nil || !out.Pass {
		t.Fatalf("want pass for unmatched tool, got %+v err=%v", out, err)
	}
}
