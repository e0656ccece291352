package hooks

import (
	"context"
	"testing"
)

type fakePathChecker struct {
	allowedPrefix string
}

func (f fakePathChecker) CheckFileTool(path string) (bool, string) {
	if path == "" || len(path) >= len(f.allowedPrefix) && path[:len(f.allowedPrefix)] == f.allowedPrefix {
		return true, ""
	}
	return false, "path outside allowed directories"
}

func (f fakePathChecker) CheckBashCommand(cmd string) (bool, string) {
	return true, ""
}

func TestFileAccessGate_ChecksDeclaredPathArg(t *testing.T) {
	g := NewFileAccessGate(fakePathChecker{allowedPrefix: "/work"})

	out, err := g.Run(context.Background(), Input{ToolName: "Read", ToolInput: map[string]any{"file_path": "/etc/passwd"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Deny {
		t.Error("want deny for path outside allowed directories")
	}

	out, err = g.Run(context.Background(), Input{ToolName: "Read", ToolInput: map[string]any{"file_path": "/work/notes.md"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Pass {
		t.Errorf("want pass, got deny %q", out.DenyMsg)
	}
}

func TestFileAccessGate_MatchesOnlyFileTools(t *testing.T) {
	g := NewFileAccessGate(fakePathChecker{})
	if g.Matches("Bash") {
		t.Error("should not match Bash")
	}
	if !g.Matches("Edit") {
		t.Error("should match Edit")
	}
}

type denyingBashChecker struct{}

func (denyingBashChecker) CheckFileTool(path string) (bool, string) { return true, "" }
func (denyingBashChecker) CheckBashCommand(cmd string) (bool, string) {
	return false, "command references an outside path"
}

func TestBashPathGate_DeniesOnCheckerVerdict(t *testing.T) {
	g := NewBashPathGate(denyingBashChecker{})
	out, err := g.Run(context.Background(), Input{ToolName: "Bash", ToolInput: map[string]any{"command": "cat /etc/shadow"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Deny {
		t.Error("want deny")
	}
}
