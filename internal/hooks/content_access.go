package hooks

import "context"

// PathChecker is the subset of access.Policy the content-access hooks
// need: a path (or a bash command string) in, an allow/deny verdict with
// an explanatory message out.
type PathChecker interface {
	CheckFileTool(path string) (bool, string)
	CheckBashCommand(cmd string) (bool, string)
}

// fileToolNames lists the tools the data model treats as single-path file
// operations subject to the file-tool gate.
var fileToolNames = map[string]bool{
	"Read": true, "Write": true, "Edit": true, "Glob": true, "Grep": true,
}

// pathArgKeys is tried in order against a file tool's input map; the first
// present key wins. Covers the handful of argument names the retrieved
// pack's file tools use.
var pathArgKeys = []string{"path", "file_path", "pattern_path", "directory"}

// FileAccessGate denies file-tool calls whose path argument escapes the
// policy's allowed directories.
type FileAccessGate struct {
	policy PathChecker
}

func NewFileAccessGate(policy PathChecker) *FileAccessGate {
	return &FileAccessGate{policy: policy}
}

func (g *FileAccessGate) Matches(toolName string) bool { return fileToolNames[toolName] }

func (g *FileAccessGate) Run(ctx context.Context, in Input) (Outcome, error) {
	var path string
	for _, key := range pathArgKeys {
		if v, ok := in.ToolInput[key].(string); ok && v != "" {
			path = v
			break
		}
	}
	if ok, msg := g.policy.CheckFileTool(path); !ok {
		return Deny(msg), nil
	}
	return Pass(), nil
}

// BashPathGate denies Bash calls whose command references an absolute path
// outside the policy's allowed directories.
type BashPathGate struct {
	policy PathChecker
}

func NewBashPathGate(policy PathChecker) *BashPathGate {
	return &BashPathGate{policy: policy}
}

func (g *BashPathGate) Matches(toolName string) bool { return toolName == "Bash" }

func (g *BashPathGate) Run(ctx context.Context, in Input) (Outcome, error) {
	cmd, _ := in.ToolInput["command"].(string)
	if ok, msg := g.policy.CheckBashCommand(cmd); !ok {
		return Deny(msg), nil
	}
	return Pass(), nil
}
