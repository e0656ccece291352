package hooks

import (
	"context"
	"fmt"
)

// DangerousCommandAutoBlocker denies Bash invocations matching a fixed list
// of catastrophic substrings. No approval can override it.
type DangerousCommandAutoBlocker struct{}

func NewDangerousCommandAutoBlocker() *DangerousCommandAutoBlocker {
	return &DangerousCommandAutoBlocker{}
}

func (d *DangerousCommandAutoBlocker) Matches(toolName string) bool { return toolName == "Bash" }

func (d *DangerousCommandAutoBlocker) Run(ctx context.Context, in Input) (Outcome, error) {
	cmd, _ := in.ToolInput["command"].(string)
	if cat := IsCatastrophic(cmd); cat != "" {
		return Deny(fmt.Sprintf("blocked: %s", cat)), nil
	}
	return Pass(), nil
}
