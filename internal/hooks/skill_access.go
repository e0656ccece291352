package hooks

import (
	"context"
	"fmt"
	"strings"
)

// SkillAccessGate denies Skill tool invocations naming a skill outside the
// agent's allowed set. An empty allowed set denies every skill.
type SkillAccessGate struct {
	// allowedSkillNames returns the agent's current allowed-skill-name set.
	allowedSkillNames func(agentID string) map[string]bool
}

func NewSkillAccessGate(allowedSkillNames func(agentID string) map[string]bool) *SkillAccessGate {
	return &SkillAccessGate{allowedSkillNames: allowedSkillNames}
}

func (g *SkillAccessGate) Matches(toolName string) bool { return toolName == "Skill" }

func (g *SkillAccessGate) Run(ctx context.Context, in Input) (Outcome, error) {
	name, _ := in.ToolInput["skill_name"].(string)
	allowed := g.allowedSkillNames(in.AgentID)
	if len(allowed) == 0 {
		return Deny("no skills are allowed for this agent"), nil
	}
	if !allowed[name] {
		names := make([]string, 0, len(allowed))
		for n := range allowed {
			names = append(names, n)
		}
		return Deny(fmt.Sprintf("skill %q is not allowed; allowed skills: %s", name, strings.Join(names, ", "))), nil
	}
	return Pass(), nil
}
