package supervisor

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// skillCreatorAgentID names the fixed, non-persisted workspace the skill
// creator runs in; stable across calls so repeated skill-creation turns
// share one rebuilt workspace instead of accumulating one per session.
const skillCreatorAgentID = "skill-creator"

// skillCreatorDefaultModel matches the original agent_manager's default,
// overridable per request.
const skillCreatorDefaultModel = "claude-sonnet-4-5-20250929"

// skillCreatorAllowedTools is the fixed tool whitelist the skill creator
// profile grants, independent of the caller's own tool-policy config.
var skillCreatorAllowedTools = []string{"Bash", "Read", "Write", "Edit", "Glob", "Grep", "Skill", "TodoWrite", "Task"}

// SkillCreatorRequest describes one call to StartSkillCreatorTurn. Either
// (SkillName, SkillDescription) start a fresh skill-creation session, or
// UserMessage plus ResumeSessionID continue one already in progress —
// mirroring run_skill_creator_conversation's is_resuming branch.
type SkillCreatorRequest struct {
	SkillName        string
	SkillDescription string
	UserMessage      string
	ResumeSessionID  string
	Model            string
}

// StartSkillCreatorTurn runs a skill-creation conversation: a convenience
// wrapper over StartTurn with a fixed skill-creator agent profile, rather
// than a persisted agent record. It builds the same prompt and system
// prompt the skill-creator persona always uses, then hands off to the
// normal turn machinery — the hook chain, event fusion, and persistence
// are identical to any other agent's turn.
func (s *Supervisor) StartSkillCreatorTurn(ctx context.Context, req SkillCreatorRequest) (<-chan protocol.Event, error) {
	model := req.Model
	if model == "" {
		model = skillCreatorDefaultModel
	}

	prompt := req.UserMessage
	if prompt == "" {
		prompt = fmt.Sprintf(`Please create a new skill with the following specifications:

**Skill Name:** %s
**Skill Description:** %s

Use the skill-creator skill (invoke /skill-creator) to guide your skill creation process. Follow the workflow:
1. Understand the skill requirements from the description above
2. Plan reusable contents (scripts, references, assets) if needed
3. Initialize the skill using the init_skill.py script
4. Edit SKILL.md and create any necessary files
5. Test any scripts you create

Create the skill in the .claude/skills/ directory within the current workspace.`, req.SkillName, req.SkillDescription)
	}

	ag := skillCreatorAgent(req.SkillName, req.SkillDescription, model)

	return s.startTurnWithAgent(ctx, ag, StartTurnRequest{
		AgentID:         skillCreatorAgentID,
		ResumeSessionID: req.ResumeSessionID,
		Text:            prompt,
	}, skillCreatorAllowedTools)
}

// skillCreatorAgent builds the fixed, non-persisted profile
// run_skill_creator_conversation constructed in-memory: a bypass
// permission mode, the full skill set visible (so /skill-creator itself
// resolves), and the workspace directory rather than the caller's home
// directory.
func skillCreatorAgent(skillName, skillDescription, model string) *store.Agent {
	return &store.Agent{
		BaseModel:      store.BaseModel{ID: skillCreatorAgentID},
		Name:           "Skill Creator Agent",
		Model:          model,
		PermissionMode: store.PermissionModeBypass,
		AllowAllSkills: true,
		GlobalUserMode: false,
		SystemPrompt: fmt.Sprintf(`You are a Skill Creator Agent specialized in creating Claude Code skills.

Your task is to help users create high-quality skills that extend Claude's capabilities.

IMPORTANT GUIDELINES:
1. Always use the skill-creator skill (invoke /skill-creator) to get guidance on skill creation best practices
2. Follow the skill creation workflow from the skill-creator skill
3. Create skills in the .claude/skills/ directory
4. Ensure SKILL.md has proper YAML frontmatter with name and description
5. Keep skills concise and focused - only include what Claude needs
6. Test any scripts you create before completing

The skill-creator skill provides comprehensive guidance on:
- Skill anatomy and structure
- Progressive disclosure design
- When to use scripts, references, and assets
- Best practices for SKILL.md content

Current task: Create a skill named "%s" that %s`, skillName, skillDescription),
	}
}
