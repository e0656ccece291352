package supervisor

import "github.com/nextlevelbuilder/goclaw/internal/config"

// baseToolSets are the named tool-policy profiles a config.ToolPolicySpec's
// Profile field selects between, generalizing the teacher's
// group:bash/group:file/group:web boolean-flag derivation (spec.md §6:
// "empty ⇒ derive from boolean flags") into three named starting points an
// agent profile can then Allow/Deny/AlsoAllow on top of.
var baseToolSets = map[string][]string{
	"minimal": {"Read", "Glob", "Grep"},
	"coding":  {"Read", "Write", "Edit", "Glob", "Grep", "Bash"},
	"full":    {"Read", "Write", "Edit", "Glob", "Grep", "Bash", "WebFetch", "WebSearch", "Skill"},
}

// resolveAllowedTools derives the effective tool whitelist from a policy
// spec: start from the named profile's base set (default "minimal" when
// unnamed), drop every name in Deny, add every name in Allow and
// AlsoAllow. An explicit, non-empty Allow list replaces the base set
// entirely rather than adding to it, matching spec.md's "allowed_tools |
// Whitelist passed to the model agent" framing.
func resolveAllowedTools(spec config.ToolPolicySpec) []string {
	var base []string
	if len(spec.Allow) > 0 {
		base = append(base, spec.Allow...)
	} else {
		profile := spec.Profile
		if profile == "" {
			profile = "minimal"
		}
		base = append(base, baseToolSets[profile]...)
	}

	deny := make(map[string]bool, len(spec.Deny))
	for _, d := range spec.Deny {
		deny[d] = true
	}

	seen := make(map[string]bool, len(base)+len(spec.AlsoAllow))
	var out []string
	add := func(name string) {
		if deny[name] || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, n := range base {
		add(n)
	}
	for _, n := range spec.AlsoAllow {
		add(n)
	}
	return out
}
