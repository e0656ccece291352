package plugins

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// marketplaceManifest is the parsed shape of .claude-plugin/marketplace.json.
type marketplaceManifest struct {
	Name    string             `json:"name"`
	Plugins []pluginManifestRef `json:"plugins"`
}

// pluginManifestRef is one entry in a marketplace manifest's plugins array.
type pluginManifestRef struct {
	Name       string   `json:"name"`
	Source     string   `json:"source,omitempty"` // relative path, or a remote git URL
	Skills     []string `json:"skills,omitempty"`
	Commands   []string `json:"commands,omitempty"`
	Agents     []string `json:"agents,omitempty"`
	Hooks      []string `json:"hooks,omitempty"`
	MCPServers []string `json:"mcpServers,omitempty"`
}

// pluginManifest is the parsed shape of .claude-plugin/plugin.json, present
// when a repository is itself a single plugin rather than a marketplace.
type pluginManifest struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Skills     []string `json:"skills,omitempty"`
	Commands   []string `json:"commands,omitempty"`
	Agents     []string `json:"agents,omitempty"`
	Hooks      []string `json:"hooks,omitempty"`
	MCPServers []string `json:"mcpServers,omitempty"`
}

func readMarketplaceManifest(repoRoot string) (*marketplaceManifest, bool, error) {
	path := filepath.Join(repoRoot, ".claude-plugin", "marketplace.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m marketplaceManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

func readPluginManifest(pluginRoot string) (*pluginManifest, bool, error) {
	path := filepath.Join(pluginRoot, ".claude-plugin", "plugin.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p pluginManifest
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// detectSkillFolders auto-detects skill sub-folders under pluginRoot/skills
// when a manifest doesn't list them explicitly: every immediate child
// directory of skills/ containing a SKILL.md is a skill.
func detectSkillFolders(pluginRoot string) []string {
	skillsDir := filepath.Join(pluginRoot, "skills")
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(skillsDir, e.Name(), "SKILL.md")); err == nil {
			out = append(out, e.Name())
		}
	}
	return out
}

// isStandaloneSkill reports whether pluginRoot is itself a single skill
// folder (a root-level SKILL.md, no marketplace or plugin manifest).
func isStandaloneSkill(pluginRoot string) bool {
	_, err := os.Stat(filepath.Join(pluginRoot, "SKILL.md"))
	return err == nil
}
