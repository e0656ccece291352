package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// ContentRoots is the shared, process-wide set of directories plugin
// artifacts are installed into: ~/.claude/{skills,commands,hooks,agents}
// and the marketplace git cache, per spec.
type ContentRoots struct {
	CacheRoot    string // ~/.claude/plugins/cache; each marketplace clones into {owner}/{repo} under it
	SkillsRoot   string // ~/.claude/skills
	CommandsRoot string // ~/.claude/commands
	AgentsRoot   string // ~/.claude/agents
	HooksRoot    string // ~/.claude/hooks
}

// Manager clones/updates marketplace repositories, parses their manifests,
// and installs/uninstalls plugin artifacts into the shared content roots.
type Manager struct {
	roots   ContentRoots
	repo    *store.Repository
	git     gitRunner
	log     *slog.Logger

	mu        sync.Mutex
	syncing   map[string]struct{} // cache_key currently being cloned/fast-forwarded
	installing map[string]struct{} // plugin install in progress, keyed by marketplaceID+"/"+name
}

func New(roots ContentRoots, repo *store.Repository, log *slog.Logger) *Manager {
	return &Manager{
		roots:      roots,
		repo:       repo,
		log:        log,
		syncing:    make(map[string]struct{}),
		installing: make(map[string]struct{}),
	}
}

// SyncResult is what sync() reports back: the plugins a marketplace
// declares, or a single-plugin verdict when the repo isn't a marketplace.
type SyncResult struct {
	Plugins       []pluginManifestRef
	IsMarketplace bool
	Name          string
}

func cacheKey(owner, repo string) string { return owner + "/" + repo }

func (m *Manager) cachePath(owner, repo string) string {
	return filepath.Join(m.roots.CacheRoot, owner, repo)
}

// beginExclusive registers key in set, returning a Conflict error if it's
// already present; the caller must call the returned release func.
func beginExclusive(mu *sync.Mutex, set map[string]struct{}, key, conflictMsg string) (func(), error) {
	mu.Lock()
	defer mu.Unlock()
	if _, busy := set[key]; busy {
		return nil, errs.Conflict("%s", conflictMsg)
	}
	set[key] = struct{}{}
	return func() {
		mu.Lock()
		delete(set, key)
		mu.Unlock()
	}, nil
}

// Sync clones (or fast-forwards an existing shallow clone of) a
// marketplace's git repository, then parses its manifest. Exactly one sync
// may run at a time for a given (owner, repo) cache key.
func (m *Manager) Sync(ctx context.Context, mkt *store.Marketplace) (*SyncResult, error) {
	key := cacheKey(mkt.Owner, mkt.Repo)
	release, err := beginExclusive(&m.mu, m.syncing, key, fmt.Sprintf("sync already in progress for %s", key))
	if err != nil {
		return nil, err
	}
	defer release()

	dest := m.cachePath(mkt.Owner, mkt.Repo)
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		if err := m.git.fastForward(ctx, dest, mkt.Branch); err != nil {
			return nil, fmt.Errorf("sync marketplace %s: %w", key, err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("prepare cache dir: %w", err)
		}
		if err := m.git.cloneShallow(ctx, mkt.URL, mkt.Branch, dest); err != nil {
			return nil, fmt.Errorf("sync marketplace %s: %w", key, err)
		}
	}

	manifest, ok, err := readMarketplaceManifest(dest)
	if err != nil {
		// A malformed marketplace.json is a sync error, not a per-plugin
		// skip: without it we don't know the plugin list at all.
		return nil, fmt.Errorf("parse marketplace.json: %w", err)
	}
	if ok {
		return &SyncResult{Plugins: manifest.Plugins, IsMarketplace: true, Name: manifest.Name}, nil
	}

	// Not a marketplace: either a single plugin (plugin.json) or a
	// standalone skill repo, both installed as one implicit "plugin".
	name := filepath.Base(dest)
	if pm, ok, err := readPluginManifest(dest); err == nil && ok {
		name = pm.Name
	}
	return &SyncResult{Plugins: nil, IsMarketplace: false, Name: name}, nil
}

// resolvePluginSource locates a plugin's manifest entry, preferring the
// marketplace manifest and falling back to filesystem heuristics (auto
// detecting skill folders, or treating the repo root as one standalone
// skill) when the manifest omits detail.
func (m *Manager) resolvePluginSource(mktDest string, ref pluginManifestRef) (root string, skills []string) {
	root = mktDest
	if ref.Source != "" {
		root = filepath.Join(mktDest, ref.Source)
	}
	skills = ref.Skills
	if len(skills) == 0 {
		if isStandaloneSkill(root) {
			skills = []string{filepath.Base(root)}
		} else {
			skills = detectSkillFolders(root)
		}
	}
	return root, skills
}

// Install locates pluginName via the marketplace's manifest (falling back
// to the filesystem heuristic when the manifest doesn't name it), copies
// its declared artifacts into the shared content roots, and records the
// plugin plus projected skill rows. Concurrent installs of the same
// (marketplace, name) fail fast with Conflict.
func (m *Manager) Install(ctx context.Context, mkt *store.Marketplace, pluginName string) (*store.Plugin, error) {
	lockKey := mkt.ID + "/" + pluginName
	release, err := beginExclusive(&m.mu, m.installing, lockKey, fmt.Sprintf("install already in progress for %s", lockKey))
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := m.repo.Plugins.GetByMarketplaceAndName(ctx, mkt.ID, pluginName); err == nil {
		return nil, errs.Conflict("plugin %s is already installed from marketplace %s", pluginName, mkt.ID)
	} else if !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}

	mktDest := m.cachePath(mkt.Owner, mkt.Repo)
	manifest, isMarketplace, err := readMarketplaceManifest(mktDest)
	if err != nil {
		return nil, fmt.Errorf("parse marketplace.json: %w", err)
	}

	var ref pluginManifestRef
	found := false
	if isMarketplace {
		for _, p := range manifest.Plugins {
			if p.Name == pluginName {
				ref, found = p, true
				break
			}
		}
	}
	if !found {
		// Filesystem heuristic: the marketplace repo itself is the plugin.
		ref = pluginManifestRef{Name: pluginName}
	}

	srcRoot := mktDest
	if ref.Source != "" {
		// A remote plugin source: clone it into a nested cache keyed by
		// the plugin name rather than re-using the marketplace's clone.
		nested := filepath.Join(mktDest, ".plugins", pluginName)
		if isGitURL(ref.Source) {
			if _, err := os.Stat(filepath.Join(nested, ".git")); err != nil {
				if err := os.MkdirAll(filepath.Dir(nested), 0o755); err != nil {
					return nil, fmt.Errorf("prepare plugin cache dir: %w", err)
				}
				if err := m.git.cloneShallow(ctx, ref.Source, "", nested); err != nil {
					return nil, fmt.Errorf("clone plugin source %s: %w", ref.Source, err)
				}
			}
			srcRoot = nested
		} else {
			srcRoot = filepath.Join(mktDest, ref.Source)
		}
	}

	_, skillFolders := m.resolvePluginSource(srcRoot, pluginManifestRef{Name: ref.Name, Source: "", Skills: ref.Skills})
	srcForArtifacts := srcRoot
	installedSkills, err := installArtifactSet(srcForArtifacts, "skills", skillFolders, m.roots.SkillsRoot)
	if err != nil {
		return nil, fmt.Errorf("install plugin skills: %w", err)
	}
	installedCommands, err := installArtifactSet(srcForArtifacts, "commands", ref.Commands, m.roots.CommandsRoot)
	if err != nil {
		return nil, fmt.Errorf("install plugin commands: %w", err)
	}
	installedHooks, err := installArtifactSet(srcForArtifacts, "hooks", ref.Hooks, m.roots.HooksRoot)
	if err != nil {
		return nil, fmt.Errorf("install plugin hooks: %w", err)
	}
	installedAgents, err := installArtifactSet(srcForArtifacts, "agents", ref.Agents, m.roots.AgentsRoot)
	if err != nil {
		return nil, fmt.Errorf("install plugin agents: %w", err)
	}

	plugin, err := m.repo.Plugins.Create(ctx, &store.Plugin{
		MarketplaceID: mkt.ID,
		Name:          pluginName,
		Version:       "",
		Skills:        installedSkills,
		Commands:      installedCommands,
		Agents:        installedAgents,
		Hooks:         installedHooks,
		MCPServers:    ref.MCPServers,
		InstallPath:   srcForArtifacts,
		Status:        store.PluginInstalled,
	})
	if err != nil {
		return nil, err
	}

	for _, skillName := range installedSkills {
		if _, err := m.repo.Skills.Create(ctx, &store.Skill{
			Name:           skillName,
			FolderName:     skillName,
			SourceType:     store.SkillSourcePlugin,
			SourcePluginID: plugin.ID,
			PublishedVersion: 1,
		}); err != nil {
			m.log.Warn("plugin skill record create failed", "plugin_id", plugin.ID, "skill", skillName, "error", err)
		}
	}
	return plugin, nil
}

// Uninstall removes every artifact the plugin record lists from the shared
// content roots, deletes its projected skill records, strips its id from
// every agent's plugin_ids, and deletes the plugin record.
func (m *Manager) Uninstall(ctx context.Context, pluginID string) error {
	p, err := m.repo.Plugins.Get(ctx, pluginID)
	if err != nil {
		return err
	}

	removeArtifactSet(p.Skills, m.roots.SkillsRoot, m.log)
	removeArtifactSet(p.Commands, m.roots.CommandsRoot, m.log)
	removeArtifactSet(p.Hooks, m.roots.HooksRoot, m.log)
	removeArtifactSet(p.Agents, m.roots.AgentsRoot, m.log)

	for _, skillName := range p.Skills {
		sk, err := m.repo.Skills.GetByFolderName(ctx, skillName)
		if err != nil {
			continue
		}
		if sk.SourceType == store.SkillSourcePlugin && sk.SourcePluginID == p.ID {
			if err := m.repo.Skills.Delete(ctx, sk.ID); err != nil {
				m.log.Warn("plugin skill record delete failed", "skill_id", sk.ID, "error", err)
			}
		}
	}

	agentList, err := m.repo.Agents.List(ctx, store.ListOpts{Limit: 10000})
	if err == nil {
		for _, a := range agentList {
			if !containsString(a.PluginIDs, p.ID) {
				continue
			}
			if _, err := m.repo.Agents.Update(ctx, a.ID, map[string]any{"plugin_ids": removeString(a.PluginIDs, p.ID)}); err != nil {
				m.log.Warn("strip plugin id from agent failed", "agent_id", a.ID, "error", err)
			}
		}
	}

	return m.repo.Plugins.Delete(ctx, pluginID)
}

// ListCached inspects the marketplace's cache directory without any
// network I/O, returning the plugin names its manifest declares (or, for a
// non-marketplace clone, the single implicit plugin name).
func (m *Manager) ListCached(mkt *store.Marketplace) ([]string, error) {
	dest := m.cachePath(mkt.Owner, mkt.Repo)
	manifest, ok, err := readMarketplaceManifest(dest)
	if err != nil {
		return nil, err
	}
	if ok {
		names := make([]string, len(manifest.Plugins))
		for i, p := range manifest.Plugins {
			names[i] = p.Name
		}
		return names, nil
	}
	if _, err := os.Stat(dest); err != nil {
		return nil, nil
	}
	return []string{filepath.Base(dest)}, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func isGitURL(src string) bool {
	return !filepath.IsAbs(src) &&
		(strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") ||
			strings.HasPrefix(src, "git@") || strings.HasPrefix(src, "ssh://"))
}
