// Package supervisor implements the ConversationSupervisor and its
// EventFusion machinery: the top-level driver that builds per-turn
// options, starts the model agent, fuses its event stream with the
// permission broker's asynchronous decisions, and persists the
// transcript — the direct generalization of the teacher's
// agent.Loop.Run/runLoop (internal/agent/loop.go).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/access"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/hooks"
	"github.com/nextlevelbuilder/goclaw/internal/mcpservers"
	"github.com/nextlevelbuilder/goclaw/internal/modelagent"
	"github.com/nextlevelbuilder/goclaw/internal/permission"
	"github.com/nextlevelbuilder/goclaw/internal/plugins"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/workspace"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// defaultApprovalTimeout matches spec.md §5's "permission waits default to
// 5 minutes", used when config.PermissionConfig doesn't set one.
const defaultApprovalTimeout = 5 * time.Minute

// StartTurnRequest describes one call to StartTurn.
type StartTurnRequest struct {
	AgentID string
	// ResumeSessionID is non-empty when the caller already holds a model-
	// assigned session id from a prior turn; empty starts a brand-new
	// session, keyed provisionally by AgentID until the model assigns one.
	ResumeSessionID string
	Text            string
	Blocks          []protocol.ContentBlock
	AddDirs         []string
}

// liveTurn is the live-session handle map entry (spec.md §5): the active
// model-agent handle plus the shared session context its hooks read.
type liveTurn struct {
	handle  modelagent.Handle
	sessCtx *sessionContext
	cancel  context.CancelFunc
}

// Supervisor is the process-wide ConversationSupervisor. One value is
// shared by every concurrent turn.
type Supervisor struct {
	repo       *store.Repository
	broker     *permission.Broker
	agent      modelagent.Agent
	workspace  *workspace.Manager
	plugins    *plugins.Manager
	mcp        *mcpservers.Manager
	mcpConfigs map[string]config.MCPServerConfig
	cfg        *config.Config
	log        *slog.Logger

	approvalTimeout time.Duration

	mu   sync.Mutex
	live map[string]*liveTurn // keyed by the turn's current session key
}

// New builds a Supervisor. mcp and pl may be nil if the deployment has no
// MCP servers or plugins configured.
func New(
	repo *store.Repository,
	broker *permission.Broker,
	agent modelagent.Agent,
	ws *workspace.Manager,
	pl *plugins.Manager,
	mcp *mcpservers.Manager,
	cfg *config.Config,
	log *slog.Logger,
) *Supervisor {
	timeout := defaultApprovalTimeout
	if cfg != nil && cfg.Permission.ApprovalTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Permission.ApprovalTimeoutSeconds) * time.Second
	}
	return &Supervisor{
		repo:            repo,
		broker:          broker,
		agent:           agent,
		workspace:       ws,
		plugins:         pl,
		mcp:             mcp,
		mcpConfigs:      cfg.MCPServers,
		cfg:             cfg,
		log:             log,
		approvalTimeout: timeout,
		live:            make(map[string]*liveTurn),
	}
}

// StartTurn loads the agent profile, builds the turn's options and hook
// chain, starts the model agent, and returns the caller-facing event
// stream (spec.md §4.7 steps 1-5).
func (s *Supervisor) StartTurn(ctx context.Context, req StartTurnRequest) (<-chan protocol.Event, error) {
	ag, err := s.repo.Agents.Get(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	return s.startTurnWithAgent(ctx, ag, req, nil)
}

// startTurnWithAgent is StartTurn's body given an already-resolved agent
// profile, shared with StartSkillCreatorTurn so the latter can supply a
// fixed, non-persisted profile instead of one loaded from the repository.
// toolOverride, when non-nil, replaces the profile's own tool-policy
// resolution outright.
func (s *Supervisor) startTurnWithAgent(ctx context.Context, ag *store.Agent, req StartTurnRequest, toolOverride []string) (<-chan protocol.Event, error) {
	allowAll := ag.AllowAllSkills || ag.GlobalUserMode
	allowedSkillNames := s.workspace.GetAllowedSkillNames(ctx, ag.SkillIDs, allowAll)

	workDir, settingSources, err := s.resolveWorkDir(ctx, ag, allowAll)
	if err != nil {
		return nil, err
	}

	allowedTools := toolOverride
	if allowedTools == nil {
		allowedTools = s.resolveAgentToolPolicy(ag)
	}
	pluginPaths := s.resolvePluginPaths(ctx, ag.PluginIDs)
	mcpDescs := s.resolveMCPServers(ctx, ag.MCPServerIDs)

	initialKey := req.ResumeSessionID
	if initialKey == "" {
		initialKey = ag.ID
	}
	sessCtx := newSessionContext(initialKey)

	chain := s.buildHookChain(ag, workDir, req.AddDirs, sessCtx, allowedSkillNames)

	var sandbox *config.SandboxSettings
	if profile := s.cfg.ResolveAgent(ag.ID); profile != nil {
		sandbox = profile.Sandbox
	}

	opts := modelagent.StartOptions{
		WorkDir:            workDir,
		SettingSources:     settingSources,
		AllowedTools:       allowedTools,
		AllowedSkillNames:  allowedSkillNames,
		PluginInstallPaths: pluginPaths,
		MCPServers:         mcpDescs,
		Sandbox:            sandbox,
		PermissionMode:     ag.PermissionMode,
		Model:              ag.Model,
		SystemPrompt:       ag.SystemPrompt,
		ResumeSessionID:    req.ResumeSessionID,
		Hooks:              chain,
		SessionKeyFunc:     sessCtx.Key,
	}

	handle, err := s.agent.Start(ctx, opts, modelagent.UserInput{Text: req.Text, Blocks: req.Blocks})
	if err != nil {
		return nil, fmt.Errorf("start model agent: %w", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	lt := &liveTurn{handle: handle, sessCtx: sessCtx, cancel: cancel}

	s.mu.Lock()
	s.live[initialKey] = lt
	s.mu.Unlock()

	out := make(chan protocol.Event, 16)
	go s.runTurn(turnCtx, ag, req, lt, out)
	return out, nil
}

// resolveWorkDir implements spec.md §6's global_user_mode row: cwd=home,
// setting-sources=project+user, otherwise the agent's rebuilt isolated
// workspace with project-only sources.
func (s *Supervisor) resolveWorkDir(ctx context.Context, ag *store.Agent, allowAll bool) (string, []string, error) {
	if ag.GlobalUserMode {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", nil, fmt.Errorf("resolve home directory for global_user_mode: %w", err)
		}
		return home, []string{"project", "user"}, nil
	}
	workDir, err := s.workspace.RebuildAgentWorkspace(ctx, ag.ID, ag.SkillIDs, allowAll)
	if err != nil {
		return "", nil, fmt.Errorf("rebuild agent workspace: %w", err)
	}
	return workDir, []string{"project"}, nil
}

func (s *Supervisor) resolveAgentToolPolicy(ag *store.Agent) []string {
	spec := s.cfg.DefaultTool
	if profile := s.cfg.ResolveAgent(ag.ID); profile != nil {
		spec = profile.ToolPolicy
	}
	if ag.ToolPolicy != "" {
		spec.Profile = ag.ToolPolicy
	}
	return resolveAllowedTools(spec)
}

// resolvePluginPaths resolves plugin_ids to absolute install_paths
// (spec.md §6), skipping and logging any id that no longer resolves
// rather than failing the whole turn.
func (s *Supervisor) resolvePluginPaths(ctx context.Context, pluginIDs []string) []string {
	var paths []string
	for _, id := range pluginIDs {
		p, err := s.repo.Plugins.Get(ctx, id)
		if err != nil {
			s.log.Warn("plugin id no longer resolves", "plugin_id", id, "error", err)
			continue
		}
		paths = append(paths, p.InstallPath)
	}
	return paths
}

func (s *Supervisor) resolveMCPServers(ctx context.Context, mcpIDs []string) []modelagent.MCPServerDescriptor {
	if s.mcp == nil || len(mcpIDs) == 0 {
		return nil
	}
	connected := s.mcp.ResolveForAgent(ctx, mcpIDs, s.mcpConfigs)
	statusByName := make(map[string]mcpservers.ServerStatus, len(connected))
	for _, st := range s.mcp.ServerStatus() {
		statusByName[st.Name] = st
	}
	descs := make([]modelagent.MCPServerDescriptor, 0, len(connected))
	for _, name := range connected {
		st := statusByName[name]
		descs = append(descs, modelagent.MCPServerDescriptor{Name: name, Transport: st.Transport, Connected: st.Connected})
	}
	return descs
}

// buildHookChain assembles the pre-tool policy pipeline spec.md §4.5/§4.8
// describes: always-on logging and the catastrophic-command blocker, then
// the skill allow-list gate, then (when enabled) the human-approval gate
// and the two content-access gates, bound to a policy scoped to workDir
// plus any caller- or agent-configured extra directories.
func (s *Supervisor) buildHookChain(ag *store.Agent, workDir string, addDirs []string, sessCtx *sessionContext, allowedSkillNames []string) *hooks.Chain {
	chainHooks := []hooks.Hook{
		hooks.NewLogger(s.log),
		hooks.NewDangerousCommandAutoBlocker(),
	}

	allowedSet := make(map[string]bool, len(allowedSkillNames))
	for _, n := range allowedSkillNames {
		allowedSet[n] = true
	}
	chainHooks = append(chainHooks, hooks.NewSkillAccessGate(func(string) map[string]bool { return allowedSet }))

	if ag.EnableHumanApproval {
		chainHooks = append(chainHooks, hooks.NewHumanApprovalGate(s.broker, func(string) bool { return ag.EnableHumanApproval }))
	}

	// global_user_mode disables the file-access gate (spec.md §6).
	if ag.FileAccessControl && !ag.GlobalUserMode {
		extra := append(append([]string{}, ag.AllowedDirectories...), addDirs...)
		policy := access.New(workDir, extra...)
		chainHooks = append(chainHooks, hooks.NewFileAccessGate(policy), hooks.NewBashPathGate(policy))
	}

	return hooks.NewChain(chainHooks...)
}

// ContinueWithAnswer re-enters the model with a resumed session after an
// ask_user_question turn (spec.md §4.7 step 7): the answer is written as a
// new user message and the same merged loop runs again.
func (s *Supervisor) ContinueWithAnswer(ctx context.Context, sessionID, toolUseID, answer string) (<-chan protocol.Event, error) {
	sess, err := s.repo.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Sessions.AppendMessage(ctx, &store.Message{SessionID: sessionID, Role: "user", Content: answer}); err != nil {
		return nil, err
	}
	return s.StartTurn(ctx, StartTurnRequest{
		AgentID:         sess.AgentID,
		ResumeSessionID: sessionID,
		Text:            answer,
	})
}

// ContinueWithPermission persists the decision and wakes the suspended
// hook; the still-running turn continues on its own channel (spec.md
// §4.7 step 8).
func (s *Supervisor) ContinueWithPermission(ctx context.Context, requestID string, approved bool, feedback string) (protocol.Event, error) {
	if err := s.broker.Resolve(ctx, requestID, approved, feedback); err != nil {
		return protocol.Event{}, err
	}
	return protocol.Event{
		Type:      protocol.EventResult,
		Timestamp: time.Now().UTC(),
		Payload:   protocol.PermissionAcknowledgedPayload{RequestID: requestID, Approved: approved},
	}, nil
}

// Interrupt asks the active model agent to cancel and resolves the
// interrupt-vs-pending-permission race (spec.md §9): any outstanding
// permission requests for this session are expired so their hooks don't
// block a turn that will never resume.
func (s *Supervisor) Interrupt(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	lt, ok := s.live[sessionID]
	s.mu.Unlock()
	if !ok {
		return errs.NotFound("no active turn for session %s", sessionID)
	}

	if err := lt.handle.Interrupt(ctx); err != nil {
		s.log.Warn("model agent interrupt failed", "session_id", sessionID, "error", err)
	}
	if err := s.broker.ExpireAllForSession(ctx, lt.sessCtx.Key()); err != nil {
		s.log.Warn("expire pending permissions on interrupt failed", "session_id", sessionID, "error", err)
	}
	lt.cancel()
	return nil
}
