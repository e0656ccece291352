package sqlite

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/errs"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

func newTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	repo, err := NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	return repo
}

func TestAgentStore_CreateGetUpdateDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.Agents.Create(ctx, &store.Agent{Name: "researcher", ToolPolicy: "coding"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == "" {
		t.Fatal("Create() did not stamp an ID")
	}

	got, err := repo.Agents.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "researcher" {
		t.Errorf("Get().Name = %q, want researcher", got.Name)
	}

	updated, err := repo.Agents.Update(ctx, a.ID, map[string]any{"name": "researcher-v2"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "researcher-v2" {
		t.Errorf("Update().Name = %q, want researcher-v2", updated.Name)
	}
	if !updated.UpdatedAt.After(a.UpdatedAt) && updated.UpdatedAt != a.UpdatedAt {
		t.Errorf("Update() did not advance UpdatedAt")
	}

	if err := repo.Agents.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Agents.Get(ctx, a.ID); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Get() after delete = %v, want NotFound", err)
	}
}

func TestAgentStore_List_Ordering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"a1", "a2", "a3"} {
		if _, err := repo.Agents.Create(ctx, &store.Agent{Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	newest, err := repo.Agents.List(ctx, store.ListOpts{Newest: true, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(newest) != 3 || newest[0].Name != "a3" {
		t.Errorf("List(newest) = %v, want a3 first", names(newest))
	}

	oldest, err := repo.Agents.List(ctx, store.ListOpts{Newest: false, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(oldest) != 3 || oldest[0].Name != "a1" {
		t.Errorf("List(oldest) = %v, want a1 first", names(oldest))
	}
}

func names(agents []*store.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name
	}
	return out
}

func TestAgentStore_GlobalUserModeForcesAllowAllSkills(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.Agents.Create(ctx, &store.Agent{
		Name:           "global",
		GlobalUserMode: true,
		AllowAllSkills: false,
		SkillIDs:       []string{"x", "y"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !a.AllowAllSkills || len(a.SkillIDs) != 0 {
		t.Errorf("Create() = allow_all=%v skill_ids=%v, want true/[]", a.AllowAllSkills, a.SkillIDs)
	}

	got, err := repo.Agents.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.AllowAllSkills || len(got.SkillIDs) != 0 {
		t.Errorf("Get() = allow_all=%v skill_ids=%v, want true/[]", got.AllowAllSkills, got.SkillIDs)
	}

	updated, err := repo.Agents.Update(ctx, a.ID, map[string]any{
		"global_user_mode": true,
		"skill_ids":        []string{"z"},
		"allow_all_skills": false,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.AllowAllSkills || len(updated.SkillIDs) != 0 {
		t.Errorf("Update() = allow_all=%v skill_ids=%v, want true/[] (invariant re-applied)", updated.AllowAllSkills, updated.SkillIDs)
	}
}

func TestSkillStore_DraftPublishRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	sk, err := repo.Skills.Create(ctx, &store.Skill{Name: "PDF Tools", FolderName: "pdf-tools"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	v1, err := repo.Skills.CreateVersion(ctx, &store.SkillVersion{
		SkillID: sk.ID, Version: 1, State: store.SkillVersionPublished, ContentPath: "/store/pdf-tools/1",
	})
	if err != nil {
		t.Fatalf("CreateVersion(1) error = %v", err)
	}
	if _, err := repo.Skills.Update(ctx, sk.ID, map[string]any{"published_version": 1}); err != nil {
		t.Fatalf("Update(published_version) error = %v", err)
	}

	draft, err := repo.Skills.CreateVersion(ctx, &store.SkillVersion{
		SkillID: sk.ID, Version: 2, State: store.SkillVersionDraft, ContentPath: "/store/pdf-tools/2",
	})
	if err != nil {
		t.Fatalf("CreateVersion(2) error = %v", err)
	}

	versions, err := repo.Skills.ListVersions(ctx, sk.ID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 2 {
		t.Errorf("ListVersions() = %+v, want newest-first starting at v2", versions)
	}

	if _, err := repo.Skills.UpdateVersion(ctx, draft.ID, map[string]any{"state": store.SkillVersionPublished}); err != nil {
		t.Fatalf("UpdateVersion(publish) error = %v", err)
	}
	if _, err := repo.Skills.Update(ctx, sk.ID, map[string]any{"published_version": 2}); err != nil {
		t.Fatalf("Update(published_version=2) error = %v", err)
	}

	got, err := repo.Skills.Get(ctx, sk.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PublishedVersion != 2 {
		t.Errorf("PublishedVersion = %d, want 2", got.PublishedVersion)
	}

	// rollback: point published_version back at v1
	if _, err := repo.Skills.Update(ctx, sk.ID, map[string]any{"published_version": v1.Version}); err != nil {
		t.Fatalf("Update(rollback) error = %v", err)
	}
	got, _ = repo.Skills.Get(ctx, sk.ID)
	if got.PublishedVersion != 1 {
		t.Errorf("PublishedVersion after rollback = %d, want 1", got.PublishedVersion)
	}
}

func TestSessionStore_AppendAndListMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, _ := repo.Agents.Create(ctx, &store.Agent{Name: "agent"})
	sess, err := repo.Sessions.Create(ctx, &store.Session{AgentID: a.ID, Key: "agent:agent:cli:direct:1"})
	if err != nil {
		t.Fatalf("Create(session) error = %v", err)
	}

	for _, role := range []string{"user", "assistant", "tool"} {
		if _, err := repo.Sessions.AppendMessage(ctx, &store.Message{SessionID: sess.ID, Role: role, Content: role + "-content"}); err != nil {
			t.Fatalf("AppendMessage(%s) error = %v", role, err)
		}
	}

	msgs, err := repo.Sessions.ListMessages(ctx, sess.ID, store.ListOpts{Newest: false, Limit: 10})
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 3 || msgs[0].Role != "user" || msgs[2].Role != "tool" {
		t.Errorf("ListMessages() order wrong: %+v", msgs)
	}

	byKey, err := repo.Sessions.GetByKey(ctx, a.ID, sess.Key)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if byKey.ID != sess.ID {
		t.Errorf("GetByKey().ID = %q, want %q", byKey.ID, sess.ID)
	}
}

func TestPermissionStore_ExpirePending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, _ := repo.Agents.Create(ctx, &store.Agent{Name: "agent"})
	sess, _ := repo.Sessions.Create(ctx, &store.Session{AgentID: a.ID, Key: "k"})

	p, err := repo.Permissions.Create(ctx, &store.PermissionRequest{
		SessionID: sess.ID, ToolName: "exec", Reason: "dangerous command",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.State != store.PermissionPending {
		t.Errorf("State = %q, want pending", p.State)
	}

	pending, err := repo.Permissions.ListPending(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() = %d requests, want 1", len(pending))
	}

	n, err := repo.Permissions.DeleteExpired(ctx, -1) // ttl already elapsed
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}

	pending, _ = repo.Permissions.ListPending(ctx, sess.ID)
	if len(pending) != 0 {
		t.Errorf("ListPending() after expiry = %d, want 0", len(pending))
	}
}

func TestPluginStore_UniqueMarketplaceAndName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mkt, err := repo.Plugins.CreateMarketplace(ctx, &store.Marketplace{
		Type: store.MarketplaceGit, Owner: "anthropics", Repo: "skills-marketplace",
	})
	if err != nil {
		t.Fatalf("CreateMarketplace() error = %v", err)
	}

	if _, err := repo.Plugins.Create(ctx, &store.Plugin{MarketplaceID: mkt.ID, Name: "pdf-tools", Skills: []string{"pdf-tools"}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err = repo.Plugins.Create(ctx, &store.Plugin{MarketplaceID: mkt.ID, Name: "pdf-tools"})
	if !errs.Is(err, errs.KindConflict) {
		t.Errorf("Create(duplicate) error = %v, want Conflict", err)
	}

	_, err = repo.Plugins.CreateMarketplace(ctx, &store.Marketplace{Owner: "anthropics", Repo: "skills-marketplace"})
	if !errs.Is(err, errs.KindConflict) {
		t.Errorf("CreateMarketplace(duplicate owner/repo) error = %v, want Conflict", err)
	}
}
