package permission

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/sqlite"
)

func newTestBroker(t *testing.T, timeout time.Duration) *Broker {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	return NewBroker(repo.Permissions, timeout, 16)
}

func TestBroker_OpenRequestEnqueuesForFusion(t *testing.T) {
	b := newTestBroker(t, time.Second)
	ctx := context.Background()

	req, err := b.OpenRequest(ctx, "session-1", "Bash", map[string]any{"command": "rm -rf /tmp/x"}, "recursive removal")
	if err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}
	if req.State != store.PermissionPending {
		t.Errorf("State = %v, want pending", req.State)
	}

	select {
	case got := <-b.Events():
		if got.ID != req.ID {
			t.Errorf("queued request id = %q, want %q", got.ID, req.ID)
		}
	default:
		t.Fatal("expected request on the global queue")
	}
}

func TestBroker_ResolveWakesWaiter(t *testing.T) {
	b := newTestBroker(t, time.Second)
	ctx := context.Background()

	req, err := b.OpenRequest(ctx, "session-1", "Bash", map[string]any{"command": "rm -rf /tmp/x"}, "reason")
	if err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		approved, err := b.Wait(ctx, req.ID, time.Second)
		if err != nil {
			t.Error(err)
		}
		done <- approved
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Resolve(ctx, req.ID, true, "looks fine"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	select {
	case approved := <-done:
		if !approved {
			t.Error("want approved=true")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake within 1s")
	}

	got, err := b.repo.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.PermissionApproved {
		t.Errorf("persisted state = %v, want approved", got.State)
	}
}

func TestBroker_ResolveIsIdempotent(t *testing.T) {
	b := newTestBroker(t, time.Second)
	ctx := context.Background()

	req, _ := b.OpenRequest(ctx, "session-1", "Bash", map[string]any{"command": "x"}, "reason")
	go b.Wait(ctx, req.ID, time.Second)
	time.Sleep(10 * time.Millisecond)

	if err := b.Resolve(ctx, req.ID, true, ""); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	// Second call must be a no-op, not an error and not a double-deny flip.
	if err := b.Resolve(ctx, req.ID, false, ""); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	got, err := b.repo.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.PermissionApproved {
		t.Errorf("state = %v, want the first resolution (approved) to stick", got.State)
	}
}

func TestBroker_WaitTimesOutAndExpires(t *testing.T) {
	b := newTestBroker(t, time.Second)
	ctx := context.Background()

	req, _ := b.OpenRequest(ctx, "session-1", "Bash", map[string]any{"command": "x"}, "reason")

	approved, err := b.Wait(ctx, req.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if approved {
		t.Error("want approved=false on timeout")
	}

	got, err := b.repo.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != store.PermissionExpired {
		t.Errorf("state = %v, want expired", got.State)
	}
}

func TestBroker_ApprovalMemoization(t *testing.T) {
	b := newTestBroker(t, time.Second)

	if b.IsApproved("session-1", "rm -rf /tmp/x") {
		t.Error("should not be approved before RememberApproval")
	}
	b.RememberApproval("session-1", "rm -rf /tmp/x")
	if !b.IsApproved("session-1", "rm -rf /tmp/x") {
		t.Error("should be approved after RememberApproval")
	}
	if b.IsApproved("session-2", "rm -rf /tmp/x") {
		t.Error("memoization must be scoped per session key")
	}
	if b.IsApproved("session-1", "rm -rf /tmp/y") {
		t.Error("memoization must be scoped per exact command")
	}
}

func TestBroker_RequestApproval_MemoizedSkipsQueue(t *testing.T) {
	b := newTestBroker(t, time.Second)
	b.RememberApproval("session-1", "ls")

	approved, requestID, err := b.RequestApproval(context.Background(), "session-1", "Bash", map[string]any{"command": "ls"}, "reason")
	if err != nil {
		t.Fatalf("RequestApproval: %v", err)
	}
	if !approved {
		t.Error("want approved=true from memoization")
	}
	if requestID != "" {
		t.Errorf("requestID = %q, want empty (no request opened)", requestID)
	}
	select {
	case <-b.Events():
		t.Error("memoized approval should not enqueue a new request")
	default:
	}
}

func TestBroker_ExpireAllForSession(t *testing.T) {
	b := newTestBroker(t, time.Minute)
	ctx := context.Background()

	r1, _ := b.OpenRequest(ctx, "session-1", "Bash", map[string]any{"command": "a"}, "r")
	r2, _ := b.OpenRequest(ctx, "session-1", "Bash", map[string]any{"command": "b"}, "r")
	other, _ := b.OpenRequest(ctx, "session-2", "Bash", map[string]any{"command": "c"}, "r")

	done1 := make(chan bool, 1)
	done2 := make(chan bool, 1)
	go func() { v, _ := b.Wait(ctx, r1.ID, time.Minute); done1 <- v }()
	go func() { v, _ := b.Wait(ctx, r2.ID, time.Minute); done2 <- v }()
	time.Sleep(10 * time.Millisecond)

	if err := b.ExpireAllForSession(ctx, "session-1"); err != nil {
		t.Fatalf("ExpireAllForSession: %v", err)
	}

	select {
	case v := <-done1:
		if v {
			t.Error("want denied after interrupt-expiry")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter for r1 never woke")
	}
	select {
	case v := <-done2:
		if v {
			t.Error("want denied after interrupt-expiry")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter for r2 never woke")
	}

	gotOther, err := b.repo.Get(ctx, other.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotOther.State != store.PermissionPending {
		t.Errorf("other session's request should be untouched, got state %v", gotOther.State)
	}
}
