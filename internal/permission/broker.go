// Package permission implements the PermissionBroker: the cross-session
// registry of outstanding approval waiters, their resolution signalling,
// and per-session approval memoization.
package permission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// decision is sent on a request's rendezvous channel exactly once.
type decision struct {
	approved bool
	feedback string
}

// Broker owns the global request queue, the waiter registry, and the
// per-session approval memoization set.
type Broker struct {
	repo           store.PermissionRepository
	defaultTimeout time.Duration

	mu        sync.Mutex
	waiters   map[string]chan decision
	approvals map[string]map[string]bool // session key -> {sha256(command)[:16]}

	queue chan *store.PermissionRequest
}

// NewBroker builds a Broker. queueSize bounds the global request queue
// EventFusion drains; defaultTimeout is used when Wait is called with a
// zero timeout.
func NewBroker(repo store.PermissionRepository, defaultTimeout time.Duration, queueSize int) *Broker {
	return &Broker{
		repo:           repo,
		defaultTimeout: defaultTimeout,
		waiters:        make(map[string]chan decision),
		approvals:      make(map[string]map[string]bool),
		queue:          make(chan *store.PermissionRequest, queueSize),
	}
}

// Events exposes the global queue of freshly opened requests for
// EventFusion to drain and forward to the caller.
func (b *Broker) Events() <-chan *store.PermissionRequest {
	return b.queue
}

// PutBack returns req to the global queue unclaimed: the forwarder's own
// turn didn't own it (event.sessionId didn't match), so another turn's
// forwarder still needs a chance to see it. Non-blocking: a full queue
// drops nothing since req is already durably persisted and will be picked
// up on a future drain once capacity frees.
func (b *Broker) PutBack(req *store.PermissionRequest) {
	select {
	case b.queue <- req:
	default:
	}
}

func hashCommand(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])[:16]
}

// IsApproved reports whether command was already approved in this
// session's lifetime.
func (b *Broker) IsApproved(sessionKey, command string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.approvals[sessionKey]
	if !ok {
		return false
	}
	return set[hashCommand(command)]
}

// RememberApproval memoizes command as approved for sessionKey.
func (b *Broker) RememberApproval(sessionKey, command string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.approvals[sessionKey]
	if !ok {
		set = make(map[string]bool)
		b.approvals[sessionKey] = set
	}
	set[hashCommand(command)] = true
}

// OpenRequest persists a pending request, registers its waiter, enqueues it
// for EventFusion, and returns it.
func (b *Broker) OpenRequest(ctx context.Context, sessionKey, toolName string, toolInput map[string]any, reason string) (*store.PermissionRequest, error) {
	req := &store.PermissionRequest{
		SessionID: sessionKey,
		ToolName:  toolName,
		ToolInput: toolInput,
		Reason:    reason,
		State:     store.PermissionPending,
	}
	req, err := b.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan decision, 1)
	b.mu.Lock()
	b.waiters[req.ID] = ch
	b.mu.Unlock()

	select {
	case b.queue <- req:
	case <-ctx.Done():
		return req, ctx.Err()
	}
	return req, nil
}

// Wait blocks until requestID is resolved or timeout elapses. A timeout
// marks the record expired and returns approved=false. timeout<=0 uses the
// broker's default.
func (b *Broker) Wait(ctx context.Context, requestID string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	b.mu.Lock()
	ch, ok := b.waiters[requestID]
	b.mu.Unlock()
	if !ok {
		// Already resolved before Wait was called; consult the record.
		req, err := b.repo.Get(ctx, requestID)
		if err != nil {
			return false, err
		}
		return req.State == store.PermissionApproved, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-ch:
		return d.approved, nil
	case <-timer.C:
		b.expire(ctx, requestID)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve persists the terminal decision and wakes the waiter. Idempotent:
// resolving an already-terminal request is a no-op.
func (b *Broker) Resolve(ctx context.Context, requestID string, approve bool, feedback string) error {
	req, err := b.repo.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.State != store.PermissionPending {
		return nil
	}

	state := store.PermissionDenied
	if approve {
		state = store.PermissionApproved
	}
	if _, err := b.repo.Update(ctx, requestID, map[string]any{
		"state":    state,
		"feedback": feedback,
	}); err != nil {
		return err
	}
	b.wake(requestID, decision{approved: approve, feedback: feedback})
	return nil
}

func (b *Broker) expire(ctx context.Context, requestID string) {
	req, err := b.repo.Get(ctx, requestID)
	if err != nil || req.State != store.PermissionPending {
		return
	}
	b.repo.Update(ctx, requestID, map[string]any{"state": store.PermissionExpired})
	b.wake(requestID, decision{approved: false})
}

func (b *Broker) wake(requestID string, d decision) {
	b.mu.Lock()
	ch, ok := b.waiters[requestID]
	if ok {
		delete(b.waiters, requestID)
	}
	b.mu.Unlock()
	if ok {
		ch <- d
	}
}

// ExpireAllForSession marks every outstanding pending request for
// sessionKey as expired, waking their hooks with deny. This resolves the
// interrupt-vs-pending-permission race: Supervisor.Interrupt calls this so
// suspended hooks don't block a turn that will never resume.
func (b *Broker) ExpireAllForSession(ctx context.Context, sessionKey string) error {
	pending, err := b.repo.ListPending(ctx, sessionKey)
	if err != nil {
		return err
	}
	for _, req := range pending {
		b.expire(ctx, req.ID)
	}
	return nil
}

// RequestApproval implements the hooks.ApprovalBroker interface: it checks
// session memoization first, opens a request and blocks on it otherwise,
// and remembers the outcome on approval.
func (b *Broker) RequestApproval(ctx context.Context, sessionKey, toolName string, toolInput map[string]any, reason string) (bool, string, error) {
	cmd, _ := toolInput["command"].(string)
	if b.IsApproved(sessionKey, cmd) {
		return true, "", nil
	}
	req, err := b.OpenRequest(ctx, sessionKey, toolName, toolInput, reason)
	if err != nil {
		return false, "", err
	}
	approved, err := b.Wait(ctx, req.ID, 0)
	if err != nil {
		return false, req.ID, err
	}
	if approved {
		b.RememberApproval(sessionKey, cmd)
	}
	return approved, req.ID, nil
}
