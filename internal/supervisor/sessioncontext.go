package supervisor

import "sync"

// sessionContext is the mutable cell a turn's HumanApprovalGate closure
// captures by reference (spec.md §4.7 step 3, §9): at construction time
// the model agent hasn't assigned a session id yet, so hooks that need
// "the session id permission requests should be keyed by" must read the
// current value at call time, not a value copied in when the chain was
// built.
type sessionContext struct {
	mu  sync.RWMutex
	key string // the broker/session key: resume id, else agent id, until init
}

func newSessionContext(initial string) *sessionContext {
	return &sessionContext{key: initial}
}

func (c *sessionContext) Key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *sessionContext) SetKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
}
