package kb

import (
	"context"
	"fmt"
	"sync"
)

// SessionError reports a misuse of the session manager, such as releasing an
// index that is not held. These are programming errors in the caller, not
// recoverable runtime conditions.
type SessionError struct {
	Index int
	Op    string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("kb session: %s index %d not held", e.Op, e.Index)
}

// ErrNoFreeIndex is returned by Allocate when every scan index is in use.
var ErrNoFreeIndex = fmt.Errorf("kb session: no free index available")

// SessionManager hands out exclusive main indices for scans.
//
// An index is eligible for allocation when it is not tracked as held by this
// manager AND it is empty in the store. The second condition covers indices
// the engine claimed on its own as auxiliary scan space: those never pass
// through Allocate, but they are non-empty for as long as any consumer
// references them, so they are skipped.
type SessionManager struct {
	store Store

	mu   sync.Mutex
	held map[int]bool
}

// NewSessionManager creates a SessionManager on top of store.
func NewSessionManager(store Store) *SessionManager {
	return &SessionManager{
		store: store,
		held:  make(map[int]bool),
	}
}

// Allocate claims the lowest free scan index and returns it. Index 0 is
// reserved for the VT cache and never handed out.
func (m *SessionManager) Allocate(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for index := 1; index < m.store.MaxIndex(); index++ {
		if m.held[index] {
			continue
		}
		keys, err := m.store.Keys(ctx, index, "")
		if err != nil {
			return 0, fmt.Errorf("probe index %d: %w", index, err)
		}
		if len(keys) > 0 {
			continue
		}
		m.held[index] = true
		return index, nil
	}
	return 0, ErrNoFreeIndex
}

// Release flushes the index in the store and makes it eligible for a later
// Allocate. Releasing an index that is not currently held is an error.
func (m *SessionManager) Release(ctx context.Context, index int) error {
	m.mu.Lock()
	if !m.held[index] {
		m.mu.Unlock()
		return &SessionError{Index: index, Op: "release"}
	}
	delete(m.held, index)
	m.mu.Unlock()

	if err := m.store.Flush(ctx, index); err != nil {
		return fmt.Errorf("flush index %d: %w", index, err)
	}
	return nil
}

// ReleaseAux flushes an auxiliary index the engine claimed by itself. Such
// indices are not tracked by the manager, so there is no held-state check.
func (m *SessionManager) ReleaseAux(ctx context.Context, index int) error {
	if err := m.store.Flush(ctx, index); err != nil {
		return fmt.Errorf("flush aux index %d: %w", index, err)
	}
	return nil
}

// Held returns the number of indices currently held through Allocate.
func (m *SessionManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Conn is a cursor over the store bound to a current index, mirroring how
// the engine's own clients select a database before operating on it. Callers
// that need a pair of operations to land on the same index must re-Select
// immediately before the pair; the current index is the only state a Conn
// carries.
type Conn struct {
	store Store

	mu  sync.Mutex
	cur int
}

// NewConn creates a connection positioned on index 0.
func NewConn(store Store) *Conn {
	return &Conn{store: store}
}

// Select switches the connection's current index.
func (c *Conn) Select(index int) {
	c.mu.Lock()
	c.cur = index
	c.mu.Unlock()
}

// Index returns the connection's current index.
func (c *Conn) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Get reads the head value of key on the current index.
func (c *Conn) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.Get(ctx, c.Index(), key)
}

// Push appends values to key on the current index.
func (c *Conn) Push(ctx context.Context, key string, values ...string) error {
	return c.store.Push(ctx, c.Index(), key, values...)
}

// List returns all values of key on the current index.
func (c *Conn) List(ctx context.Context, key string) ([]string, error) {
	return c.store.List(ctx, c.Index(), key)
}

// Pop removes and returns the head value of key on the current index.
func (c *Conn) Pop(ctx context.Context, key string) (string, bool, error) {
	return c.store.Pop(ctx, c.Index(), key)
}

// RemoveListValue removes value from the list under key on the current index.
func (c *Conn) RemoveListValue(ctx context.Context, key, value string) error {
	return c.store.RemoveListValue(ctx, c.Index(), key, value)
}
