// Package event provides a small in-process publish/subscribe bus used to
// fan scan progress and results out to interested listeners.
package event

import (
	"context"
	"sync"
)

// Names of the events published during a scan.
const (
	ScanStarted  = "scan.started"
	ScanProgress = "scan.progress"
	ScanResult   = "scan.result"
	ScanFinished = "scan.finished"
)

// Handler receives a published event.
type Handler func(ctx context.Context, data any)

// Manager routes published events to subscribed handlers. Handlers run in
// their own goroutine, so a slow listener never blocks a publisher.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewManager creates an empty bus.
func NewManager() *Manager {
	return &Manager{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the named event.
func (m *Manager) Subscribe(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], handler)
}

// Publish delivers data to every handler subscribed to the named event.
// Publishing with no subscribers is a no-op.
func (m *Manager) Publish(ctx context.Context, name string, data any) {
	m.mu.RLock()
	handlers := m.handlers[name]
	m.mu.RUnlock()

	for _, handler := range handlers {
		go handler(ctx, data)
	}
}
