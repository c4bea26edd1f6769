package scanexec

import "sync"

// Handle tracks one running scan.
type Handle struct {
	ScanID    string
	EngineID  string
	MainIndex int
	PID       int
}

// Registry holds the scans currently executing. Its Active count gates
// feed reloads.
type Registry struct {
	mu    sync.RWMutex
	scans map[string]*Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{scans: make(map[string]*Handle)}
}

// Add registers a running scan. A scan ID can only run once at a time.
func (r *Registry) Add(handle *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scans[handle.ScanID]; exists {
		return NewAlreadyRunningError(handle.ScanID)
	}
	r.scans[handle.ScanID] = handle
	return nil
}

// Remove unregisters a scan. Unknown IDs are ignored.
func (r *Registry) Remove(scanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scans, scanID)
}

// Update fills in the engine-side details of a scan once they are known.
// Unknown IDs are ignored.
func (r *Registry) Update(scanID, engineID string, mainIndex, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.scans[scanID]; ok {
		handle.EngineID = engineID
		handle.MainIndex = mainIndex
		handle.PID = pid
	}
}

// Get returns a copy of a running scan's handle.
func (r *Registry) Get(scanID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.scans[scanID]
	if !ok {
		return Handle{}, false
	}
	return *handle, true
}

// Active returns the number of running scans.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scans)
}
