package launch

import (
	"os"
	"sort"
	"sync"
)

// Registry maps pids of running subprocess launches to their handles.
// It is owned by whoever constructs the launcher; there is no global instance.
type Registry struct {
	mu    sync.Mutex
	byPID map[int]*Handle
}

func NewRegistry() *Registry {
	return &Registry{byPID: make(map[int]*Handle)}
}

func (r *Registry) Add(h *Handle) {
	r.mu.Lock()
	r.byPID[h.PID] = h
	r.mu.Unlock()
}

func (r *Registry) Get(pid int) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byPID[pid]
	return h, ok
}

// Remove drops pid. It only removes h itself, so a recycled pid registered
// by a newer launch survives the older launch's cleanup.
func (r *Registry) Remove(h *Handle) {
	r.mu.Lock()
	if cur, ok := r.byPID[h.PID]; ok && cur == h {
		delete(r.byPID, h.PID)
	}
	r.mu.Unlock()
}

// List returns running handles, oldest first.
func (r *Registry) List() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.byPID))
	for _, h := range r.byPID {
		out = append(out, h)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].PID < out[j].PID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byPID)
}

// Signal delivers sig to the launch registered under pid.
func (r *Registry) Signal(pid int, sig os.Signal) error {
	h, ok := r.Get(pid)
	if !ok {
		return ErrNotRunning
	}
	return h.Signal(sig)
}
