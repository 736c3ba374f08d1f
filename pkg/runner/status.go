package runner

import (
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
)

// Status is a point-in-time view of one supervised component.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Cycles    int64     `json:"cycles"`
	Failures  int64     `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
}

// Registry collects component statuses for health reporting.
type Registry struct {
	mu     sync.RWMutex
	status map[string]*Status
}

func NewRegistry() *Registry {
	return &Registry{status: make(map[string]*Status)}
}

func (r *Registry) update(name string, fn func(*Status)) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[name]
	if !ok {
		s = &Status{Name: name, State: StateStopped}
		r.status[name] = s
	}
	fn(s)
}

// MarkDegraded records a component that could not start.
func (r *Registry) MarkDegraded(name string, err error) {
	r.update(name, func(s *Status) {
		s.State = StateDegraded
		if err != nil {
			s.LastError = err.Error()
		}
	})
}

// Snapshot returns all statuses ordered by name.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.status))
	for _, s := range r.status {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy is false when any component is degraded.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.status {
		if s.State == StateDegraded {
			return false
		}
	}
	return true
}
