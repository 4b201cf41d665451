package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// RegistryConfig holds tunable parameters for the stats registry.
type RegistryConfig struct {
	EntityCount  int // entity ids 0..EntityCount-1
	OnlineWindow time.Duration
	Clock        Clock
}

// Registry owns the general window and one window per entity id seen so far.
// Entity windows are created on first sighting and never removed.
type Registry struct {
	mu           sync.RWMutex
	clock        Clock
	onlineWindow time.Duration
	maxEntityID  int
	general      *Window
	entities     map[int]*Window
}

// NewRegistry creates a registry. Zero-valued config fields fall back to
// defaults, so the entity id range is 0..model.DefaultMaxEntityID unless
// EntityCount is positive. EntityCount 1 accepts entity 0 only.
func NewRegistry(conf ...RegistryConfig) *Registry {
	maxEntityID := model.DefaultMaxEntityID
	onlineWindow := model.DefaultOnlineWindow
	var clock Clock = RealClock{}
	if len(conf) > 0 {
		if conf[0].EntityCount > 0 {
			maxEntityID = conf[0].EntityCount - 1
		}
		if conf[0].OnlineWindow > 0 {
			onlineWindow = conf[0].OnlineWindow
		}
		if conf[0].Clock != nil {
			clock = conf[0].Clock
		}
	}
	return &Registry{
		clock:        clock,
		onlineWindow: onlineWindow,
		maxEntityID:  maxEntityID,
		general:      NewWindow(clock, onlineWindow),
		entities:     make(map[int]*Window),
	}
}

// Update demultiplexes snapshot and routes each bucket to its window.
func (r *Registry) Update(snapshot model.Snapshot) {
	p := Demux(snapshot, r.maxEntityID)
	r.general.Update(p.General)

	for id, data := range p.Entities {
		r.entityWindow(id).Update(data)
	}
}

func (r *Registry) entityWindow(id int) *Window {
	r.mu.RLock()
	w, ok := r.entities[id]
	r.mu.RUnlock()
	if ok {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.entities[id]; ok {
		return w
	}
	w = NewWindow(r.clock, r.onlineWindow)
	r.entities[id] = w
	return w
}

// General returns the general window.
func (r *Registry) General() *Window {
	return r.general
}

// Entity returns the window for id, or false if id has never been seen.
func (r *Registry) Entity(id int) (*Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.entities[id]
	return w, ok
}

// EntityIDs returns the ids seen so far in ascending order.
func (r *Registry) EntityIDs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// ResetBaselines resets the baseline of every window.
func (r *Registry) ResetBaselines() {
	r.general.ResetBaseline()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.entities {
		w.ResetBaseline()
	}
}

// MaxEntityID returns the highest entity id the registry accepts.
func (r *Registry) MaxEntityID() int {
	return r.maxEntityID
}
