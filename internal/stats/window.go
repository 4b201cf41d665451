package stats

import (
	"sync"
	"time"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// Window holds the current and baseline snapshots of one metric family.
// It is safe for concurrent use: the subscriber worker updates it while
// read surfaces query it.
type Window struct {
	mu           sync.RWMutex
	clock        Clock
	onlineWindow time.Duration
	current      model.Snapshot
	baseline     model.Snapshot
	lastUpdate   time.Time
}

// NewWindow creates an empty window. A nil clock uses the system clock and a
// non-positive onlineWindow falls back to model.DefaultOnlineWindow.
func NewWindow(clock Clock, onlineWindow time.Duration) *Window {
	if clock == nil {
		clock = RealClock{}
	}
	if onlineWindow <= 0 {
		onlineWindow = model.DefaultOnlineWindow
	}
	return &Window{
		clock:        clock,
		onlineWindow: onlineWindow,
		current:      model.Snapshot{},
		lastUpdate:   clock.Now(),
	}
}

// Update replaces the current snapshot. The first update also becomes the baseline.
func (w *Window) Update(snapshot model.Snapshot) {
	cur := snapshot.Clone()
	if cur == nil {
		cur = model.Snapshot{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastUpdate = w.clock.Now()
	w.current = cur
	if w.baseline == nil {
		w.baseline = cur.Clone()
	}
}

// ResetBaseline makes the current snapshot the new baseline.
func (w *Window) ResetBaseline() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.baseline = w.current.Clone()
}

// Get returns the absolute value of field. ok is false when field is absent.
func (w *Window) Get(field string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.current[field]
	return v, ok
}

// Relative returns current minus baseline for field. ok is false when field is
// absent from either snapshot.
func (w *Window) Relative(field string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return relative(w.current, w.baseline, field)
}

// GetFormatted renders Get through FormatMagnitude, or model.NotAvailable.
func (w *Window) GetFormatted(field, suffix string) string {
	v, ok := w.Get(field)
	if !ok {
		return model.NotAvailable
	}
	return FormatMagnitude(v, suffix)
}

// RelativeFormatted renders Relative through FormatMagnitude, or model.NotAvailable.
func (w *Window) RelativeFormatted(field, suffix string) string {
	v, ok := w.Relative(field)
	if !ok {
		return model.NotAvailable
	}
	return FormatMagnitude(v, suffix)
}

// IsOnline reports whether the window was updated within the online window.
func (w *Window) IsOnline() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isOnlineLocked()
}

// LastUpdate returns the time of the most recent Update.
func (w *Window) LastUpdate() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastUpdate
}

// View returns an independent copy of the window state.
func (w *Window) View() model.WindowView {
	w.mu.RLock()
	defer w.mu.RUnlock()

	rel := make(model.Snapshot, len(w.current))
	for field := range w.current {
		if v, ok := relative(w.current, w.baseline, field); ok {
			rel[field] = v
		}
	}
	return model.WindowView{
		Current:    w.current.Clone(),
		Baseline:   w.baseline.Clone(),
		Relative:   rel,
		LastUpdate: w.lastUpdate,
		Online:     w.isOnlineLocked(),
	}
}

func (w *Window) isOnlineLocked() bool {
	return w.clock.Now().Sub(w.lastUpdate) < w.onlineWindow
}

func relative(current, baseline model.Snapshot, field string) (float64, bool) {
	cur, ok := current[field]
	if !ok {
		return 0, false
	}
	base, ok := baseline[field]
	if !ok {
		return 0, false
	}
	return cur - base, true
}
