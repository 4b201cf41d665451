package subscriber

import (
	"encoding/json"
	"sort"
	"sync"
)

// Archive keeps the most recent raw payload per message name.
type Archive struct {
	mu       sync.RWMutex
	payloads map[string]json.RawMessage
}

func NewArchive() *Archive {
	return &Archive{payloads: make(map[string]json.RawMessage)}
}

// Put records data as the latest payload for name.
func (a *Archive) Put(name string, data json.RawMessage) {
	cp := append(json.RawMessage(nil), data...)
	a.mu.Lock()
	a.payloads[name] = cp
	a.mu.Unlock()
}

// Get returns a copy of the latest payload for name.
func (a *Archive) Get(name string) (json.RawMessage, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.payloads[name]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), data...), true
}

// Names returns the archived message names in sorted order.
func (a *Archive) Names() []string {
	a.mu.RLock()
	names := make([]string, 0, len(a.payloads))
	for name := range a.payloads {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)
	return names
}
