package model

import (
	"encoding/json"
	"time"
)

// Snapshot is one complete point-in-time reading of named numeric metrics.
// A new snapshot replaces the previous one for its window; it is never merged.
type Snapshot map[string]float64

// Clone returns an independent copy of s. A nil snapshot clones to nil.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// WindowView is a read-only copy of one stats window, shaped for transport.
type WindowView struct {
	Current    Snapshot  `json:"current"`
	Baseline   Snapshot  `json:"baseline"` // nil until the first update
	Relative   Snapshot  `json:"relative"` // current minus baseline, for fields present in both
	LastUpdate time.Time `json:"last_update"`
	Online     bool      `json:"online"`
}

// ConnState is the lifecycle state of the subscriber connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateWaitingForData
	StateAlive
	StateDead
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateWaitingForData:
		return "waiting-for-data"
	case StateAlive:
		return "alive"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText lets ConnState travel as its name in JSON and YAML.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ConnState) UnmarshalText(text []byte) error {
	for c := StateDisconnected; c <= StateDead; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	*s = StateDisconnected
	return nil
}

// FeedStatus summarizes the subscriber connection.
type FeedStatus struct {
	Target      string    `json:"target"`
	State       ConnState `json:"state"`
	Alive       bool      `json:"alive"`
	Messages    uint64    `json:"messages"`
	Malformed   uint64    `json:"malformed"`
	LastMessage time.Time `json:"last_message"` // zero until the first message
}

// Event is one event message delivered by the feed.
type Event struct {
	Received time.Time       `json:"received"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}
