package model

import "encoding/json"

// FeedHandler receives callbacks from the subscriber. All methods run on the
// subscriber's worker goroutine, never on the goroutine that called Connect,
// and must not call back into Connect or Disconnect.
type FeedHandler interface {
	OnFeedAlive()
	OnFeedDead()
	OnStatsUpdate(data Snapshot)
	OnEvent(eventType string, data json.RawMessage)
}

// StatsReader is the read contract shared by the socket RPC and HTTP surfaces.
type StatsReader interface {
	FeedStatus() FeedStatus
	GeneralStats() WindowView
	EntityIDs() []int
	EntityStats(id int) (WindowView, bool)
	RawSnapshot(name string) (json.RawMessage, bool)
	RawSnapshotNames() []string
	RecentEvents(limit int) []Event
}

// BaselineResetter zeroes relative counters going forward.
type BaselineResetter interface {
	ResetBaselines()
}

// StatsAPI is the unified contract for read surfaces that may also reset baselines.
type StatsAPI interface {
	StatsReader
	BaselineResetter
}
