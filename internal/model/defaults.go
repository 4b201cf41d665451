package model

import "time"

// Shared defaults used by both the daemon and TUI binaries.
const (
	DefaultUpdateInterval = time.Second
	DefaultServer         = "localhost"
	DefaultPort           = 4500
	DefaultConnectTimeout = 5 * time.Second
	DefaultRecvTimeout    = 5 * time.Second
	DefaultOnlineWindow   = 2 * time.Second
	DefaultMaxEntityID    = 8

	// Canonical wire names for the two message families the subscriber routes.
	DefaultStatsMessage = "stats"
	DefaultEventMessage = "event"
)

// NotAvailable is the rendered form of a metric that is absent.
const NotAvailable = "N/A"
