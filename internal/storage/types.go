package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot + journal for bindings, JSON Lines audit
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Binding remembers the display channel a name was last applied to.
type Binding struct {
	ChannelID string    `json:"channel_id"`
	Display   string    `json:"display"`
	SyncedAt  time.Time `json:"synced_at"`
}

// AuditEntry records one call against the display backend.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	Channel string    `json:"channel,omitempty"`
	Display string    `json:"display"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}
