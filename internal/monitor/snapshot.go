package monitor

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// RawStatus is what a Source returns for one round trip.
//
// Keywords is nil when the response carried no status blob field; an empty
// string is a present but token-free blob.
type RawStatus struct {
	Name       string
	Map        string
	Players    uint32
	MaxPlayers uint32
	Keywords   *string
	// Source overrides Source.Name() for composite sources.
	Source string
}

// Source performs one round trip to the monitored server.
type Source interface {
	Name() string
	Query(ctx context.Context) (RawStatus, error)
}

// Snapshot is one immutable reading of server state. It is never mutated
// after Extract returns; a new cycle builds a new value.
type Snapshot struct {
	ServerTime     *string
	PlayersInQueue *uint32
	Players        uint32
	MaxPlayers     uint32

	Name     string
	Map      string
	Source   string
	Observed time.Time
}

// OverCapacity reports a players > max_players reading. It is tolerated.
func (s *Snapshot) OverCapacity() bool {
	return s != nil && s.MaxPlayers > 0 && s.Players > s.MaxPlayers
}

// DisplayName derives the channel name for snap, e.g. "DayZ EU: 40(+5)/60".
func DisplayName(prefix string, snap *Snapshot) string {
	if snap == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(": ")
	b.WriteString(strconv.FormatUint(uint64(snap.Players), 10))
	if snap.PlayersInQueue != nil {
		b.WriteString("(+")
		b.WriteString(strconv.FormatUint(uint64(*snap.PlayersInQueue), 10))
		b.WriteString(")")
	}
	b.WriteString("/")
	b.WriteString(strconv.FormatUint(uint64(snap.MaxPlayers), 10))
	return b.String()
}
