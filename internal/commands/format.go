package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dayzmon/internal/monitor"
)

// NoData is the reply to every read command before the first successful poll.
const NoData = "No server data yet, try again in a minute."

const noTime = "Server time is unavailable right now."

func FormatTime(s *monitor.Snapshot) string {
	if s == nil {
		return NoData
	}
	if s.ServerTime == nil {
		return noTime
	}
	return "Time on the server is: `" + *s.ServerTime + "`"
}

func FormatCount(s *monitor.Snapshot) string {
	if s == nil {
		return NoData
	}
	if s.PlayersInQueue == nil {
		return fmt.Sprintf("%d / %d players online.", s.Players, s.MaxPlayers)
	}
	return fmt.Sprintf("%d (+ %d) / %d players online.", s.Players, *s.PlayersInQueue, s.MaxPlayers)
}

// FormatStatus renders "<name> is online (<players>/<max>), updated <age> ago".
// fallbackName is used when the server reported no name.
func FormatStatus(s *monitor.Snapshot, fallbackName string, now time.Time) string {
	if s == nil {
		return NoData
	}
	return fmt.Sprintf("%s is online (%d/%d), updated %s ago", nameOr(s, fallbackName), s.Players, s.MaxPlayers, age(s, now))
}

func FormatInfo(s *monitor.Snapshot, fallbackName string, now time.Time) string {
	if s == nil {
		return NoData
	}
	var b strings.Builder
	b.WriteString(nameOr(s, fallbackName))
	b.WriteString("\nMap: ")
	b.WriteString(orDash(s.Map))
	b.WriteString("\nTime: ")
	if s.ServerTime != nil {
		b.WriteString(*s.ServerTime)
	} else {
		b.WriteString("-")
	}
	fmt.Fprintf(&b, "\nPlayers: %d/%d", s.Players, s.MaxPlayers)
	b.WriteString("\nQueue: ")
	if s.PlayersInQueue != nil {
		b.WriteString(strconv.FormatUint(uint64(*s.PlayersInQueue), 10))
	} else {
		b.WriteString("-")
	}
	b.WriteString("\nSource: ")
	b.WriteString(orDash(s.Source))
	b.WriteString("\nUpdated: ")
	b.WriteString(age(s, now))
	b.WriteString(" ago")
	return b.String()
}

func nameOr(s *monitor.Snapshot, fallback string) string {
	if s.Name != "" {
		return s.Name
	}
	return fallback
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func age(s *monitor.Snapshot, now time.Time) string {
	if s.Observed.IsZero() {
		return "?"
	}
	d := now.Sub(s.Observed).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}
