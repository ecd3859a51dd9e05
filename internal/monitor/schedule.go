package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule polls once a minute.
const DefaultSchedule = "60s"

// ParseSchedule turns a poll schedule string into a cron.Schedule.
//
// Supported forms:
//   - Interval duration: "60s", "2m", optionally prefixed "every:" or "interval:"
//   - Cron: "*/2 * * * *", "@every 1m", "@hourly", optionally prefixed "cron:"
//
// Empty input means DefaultSchedule.
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultSchedule
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseEvery(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseEvery(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(s)
	default:
		return parseEvery(s)
	}
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron schedule required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return sched, nil
}

func parseEvery(v string) (cron.Schedule, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q (use a Go duration like '60s' or a cron spec)", v)
	}
	// cron.Every rounds down to whole seconds.
	if d < time.Second {
		return nil, fmt.Errorf("interval must be >= 1s, got %s", d)
	}
	return cron.Every(d), nil
}
