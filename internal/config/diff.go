package config

import (
	"reflect"
	"strings"

	"dayzmon/pkg/logx"
)

// LiveSections can be applied without a restart.
var LiveSections = map[string]bool{"logging": true, "chat.owner_ids": true}

// SummarizeChange returns the changed top-level sections (sorted by
// declaration order) and safe structured attrs for logging. Secrets are
// reported only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Monitor, newCfg.Monitor) {
		changed = append(changed, "monitor")
		m := newCfg.Monitor
		attrs = append(attrs,
			logx.String("monitor.address", m.Address),
			logx.String("monitor.source", SourceOf(m)),
			logx.String("monitor.schedule", m.Schedule),
			logx.Bool("monitor.battlemetrics.token_set", strings.TrimSpace(m.BattleMetrics.Token) != ""),
		)
	}
	oc, nc := oldCfg.Chat, newCfg.Chat
	if !reflect.DeepEqual(oc.OwnerIDs, nc.OwnerIDs) {
		changed = append(changed, "chat.owner_ids")
		attrs = append(attrs, logx.Int("chat.owner_count", len(nc.OwnerIDs)))
	}
	oc.OwnerIDs, nc.OwnerIDs = nil, nil
	if !reflect.DeepEqual(oc, nc) {
		changed = append(changed, "chat")
		c := newCfg.Chat
		attrs = append(attrs,
			logx.String("chat.platform", c.Platform),
			logx.Bool("chat.discord.token_set", strings.TrimSpace(c.Discord.Token) != ""),
			logx.Bool("chat.telegram.token_set", strings.TrimSpace(c.Telegram.Token) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		l := newCfg.Logging
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.chat_enabled", l.Chat.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}
	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}
	return changed, attrs
}

// RestartRequired lists the changed sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
