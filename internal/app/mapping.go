package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dayzmon/internal/commands"
	"dayzmon/internal/config"
	"dayzmon/internal/monitor"
	"dayzmon/internal/observability/ops"
	"dayzmon/internal/query/a2s"
	"dayzmon/internal/query/battlemetrics"
	"dayzmon/internal/storage"
	kit "dayzmon/internal/transport"
	"dayzmon/internal/transport/discord"
	"dayzmon/internal/transport/telegram"
	"dayzmon/pkg/logx"
)

const (
	defaultCycleTimeout   = 30 * time.Second
	defaultQueryTimeout   = 3 * time.Second
	defaultCommandTimeout = 10 * time.Second
	defaultPollTimeout    = 10 * time.Second
	defaultBusyTimeout    = time.Second
	defaultRenameEvery    = 5 * time.Minute
	defaultRenameBurst    = 2
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, defaultBusyTimeout),
	}, true
}

func mapPollerConfig(cfg *config.Config) (monitor.PollerConfig, error) {
	sched, err := monitor.ParseSchedule(cfg.Monitor.Schedule)
	if err != nil {
		return monitor.PollerConfig{}, fmt.Errorf("%w: monitor.schedule: %w", config.ErrInvalid, err)
	}
	return monitor.PollerConfig{
		Schedule:     sched,
		CycleTimeout: config.DurationOr(cfg.Monitor.CycleTimeout, defaultCycleTimeout),
	}, nil
}

// mapSource builds the configured Source. hc is used for BattleMetrics; nil
// keeps the client default.
func mapSource(cfg *config.Config, hc *http.Client, log logx.Logger) monitor.Source {
	m := cfg.Monitor
	newA2S := func() monitor.Source {
		timeout := config.DurationOr(m.QueryTimeout, defaultQueryTimeout)
		return a2s.NewSource(a2s.NewClient(a2s.NormalizeAddr(strings.TrimSpace(m.Address)), timeout))
	}
	newBM := func() monitor.Source {
		var opts []battlemetrics.Option
		if hc != nil {
			opts = append(opts, battlemetrics.WithHTTPClient(hc))
		}
		if u := strings.TrimSpace(m.BattleMetrics.BaseURL); u != "" {
			opts = append(opts, battlemetrics.WithBaseURL(u))
		}
		return battlemetrics.NewClient(strings.TrimSpace(m.BattleMetrics.ServerID), m.BattleMetrics.Token, opts...)
	}
	switch config.SourceOf(m) {
	case config.SourceBattleMetrics:
		return newBM()
	case config.SourceAuto:
		return &monitor.FallbackSource{Primary: newA2S(), Secondary: newBM(), Log: log}
	default:
		return newA2S()
	}
}

func mapSyncConfig(cfg *config.Config) monitor.SyncConfig {
	sc := monitor.SyncConfig{
		DisplayName: strings.TrimSpace(cfg.Monitor.DisplayName),
		RenameEvery: config.DurationOrUnset(cfg.Chat.RenameLimit.Every, defaultRenameEvery),
		RenameBurst: cfg.Chat.RenameLimit.Burst,
	}
	if sc.RenameBurst <= 0 {
		sc.RenameBurst = defaultRenameBurst
	}
	switch platform(cfg) {
	case config.PlatformDiscord:
		sc.ChannelID = strings.TrimSpace(cfg.Chat.Discord.ChannelID)
	case config.PlatformTelegram:
		if id := cfg.Chat.Telegram.TopicID; id != 0 {
			sc.ChannelID = strconv.Itoa(id)
		}
	}
	return sc
}

func mapCommandsConfig(cfg *config.Config) commands.Config {
	return commands.Config{
		DisplayName: strings.TrimSpace(cfg.Monitor.DisplayName),
		OwnerIDs:    cfg.Chat.OwnerIDs,
		Timeout:     config.DurationOr(cfg.Chat.CommandTimeout, defaultCommandTimeout),
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	o := cfg.Ops
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          strings.TrimSpace(o.Addr),
		Token:         strings.TrimSpace(o.Token),
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   config.DurationOr(o.ReadTimeout, 10*time.Second),
		WriteTimeout:  config.DurationOr(o.WriteTimeout, 0),
		IdleTimeout:   config.DurationOr(o.IdleTimeout, 60*time.Second),
	}
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	t := cfg.Chat.Telegram
	tc := telegram.Config{
		Token:       strings.TrimSpace(t.Token),
		APIURL:      strings.TrimSpace(t.APIURL),
		GroupID:     t.GroupID,
		PollTimeout: config.DurationOr(t.PollTimeout, defaultPollTimeout),
	}
	if t.LogChatID != 0 {
		tc.LogTarget = kit.ChatTarget{ChatID: strconv.FormatInt(t.LogChatID, 10), ThreadID: t.LogThreadID}
	}
	return tc
}

func mapDiscordConfig(cfg *config.Config) discord.Config {
	d := cfg.Chat.Discord
	return discord.Config{
		Token:        strings.TrimSpace(d.Token),
		GuildID:      strings.TrimSpace(d.GuildID),
		LogChannelID: strings.TrimSpace(d.LogChannelID),
	}
}

func platform(cfg *config.Config) string {
	return strings.ToLower(strings.TrimSpace(cfg.Chat.Platform))
}
