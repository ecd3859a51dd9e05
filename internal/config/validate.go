package config

import (
	"errors"
	"fmt"
	"strings"

	"dayzmon/internal/monitor"
	"dayzmon/pkg/logx"
)

// ErrInvalid marks configuration that cannot be started with.
var ErrInvalid = errors.New("invalid config")

// Validate reports every problem found, joined, wrapped in ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	mon := cfg.Monitor
	if strings.TrimSpace(mon.DisplayName) == "" {
		bad("monitor.display_name is required")
	}
	switch src := SourceOf(mon); src {
	case SourceA2S, SourceBattleMetrics, SourceAuto:
		if src != SourceBattleMetrics && strings.TrimSpace(mon.Address) == "" {
			bad("monitor.address is required for source %q", src)
		}
		if src != SourceA2S && strings.TrimSpace(mon.BattleMetrics.ServerID) == "" {
			bad("monitor.battlemetrics.server_id is required for source %q", src)
		}
	default:
		bad("monitor.source: unknown source %q", mon.Source)
	}
	if _, err := monitor.ParseSchedule(mon.Schedule); err != nil {
		bad("monitor.schedule: %w", err)
	}
	durations := map[string]string{
		"monitor.cycle_timeout":      mon.CycleTimeout,
		"monitor.query_timeout":      mon.QueryTimeout,
		"chat.command_timeout":       cfg.Chat.CommandTimeout,
		"chat.rename_limit.every":    cfg.Chat.RenameLimit.Every,
		"chat.telegram.poll_timeout": cfg.Chat.Telegram.PollTimeout,
		"ops.read_timeout":           cfg.Ops.ReadTimeout,
		"ops.write_timeout":          cfg.Ops.WriteTimeout,
		"ops.idle_timeout":           cfg.Ops.IdleTimeout,
	}
	if cfg.Storage != nil {
		durations["storage.busy_timeout"] = cfg.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Chat.RenameLimit.Burst < 0 {
		bad("chat.rename_limit.burst must be >= 0")
	}

	chat := cfg.Chat
	switch strings.ToLower(strings.TrimSpace(chat.Platform)) {
	case PlatformDiscord:
		if strings.TrimSpace(chat.Discord.Token) == "" {
			bad("chat.discord.token is required (or set %s)", EnvDiscordToken)
		}
		if strings.TrimSpace(chat.Discord.GuildID) == "" {
			bad("chat.discord.guild_id is required")
		}
	case PlatformTelegram:
		if strings.TrimSpace(chat.Telegram.Token) == "" {
			bad("chat.telegram.token is required (or set %s)", EnvTelegramToken)
		}
		if chat.Telegram.GroupID == 0 {
			bad("chat.telegram.group_id is required")
		}
	case "":
		bad("chat.platform is required (discord or telegram)")
	default:
		bad("chat.platform: unknown platform %q", chat.Platform)
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		bad("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Chat.MinLevel) {
		bad("logging.chat.min_level: unknown level %q", cfg.Logging.Chat.MinLevel)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		bad("logging.file.path is required when file logging is enabled")
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				bad("storage.path is required for driver %q", st.Driver)
			}
		default:
			bad("storage.driver: unknown driver %q", st.Driver)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// SourceOf returns the normalized source name, defaulting to a2s.
func SourceOf(m MonitorConfig) string {
	s := strings.ToLower(strings.TrimSpace(m.Source))
	if s == "" {
		return SourceA2S
	}
	return s
}
