package config

// Config is the on-disk configuration. All durations are Go duration strings
// ("500ms", "30s", "10m").
type Config struct {
	Monitor MonitorConfig  `json:"monitor"`
	Chat    ChatConfig     `json:"chat"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Ops     OpsConfig      `json:"ops,omitempty"`
}

// Query sources.
const (
	SourceA2S           = "a2s"
	SourceBattleMetrics = "battlemetrics"
	// SourceAuto queries A2S and falls back to BattleMetrics on failure.
	SourceAuto = "auto"
)

// Chat platforms.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

type MonitorConfig struct {
	// Address is host[:query_port] of the game server.
	Address string `json:"address"`
	// DisplayName prefixes the synced channel name and identifies it on rescans.
	DisplayName string `json:"display_name"`
	// Source is a2s (default), battlemetrics or auto.
	Source string `json:"source,omitempty"`
	// Schedule is an interval ("60s", "every:30s") or cron spec ("*/2 * * * *").
	Schedule     string `json:"schedule,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"` // default 30s
	QueryTimeout string `json:"query_timeout,omitempty"` // default 3s

	BattleMetrics BattleMetricsConfig `json:"battlemetrics,omitempty"`
}

type BattleMetricsConfig struct {
	ServerID string `json:"server_id,omitempty"`
	Token    string `json:"token,omitempty"` // optional bearer token (do not log)
	BaseURL  string `json:"base_url,omitempty"`
}

type ChatConfig struct {
	Platform string `json:"platform"`
	// OwnerIDs may run owner-only commands (refresh). Platform user ids.
	OwnerIDs []string `json:"owner_ids,omitempty"`
	// CommandTimeout bounds a single command handler (default 10s).
	CommandTimeout string `json:"command_timeout,omitempty"`

	RenameLimit RenameLimitConfig `json:"rename_limit,omitempty"`

	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

// RenameLimitConfig is a token bucket over external sync calls.
//
// Defaults: every 5m, burst 2 (Discord allows two channel renames per 10 minutes).
// every "0s" disables limiting.
type RenameLimitConfig struct {
	Every string `json:"every,omitempty"`
	Burst int    `json:"burst,omitempty"`
}

type DiscordConfig struct {
	Token   string `json:"token,omitempty"`
	GuildID string `json:"guild_id,omitempty"`
	// ChannelID pins the synced channel; empty scans by display_name prefix.
	ChannelID    string `json:"channel_id,omitempty"`
	LogChannelID string `json:"log_channel_id,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	APIURL string `json:"api_url,omitempty"`
	// GroupID is the forum supergroup holding the display topic.
	GroupID int64 `json:"group_id,omitempty"`
	// TopicID pins the synced topic; 0 reuses or creates one.
	TopicID     int    `json:"topic_id,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChatID/LogThreadID receive forwarded log lines.
	LogChatID   int64 `json:"log_chat_id,omitempty"`
	LogThreadID int   `json:"log_thread_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards log lines at or above MinLevel to the chat log target.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dayzmon.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// OpsConfig controls the optional /healthz, /metrics and pprof server.
//
// Security note:
//   - Prefer binding to localhost (default "127.0.0.1:9108").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// WriteTimeout defaults to 0 (disabled) so /debug/pprof/profile works.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
