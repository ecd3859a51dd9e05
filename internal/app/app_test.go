package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dayzmon/internal/config"
	"dayzmon/internal/eventbus"
	"dayzmon/internal/monitor"
	kit "dayzmon/internal/transport"
	"dayzmon/pkg/logx"
	"dayzmon/pkg/systemd"
)

func testConfig() *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{
			Address:     "203.0.113.7",
			DisplayName: " DayZ EU ",
		},
		Chat: config.ChatConfig{
			Platform: "Discord",
			OwnerIDs: []string{"1"},
			Discord:  config.DiscordConfig{Token: "t", GuildID: "g", ChannelID: " 99 "},
		},
	}
}

func TestMapSyncConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   monitor.SyncConfig
	}{
		{"defaults", func(*config.Config) {}, monitor.SyncConfig{
			DisplayName: "DayZ EU", ChannelID: "99", RenameEvery: defaultRenameEvery, RenameBurst: defaultRenameBurst,
		}},
		{"limit disabled", func(c *config.Config) { c.Chat.RenameLimit = config.RenameLimitConfig{Every: "0s", Burst: 1} }, monitor.SyncConfig{
			DisplayName: "DayZ EU", ChannelID: "99", RenameEvery: 0, RenameBurst: 1,
		}},
		{"telegram topic", func(c *config.Config) {
			c.Chat.Platform = "telegram"
			c.Chat.Telegram.TopicID = 17
		}, monitor.SyncConfig{
			DisplayName: "DayZ EU", ChannelID: "17", RenameEvery: defaultRenameEvery, RenameBurst: defaultRenameBurst,
		}},
		{"telegram no topic", func(c *config.Config) { c.Chat.Platform = "telegram" }, monitor.SyncConfig{
			DisplayName: "DayZ EU", RenameEvery: defaultRenameEvery, RenameBurst: defaultRenameBurst,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tc.mutate(cfg)
			if got := mapSyncConfig(cfg); got != tc.want {
				t.Fatalf("mapSyncConfig = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMapPollerConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	pc, err := mapPollerConfig(cfg)
	if err != nil {
		t.Fatalf("mapPollerConfig: %v", err)
	}
	if pc.CycleTimeout != defaultCycleTimeout {
		t.Fatalf("cycle timeout = %v", pc.CycleTimeout)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if next := pc.Schedule.Next(base); next.Sub(base) != time.Minute {
		t.Fatalf("default schedule next = %v", next)
	}

	cfg.Monitor.Schedule = "nonsense"
	if _, err := mapPollerConfig(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestMapSource(t *testing.T) {
	t.Parallel()

	cases := []struct {
		source, want string
	}{
		{"", "a2s"},
		{"a2s", "a2s"},
		{"battlemetrics", "battlemetrics"},
		{"auto", "a2s+battlemetrics"},
	}
	for _, tc := range cases {
		cfg := testConfig()
		cfg.Monitor.Source = tc.source
		cfg.Monitor.BattleMetrics.ServerID = "123"
		if got := mapSource(cfg, nil, logx.Nop()).Name(); got != tc.want {
			t.Fatalf("source %q: Name() = %q, want %q", tc.source, got, tc.want)
		}
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if _, ok := mapStorageConfig(cfg); ok {
		t.Fatalf("nil storage section enabled storage")
	}
	cfg.Storage = &config.StorageConfig{Driver: "none"}
	if _, ok := mapStorageConfig(cfg); ok {
		t.Fatalf("driver none enabled storage")
	}
	cfg.Storage = &config.StorageConfig{Driver: "SQLite", Path: " ./x.db "}
	sc, ok := mapStorageConfig(cfg)
	if !ok || sc.Driver != "sqlite" || sc.Path != "./x.db" || sc.BusyTimeout != defaultBusyTimeout {
		t.Fatalf("mapStorageConfig = %+v, %v", sc, ok)
	}
}

func TestMapTelegramLogTarget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Chat.Telegram = config.TelegramConfig{Token: "t", GroupID: -100, LogChatID: -200, LogThreadID: 5}
	tc := mapTelegramConfig(cfg)
	if tc.LogTarget != (kit.ChatTarget{ChatID: "-200", ThreadID: 5}) {
		t.Fatalf("log target = %+v", tc.LogTarget)
	}
	if tc.PollTimeout != defaultPollTimeout {
		t.Fatalf("poll timeout = %v", tc.PollTimeout)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(`{"monitor": {"display_name": "x"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(p); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestPresenceText(t *testing.T) {
	t.Parallel()

	q, tm := uint32(5), "12:34"
	cases := []struct {
		snap monitor.Snapshot
		want string
	}{
		{monitor.Snapshot{Players: 3, MaxPlayers: 60}, "3/60 players"},
		{monitor.Snapshot{Players: 60, MaxPlayers: 60, PlayersInQueue: &q, ServerTime: &tm}, "60(+5)/60 players | 12:34"},
	}
	for _, tc := range cases {
		if got := presenceText(&tc.snap); got != tc.want {
			t.Fatalf("presenceText = %q, want %q", got, tc.want)
		}
	}
}

type presenceAdapter struct {
	kit.Adapter // unused methods panic

	mu    sync.Mutex
	texts []string
	seen  chan struct{}
}

func (p *presenceAdapter) SetPresence(_ context.Context, text string) error {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	p.seen <- struct{}{}
	return nil
}

func TestPresenceLoopSkipsUnchanged(t *testing.T) {
	t.Parallel()

	ad := &presenceAdapter{seen: make(chan struct{}, 4)}
	a := &App{
		cfg:     testConfig(),
		log:     logx.Nop(),
		adapter: ad,
		sd:      systemd.NewNotifier(logx.Nop()),
	}
	events := make(chan eventbus.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.presenceLoop(ctx, events)
		close(done)
	}()

	snap := &monitor.Snapshot{Players: 1, MaxPlayers: 10}
	events <- eventbus.Event{Type: eventbus.TypeSnapshot, Data: snap}
	events <- eventbus.Event{Type: eventbus.TypeSynced, Data: "x"}
	events <- eventbus.Event{Type: eventbus.TypeSnapshot, Data: &monitor.Snapshot{Players: 1, MaxPlayers: 10}}
	events <- eventbus.Event{Type: eventbus.TypeSnapshot, Data: &monitor.Snapshot{Players: 2, MaxPlayers: 10}}

	for i := 0; i < 2; i++ {
		select {
		case <-ad.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("presence update %d not seen", i)
		}
	}
	cancel()
	<-done

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.texts) != 2 || ad.texts[0] != "1/10 players" || ad.texts[1] != "2/10 players" {
		t.Fatalf("presence texts = %q", ad.texts)
	}
}
