package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "monitor": {
    "address": "203.0.113.7:27016",
    "display_name": "DayZ EU #1",
    "schedule": "30s",
    "cycle_timeout": "20s"
  },
  "chat": {
    "platform": "discord",
    "owner_ids": ["42"],
    "rename_limit": {"every": "5m", "burst": 2},
    "discord": {"token": "file-token", "guild_id": "1001"}
  },
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}, "chat": {"enabled": false}},
  "storage": {"driver": "sqlite", "path": "./dayzmon.db"}
}`

const validYAML = `
monitor:
  address: 203.0.113.7:27016
  display_name: "DayZ EU #1"
  schedule: 30s
  cycle_timeout: 20s
chat:
  platform: discord
  owner_ids: ["42"]
  rename_limit: {every: 5m, burst: 2}
  discord: {token: file-token, guild_id: "1001"}
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  chat: {enabled: false}
storage: {driver: sqlite, path: ./dayzmon.db}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func noEnv(string) string { return "" }

func TestDecodeJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	j, err := Decode("config.json", []byte(validJSON))
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	y, err := Decode("config.yaml", []byte(validYAML))
	if err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if !reflect.DeepEqual(j, y) {
		t.Fatalf("json and yaml differ:\n%+v\n%+v", j, y)
	}
	if err := Validate(j); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, path, body string
	}{
		{"unknown field", "c.json", `{"monitor": {"adress": "x"}}`},
		{"trailing data", "c.json", `{} {}`},
		{"yaml unknown field", "c.yml", "chat:\n  platfrom: discord\n"},
		{"bad yaml", "c.yaml", "monitor: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestParseAppliesEnvOverrides(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "config.json", validJSON)
	m := NewManager(p)
	m.getenv = func(k string) string {
		switch k {
		case EnvDiscordToken:
			return "env-token"
		case EnvServerAddress:
			return " 198.51.100.2 "
		}
		return ""
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.Discord.Token != "env-token" {
		t.Fatalf("discord token = %q", cfg.Chat.Discord.Token)
	}
	if cfg.Monitor.Address != "198.51.100.2" {
		t.Fatalf("address = %q", cfg.Monitor.Address)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return the committed config")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "nope.json"))
	m.getenv = noEnv
	if _, err := m.Parse(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		cfg, err := Decode("c.json", []byte(validJSON))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return cfg
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string // substring of the error; empty means valid
	}{
		{"valid", func(*Config) {}, ""},
		{"no display name", func(c *Config) { c.Monitor.DisplayName = " " }, "monitor.display_name"},
		{"no address", func(c *Config) { c.Monitor.Address = "" }, "monitor.address"},
		{"battlemetrics needs id", func(c *Config) { c.Monitor.Source = "battlemetrics" }, "server_id"},
		{"battlemetrics without address", func(c *Config) {
			c.Monitor.Source = "BattleMetrics"
			c.Monitor.Address = ""
			c.Monitor.BattleMetrics.ServerID = "123"
		}, ""},
		{"auto needs both", func(c *Config) { c.Monitor.Source = "auto" }, "server_id"},
		{"unknown source", func(c *Config) { c.Monitor.Source = "gamedig" }, "unknown source"},
		{"bad schedule", func(c *Config) { c.Monitor.Schedule = "500ms" }, "monitor.schedule"},
		{"bad timeout", func(c *Config) { c.Monitor.CycleTimeout = "soon" }, "monitor.cycle_timeout"},
		{"negative burst", func(c *Config) { c.Chat.RenameLimit.Burst = -1 }, "burst"},
		{"no platform", func(c *Config) { c.Chat.Platform = "" }, "chat.platform"},
		{"no discord token", func(c *Config) { c.Chat.Discord.Token = "" }, EnvDiscordToken},
		{"telegram needs group", func(c *Config) {
			c.Chat.Platform = "telegram"
			c.Chat.Telegram.Token = "t"
		}, "group_id"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"file log without path", func(c *Config) { c.Logging.File.Enabled = true }, "logging.file.path"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "bolt" }, "storage.driver"},
		{"storage disabled", func(c *Config) { c.Storage = &StorageConfig{} }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %q, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	err := Validate(&Config{})
	if err == nil {
		t.Fatalf("empty config validated")
	}
	for _, want := range []string{"monitor.display_name", "monitor.address", "chat.platform"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("err = %q, missing %q", err, want)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()

	if d := DurationOr("", 3*time.Second); d != 3*time.Second {
		t.Fatalf("DurationOr empty = %v", d)
	}
	if d := DurationOr("0s", 3*time.Second); d != 3*time.Second {
		t.Fatalf("DurationOr zero = %v", d)
	}
	if d := DurationOr("250ms", time.Second); d != 250*time.Millisecond {
		t.Fatalf("DurationOr = %v", d)
	}
	if d := DurationOrUnset("0s", time.Minute); d != 0 {
		t.Fatalf("DurationOrUnset zero = %v", d)
	}
	if d := DurationOrUnset("", time.Minute); d != time.Minute {
		t.Fatalf("DurationOrUnset empty = %v", d)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg, _ := Decode("c.json", []byte(validJSON))
	newCfg, _ := Decode("c.json", []byte(validJSON))
	if changed, _ := SummarizeChange(oldCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs changed: %v", changed)
	}

	newCfg.Logging.Level = "debug"
	changed, _ := SummarizeChange(oldCfg, newCfg)
	if !reflect.DeepEqual(changed, []string{"logging"}) {
		t.Fatalf("changed = %v", changed)
	}
	if r := RestartRequired(changed); len(r) != 0 {
		t.Fatalf("logging change requires restart: %v", r)
	}

	newCfg.Chat.OwnerIDs = []string{"42", "43"}
	changed, _ = SummarizeChange(oldCfg, newCfg)
	if !reflect.DeepEqual(changed, []string{"chat.owner_ids", "logging"}) {
		t.Fatalf("changed = %v", changed)
	}
	if r := RestartRequired(changed); len(r) != 0 {
		t.Fatalf("owner change requires restart: %v", r)
	}

	newCfg.Chat.Discord.Token = "rotated"
	newCfg.Ops.Enabled = true
	changed, _ = SummarizeChange(oldCfg, newCfg)
	if !reflect.DeepEqual(RestartRequired(changed), []string{"chat", "ops"}) {
		t.Fatalf("restart required = %v", RestartRequired(changed))
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", validJSON)
	m := NewManager(p)
	m.getenv = noEnv
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	updated := strings.Replace(validJSON, `"level": "info"`, `"level": "debug"`, 1)
	deadline := time.After(5 * time.Second)
	// Writes closer together than reloadDebounce postpone the reload, so
	// retries are spaced well past it.
	first := time.After(200 * time.Millisecond)
	tick := time.NewTicker(4 * reloadDebounce)
	defer tick.Stop()
	for {
		select {
		case <-first:
			writeFile(t, dir, "config.json", updated)
		case cfg := <-sub:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("published level = %q", cfg.Logging.Level)
			}
			if m.Get() != cfg {
				t.Fatalf("published config not committed")
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep rewriting.
			writeFile(t, dir, "config.json", updated)
		case <-deadline:
			t.Fatalf("no config published")
		}
	}
}

func TestWatchIgnoresInvalidEdit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", validJSON)
	m := NewManager(p)
	m.getenv = noEnv
	orig, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	writeFile(t, dir, "config.json", `{"monitor": `)
	if m.reload() {
		t.Fatalf("invalid file published")
	}
	if m.Get() != orig {
		t.Fatalf("invalid file replaced committed config")
	}
	writeFile(t, dir, "config.json", validJSON)
	if m.reload() {
		t.Fatalf("unchanged content published")
	}
}
