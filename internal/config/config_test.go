package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "telegram": {"token": "t", "owner_user_ids": [1, 2], "poll_timeout": "10s"},
  "logging": {"level": "info", "console": true},
  "storage": {"driver": "sqlite", "path": "./x.db", "busy_timeout": "2s"},
  "session": {"driver": "memory"},
  "vault": {"code_length": 8, "notice_delay": "3s", "delete_after_hours": 24},
  "delivery": {"attempts": 3, "backoff": "2s"},
  "sweeper": {"enabled": true, "first_run": "10s", "every": "5m"},
  "broadcast": {"confirm_threshold": 50, "pause": "1s", "pending_ttl": "15m"},
  "events": {"enabled": false},
  "ops": {"enabled": true, "addr": "127.0.0.1:9090"}
}`

const validYAML = `
telegram:
  token: t
  owner_user_ids: [42]
storage:
  driver: memory
sweeper:
  enabled: true
  every: 1m
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func noEnv(string) string { return "" }

func TestLoadJSONAndYAML(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.json", validJSON))
	m.SetEnv(noEnv)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || len(cfg.Telegram.OwnerUserIDs) != 2 {
		t.Fatalf("json cfg = %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return committed config")
	}

	y := NewConfigManager(writeFile(t, "config.yaml", validYAML))
	y.SetEnv(noEnv)
	ycfg, err := y.Load()
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if ycfg.Telegram.OwnerUserIDs[0] != 42 || ycfg.Sweeper.Every != "1m" {
		t.Fatalf("yaml cfg = %+v", ycfg)
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown.json":  `{"telegram": {"token": "t"}, "plugins": {}}`,
		"trailing.json": `{"telegram": {"token": "t"}} {}`,
		"unknown.yaml":  "telegram:\n  token: t\n  nope: 1\n",
	}
	for name, body := range cases {
		m := NewConfigManager(writeFile(t, name, body))
		m.SetEnv(noEnv)
		if _, err := m.Parse(); err == nil {
			t.Fatalf("Parse(%s) err = nil, want error", name)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvToken:      "from-env",
		EnvStorageDSN: "postgres://x",
		EnvRedisURL:   "redis://r",
		EnvAMQPURL:    "amqp://a",
		EnvOwners:     "7, 8;9",
	}
	cfg := &Config{Telegram: TelegramConfig{Token: "file", OwnerUserIDs: []int64{1}}}
	if err := ApplyEnv(cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.Storage.DSN != "postgres://x" ||
		cfg.Session.RedisURL != "redis://r" || cfg.Events.AMQPURL != "amqp://a" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := cfg.Telegram.OwnerUserIDs; len(got) != 3 || got[2] != 9 {
		t.Fatalf("owners = %v, want [7 8 9]", got)
	}

	err := ApplyEnv(&Config{}, func(k string) string {
		if k == EnvOwners {
			return "1,abc"
		}
		return ""
	})
	if err == nil {
		t.Fatalf("ApplyEnv bad owners err = nil")
	}
}

func TestLoadDotEnvMissingIsFine(t *testing.T) {
	t.Parallel()
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv = %v, want nil", err)
	}
	if err := LoadDotEnv(""); err != nil {
		t.Fatalf("LoadDotEnv(\"\") = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}}}
	}
	cases := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"ok", func(*Config) {}, ""},
		{"no token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"no owners", func(c *Config) { c.Telegram.OwnerUserIDs = nil }, "owner_user_ids"},
		{"bad group", func(c *Config) { c.Telegram.GroupLog = "chat" }, "group_log"},
		{"bad duration", func(c *Config) { c.Sweeper.Every = "soon" }, "sweeper.every"},
		{"negative duration", func(c *Config) { c.Delivery.Backoff = "-1s" }, "delivery.backoff"},
		{"pg no dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"redis no url", func(c *Config) { c.Session.Driver = "redis" }, "session.redis_url"},
		{"hours", func(c *Config) { c.Vault.DeleteAfterHours = 721 }, "delete_after_hours"},
		{"events no url", func(c *Config) { c.Events.Enabled = true }, "events.amqp_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mut(c)
			err := Validate(c)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 5 * time.Second, false},
		{"0s", 5 * time.Second, false},
		{" 2m ", 2 * time.Minute, false},
		{"x", 0, true},
		{"-3s", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationOrDefault("f", tc.raw, 5*time.Second)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseDurationOrDefault(%q) = %v, %v; want %v, err=%v", tc.raw, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := &Config{Telegram: TelegramConfig{Token: "secret", OwnerUserIDs: []int64{1}}}
	b := &Config{Telegram: TelegramConfig{Token: "secret", OwnerUserIDs: []int64{1, 2}}, Storage: StorageConfig{Driver: "sqlite"}}
	b.Broadcast.Pause = "2s"

	changed, _ := SummarizeConfigChange(a, b)
	if got := strings.Join(changed, ","); got != "telegram,storage,broadcast" {
		t.Fatalf("changed = %q", got)
	}
	if got := NeedsRestart(changed); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("NeedsRestart = %v, want [storage]", got)
	}
	if changed, _ := SummarizeConfigChange(a, a); len(changed) != 0 {
		t.Fatalf("self diff = %v, want none", changed)
	}
}

func TestSweeperEnabledByDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"omitted", `{"telegram": {"token": "t", "owner_user_ids": [1]}}`, true},
		{"explicit on", `{"telegram": {"token": "t", "owner_user_ids": [1]}, "sweeper": {"enabled": true}}`, true},
		{"explicit off", `{"telegram": {"token": "t", "owner_user_ids": [1]}, "sweeper": {"enabled": false}}`, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, "config.json", tt.body))
			m.SetEnv(noEnv)
			cfg, err := m.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := cfg.Sweeper.IsEnabled(); got != tt.want {
				t.Fatalf("IsEnabled = %v, want %v", got, tt.want)
			}
		})
	}

	on := true
	a, b := &Config{}, &Config{Sweeper: SweeperConfig{Enabled: &on}}
	if changed, _ := SummarizeConfigChange(a, b); len(changed) != 0 {
		t.Fatalf("omitted vs explicit on diff = %v, want none", changed)
	}
}

func TestPublishKeepsLatest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("subscriber got stale config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after Unsubscribe")
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", validJSON)
	m := NewConfigManager(path)
	m.SetEnv(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and not published.
	if err := os.WriteFile(path, []byte(`{"telegram": {"token": ""}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	select {
	case c := <-sub:
		t.Fatalf("invalid config published: %+v", c)
	default:
	}

	next := strings.Replace(validJSON, `"every": "5m"`, `"every": "7m"`, 1)
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case c := <-sub:
		if c.Sweeper.Every != "7m" {
			t.Fatalf("published every = %q, want 7m", c.Sweeper.Every)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published after change")
	}
}
