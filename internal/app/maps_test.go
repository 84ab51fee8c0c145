package app

import (
	"testing"
	"time"

	"sharebot/internal/config"
	"sharebot/internal/storage"
)

func TestMapStorageDefaults(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in         config.StorageConfig
		wantDriver string
		wantPath   string
	}{
		{config.StorageConfig{}, storage.DriverSQLite, defaultSQLitePath},
		{config.StorageConfig{Driver: "SQLite", Path: "/tmp/x.db"}, storage.DriverSQLite, "/tmp/x.db"},
		{config.StorageConfig{Driver: "memory"}, storage.DriverMemory, ""},
		{config.StorageConfig{Driver: "postgres", DSN: " postgres://db "}, storage.DriverPostgres, ""},
	}
	for _, tc := range cases {
		got, err := mapStorage(&config.Config{Storage: tc.in})
		if err != nil {
			t.Fatalf("mapStorage(%+v): %v", tc.in, err)
		}
		if got.Driver != tc.wantDriver || got.Path != tc.wantPath {
			t.Fatalf("mapStorage(%+v) = %+v, want driver %q path %q", tc.in, got, tc.wantDriver, tc.wantPath)
		}
		if got.BusyTimeout != 5*time.Second {
			t.Fatalf("BusyTimeout = %v, want 5s", got.BusyTimeout)
		}
	}
}

func TestMapDurationsFallBack(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}

	dc, err := mapDelivery(cfg)
	if err != nil || dc.Attempts != 3 || dc.Backoff != 2*time.Second {
		t.Fatalf("mapDelivery = %+v, %v", dc, err)
	}
	sc, err := mapSweeper(cfg)
	if err != nil || !sc.Enabled || sc.FirstRun != 10*time.Second || sc.Every != 5*time.Minute {
		t.Fatalf("mapSweeper = %+v, %v", sc, err)
	}
	bc, err := mapBroadcast(cfg)
	if err != nil || bc.Pause != time.Second || bc.PendingTTL != 15*time.Minute {
		t.Fatalf("mapBroadcast = %+v, %v", bc, err)
	}
	oc, err := mapOps(cfg)
	if err != nil || oc.WriteTimeout != 0 || oc.ReadTimeout != 10*time.Second {
		t.Fatalf("mapOps = %+v, %v", oc, err)
	}
	b, err := mapBot(cfg)
	if err != nil || b.NoticeDelay != 3*time.Second || b.AwaitTTL != 10*time.Minute {
		t.Fatalf("mapBot = %+v, %v", b, err)
	}

	cfg.Broadcast.Pause = "fast"
	if _, err := mapBroadcast(cfg); err == nil {
		t.Fatalf("mapBroadcast with bad pause err = nil")
	}
}

func TestMapDefaultsAndLogging(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{GroupLog: "-1001234"},
		Vault:    config.VaultConfig{AutoDelete: true, DeleteAfterHours: 48},
	}
	d := mapDefaults(cfg)
	if !d.AutoDelete || d.DeleteAfterHours != 48 || d.ProtectContent {
		t.Fatalf("mapDefaults = %+v", d)
	}
	if got := mapDefaults(&config.Config{}).DeleteAfterHours; got != 24 {
		t.Fatalf("default hours = %d, want 24", got)
	}
	if got := mapLogging(cfg).Telegram.ChatID; got != -1001234 {
		t.Fatalf("log chat = %d, want -1001234", got)
	}
	if got := groupLogChat(&config.Config{}); got != 0 {
		t.Fatalf("groupLogChat(empty) = %d, want 0", got)
	}
	if got := mapSession(&config.Config{}).KeyPrefix; got != "sharebot:" {
		t.Fatalf("KeyPrefix = %q", got)
	}
}

func TestStopReasonString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   StopReason
		want string
	}{
		{"", "unknown"},
		{StopSignal, "signal"},
		{StopAppStop, "app_stop"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Fatalf("StopReason(%q).String() = %q, want %q", string(tt.in), got, tt.want)
		}
	}
}
