package app

import (
	"strconv"
	"strings"
	"time"

	"sharebot/internal/bot"
	"sharebot/internal/broadcast"
	"sharebot/internal/config"
	"sharebot/internal/delivery"
	"sharebot/internal/observability/ops"
	"sharebot/internal/session"
	"sharebot/internal/storage"
	"sharebot/internal/sweeper"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

const defaultSQLitePath = "./data/sharebot.db"

// groupLogChat returns the chat id of telegram.group_log, or 0 when unset.
func groupLogChat(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     groupLogChat(cfg),
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = storage.DriverSQLite
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" && (driver == storage.DriverSQLite || driver == "sqlite3") {
		path = defaultSQLitePath
	}
	return storage.Config{Driver: driver, Path: path, DSN: strings.TrimSpace(sc.DSN), BusyTimeout: busy}, nil
}

func mapSession(cfg *config.Config) session.Config {
	prefix := strings.TrimSpace(cfg.Session.KeyPrefix)
	if prefix == "" {
		prefix = "sharebot:"
	}
	return session.Config{Driver: cfg.Session.Driver, RedisURL: cfg.Session.RedisURL, KeyPrefix: prefix}
}

// mapDefaults is the global settings written on first boot.
func mapDefaults(cfg *config.Config) vault.Settings {
	s := vault.DefaultSettings()
	s.AutoDelete = cfg.Vault.AutoDelete
	s.ProtectContent = cfg.Vault.ProtectContent
	if cfg.Vault.DeleteAfterHours > 0 {
		s.DeleteAfterHours = cfg.Vault.DeleteAfterHours
	}
	return s
}

func mapDelivery(cfg *config.Config) (delivery.Config, error) {
	backoff, err := config.ParseDurationOrDefault("delivery.backoff", cfg.Delivery.Backoff, 2*time.Second)
	if err != nil {
		return delivery.Config{}, err
	}
	attempts := cfg.Delivery.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	return delivery.Config{Attempts: attempts, Backoff: backoff}, nil
}

func mapSweeper(cfg *config.Config) (sweeper.Config, error) {
	first, err := config.ParseDurationOrDefault("sweeper.first_run", cfg.Sweeper.FirstRun, 10*time.Second)
	if err != nil {
		return sweeper.Config{}, err
	}
	every, err := config.ParseDurationOrDefault("sweeper.every", cfg.Sweeper.Every, 5*time.Minute)
	if err != nil {
		return sweeper.Config{}, err
	}
	return sweeper.Config{Enabled: cfg.Sweeper.IsEnabled(), FirstRun: first, Every: every}, nil
}

func mapBroadcast(cfg *config.Config) (broadcast.Config, error) {
	bc := cfg.Broadcast
	d := broadcast.DefaultConfig()
	pause, err := config.ParseDurationOrDefault("broadcast.pause", bc.Pause, d.Pause)
	if err != nil {
		return broadcast.Config{}, err
	}
	ttl, err := config.ParseDurationOrDefault("broadcast.pending_ttl", bc.PendingTTL, d.PendingTTL)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		ConfirmThreshold: bc.ConfirmThreshold,
		PauseEvery:       bc.PauseEvery,
		Pause:            pause,
		ProgressEvery:    bc.ProgressEvery,
		PendingTTL:       ttl,
		Workers:          bc.Workers,
	}, nil
}

func mapOps(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// 0 keeps /debug/pprof/profile usable.
	write, err := config.ParseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		PprofPrefix:   oc.PprofPrefix,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapBot(cfg *config.Config) (bot.Config, error) {
	notice, err := config.ParseDurationOrDefault("vault.notice_delay", cfg.Vault.NoticeDelay, 3*time.Second)
	if err != nil {
		return bot.Config{}, err
	}
	await, err := config.ParseDurationOrDefault("session.await_ttl", cfg.Session.AwaitTTL, 10*time.Minute)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{Owners: cfg.Telegram.OwnerUserIDs, NoticeDelay: notice, AwaitTTL: await}, nil
}
