package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate rejects configs that cannot be applied. It is used both at boot
// and as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", EnvToken)
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		return fmt.Errorf("telegram.owner_user_ids must list at least one user")
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			return fmt.Errorf("telegram.group_log: invalid chat id %q", g)
		}
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"session.await_ttl", cfg.Session.AwaitTTL},
		{"vault.notice_delay", cfg.Vault.NoticeDelay},
		{"delivery.backoff", cfg.Delivery.Backoff},
		{"sweeper.first_run", cfg.Sweeper.FirstRun},
		{"sweeper.every", cfg.Sweeper.Every},
		{"broadcast.pause", cfg.Broadcast.Pause},
		{"broadcast.pending_ttl", cfg.Broadcast.PendingTTL},
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.write_timeout", cfg.Ops.WriteTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required when storage.driver=postgres (or set %s)", EnvStorageDSN)
		}
	default:
		return fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Session.Driver)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Session.RedisURL) == "" {
			return fmt.Errorf("session.redis_url is required when session.driver=redis (or set %s)", EnvRedisURL)
		}
	default:
		return fmt.Errorf("session.driver: unsupported %q", cfg.Session.Driver)
	}

	if n := cfg.Vault.CodeLength; n < 0 || n > 32 {
		return fmt.Errorf("vault.code_length must be within [0,32]")
	}
	if cfg.Vault.CodeAttempts < 0 {
		return fmt.Errorf("vault.code_attempts must be >= 0")
	}
	if h := cfg.Vault.DeleteAfterHours; h != 0 && (h < 1 || h > 720) {
		return fmt.Errorf("vault.delete_after_hours must be within [1,720]")
	}
	if cfg.Delivery.Attempts < 0 {
		return fmt.Errorf("delivery.attempts must be >= 0")
	}
	if cfg.Broadcast.ConfirmThreshold < 0 || cfg.Broadcast.PauseEvery < 0 ||
		cfg.Broadcast.ProgressEvery < 0 || cfg.Broadcast.Workers < 0 {
		return fmt.Errorf("broadcast counters must be >= 0")
	}
	if cfg.Events.Enabled && strings.TrimSpace(cfg.Events.AMQPURL) == "" {
		return fmt.Errorf("events.amqp_url is required when events.enabled=true (or set %s)", EnvAMQPURL)
	}
	return nil
}
