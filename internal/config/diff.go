package config

import (
	"reflect"
	"strings"

	"sharebot/pkg/logx"
)

// RestartSections lists sections whose changes only take effect after a restart.
var RestartSections = []string{"storage", "session", "events", "vault", "delivery"}

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (token, dsn, urls) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Session != newCfg.Session {
		changed = append(changed, "session")
		attrs = append(attrs, logx.String("session.driver", newCfg.Session.Driver))
	}
	if oldCfg.Vault != newCfg.Vault {
		changed = append(changed, "vault")
	}
	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
	}

	if !oldCfg.Sweeper.equal(newCfg.Sweeper) {
		changed = append(changed, "sweeper")
		attrs = append(attrs,
			logx.Bool("sweeper.enabled", newCfg.Sweeper.IsEnabled()),
			logx.String("sweeper.every", newCfg.Sweeper.Every),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.confirm_threshold", newCfg.Broadcast.ConfirmThreshold),
			logx.Int("broadcast.pause_every", newCfg.Broadcast.PauseEvery),
			logx.String("broadcast.pause", newCfg.Broadcast.Pause),
		)
	}

	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Bool("events.enabled", newCfg.Events.Enabled),
			logx.String("events.exchange", newCfg.Events.Exchange),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	return changed, attrs
}

// NeedsRestart returns the changed sections that cannot be hot-applied.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, c := range changed {
		for _, r := range RestartSections {
			if c == r {
				out = append(out, c)
			}
		}
	}
	return out
}
