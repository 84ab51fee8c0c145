package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Session   SessionConfig   `json:"session"`
	Vault     VaultConfig     `json:"vault"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Sweeper   SweeperConfig   `json:"sweeper"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Events    EventsConfig    `json:"events"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id that receives WARN+ log lines.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	APIURL      string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the batch store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./sharebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`                 // sqlite (default) | memory | postgres
	Path        string `json:"path,omitempty"`         // default: ./data/sharebot.db
	DSN         string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SessionConfig struct {
	Driver    string `json:"driver"` // memory | redis
	RedisURL  string `json:"redis_url,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
	// AwaitTTL bounds how long a "send me the hours" prompt stays open.
	AwaitTTL string `json:"await_ttl,omitempty"`
}

type VaultConfig struct {
	CodeLength   int    `json:"code_length,omitempty"`
	CodeAttempts int    `json:"code_attempts,omitempty"`
	NoticeDelay  string `json:"notice_delay,omitempty"`
	// Defaults seed the global settings the first time the store is opened.
	AutoDelete       bool `json:"auto_delete"`
	DeleteAfterHours int  `json:"delete_after_hours,omitempty"`
	ProtectContent   bool `json:"protect_content"`
}

type DeliveryConfig struct {
	Attempts int    `json:"attempts,omitempty"`
	Backoff  string `json:"backoff,omitempty"`
}

// SweeperConfig controls the expiry sweep. A missing enabled flag means on.
type SweeperConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	FirstRun string `json:"first_run,omitempty"`
	Every    string `json:"every,omitempty"`
}

func (c SweeperConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

func (c SweeperConfig) equal(o SweeperConfig) bool {
	return c.IsEnabled() == o.IsEnabled() && c.FirstRun == o.FirstRun && c.Every == o.Every
}

type BroadcastConfig struct {
	ConfirmThreshold int    `json:"confirm_threshold,omitempty"`
	PauseEvery       int    `json:"pause_every,omitempty"`
	Pause            string `json:"pause,omitempty"`
	ProgressEvery    int    `json:"progress_every,omitempty"`
	PendingTTL       string `json:"pending_ttl,omitempty"`
	Workers          int    `json:"workers,omitempty"`
}

// EventsConfig controls forwarding of domain events to an AMQP exchange.
// When disabled, events are only logged.
type EventsConfig struct {
	Enabled  bool   `json:"enabled"`
	AMQPURL  string `json:"amqp_url,omitempty"` // do not log
	Exchange string `json:"exchange,omitempty"`
}

// OpsConfig controls the health/metrics/pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
