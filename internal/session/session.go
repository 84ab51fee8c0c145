// Package session keeps short-lived per-producer state: the broadcast draft
// awaiting confirmation and the settings field awaiting typed input.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	kit "sharebot/internal/transport"
	"sharebot/pkg/logx"
)

// PendingBroadcast is a drafted broadcast waiting for /broadcast_confirm.
type PendingBroadcast struct {
	Source    kit.MessageRef `json:"source"`
	Audience  int            `json:"audience"`
	DraftedAt time.Time      `json:"drafted_at"`
}

type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeCode   Scope = "code"
)

// AwaitingInput marks that the owner's next text message is a settings value.
type AwaitingInput struct {
	Scope Scope  `json:"scope"`
	Code  string `json:"code,omitempty"`
	// ConfigMessage is the keyboard message re-rendered after the value is applied.
	ConfigMessage kit.MessageRef `json:"config_message"`
}

type Store interface {
	// SetPending replaces any earlier draft of the same owner.
	SetPending(ctx context.Context, owner int64, p PendingBroadcast, ttl time.Duration) error
	// TakePending returns and removes the owner's draft.
	TakePending(ctx context.Context, owner int64) (PendingBroadcast, bool, error)
	ClearPending(ctx context.Context, owner int64) (bool, error)

	SetAwaiting(ctx context.Context, owner int64, a AwaitingInput, ttl time.Duration) error
	Awaiting(ctx context.Context, owner int64) (AwaitingInput, bool, error)
	ClearAwaiting(ctx context.Context, owner int64) error

	Close() error
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

type Config struct {
	Driver    string
	RedisURL  string
	KeyPrefix string
}

// Open returns the configured store. Redis connectivity is checked with PING.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemory(nil), nil
	case DriverRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, errors.New("session: redis_url is required")
		}
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		log.Info("redis session store connected", logx.String("addr", opts.Addr))
		return NewRedis(client, cfg.KeyPrefix), nil
	default:
		return nil, errors.New("unknown session driver: " + cfg.Driver)
	}
}
