package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"sharebot/internal/eventbus"
	"sharebot/internal/session"
	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

var (
	ErrNoPending  = errors.New("no pending broadcast")
	ErrNoAudience = errors.New("no consumers to broadcast to")
)

type Config struct {
	// ConfirmThreshold is the largest audience dispatched without confirmation.
	ConfirmThreshold int
	PauseEvery       int
	Pause            time.Duration
	ProgressEvery    int
	PendingTTL       time.Duration
	Workers          int
}

func DefaultConfig() Config {
	return Config{
		ConfirmThreshold: 50,
		PauseEvery:       25,
		Pause:            time.Second,
		ProgressEvery:    10,
		PendingTTL:       15 * time.Minute,
		Workers:          1,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ConfirmThreshold <= 0 {
		c.ConfirmThreshold = d.ConfirmThreshold
	}
	if c.PauseEvery <= 0 {
		c.PauseEvery = d.PauseEvery
	}
	if c.Pause < 0 {
		c.Pause = 0
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = d.ProgressEvery
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = d.PendingTTL
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Channel is the chat surface a broadcast writes to.
type Channel interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
	CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Registry lists consumers in a stable order.
type Registry interface {
	ListConsumers(ctx context.Context) ([]vault.Consumer, error)
}

// Pending stores drafts awaiting confirmation.
type Pending interface {
	SetPending(ctx context.Context, owner int64, p session.PendingBroadcast, ttl time.Duration) error
	TakePending(ctx context.Context, owner int64) (session.PendingBroadcast, bool, error)
	ClearPending(ctx context.Context, owner int64) (bool, error)
}

type State string

const (
	StateDispatching          State = "dispatching"
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

type Decision struct {
	State    State
	Audience int
	JobID    string
}

// Result is the outcome of one dispatched broadcast.
type Result struct {
	JobID     string
	Requester int64
	Total     int
	Success   int
	Failed    int
	Elapsed   time.Duration
}

// Rate is the delivery success percentage.
func (r Result) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Success) / float64(r.Total) * 100
}

type job struct {
	id        string
	requester int64
	replyTo   kit.ChatTarget
	source    kit.MessageRef
	targets   []vault.Consumer
}

type Service struct {
	mu sync.Mutex

	cfg      Config
	channel  Channel
	registry Registry
	pending  Pending
	bus      eventbus.Bus
	log      logx.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	queue    chan job
	stopCh   chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
}
