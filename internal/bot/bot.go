// Package bot routes chat updates to the file-sharing commands.
package bot

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"sharebot/internal/metrics"
	rtsup "sharebot/internal/runtime/supervisor"
	kit "sharebot/internal/transport"
	"sharebot/pkg/logx"
)

type Config struct {
	Owners []int64
	// Workers is the number of serial lanes. Updates of one user always share a lane.
	Workers        int
	QueueSize      int
	NoticeDelay    time.Duration
	AwaitTTL       time.Duration
	CommandTimeout time.Duration
	ListLimit      int
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.NoticeDelay <= 0 {
		c.NoticeDelay = 3 * time.Second
	}
	if c.AwaitTTL <= 0 {
		c.AwaitTTL = 10 * time.Minute
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 2 * time.Minute
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 50
	}
	return c
}

type Deps struct {
	Adapter   kit.Adapter
	Vault     Vault
	Links     Links
	Settings  Settings
	Broadcast Broadcaster
	Sessions  Awaiting
	Log       logx.Logger
	// Now defaults to time.Now; StartedAt to the construction time.
	Now       func() time.Time
	StartedAt time.Time
}

type Bot struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	now  func() time.Time

	mu     sync.RWMutex
	owners map[int64]struct{}

	commands map[string]Command
	notice   *noticer

	runMu   sync.Mutex
	baseCtx context.Context
	lanes   []chan func()
}

func New(cfg Config, deps Deps) *Bot {
	cfg = cfg.normalized()
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = deps.Now()
	}
	b := &Bot{cfg: cfg, deps: deps, log: deps.Log, now: deps.Now, baseCtx: context.Background()}
	b.SetOwners(cfg.Owners)
	b.commands = b.registry()
	b.notice = newNoticer(cfg.NoticeDelay, b.sendNotice)
	return b
}

// SetOwners replaces the owner set. Safe during hot-reload.
func (b *Bot) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	b.mu.Lock()
	b.owners = m
	b.mu.Unlock()
}

func (b *Bot) isOwner(id int64) bool {
	b.mu.RLock()
	_, ok := b.owners[id]
	b.mu.RUnlock()
	return ok
}

func (b *Bot) rootCtx() context.Context {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.baseCtx
}

// Run consumes updates until ctx ends or updates closes. Each update runs on
// the lane picked by its sender so one user's uploads are staged in order.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(b.log.With(logx.String("comp", "bot.dispatch"))),
		rtsup.WithCancelOnError(false),
	)

	lanes := make([]chan func(), b.cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan func(), b.cfg.QueueSize)
	}
	b.runMu.Lock()
	b.baseCtx = sup.Context()
	b.lanes = lanes
	b.runMu.Unlock()

	for i, lane := range lanes {
		idx, lane := i, lane
		sup.GoRestart("bot.lane."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-lane:
					if !ok {
						return nil
					}
					b.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	b.log.Info("dispatcher started", logx.Int("lanes", len(lanes)), logx.Int("lane_cap", b.cfg.QueueSize))

	defer func() {
		b.notice.stopAll()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		b.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.enqueue(sup.Context(), lanes, up)
		}
	}
}

func (b *Bot) runJob(lane int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in bot job", logx.Int("lane", lane), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (b *Bot) enqueue(ctx context.Context, lanes []chan func(), up kit.Update) {
	from := senderOf(up)
	lane := lanes[int(uint64(from)%uint64(len(lanes)))]
	select {
	case lane <- func() { b.Handle(ctx, up) }:
	default:
		b.log.Warn("lane full; update rejected", logx.Int64("from_id", from), logx.String("kind", string(up.Kind)))
		b.reject(ctx, up)
	}
}

func (b *Bot) reject(ctx context.Context, up kit.Update) {
	switch {
	case up.Callback != nil:
		_ = b.deps.Adapter.AnswerCallback(ctx, up.Callback.ID, "busy")
	case up.Message != nil:
		_, _ = b.deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, txtBusy, nil)
	}
}

func senderOf(up kit.Update) int64 {
	switch {
	case up.Message != nil:
		return up.Message.FromID
	case up.Callback != nil:
		return up.Callback.FromID
	}
	return 0
}

// Handle routes one update synchronously.
func (b *Bot) Handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		if up.Message.Media != nil {
			metrics.UpdatesTotal.WithLabelValues("media").Inc()
			b.routeMedia(ctx, up)
			return
		}
		metrics.UpdatesTotal.WithLabelValues("message").Inc()
		b.routeMessage(ctx, up)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		metrics.UpdatesTotal.WithLabelValues("callback").Inc()
		b.routeCallback(ctx, up)
	}
}

// UpdateMenu publishes the command menu when the adapter supports it.
func (b *Bot) UpdateMenu(ctx context.Context) error {
	up, ok := b.deps.Adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, b.Commands())
}
