// Package sweeper removes batches whose auto-delete deadline has passed.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sharebot/internal/eventbus"
	"sharebot/internal/metrics"
	"sharebot/pkg/logx"
)

const (
	DefaultFirstRun = 10 * time.Second
	DefaultEvery    = 5 * time.Minute
	runTimeout      = time.Minute
)

type Config struct {
	Enabled  bool
	FirstRun time.Duration
	Every    time.Duration
}

// Expirer is the store call the sweep needs.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}

// ExpiredEvent is the payload of eventbus.TypeBatchExpired.
type ExpiredEvent struct {
	Codes []string
	At    time.Time
}

type Service struct {
	mu    sync.Mutex
	cfg   Config
	store Expirer
	bus   eventbus.Bus
	log   logx.Logger

	clockMu sync.Mutex
	now     func() time.Time

	c     *cron.Cron
	first *time.Timer
	ctx   context.Context
}

func New(cfg Config, store Expirer, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: normalize(cfg), store: store, bus: bus, log: log, now: time.Now}
}

// SetClock replaces the time source used by RunOnce.
func (s *Service) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if now != nil {
		s.now = now
	}
}

func normalize(cfg Config) Config {
	if cfg.FirstRun <= 0 {
		cfg.FirstRun = DefaultFirstRun
	}
	if cfg.Every <= 0 {
		cfg.Every = DefaultEvery
	}
	return cfg
}

// RunOnce deletes every batch expired at the current time and returns their codes.
func (s *Service) RunOnce(ctx context.Context) ([]string, error) {
	s.clockMu.Lock()
	now := s.now()
	s.clockMu.Unlock()

	start := time.Now()
	codes, err := s.store.DeleteExpired(ctx, now)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	if len(codes) > 0 {
		metrics.BatchesDeleted.WithLabelValues("expired").Add(float64(len(codes)))
		eventbus.Publish(s.bus, eventbus.TypeBatchExpired, ExpiredEvent{Codes: codes, At: now})
		s.log.Info("expired batches removed", logx.Int("count", len(codes)), logx.Any("codes", codes))
	}
	return codes, nil
}

func (s *Service) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Warn("sweep failed", logx.Err(err))
	}
}

// Start schedules the first sweep after FirstRun and then one every Every.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		s.log.Debug("start skipped", logx.Bool("enabled", s.cfg.Enabled))
		return
	}
	s.ctx = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	cfg := s.cfg
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	cl := cronLogger{s.log}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() { s.tick(parent) }))
	s.c = cron.New(cron.WithLogger(cl))
	c := s.c
	// The interval schedule starts counting once the first run has fired.
	s.first = time.AfterFunc(cfg.FirstRun, func() {
		job.Run()
		c.Schedule(cron.Every(cfg.Every), job)
	})
	c.Start()
	s.log.Info("service started", logx.Duration("first_run", cfg.FirstRun), logx.Duration("every", cfg.Every))
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.first != nil {
		s.first.Stop()
		s.first = nil
	}
	if s.c != nil {
		select {
		case <-s.c.Stop().Done():
		case <-ctx.Done():
		}
		s.c = nil
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
	s.log.Info("service stopped")
}

// Apply swaps the schedule; a running sweeper restarts with the new timings.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg = normalize(cfg)
	if cfg == s.cfg {
		return
	}
	running := s.c != nil
	s.cfg = cfg
	if running {
		s.stopLocked(context.Background())
	}
	if cfg.Enabled && s.ctx != nil {
		s.startLocked()
	}
}

// cronLogger routes cron's own logging through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
