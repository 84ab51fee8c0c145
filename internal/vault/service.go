package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sharebot/internal/eventbus"
	"sharebot/internal/metrics"
	"sharebot/pkg/logx"
)

const DefaultCodeAttempts = 5

// Prober checks that an external reference is still retrievable from the channel.
type Prober interface {
	Probe(ctx context.Context, ref string) error
}

// Defaults supplies the settings snapshot applied to new batches.
type Defaults interface {
	Global(ctx context.Context) (Settings, error)
}

// CommittedEvent is the payload of eventbus.TypeBatchCommitted.
type CommittedEvent struct {
	Code     string
	OwnerID  int64
	Count    int
	DeleteAt *time.Time
}

// DeletedEvent is the payload of eventbus.TypeBatchDeleted and TypeBatchExpired.
type DeletedEvent struct {
	Code    string
	OwnerID int64
	Count   int
}

type Service struct {
	store    Store
	prober   Prober
	defaults Defaults
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	codeLen      int
	codeAttempts int
	newCode      func(int) (string, error)

	locks *ownerLocks
}

type Option func(*Service)

func WithDefaults(d Defaults) Option  { return func(s *Service) { s.defaults = d } }
func WithBus(b eventbus.Bus) Option   { return func(s *Service) { s.bus = b } }
func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodes sets code length and how many fresh codes commit tries before giving up.
func WithCodes(length, attempts int) Option {
	return func(s *Service) {
		if length > 0 {
			s.codeLen = length
		}
		if attempts > 0 {
			s.codeAttempts = attempts
		}
	}
}

// WithCodeSource replaces the random generator; tests use it to force collisions.
func WithCodeSource(fn func(int) (string, error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

func NewService(store Store, prober Prober, opts ...Option) *Service {
	s := &Service{
		store:        store,
		prober:       prober,
		now:          time.Now,
		codeLen:      DefaultCodeLength,
		codeAttempts: DefaultCodeAttempts,
		newCode:      NewCode,
		locks:        newOwnerLocks(),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.defaults == nil {
		s.defaults = storeDefaults{store: store}
	}
	return s
}

type stageOpts struct {
	skipProbe bool
}

type StageOption func(*stageOpts)

// WithoutProbe skips the liveness probe, e.g. for forwarded messages whose
// reference was issued by the channel moments ago.
func WithoutProbe() StageOption { return func(o *stageOpts) { o.skipProbe = true } }

// Stage appends it to the owner's staging buffer and returns the new buffer size.
func (s *Service) Stage(ctx context.Context, owner int64, it Item, opts ...StageOption) (int, error) {
	var so stageOpts
	for _, o := range opts {
		o(&so)
	}
	it.ExternalRef = strings.TrimSpace(it.ExternalRef)
	if it.ExternalRef == "" || !it.Kind.Valid() {
		metrics.ItemsRejected.Inc()
		return 0, ErrInvalidItem
	}
	if !so.skipProbe && s.prober != nil {
		if err := s.prober.Probe(ctx, it.ExternalRef); err != nil {
			metrics.ItemsRejected.Inc()
			return 0, fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
	}
	it.OwnerID = owner
	if it.StagedAt.IsZero() {
		it.StagedAt = s.now()
	}

	unlock := s.locks.lock(owner)
	defer unlock()
	n, err := s.store.StageItem(ctx, it)
	if err != nil {
		return 0, err
	}
	metrics.ItemsStaged.Inc()
	return n, nil
}

func (s *Service) CountStaged(ctx context.Context, owner int64) (int, error) {
	return s.store.CountStaged(ctx, owner)
}

// Cancel drops the owner's staging buffer. Cancelling an empty buffer is not an error.
func (s *Service) Cancel(ctx context.Context, owner int64) (int, error) {
	unlock := s.locks.lock(owner)
	defer unlock()
	return s.store.ClearStaged(ctx, owner)
}

type CommitResult struct {
	Code     string
	Count    int
	Settings Settings
	DeleteAt *time.Time
}

// Commit moves the owner's staged items into a new batch under a fresh code,
// stamped with the current global settings.
func (s *Service) Commit(ctx context.Context, owner int64) (CommitResult, error) {
	unlock := s.locks.lock(owner)
	defer unlock()

	n, err := s.store.CountStaged(ctx, owner)
	if err != nil {
		return CommitResult{}, err
	}
	if n == 0 {
		return CommitResult{}, ErrEmptyBatch
	}

	settings, err := s.defaults.Global(ctx)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load defaults: %w", err)
	}
	code, err := s.freeCode(ctx)
	if err != nil {
		return CommitResult{}, err
	}

	now := s.now()
	b := Batch{
		Code:        code,
		OwnerID:     owner,
		CommittedAt: now,
		Settings:    settings,
		DeleteAt:    DeleteAtFor(now, settings),
	}
	moved, err := s.store.CommitStaged(ctx, owner, b)
	if err != nil {
		return CommitResult{}, err
	}
	if moved == 0 {
		return CommitResult{}, ErrEmptyBatch
	}

	metrics.BatchesCommitted.Inc()
	eventbus.Publish(s.bus, eventbus.TypeBatchCommitted, CommittedEvent{Code: code, OwnerID: owner, Count: moved, DeleteAt: b.DeleteAt})
	s.log.Info("batch committed", logx.String("code", code), logx.Int64("owner", owner), logx.Int("items", moved))
	return CommitResult{Code: code, Count: moved, Settings: settings, DeleteAt: b.DeleteAt}, nil
}

func (s *Service) freeCode(ctx context.Context) (string, error) {
	for i := 0; i < s.codeAttempts; i++ {
		code, err := s.newCode(s.codeLen)
		if err != nil {
			return "", err
		}
		taken, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		s.log.Warn("code collision", logx.String("code", code), logx.Int("attempt", i+1))
	}
	return "", ErrCodeSpace
}

// Retrieve returns the batch behind code with its items in commit order.
func (s *Service) Retrieve(ctx context.Context, code string) (Batch, error) {
	if !ValidCode(code) {
		return Batch{}, ErrNotFound
	}
	return s.store.GetBatch(ctx, code)
}

// DeleteBatch removes code if owner owns it. Unknown codes and foreign codes
// both yield ErrUnauthorized.
func (s *Service) DeleteBatch(ctx context.Context, code string, owner int64) (int, error) {
	if !ValidCode(code) {
		return 0, ErrUnauthorized
	}
	n, err := s.store.DeleteBatch(ctx, code, owner)
	if err != nil {
		return 0, err
	}
	metrics.BatchesDeleted.WithLabelValues("owner").Inc()
	eventbus.Publish(s.bus, eventbus.TypeBatchDeleted, DeletedEvent{Code: code, OwnerID: owner, Count: n})
	return n, nil
}

// Owns reports whether owner committed code.
func (s *Service) Owns(ctx context.Context, code string, owner int64) (bool, error) {
	if !ValidCode(code) {
		return false, nil
	}
	b, err := s.store.BatchMeta(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.OwnerID == owner, nil
}

func (s *Service) ListBatches(ctx context.Context, owner int64, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListBatches(ctx, owner, limit)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) { return s.store.Stats(ctx) }

// UpsertConsumer records a consumer on first and every later interaction.
func (s *Service) UpsertConsumer(ctx context.Context, c Consumer) error {
	return s.store.UpsertConsumer(ctx, c, s.now())
}

func (s *Service) ListConsumers(ctx context.Context) ([]Consumer, error) {
	return s.store.ListConsumers(ctx)
}

type storeDefaults struct{ store Store }

func (d storeDefaults) Global(ctx context.Context) (Settings, error) {
	s, ok, err := d.store.GlobalSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return DefaultSettings(), nil
	}
	return s, nil
}
