package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"sharebot/internal/eventbus"
	"sharebot/internal/storage"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

func TestRunOnceHonorsTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	commitAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	v := vault.NewService(st, nil,
		vault.WithClock(func() time.Time { return commitAt }),
		vault.WithDefaults(defaults{AutoDelete: true, DeleteAfterHours: 1}),
	)
	_, _ = v.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: vault.KindDocument})
	res, err := v.Commit(ctx, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(2)
	defer unsub()
	sw := New(Config{}, st, bus, logx.Nop())

	sw.SetClock(func() time.Time { return commitAt.Add(59 * time.Minute) })
	if codes, err := sw.RunOnce(ctx); err != nil || len(codes) != 0 {
		t.Fatalf("RunOnce at T+59m = %v, %v; want nothing", codes, err)
	}
	if _, err := v.Retrieve(ctx, res.Code); err != nil {
		t.Fatalf("Retrieve before TTL: %v", err)
	}

	sw.SetClock(func() time.Time { return commitAt.Add(time.Hour) })
	codes, err := sw.RunOnce(ctx)
	if err != nil || len(codes) != 1 || codes[0] != res.Code {
		t.Fatalf("RunOnce at T+1h = %v, %v; want [%s]", codes, err, res.Code)
	}
	if _, err := v.Retrieve(ctx, res.Code); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("Retrieve after TTL err = %v, want ErrNotFound", err)
	}
	select {
	case e := <-ch:
		if e.Type != eventbus.TypeBatchExpired {
			t.Fatalf("event = %s", e.Type)
		}
	default:
		t.Fatalf("no expiry event")
	}

	if codes, err := sw.RunOnce(ctx); err != nil || len(codes) != 0 {
		t.Fatalf("second RunOnce = %v, %v; want idempotent no-op", codes, err)
	}
}

func TestStartRunsFirstSweep(t *testing.T) {
	t.Parallel()
	calls := make(chan time.Time, 4)
	sw := New(Config{Enabled: true, FirstRun: 10 * time.Millisecond, Every: time.Hour}, expirerFunc(func(_ context.Context, now time.Time) ([]string, error) {
		calls <- now
		return nil, nil
	}), nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw.Start(ctx)
	defer sw.Stop(context.Background())

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("first sweep did not run")
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()
	sw := New(Config{Enabled: false, FirstRun: time.Millisecond}, expirerFunc(func(context.Context, time.Time) ([]string, error) {
		t.Errorf("sweep ran while disabled")
		return nil, nil
	}), nil, logx.Nop())
	sw.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	sw.Stop(context.Background())
}

type defaults vault.Settings

func (d defaults) Global(context.Context) (vault.Settings, error) { return vault.Settings(d), nil }

type expirerFunc func(ctx context.Context, now time.Time) ([]string, error)

func (f expirerFunc) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	return f(ctx, now)
}
