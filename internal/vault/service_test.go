package vault_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sharebot/internal/eventbus"
	"sharebot/internal/storage"
	"sharebot/internal/vault"
)

type fakeProber struct {
	mu   sync.Mutex
	bad  map[string]bool
	seen []string
}

func (p *fakeProber) Probe(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, ref)
	if p.bad[ref] {
		return errors.New("file not found")
	}
	return nil
}

type fixedDefaults vault.Settings

func (d fixedDefaults) Global(context.Context) (vault.Settings, error) { return vault.Settings(d), nil }

func newService(t *testing.T, opts ...vault.Option) (*vault.Service, vault.Store, *fakeProber) {
	t.Helper()
	st := storage.NewMemory()
	p := &fakeProber{bad: map[string]bool{}}
	return vault.NewService(st, p, opts...), st, p
}

func TestStageRejectsUnprobeable(t *testing.T) {
	t.Parallel()
	svc, _, p := newService(t)
	ctx := context.Background()
	p.bad["gone"] = true

	if _, err := svc.Stage(ctx, 1, vault.Item{ExternalRef: "ok", Kind: vault.KindPhoto}); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := svc.Stage(ctx, 1, vault.Item{ExternalRef: "gone", Kind: vault.KindPhoto}); !errors.Is(err, vault.ErrInvalidItem) {
		t.Fatalf("Stage err = %v, want ErrInvalidItem", err)
	}
	if _, err := svc.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: "gif"}); !errors.Is(err, vault.ErrInvalidItem) {
		t.Fatalf("Stage unknown kind err = %v, want ErrInvalidItem", err)
	}
	if n, _ := svc.CountStaged(ctx, 1); n != 1 {
		t.Fatalf("CountStaged = %d, want 1", n)
	}
}

func TestStageWithoutProbe(t *testing.T) {
	t.Parallel()
	svc, _, p := newService(t)
	p.bad["fwd"] = true

	n, err := svc.Stage(context.Background(), 1, vault.Item{ExternalRef: "fwd", Kind: vault.KindDocument}, vault.WithoutProbe())
	if err != nil || n != 1 {
		t.Fatalf("Stage = %d, %v; want 1, nil", n, err)
	}
	if len(p.seen) != 0 {
		t.Fatalf("probe called %d times, want 0", len(p.seen))
	}
}

func TestCommitEmpty(t *testing.T) {
	t.Parallel()
	svc, st, _ := newService(t)
	if _, err := svc.Commit(context.Background(), 7); !errors.Is(err, vault.ErrEmptyBatch) {
		t.Fatalf("Commit err = %v, want ErrEmptyBatch", err)
	}
	stats, _ := st.Stats(context.Background())
	if stats.Batches != 0 {
		t.Fatalf("batches = %d, want 0", stats.Batches)
	}
}

func TestCommitRetrieve(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	svc, _, _ := newService(t,
		vault.WithClock(func() time.Time { return at }),
		vault.WithDefaults(fixedDefaults{AutoDelete: true, DeleteAfterHours: 6, ProtectContent: true}),
		vault.WithBus(bus),
	)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		if _, err := svc.Stage(ctx, 1, vault.Item{ExternalRef: string(rune('a' + i)), Kind: vault.KindPhoto}); err != nil {
			t.Fatalf("Stage: %v", err)
		}
	}
	res, err := svc.Commit(ctx, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Count != 11 || len(res.Code) != vault.DefaultCodeLength {
		t.Fatalf("Commit = %+v", res)
	}
	if res.DeleteAt == nil || !res.DeleteAt.Equal(at.Add(6*time.Hour)) {
		t.Fatalf("DeleteAt = %v, want %v", res.DeleteAt, at.Add(6*time.Hour))
	}
	if n, _ := svc.CountStaged(ctx, 1); n != 0 {
		t.Fatalf("CountStaged after commit = %d, want 0", n)
	}

	b, err := svc.Retrieve(ctx, res.Code)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(b.Items) != 11 || b.Items[0].ExternalRef != "a" || b.Items[10].ExternalRef != "k" {
		t.Fatalf("items = %+v", b.Items)
	}
	if !b.Settings.ProtectContent || !b.Settings.AutoDelete {
		t.Fatalf("settings = %+v, want snapshot of defaults", b.Settings)
	}
	cs := vault.Group(b.Items)
	if len(cs) != 2 || len(cs[0].Items) != 10 || len(cs[1].Items) != 1 {
		t.Fatalf("clusters = %d", len(cs))
	}

	select {
	case e := <-events:
		if e.Type != eventbus.TypeBatchCommitted {
			t.Fatalf("event = %s, want %s", e.Type, eventbus.TypeBatchCommitted)
		}
	default:
		t.Fatalf("no commit event published")
	}
}

func TestCommitRetriesCollidingCode(t *testing.T) {
	t.Parallel()
	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	var i int
	svc, _, _ := newService(t, vault.WithCodeSource(func(int) (string, error) {
		c := codes[i]
		i++
		return c, nil
	}))
	ctx := context.Background()

	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: vault.KindAudio})
	first, err := svc.Commit(ctx, 1)
	if err != nil || first.Code != "AAAAAAAA" {
		t.Fatalf("first commit = %+v, %v", first, err)
	}
	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "y", Kind: vault.KindAudio})
	second, err := svc.Commit(ctx, 1)
	if err != nil || second.Code != "BBBBBBBB" {
		t.Fatalf("second commit = %+v, %v; want BBBBBBBB", second, err)
	}
}

func TestCommitGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t,
		vault.WithCodes(8, 2),
		vault.WithCodeSource(func(int) (string, error) { return "SAMECODE", nil }),
	)
	ctx := context.Background()
	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: vault.KindAudio})
	if _, err := svc.Commit(ctx, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "y", Kind: vault.KindAudio})
	if _, err := svc.Commit(ctx, 1); !errors.Is(err, vault.ErrCodeSpace) {
		t.Fatalf("Commit err = %v, want ErrCodeSpace", err)
	}
	if n, _ := svc.CountStaged(ctx, 1); n != 1 {
		t.Fatalf("staged = %d, want 1 kept after failed commit", n)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: vault.KindSticker})
	_, _ = svc.Stage(ctx, 2, vault.Item{ExternalRef: "y", Kind: vault.KindSticker})

	for i := 0; i < 2; i++ {
		if _, err := svc.Cancel(ctx, 1); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	}
	if n, _ := svc.CountStaged(ctx, 1); n != 0 {
		t.Fatalf("owner 1 staged = %d, want 0", n)
	}
	if n, _ := svc.CountStaged(ctx, 2); n != 1 {
		t.Fatalf("owner 2 staged = %d, want 1", n)
	}
}

func TestRetrieveUnknown(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	for _, code := range []string{"NOPE1234", "", "bad code!"} {
		if _, err := svc.Retrieve(context.Background(), code); !errors.Is(err, vault.ErrNotFound) {
			t.Fatalf("Retrieve(%q) err = %v, want ErrNotFound", code, err)
		}
	}
}

func TestDeleteBatchOwnership(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: vault.KindVideo})
	res, err := svc.Commit(ctx, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := svc.DeleteBatch(ctx, res.Code, 2); !errors.Is(err, vault.ErrUnauthorized) {
		t.Fatalf("foreign delete err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.DeleteBatch(ctx, "UNKNOWN1", 1); !errors.Is(err, vault.ErrUnauthorized) {
		t.Fatalf("unknown delete err = %v, want ErrUnauthorized", err)
	}
	if ok, _ := svc.Owns(ctx, res.Code, 2); ok {
		t.Fatalf("Owns(other) = true")
	}
	n, err := svc.DeleteBatch(ctx, res.Code, 1)
	if err != nil || n != 1 {
		t.Fatalf("DeleteBatch = %d, %v; want 1, nil", n, err)
	}
	if _, err := svc.Retrieve(ctx, res.Code); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("Retrieve after delete err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentStageAndCommit(t *testing.T) {
	t.Parallel()
	svc, st, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Stage(ctx, 9, vault.Item{ExternalRef: "r", Kind: vault.KindDocument})
			if i%10 == 9 {
				if res, err := svc.Commit(ctx, 9); err == nil {
					mu.Lock()
					committed += res.Count
					mu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()
	rest, _ := svc.CountStaged(ctx, 9)
	stats, _ := st.Stats(ctx)
	if committed+rest != 50 || stats.Items != committed {
		t.Fatalf("committed %d + staged %d (store %d), want 50 total", committed, rest, stats.Items)
	}
}

func TestChannelErrorMatches(t *testing.T) {
	t.Parallel()
	cause := errors.New("bad gateway")
	err := error(&vault.ChannelError{Op: "send", Attempts: 3, Err: cause})
	if !errors.Is(err, vault.ErrChannel) || !errors.Is(err, cause) {
		t.Fatalf("errors.Is(%v) failed for ErrChannel or cause", err)
	}
}
