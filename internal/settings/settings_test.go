package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"sharebot/internal/storage"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

func ptr[T any](v T) *T { return &v }

func TestInitCreatesSingletonOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	g, err := New(st, logx.Nop()).Init(ctx, vault.Settings{AutoDelete: true, DeleteAfterHours: 12})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !g.AutoDelete || g.DeleteAfterHours != 12 {
		t.Fatalf("Init = %+v", g)
	}

	g, err = New(st, logx.Nop()).Init(ctx, vault.DefaultSettings())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !g.AutoDelete || g.DeleteAfterHours != 12 {
		t.Fatalf("second Init overwrote stored settings: %+v", g)
	}
}

func TestSetGlobalMerges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(storage.NewMemory(), logx.Nop())
	if _, err := s.Init(ctx, vault.DefaultSettings()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got, err := s.SetGlobal(ctx, vault.Patch{ProtectContent: ptr(true)})
	if err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	want := vault.Settings{DeleteAfterHours: 24, ProtectContent: true}
	if got != want {
		t.Fatalf("SetGlobal = %+v, want %+v", got, want)
	}
	got, _ = s.SetGlobal(ctx, vault.Patch{DeleteAfterHours: ptr(48)})
	want.DeleteAfterHours = 48
	if got != want {
		t.Fatalf("SetGlobal = %+v, want %+v", got, want)
	}
	if eff, _ := s.GetEffective(ctx, "UNKNOWN1"); eff != want {
		t.Fatalf("GetEffective(unknown) = %+v, want %+v", eff, want)
	}
}

func TestSetForCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	s := New(st, logx.Nop())
	if _, err := s.Init(ctx, vault.DefaultSettings()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := vault.NewService(st, nil, vault.WithDefaults(s), vault.WithClock(func() time.Time { return at }))
	_, _ = svc.Stage(ctx, 1, vault.Item{ExternalRef: "x", Kind: vault.KindPhoto})
	res, err := svc.Commit(ctx, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.DeleteAt != nil {
		t.Fatalf("DeleteAt = %v, want nil with auto-delete off", res.DeleteAt)
	}

	got, err := s.SetForCode(ctx, res.Code, vault.Patch{AutoDelete: ptr(true), DeleteAfterHours: ptr(3)})
	if err != nil {
		t.Fatalf("SetForCode: %v", err)
	}
	if !got.AutoDelete || got.DeleteAfterHours != 3 {
		t.Fatalf("SetForCode = %+v", got)
	}
	b, _ := st.BatchMeta(ctx, res.Code)
	if b.DeleteAt == nil || !b.DeleteAt.Equal(at.Add(3*time.Hour)) {
		t.Fatalf("DeleteAt = %v, want %v", b.DeleteAt, at.Add(3*time.Hour))
	}
	if eff, _ := s.GetEffective(ctx, res.Code); eff != got {
		t.Fatalf("GetEffective = %+v, want %+v", eff, got)
	}
	if g, _ := s.Global(ctx); g.AutoDelete {
		t.Fatalf("per-code change leaked into global: %+v", g)
	}

	if _, err := s.SetForCode(ctx, "MISSING1", vault.Patch{}); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("SetForCode(missing) err = %v, want ErrNotFound", err)
	}
}

func TestSetRejectsOutOfRangeHours(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(storage.NewMemory(), logx.Nop())

	for _, h := range []int{0, 721, -5} {
		if _, err := s.SetGlobal(ctx, vault.Patch{DeleteAfterHours: ptr(h)}); !errors.Is(err, vault.ErrValidation) {
			t.Fatalf("SetGlobal(%d) err = %v, want ErrValidation", h, err)
		}
		if _, err := s.SetForCode(ctx, "AbCdEf12", vault.Patch{DeleteAfterHours: ptr(h)}); !errors.Is(err, vault.ErrValidation) {
			t.Fatalf("SetForCode(%d) err = %v, want ErrValidation", h, err)
		}
	}
	g, err := s.SetGlobal(ctx, vault.Patch{DeleteAfterHours: ptr(720)})
	if err != nil || g.DeleteAfterHours != 720 {
		t.Fatalf("SetGlobal(720) = %+v, %v", g, err)
	}
}
