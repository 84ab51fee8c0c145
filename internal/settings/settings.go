// Package settings holds the global batch defaults and per-code settings.
package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

// Backend is the part of vault.Store this package needs.
type Backend interface {
	GlobalSettings(ctx context.Context) (vault.Settings, bool, error)
	PutGlobalSettings(ctx context.Context, s vault.Settings) error
	BatchMeta(ctx context.Context, code string) (vault.Batch, error)
	UpdateBatchSettings(ctx context.Context, code string, s vault.Settings, deleteAt *time.Time) error
}

// Store serves GlobalConfig from memory and writes through to the backend.
type Store struct {
	mu     sync.Mutex
	b      Backend
	log    logx.Logger
	global vault.Settings
	loaded bool
}

func New(b Backend, log logx.Logger) *Store {
	return &Store{b: b, log: log}
}

// Init loads GlobalConfig, writing defaults when the store has none yet.
func (s *Store) Init(ctx context.Context, defaults vault.Settings) (vault.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok, err := s.b.GlobalSettings(ctx)
	if err != nil {
		return vault.Settings{}, err
	}
	if !ok {
		g = defaults
		if err := s.b.PutGlobalSettings(ctx, g); err != nil {
			return vault.Settings{}, err
		}
		s.log.Info("global settings created", logx.Bool("auto_delete", g.AutoDelete), logx.Int("hours", g.DeleteAfterHours))
	}
	s.global = g
	s.loaded = true
	return g, nil
}

// Global returns the current defaults. It satisfies vault.Defaults.
func (s *Store) Global(ctx context.Context) (vault.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		g, ok, err := s.b.GlobalSettings(ctx)
		if err != nil {
			return vault.Settings{}, err
		}
		if !ok {
			g = vault.DefaultSettings()
		}
		s.global = g
		s.loaded = true
	}
	return s.global, nil
}

// GetEffective returns the settings a batch carries. A batch's stored triple
// is authoritative once committed; unknown codes fall back to the global defaults.
func (s *Store) GetEffective(ctx context.Context, code string) (vault.Settings, error) {
	if code == "" {
		return s.Global(ctx)
	}
	b, err := s.b.BatchMeta(ctx, code)
	if errors.Is(err, vault.ErrNotFound) {
		return s.Global(ctx)
	}
	if err != nil {
		return vault.Settings{}, err
	}
	return b.Settings, nil
}

// SetGlobal merges p into the defaults. Existing batches are not touched.
func (s *Store) SetGlobal(ctx context.Context, p vault.Patch) (vault.Settings, error) {
	if err := validate(p); err != nil {
		return vault.Settings{}, err
	}
	cur, err := s.Global(ctx)
	if err != nil {
		return vault.Settings{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cur.Apply(p)
	if err := s.b.PutGlobalSettings(ctx, next); err != nil {
		return vault.Settings{}, err
	}
	s.global = next
	return next, nil
}

// SetForCode merges p into one batch and recomputes its absolute expiry.
func (s *Store) SetForCode(ctx context.Context, code string, p vault.Patch) (vault.Settings, error) {
	if err := validate(p); err != nil {
		return vault.Settings{}, err
	}
	b, err := s.b.BatchMeta(ctx, code)
	if err != nil {
		return vault.Settings{}, err
	}
	next := b.Settings.Apply(p)
	if err := s.b.UpdateBatchSettings(ctx, code, next, vault.DeleteAtFor(b.CommittedAt, next)); err != nil {
		return vault.Settings{}, err
	}
	return next, nil
}

func validate(p vault.Patch) error {
	if p.DeleteAfterHours == nil {
		return nil
	}
	return vault.ValidateHours(*p.DeleteAfterHours)
}
