package vault

import (
	"context"
	"time"
)

// Store persists staged items, committed batches, the global defaults and the
// consumer registry. Implementations live in internal/storage.
type Store interface {
	StageItem(ctx context.Context, it Item) (int, error)
	CountStaged(ctx context.Context, owner int64) (int, error)
	ClearStaged(ctx context.Context, owner int64) (int, error)
	// CommitStaged moves the owner's staged items into b atomically and
	// returns how many were moved. Zero staged items leaves the store untouched.
	CommitStaged(ctx context.Context, owner int64, b Batch) (int, error)

	CodeExists(ctx context.Context, code string) (bool, error)
	// GetBatch returns the batch with its items in commit order, or ErrNotFound.
	GetBatch(ctx context.Context, code string) (Batch, error)
	// BatchMeta is GetBatch without items.
	BatchMeta(ctx context.Context, code string) (Batch, error)
	// DeleteBatch removes code only if owned by owner; it returns the number of
	// items removed and ErrUnauthorized otherwise.
	DeleteBatch(ctx context.Context, code string, owner int64) (int, error)
	ListBatches(ctx context.Context, owner int64, limit int) ([]BatchSummary, error)
	UpdateBatchSettings(ctx context.Context, code string, s Settings, deleteAt *time.Time) error
	// DeleteExpired removes every batch expired at now and returns their codes.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)

	// GlobalSettings reports false when the singleton row has never been written.
	GlobalSettings(ctx context.Context) (Settings, bool, error)
	PutGlobalSettings(ctx context.Context, s Settings) error

	UpsertConsumer(ctx context.Context, c Consumer, at time.Time) error
	ListConsumers(ctx context.Context) ([]Consumer, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
