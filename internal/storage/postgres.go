package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

//go:embed postgres_schema.sql
var postgresSchema string

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (vault.Store, error) {
	pool, err := NewPool(ctx, strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres pool ready")
	return &postgresStore{pool: pool, log: log}, nil
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MinConns = 0
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	return pool, nil
}

func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) error {
	if pool == nil {
		return errors.New("postgres pool is nil")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) StageItem(ctx context.Context, it vault.Item) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
WITH ins AS (
	INSERT INTO staged_items(owner_id, external_ref, kind, caption, staged_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING owner_id
)
SELECT COUNT(*) + 1 FROM staged_items WHERE owner_id = $1
`, it.OwnerID, it.ExternalRef, string(it.Kind), nullStr(it.Caption), it.StagedAt.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("stage item: %w", err)
	}
	return n, nil
}

func (s *postgresStore) CountStaged(ctx context.Context, owner int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staged_items WHERE owner_id = $1`, owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("count staged: %w", err)
	}
	return n, nil
}

func (s *postgresStore) ClearStaged(ctx context.Context, owner int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM staged_items WHERE owner_id = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("clear staged: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *postgresStore) CommitStaged(ctx context.Context, owner int64, b vault.Batch) (int, error) {
	var moved int
	err := WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		// Row locks keep a concurrent stage from slipping between copy and clear.
		rows, err := tx.Query(ctx, `
SELECT id, external_ref, kind, COALESCE(caption, '')
FROM staged_items
WHERE owner_id = $1
ORDER BY id
FOR UPDATE`, owner)
		if err != nil {
			return fmt.Errorf("load staged: %w", err)
		}
		var (
			ids   []int64
			items []vault.Item
		)
		for rows.Next() {
			var (
				id   int64
				it   vault.Item
				kind string
			)
			if err := rows.Scan(&id, &it.ExternalRef, &kind, &it.Caption); err != nil {
				rows.Close()
				return fmt.Errorf("scan staged: %w", err)
			}
			it.Kind = vault.Kind(kind)
			ids = append(ids, id)
			items = append(items, it)
		}
		rows.Close()
		if rows.Err() != nil {
			return fmt.Errorf("iterate staged: %w", rows.Err())
		}
		if len(items) == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO batches(code, owner_id, committed_at, auto_delete, delete_after_hours, delete_at, protect_content)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.Code, owner, b.CommittedAt.UTC(), b.Settings.AutoDelete, b.Settings.DeleteAfterHours,
			utcPtr(b.DeleteAt), b.Settings.ProtectContent,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return vault.ErrCodeSpace
			}
			return fmt.Errorf("insert batch: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range items {
			batch.Queue(`INSERT INTO batch_items(code, seq, external_ref, kind, caption) VALUES ($1, $2, $3, $4, $5)`,
				b.Code, i, it.ExternalRef, string(it.Kind), nullStr(it.Caption))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert batch items: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM staged_items WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("clear staged: %w", err)
		}
		moved = len(items)
		return nil
	})
	return moved, err
}

func (s *postgresStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE code = $1)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check code exists: %w", err)
	}
	return exists, nil
}

func (s *postgresStore) BatchMeta(ctx context.Context, code string) (vault.Batch, error) {
	var b vault.Batch
	err := s.pool.QueryRow(ctx, `
SELECT code, owner_id, committed_at, auto_delete, delete_after_hours, delete_at, protect_content
FROM batches
WHERE code = $1`, code).Scan(
		&b.Code,
		&b.OwnerID,
		&b.CommittedAt,
		&b.Settings.AutoDelete,
		&b.Settings.DeleteAfterHours,
		&b.DeleteAt,
		&b.Settings.ProtectContent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return vault.Batch{}, vault.ErrNotFound
	}
	if err != nil {
		return vault.Batch{}, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (s *postgresStore) GetBatch(ctx context.Context, code string) (vault.Batch, error) {
	b, err := s.BatchMeta(ctx, code)
	if err != nil {
		return vault.Batch{}, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT external_ref, kind, COALESCE(caption, '')
FROM batch_items
WHERE code = $1
ORDER BY seq`, code)
	if err != nil {
		return vault.Batch{}, fmt.Errorf("get batch items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it   vault.Item
			kind string
		)
		if err := rows.Scan(&it.ExternalRef, &kind, &it.Caption); err != nil {
			return vault.Batch{}, fmt.Errorf("scan batch item: %w", err)
		}
		it.Kind = vault.Kind(kind)
		it.OwnerID = b.OwnerID
		it.CommittedAt = b.CommittedAt
		b.Items = append(b.Items, it)
	}
	if rows.Err() != nil {
		return vault.Batch{}, fmt.Errorf("iterate batch items: %w", rows.Err())
	}
	return b, nil
}

func (s *postgresStore) DeleteBatch(ctx context.Context, code string, owner int64) (int, error) {
	var n int
	err := WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		var got int64
		err := tx.QueryRow(ctx, `SELECT owner_id FROM batches WHERE code = $1 FOR UPDATE`, code).Scan(&got)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && got != owner) {
			return vault.ErrUnauthorized
		}
		if err != nil {
			return fmt.Errorf("lock batch: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM batch_items WHERE code = $1`, code)
		if err != nil {
			return fmt.Errorf("delete batch items: %w", err)
		}
		n = int(tag.RowsAffected())
		if _, err := tx.Exec(ctx, `DELETE FROM batches WHERE code = $1`, code); err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
		return nil
	})
	return n, err
}

func (s *postgresStore) ListBatches(ctx context.Context, owner int64, limit int) ([]vault.BatchSummary, error) {
	rows, err := s.pool.Query(ctx, `
SELECT
	b.code,
	b.committed_at,
	b.auto_delete,
	b.delete_after_hours,
	b.protect_content,
	COUNT(i.seq),
	COALESCE((SELECT kind FROM batch_items f WHERE f.code = b.code ORDER BY seq LIMIT 1), ''),
	COALESCE((SELECT caption FROM batch_items f WHERE f.code = b.code ORDER BY seq LIMIT 1), '')
FROM batches b
LEFT JOIN batch_items i ON i.code = b.code
WHERE b.owner_id = $1
GROUP BY b.code
ORDER BY b.committed_at DESC, b.code
LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := make([]vault.BatchSummary, 0, limit)
	for rows.Next() {
		var (
			sum  vault.BatchSummary
			kind string
		)
		if err := rows.Scan(
			&sum.Code,
			&sum.CommittedAt,
			&sum.Settings.AutoDelete,
			&sum.Settings.DeleteAfterHours,
			&sum.Settings.ProtectContent,
			&sum.Count,
			&kind,
			&sum.FirstCaption,
		); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		sum.FirstKind = vault.Kind(kind)
		out = append(out, sum)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate batches: %w", rows.Err())
	}
	return out, nil
}

func (s *postgresStore) UpdateBatchSettings(ctx context.Context, code string, st vault.Settings, deleteAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE batches
SET auto_delete = $2, delete_after_hours = $3, delete_at = $4, protect_content = $5
WHERE code = $1`, code, st.AutoDelete, st.DeleteAfterHours, utcPtr(deleteAt), st.ProtectContent)
	if err != nil {
		return fmt.Errorf("update batch settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vault.ErrNotFound
	}
	return nil
}

func (s *postgresStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
DELETE FROM batches
WHERE auto_delete AND (
	(delete_at IS NOT NULL AND delete_at <= $1::timestamptz)
	OR (delete_at IS NULL AND committed_at + make_interval(hours => delete_after_hours) <= $1::timestamptz)
)
RETURNING code`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	return codes, nil
}

func (s *postgresStore) GlobalSettings(ctx context.Context) (vault.Settings, bool, error) {
	var st vault.Settings
	err := s.pool.QueryRow(ctx, `
SELECT auto_delete, delete_after_hours, protect_content
FROM global_config
WHERE id = 1`).Scan(&st.AutoDelete, &st.DeleteAfterHours, &st.ProtectContent)
	if errors.Is(err, pgx.ErrNoRows) {
		return vault.Settings{}, false, nil
	}
	if err != nil {
		return vault.Settings{}, false, fmt.Errorf("get global config: %w", err)
	}
	return st, true, nil
}

func (s *postgresStore) PutGlobalSettings(ctx context.Context, st vault.Settings) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO global_config(id, auto_delete, delete_after_hours, protect_content)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	auto_delete = EXCLUDED.auto_delete,
	delete_after_hours = EXCLUDED.delete_after_hours,
	protect_content = EXCLUDED.protect_content`, st.AutoDelete, st.DeleteAfterHours, st.ProtectContent)
	if err != nil {
		return fmt.Errorf("put global config: %w", err)
	}
	return nil
}

func (s *postgresStore) UpsertConsumer(ctx context.Context, c vault.Consumer, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO consumers(id, display_name, first_seen, last_seen)
VALUES ($1, $2, $3, $3)
ON CONFLICT (id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	last_seen = EXCLUDED.last_seen`, c.ID, nullStr(c.DisplayName), at.UTC())
	if err != nil {
		return fmt.Errorf("upsert consumer: %w", err)
	}
	return nil
}

func (s *postgresStore) ListConsumers(ctx context.Context) ([]vault.Consumer, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, COALESCE(display_name, '') FROM consumers ORDER BY first_seen, id`)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vault.Consumer, error) {
		var c vault.Consumer
		err := row.Scan(&c.ID, &c.DisplayName)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	return out, nil
}

func (s *postgresStore) Stats(ctx context.Context) (vault.Stats, error) {
	var st vault.Stats
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM batch_items),
	(SELECT COUNT(*) FROM batches),
	(SELECT COUNT(*) FROM consumers)`).Scan(&st.Items, &st.Batches, &st.Consumers)
	if err != nil {
		return vault.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
