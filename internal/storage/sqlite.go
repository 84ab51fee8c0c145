package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sharebot/internal/vault"
	"sharebot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// Times are stored as unix milliseconds.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (vault.Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *sqliteStore) StageItem(ctx context.Context, it vault.Item) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO staged_items(owner_id, external_ref, kind, caption, staged_at) VALUES(?,?,?,?,?)`,
			it.OwnerID, it.ExternalRef, string(it.Kind), nullStr(it.Caption), it.StagedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("stage item: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM staged_items WHERE owner_id = ?`, it.OwnerID).Scan(&n)
	})
	return n, err
}

func (s *sqliteStore) CountStaged(ctx context.Context, owner int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staged_items WHERE owner_id = ?`, owner).Scan(&n)
	return n, err
}

func (s *sqliteStore) ClearStaged(ctx context.Context, owner int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM staged_items WHERE owner_id = ?`, owner)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) CommitStaged(ctx context.Context, owner int64, b vault.Batch) (int, error) {
	var moved int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, external_ref, kind, caption FROM staged_items WHERE owner_id = ? ORDER BY id`, owner)
		if err != nil {
			return fmt.Errorf("load staged: %w", err)
		}
		type row struct {
			ref, kind string
			caption   sql.NullString
		}
		var (
			items []row
			maxID int64
		)
		for rows.Next() {
			var r row
			var id int64
			if err := rows.Scan(&id, &r.ref, &r.kind, &r.caption); err != nil {
				rows.Close()
				return err
			}
			items = append(items, r)
			maxID = id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches(code, owner_id, committed_at, auto_delete, delete_after_hours, delete_at, protect_content)
			 VALUES(?,?,?,?,?,?,?)`,
			b.Code, owner, b.CommittedAt.UnixMilli(), boolInt(b.Settings.AutoDelete), b.Settings.DeleteAfterHours,
			nullMillis(b.DeleteAt), boolInt(b.Settings.ProtectContent),
		); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return vault.ErrCodeSpace
			}
			return fmt.Errorf("insert batch: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO batch_items(code, seq, external_ref, kind, caption) VALUES(?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range items {
			if _, err := stmt.ExecContext(ctx, b.Code, i, r.ref, r.kind, r.caption); err != nil {
				return fmt.Errorf("insert batch item: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM staged_items WHERE owner_id = ? AND id <= ?`, owner, maxID); err != nil {
			return fmt.Errorf("clear staged: %w", err)
		}
		moved = len(items)
		return nil
	})
	return moved, err
}

func (s *sqliteStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE code = ?`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

const sqliteBatchCols = `code, owner_id, committed_at, auto_delete, delete_after_hours, delete_at, protect_content`

func scanSQLiteBatch(sc interface{ Scan(...any) error }) (vault.Batch, error) {
	var (
		b         vault.Batch
		committed int64
		deleteAt  sql.NullInt64
		auto      int
		protect   int
	)
	if err := sc.Scan(&b.Code, &b.OwnerID, &committed, &auto, &b.Settings.DeleteAfterHours, &deleteAt, &protect); err != nil {
		return vault.Batch{}, err
	}
	b.CommittedAt = time.UnixMilli(committed)
	b.Settings.AutoDelete = auto != 0
	b.Settings.ProtectContent = protect != 0
	if deleteAt.Valid {
		t := time.UnixMilli(deleteAt.Int64)
		b.DeleteAt = &t
	}
	return b, nil
}

func (s *sqliteStore) BatchMeta(ctx context.Context, code string) (vault.Batch, error) {
	b, err := scanSQLiteBatch(s.db.QueryRowContext(ctx, `SELECT `+sqliteBatchCols+` FROM batches WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Batch{}, vault.ErrNotFound
	}
	return b, err
}

func (s *sqliteStore) GetBatch(ctx context.Context, code string) (vault.Batch, error) {
	b, err := s.BatchMeta(ctx, code)
	if err != nil {
		return vault.Batch{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_ref, kind, caption FROM batch_items WHERE code = ? ORDER BY seq`, code)
	if err != nil {
		return vault.Batch{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it      vault.Item
			kind    string
			caption sql.NullString
		)
		if err := rows.Scan(&it.ExternalRef, &kind, &caption); err != nil {
			return vault.Batch{}, err
		}
		it.Kind = vault.Kind(kind)
		it.Caption = caption.String
		it.OwnerID = b.OwnerID
		it.CommittedAt = b.CommittedAt
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

func (s *sqliteStore) DeleteBatch(ctx context.Context, code string, owner int64) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var got int64
		err := tx.QueryRowContext(ctx, `SELECT owner_id FROM batches WHERE code = ?`, code).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && got != owner) {
			return vault.ErrUnauthorized
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM batch_items WHERE code = ?`, code)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		n = int(affected)
		_, err = tx.ExecContext(ctx, `DELETE FROM batches WHERE code = ?`, code)
		return err
	})
	return n, err
}

func (s *sqliteStore) ListBatches(ctx context.Context, owner int64, limit int) ([]vault.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
	b.code, b.committed_at, b.auto_delete, b.delete_after_hours, b.protect_content,
	(SELECT COUNT(*) FROM batch_items i WHERE i.code = b.code),
	(SELECT kind FROM batch_items i WHERE i.code = b.code ORDER BY seq LIMIT 1),
	(SELECT caption FROM batch_items i WHERE i.code = b.code ORDER BY seq LIMIT 1)
FROM batches b
WHERE b.owner_id = ?
ORDER BY b.committed_at DESC, b.code
LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []vault.BatchSummary
	for rows.Next() {
		var (
			sum           vault.BatchSummary
			committed     int64
			auto, protect int
			kind, caption sql.NullString
		)
		if err := rows.Scan(&sum.Code, &committed, &auto, &sum.Settings.DeleteAfterHours, &protect, &sum.Count, &kind, &caption); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		sum.CommittedAt = time.UnixMilli(committed)
		sum.Settings.AutoDelete = auto != 0
		sum.Settings.ProtectContent = protect != 0
		sum.FirstKind = vault.Kind(kind.String)
		sum.FirstCaption = caption.String
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateBatchSettings(ctx context.Context, code string, st vault.Settings, deleteAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET auto_delete = ?, delete_after_hours = ?, delete_at = ?, protect_content = ? WHERE code = ?`,
		boolInt(st.AutoDelete), st.DeleteAfterHours, nullMillis(deleteAt), boolInt(st.ProtectContent), code,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vault.ErrNotFound
	}
	return nil
}

// Either an absolute delete_at or committed_at + hours, whichever the row carries.
const sqliteExpiredWhere = `auto_delete = 1 AND (
	(delete_at IS NOT NULL AND delete_at <= ?1) OR
	(delete_at IS NULL AND committed_at + delete_after_hours * 3600000 <= ?1))`

func (s *sqliteStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	var codes []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ms := now.UnixMilli()
		rows, err := tx.QueryContext(ctx, `SELECT code FROM batches WHERE `+sqliteExpiredWhere+` ORDER BY code`, ms)
		if err != nil {
			return err
		}
		for rows.Next() {
			var c string
			if err := rows.Scan(&c); err != nil {
				rows.Close()
				return err
			}
			codes = append(codes, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM batch_items WHERE code IN (SELECT code FROM batches WHERE `+sqliteExpiredWhere+`)`, ms); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM batches WHERE `+sqliteExpiredWhere, ms)
		return err
	})
	return codes, err
}

func (s *sqliteStore) GlobalSettings(ctx context.Context) (vault.Settings, bool, error) {
	var (
		st            vault.Settings
		auto, protect int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT auto_delete, delete_after_hours, protect_content FROM global_config WHERE id = 1`,
	).Scan(&auto, &st.DeleteAfterHours, &protect)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Settings{}, false, nil
	}
	if err != nil {
		return vault.Settings{}, false, err
	}
	st.AutoDelete = auto != 0
	st.ProtectContent = protect != 0
	return st, true, nil
}

func (s *sqliteStore) PutGlobalSettings(ctx context.Context, st vault.Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO global_config(id, auto_delete, delete_after_hours, protect_content) VALUES(1,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET auto_delete=excluded.auto_delete,
		   delete_after_hours=excluded.delete_after_hours, protect_content=excluded.protect_content`,
		boolInt(st.AutoDelete), st.DeleteAfterHours, boolInt(st.ProtectContent),
	)
	return err
}

func (s *sqliteStore) UpsertConsumer(ctx context.Context, c vault.Consumer, at time.Time) error {
	ms := at.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumers(id, display_name, first_seen, last_seen) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, last_seen=excluded.last_seen`,
		c.ID, nullStr(c.DisplayName), ms, ms,
	)
	return err
}

func (s *sqliteStore) ListConsumers(ctx context.Context) ([]vault.Consumer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, display_name FROM consumers ORDER BY first_seen, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []vault.Consumer
	for rows.Next() {
		var (
			c    vault.Consumer
			name sql.NullString
		)
		if err := rows.Scan(&c.ID, &name); err != nil {
			return nil, err
		}
		c.DisplayName = name.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Stats(ctx context.Context) (vault.Stats, error) {
	var st vault.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM batch_items),
		(SELECT COUNT(*) FROM batches),
		(SELECT COUNT(*) FROM consumers)`).Scan(&st.Items, &st.Batches, &st.Consumers)
	return st, err
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
