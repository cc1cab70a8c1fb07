//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"twotoone/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) InsertStrategy(ctx context.Context, name, text string) (string, error) {
	db, err := s.getDB()
	if err != nil {
		return "", err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO strategies (name, text, rank, created_at)
		VALUES (?, ?, 0, ?)
	`, name, text, time.Now().UTC().UnixMilli())
	if err != nil {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (model.StrategyRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.StrategyRecord{}, false, err
	}
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return model.StrategyRecord{}, false, nil
	}

	rec, err := scanStrategy(db.QueryRowContext(ctx, `
		SELECT id, name, text, rank, created_at FROM strategies WHERE id = ?
	`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StrategyRecord{}, false, nil
		}
		return model.StrategyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]model.StrategyRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, name, text, rank, created_at FROM strategies
		ORDER BY rank = 0, rank, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrategyRecord
	for rows.Next() {
		rec, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Reorder(ctx context.Context, ids []string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for pos, id := range ids {
		key, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
		}
		res, err := tx.ExecContext(ctx, `UPDATE strategies SET rank = ? WHERE id = ?`, pos+1, key)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshot model.RankingSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO ranking_snapshots (id, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, snapshot.ID, snapshot.CreatedAt.UTC().UnixMilli(), snapshot.SchemaVersion, snapshot.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]model.RankingSnapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, payload FROM ranking_snapshots ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RankingSnapshot
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		snapshot, err := DecodeSnapshot(payload)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
		}
		out = append(out, snapshot)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (model.StrategyRecord, error) {
	var (
		id        int64
		rec       model.StrategyRecord
		createdAt int64
	)
	if err := row.Scan(&id, &rec.Name, &rec.Text, &rec.Rank, &createdAt); err != nil {
		return model.StrategyRecord{}, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return rec, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS strategies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			text TEXT NOT NULL,
			rank INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS ranking_snapshots (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
