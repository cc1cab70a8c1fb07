package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"twotoone/internal/model"
)

//go:embed schema_postgres.sql
var postgresSchema string

type PostgresStore struct {
	dsn string

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("postgres dsn is required")
	}
	if s.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	s.pool = pool
	return nil
}

func (s *PostgresStore) InsertStrategy(ctx context.Context, name, text string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}

	var id int64
	err = pool.QueryRow(ctx, `
		INSERT INTO strategies (name, text)
		VALUES ($1, $2)
		RETURNING id
	`, name, text).Scan(&id)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *PostgresStore) GetStrategy(ctx context.Context, id string) (model.StrategyRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.StrategyRecord{}, false, err
	}
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return model.StrategyRecord{}, false, nil
	}

	rec, err := scanPgStrategy(pool.QueryRow(ctx, `
		SELECT id, name, text, rank, created_at FROM strategies WHERE id = $1
	`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StrategyRecord{}, false, nil
		}
		return model.StrategyRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]model.StrategyRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT id, name, text, rank, created_at FROM strategies
		ORDER BY rank = 0, rank, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrategyRecord
	for rows.Next() {
		rec, err := scanPgStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Reorder(ctx context.Context, ids []string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for pos, id := range ids {
			key, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
			}
			tag, err := tx.Exec(ctx, `UPDATE strategies SET rank = $1 WHERE id = $2`, pos+1, key)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
			}
		}
		return nil
	})
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot model.RankingSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO ranking_snapshots (id, created_at, schema_version, codec_version, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		  SET created_at = EXCLUDED.created_at,
		      schema_version = EXCLUDED.schema_version,
		      codec_version = EXCLUDED.codec_version,
		      payload = EXCLUDED.payload
	`, snapshot.ID, snapshot.CreatedAt, snapshot.SchemaVersion, snapshot.CodecVersion, payload)
	return err
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]model.RankingSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := pool.Query(ctx, `
		SELECT id, payload FROM ranking_snapshots ORDER BY seq DESC LIMIT $1
	`, lim)
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

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.pool, nil
}

func scanPgStrategy(row pgx.Row) (model.StrategyRecord, error) {
	var (
		id  int64
		rec model.StrategyRecord
	)
	if err := row.Scan(&id, &rec.Name, &rec.Text, &rec.Rank, &rec.CreatedAt); err != nil {
		return model.StrategyRecord{}, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
