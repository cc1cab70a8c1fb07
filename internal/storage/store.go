package storage

import (
	"context"
	"errors"

	"twotoone/internal/model"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator for strategies and rankings.
type Store interface {
	Init(ctx context.Context) error
	// InsertStrategy stores a new, unranked strategy and returns its id.
	InsertStrategy(ctx context.Context, name, text string) (string, error)
	GetStrategy(ctx context.Context, id string) (model.StrategyRecord, bool, error)
	// LoadAll returns ranked strategies by rank, then unranked ones in
	// insertion order.
	LoadAll(ctx context.Context) ([]model.StrategyRecord, error)
	// Reorder sets each listed strategy's rank to its position plus one.
	// Unknown ids fail the whole call with ErrNotFound.
	Reorder(ctx context.Context, ids []string) error
	SaveSnapshot(ctx context.Context, snapshot model.RankingSnapshot) error
	// ListSnapshots returns the newest snapshots first; limit <= 0 means all.
	ListSnapshots(ctx context.Context, limit int) ([]model.RankingSnapshot, error)
}
