package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"twotoone/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	nextID      int
	strategies  map[string]model.StrategyRecord
	order       []string
	snapshots   []model.RankingSnapshot
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.nextID = 1
	s.strategies = make(map[string]model.StrategyRecord)
	return nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func (s *MemoryStore) InsertStrategy(_ context.Context, name, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return "", err
	}
	id := strconv.Itoa(s.nextID)
	s.nextID++
	s.strategies[id] = model.StrategyRecord{
		ID:        id,
		Name:      name,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryStore) GetStrategy(_ context.Context, id string) (model.StrategyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return model.StrategyRecord{}, false, err
	}
	rec, ok := s.strategies[id]
	return rec, ok, nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]model.StrategyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make([]model.StrategyRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.strategies[id])
	}
	sortByRank(out)
	return out, nil
}

// sortByRank expects out in insertion order.
func sortByRank(out []model.StrategyRecord) {
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		return ri < rj
	})
}

func (s *MemoryStore) Reorder(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := s.strategies[id]; !ok {
			return fmt.Errorf("%w: strategy %s", ErrNotFound, id)
		}
	}
	for pos, id := range ids {
		rec := s.strategies[id]
		rec.Rank = pos + 1
		s.strategies[id] = rec
	}
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.RankingSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return err
	}
	s.snapshots = append(s.snapshots, copySnapshot(snapshot))
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, limit int) ([]model.RankingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make([]model.RankingSnapshot, 0, len(s.snapshots))
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copySnapshot(s.snapshots[i]))
	}
	return out, nil
}
