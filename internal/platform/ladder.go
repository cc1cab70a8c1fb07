package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"twotoone/internal/compiler"
	"twotoone/internal/graph"
	"twotoone/internal/lang"
	"twotoone/internal/model"
	"twotoone/internal/ops"
	"twotoone/internal/storage"
	"twotoone/internal/tournament"
)

var (
	ErrEmptyName     = errors.New("strategy name is required")
	ErrNoStrategies  = errors.New("no strategies in the ladder")
	ErrNotStarted    = errors.New("ladder is not initialized")
	errStoreRequired = errors.New("store is required")
)

type Config struct {
	Store    storage.Store
	Engine   *tournament.Engine
	Registry *ops.Registry
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Standing is one strategy of the current ranking.
type Standing struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
	Text string `json:"text,omitempty"`
}

// Ladder keeps the ranked strategy population in memory and mirrors every
// change to the store.
type Ladder struct {
	store    storage.Store
	engine   *tournament.Engine
	registry *ops.Registry
	log      zerolog.Logger
	now      func() time.Time

	// writeMu serializes mutations so recalculations never interleave.
	writeMu sync.Mutex

	mu         sync.RWMutex
	started    bool
	population []tournament.Strategy
	texts      map[string]string
}

func NewLadder(cfg Config) *Ladder {
	l := &Ladder{
		store:    cfg.Store,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		log:      zerolog.Nop(),
		now:      cfg.Now,
		texts:    make(map[string]string),
	}
	if cfg.Logger != nil {
		l.log = cfg.Logger.With().Str("component", "ladder").Logger()
	}
	if l.engine == nil {
		l.engine = tournament.New(tournament.Config{})
	}
	if l.registry == nil {
		l.registry = ops.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Init prepares the store and loads the persisted population.
func (l *Ladder) Init(ctx context.Context) error {
	if l.store == nil {
		return errStoreRequired
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	started := l.started
	l.mu.RUnlock()
	if started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	return l.load(ctx)
}

// Load replaces the in-memory population with the stored one, best first.
func (l *Ladder) Load(ctx context.Context) error {
	if l.store == nil {
		return errStoreRequired
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.load(ctx)
}

func (l *Ladder) load(ctx context.Context) error {
	records, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load strategies: %w", err)
	}
	population := make([]tournament.Strategy, 0, len(records))
	texts := make(map[string]string, len(records))
	for _, rec := range records {
		prog, err := lang.ParseWith(rec.Text, l.registry)
		if err != nil {
			l.log.Warn().Err(err).Str("strategy_id", rec.ID).Str("name", rec.Name).Msg("skipping unparsable strategy")
			continue
		}
		population = append(population, tournament.Strategy{ID: rec.ID, Name: rec.Name, Program: prog})
		texts[rec.ID] = rec.Text
	}

	l.mu.Lock()
	l.population = population
	l.texts = texts
	l.started = true
	l.mu.Unlock()

	l.log.Info().Int("strategies", len(population)).Msg("ladder loaded")
	return nil
}

// CreateStrategy validates and stores a new strategy, then reranks the whole
// population. Text that fails to parse is rejected before anything is stored.
func (l *Ladder) CreateStrategy(ctx context.Context, name, text string) (Standing, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Standing{}, ErrEmptyName
	}
	prog, err := lang.ParseWith(text, l.registry)
	if err != nil {
		return Standing{}, err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if !l.Started() {
		return Standing{}, ErrNotStarted
	}

	id, err := l.store.InsertStrategy(ctx, name, text)
	if err != nil {
		return Standing{}, fmt.Errorf("insert strategy: %w", err)
	}
	l.mu.Lock()
	l.population = append(l.population, tournament.Strategy{ID: id, Name: name, Program: prog})
	l.texts[id] = text
	l.mu.Unlock()
	l.log.Info().Str("strategy_id", id).Str("name", name).Msg("strategy created")

	if _, err := l.recalculate(ctx); err != nil {
		return Standing{}, err
	}
	for _, st := range l.Rankings() {
		if st.ID == id {
			return st, nil
		}
	}
	return Standing{ID: id, Name: name, Text: text}, nil
}

// CreateFromGraph compiles g and stores the resulting program.
func (l *Ladder) CreateFromGraph(ctx context.Context, name string, g *graph.Graph) (Standing, error) {
	text, err := compiler.Compile(g)
	if err != nil {
		return Standing{}, err
	}
	return l.CreateStrategy(ctx, name, text)
}

// Recalculate reruns the ranking over the current population and persists
// the new order together with a snapshot of the elimination passes.
func (l *Ladder) Recalculate(ctx context.Context) (model.RankingSnapshot, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if !l.Started() {
		return model.RankingSnapshot{}, ErrNotStarted
	}
	return l.recalculate(ctx)
}

func (l *Ladder) recalculate(ctx context.Context) (model.RankingSnapshot, error) {
	l.mu.RLock()
	population := append([]tournament.Strategy(nil), l.population...)
	l.mu.RUnlock()

	started := l.now()
	result, err := l.engine.Recalculate(ctx, population)
	if err != nil {
		return model.RankingSnapshot{}, fmt.Errorf("recalculate rankings: %w", err)
	}
	ids := result.IDs()
	if err := l.store.Reorder(ctx, ids); err != nil {
		return model.RankingSnapshot{}, fmt.Errorf("persist ranking: %w", err)
	}

	snapshot := model.RankingSnapshot{
		VersionedRecord: storage.Versioned(),
		ID:              uuid.NewString(),
		CreatedAt:       l.now().UTC(),
		Ranking:         ids,
		Passes:          make([]model.RankingPass, 0, len(result.Passes)),
	}
	for _, p := range result.Passes {
		snapshot.Passes = append(snapshot.Passes, model.RankingPass{
			Ranking:    p.Ranking,
			Weights:    p.Weights,
			Eliminated: p.Eliminated,
		})
	}
	if err := l.store.SaveSnapshot(ctx, snapshot); err != nil {
		return model.RankingSnapshot{}, fmt.Errorf("save ranking snapshot: %w", err)
	}

	l.mu.Lock()
	l.population = result.Order
	l.mu.Unlock()

	l.log.Info().
		Int("strategies", len(ids)).
		Int("passes", len(result.Passes)).
		Dur("elapsed", l.now().Sub(started)).
		Msg("rankings recalculated")
	return snapshot, nil
}

// Rankings lists the population best first.
func (l *Ladder) Rankings() []Standing {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Standing, len(l.population))
	for i, s := range l.population {
		out[i] = Standing{ID: s.ID, Name: s.Name, Rank: i + 1, Text: l.texts[s.ID]}
	}
	return out
}

// RandomStrategy picks a strategy uniformly for live play.
func (l *Ladder) RandomStrategy(rng *rand.Rand) (tournament.Strategy, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.population) == 0 {
		return tournament.Strategy{}, ErrNoStrategies
	}
	return l.population[rng.Intn(len(l.population))], nil
}

// Snapshots lists stored recalculations, newest first.
func (l *Ladder) Snapshots(ctx context.Context, limit int) ([]model.RankingSnapshot, error) {
	if !l.Started() {
		return nil, ErrNotStarted
	}
	return l.store.ListSnapshots(ctx, limit)
}

func (l *Ladder) Registry() *ops.Registry {
	return l.registry
}

func (l *Ladder) Engine() *tournament.Engine {
	return l.engine
}

func (l *Ladder) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

// Close releases the store when it holds resources.
func (l *Ladder) Close() error {
	l.mu.Lock()
	l.started = false
	l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	return storage.CloseIfSupported(l.store)
}
