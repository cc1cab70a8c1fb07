// Package tournament scores strategies against each other and orders a
// population by iterated weighted elimination.
package tournament

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/exp/rand"

	"twotoone/internal/lang"
)

const (
	DefaultGames  = 100
	DefaultRounds = 100
)

var ErrNilProgram = errors.New("strategy has no program")

// Strategy is one population member.
type Strategy struct {
	ID      string
	Name    string
	Program *lang.Program
}

type Config struct {
	Games   int
	Rounds  int
	Workers int
	Seed    uint64
}

// Engine is safe for concurrent use; each call keeps its own match cache.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Games <= 0 {
		cfg.Games = DefaultGames
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = DefaultRounds
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// MatchScore scores a against b with a random source derived from the
// engine seed.
func (e *Engine) MatchScore(a, b Strategy) (Score, error) {
	if a.Program == nil || b.Program == nil {
		return Score{}, ErrNilProgram
	}
	rng := rand.New(rand.NewSource(pairSeed(e.cfg.Seed, 0, 1)))
	return MatchScore(a.Program, b.Program, e.cfg.Games, e.cfg.Rounds, rng)
}

func (e *Engine) newSession(ctx context.Context, strategies []Strategy) (*session, error) {
	for _, s := range strategies {
		if s.Program == nil {
			return nil, ErrNilProgram
		}
	}
	return &session{
		ctx:        ctx,
		engine:     e,
		strategies: strategies,
		cache:      make(map[pairKey]Score),
	}, nil
}
