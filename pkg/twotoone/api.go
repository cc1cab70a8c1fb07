// Package twotoone is the programmatic entry point: it wires storage, the
// tournament engine and the ladder behind one Client.
package twotoone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"twotoone/internal/agent"
	"twotoone/internal/compiler"
	"twotoone/internal/config"
	"twotoone/internal/graph"
	"twotoone/internal/lang"
	"twotoone/internal/model"
	"twotoone/internal/ops"
	"twotoone/internal/platform"
	"twotoone/internal/server"
	"twotoone/internal/storage"
	"twotoone/internal/tournament"
)

const defaultDBPath = config.DefaultDBPath

var ErrBadMoves = errors.New("opponent moves must be 0/1 digits")

type Options struct {
	StoreKind string
	// Location is the sqlite path or the postgres DSN.
	Location string
	Games    int
	Rounds   int
	Workers  int
	Seed     uint64
	Logger   *zerolog.Logger
}

// OptionsFromConfig maps loaded settings onto client options.
func OptionsFromConfig(cfg config.Config, logger *zerolog.Logger) Options {
	return Options{
		StoreKind: cfg.Store.Kind,
		Location:  cfg.Store.Location(),
		Games:     cfg.Tournament.Games,
		Rounds:    cfg.Tournament.Rounds,
		Workers:   cfg.Tournament.Workers,
		Seed:      cfg.Tournament.Seed,
		Logger:    logger,
	}
}

type Client struct {
	store  storage.Store
	engine *tournament.Engine
	ladder *platform.Ladder
	logger *zerolog.Logger
	seed   uint64
}

type CheckSummary struct {
	Seed       string
	Registers  int
	Constants  int
	Statements int
	Canonical  string
}

type DuelRequest struct {
	A      string
	B      string
	Games  int
	Rounds int
	Seed   uint64
}

type PlayRequest struct {
	Text string
	// Opponent is a string of 0/1 digits, one per round after the first.
	Opponent string
	Seed     uint64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	location := opts.Location
	if location == "" && storeKind == storage.KindSQLite {
		location = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, location)
	if err != nil {
		return nil, err
	}
	engine := tournament.New(tournament.Config{
		Games:   opts.Games,
		Rounds:  opts.Rounds,
		Workers: opts.Workers,
		Seed:    opts.Seed,
	})
	return &Client{
		store:  store,
		engine: engine,
		logger: opts.Logger,
		seed:   opts.Seed,
	}, nil
}

func (c *Client) Close() error {
	if c.ladder != nil {
		return c.ladder.Close()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLadder(ctx)
	return err
}

// Compile turns a JSON graph document into Program Text.
func (c *Client) Compile(data []byte) (string, error) {
	g, err := graph.DecodeDocument(data)
	if err != nil {
		return "", err
	}
	return compiler.Compile(g)
}

// Check parses text and reports its shape and canonical form.
func (c *Client) Check(text string) (CheckSummary, error) {
	prog, err := lang.Parse(text)
	if err != nil {
		return CheckSummary{}, err
	}
	return CheckSummary{
		Seed:       prog.Seed.Name,
		Registers:  len(prog.Registers),
		Constants:  len(prog.Constants),
		Statements: len(prog.Statements),
		Canonical:  lang.Format(prog),
	}, nil
}

func (c *Client) Create(ctx context.Context, name, text string) (platform.Standing, error) {
	l, err := c.ensureLadder(ctx)
	if err != nil {
		return platform.Standing{}, err
	}
	return l.CreateStrategy(ctx, name, text)
}

func (c *Client) CreateFromGraph(ctx context.Context, name string, data []byte) (platform.Standing, error) {
	l, err := c.ensureLadder(ctx)
	if err != nil {
		return platform.Standing{}, err
	}
	g, err := graph.DecodeDocument(data)
	if err != nil {
		return platform.Standing{}, err
	}
	return l.CreateFromGraph(ctx, name, g)
}

func (c *Client) Rankings(ctx context.Context) ([]platform.Standing, error) {
	l, err := c.ensureLadder(ctx)
	if err != nil {
		return nil, err
	}
	return l.Rankings(), nil
}

func (c *Client) Recalculate(ctx context.Context) (model.RankingSnapshot, error) {
	l, err := c.ensureLadder(ctx)
	if err != nil {
		return model.RankingSnapshot{}, err
	}
	return l.Recalculate(ctx)
}

func (c *Client) Snapshots(ctx context.Context, limit int) ([]model.RankingSnapshot, error) {
	l, err := c.ensureLadder(ctx)
	if err != nil {
		return nil, err
	}
	return l.Snapshots(ctx, limit)
}

// Duel scores two programs against each other without touching the store.
func (c *Client) Duel(_ context.Context, req DuelRequest) (tournament.Score, error) {
	a, err := lang.Parse(req.A)
	if err != nil {
		return tournament.Score{}, fmt.Errorf("program a: %w", err)
	}
	b, err := lang.Parse(req.B)
	if err != nil {
		return tournament.Score{}, fmt.Errorf("program b: %w", err)
	}
	cfg := c.engine.Config()
	if req.Games > 0 {
		cfg.Games = req.Games
	}
	if req.Rounds > 0 {
		cfg.Rounds = req.Rounds
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	return tournament.New(cfg).MatchScore(
		tournament.Strategy{ID: "a", Name: "a", Program: a},
		tournament.Strategy{ID: "b", Name: "b", Program: b},
	)
}

// Play runs one program against a scripted opponent. The result has one move
// per opponent digit plus the opening move.
func (c *Client) Play(ctx context.Context, req PlayRequest) ([]ops.Value, error) {
	prog, err := lang.Parse(req.Text)
	if err != nil {
		return nil, err
	}
	opponent, err := parseMoves(req.Opponent)
	if err != nil {
		return nil, err
	}
	seed := req.Seed
	if seed == 0 {
		seed = c.seed
	}
	player, err := agent.NewPlayer("play", prog, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	// the last scripted move is only ever seen by a following round
	return player.Run(ctx, append(opponent, ops.Absent()))
}

// Server builds the HTTP front end over this client's ladder.
func (c *Client) Server(ctx context.Context, liveRounds int) (*server.Server, error) {
	l, err := c.ensureLadder(ctx)
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		Ladder:     l,
		Logger:     c.logger,
		LiveRounds: liveRounds,
		Seed:       c.seed,
	}), nil
}

func (c *Client) ensureLadder(ctx context.Context) (*platform.Ladder, error) {
	if c.ladder != nil {
		return c.ladder, nil
	}
	l := platform.NewLadder(platform.Config{
		Store:  c.store,
		Engine: c.engine,
		Logger: c.logger,
	})
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	c.ladder = l
	return c.ladder, nil
}

func parseMoves(s string) ([]ops.Value, error) {
	s = strings.TrimSpace(s)
	out := make([]ops.Value, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			out = append(out, ops.Bool(false))
		case '1':
			out = append(out, ops.Bool(true))
		case ',', ' ':
		default:
			return nil, fmt.Errorf("%w: %q", ErrBadMoves, s)
		}
	}
	return out, nil
}

// FormatMoves renders moves as 0/1 digits with '-' for absent.
func FormatMoves(moves []ops.Value) string {
	var b strings.Builder
	for _, m := range moves {
		m = tournament.Normalize(m)
		switch {
		case m.IsAbsent():
			b.WriteByte('-')
		case m.Truthy():
			b.WriteByte('1')
		default:
			b.WriteByte('0')
		}
	}
	return b.String()
}
