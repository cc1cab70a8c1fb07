package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"twotoone/internal/config"
	"twotoone/internal/storage"
	api "twotoone/pkg/twotoone"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	out io.Writer
	cfg config.Config
	log zerolog.Logger
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("twotoonectl", flag.ContinueOnError)
	configPath := global.String("config", "", "HCL config file")
	envFile := global.String("env-file", config.DefaultEnvFile, "dotenv file, ignored when missing")
	if err := global.Parse(args); err != nil {
		return err
	}
	args = global.Args()
	if len(args) == 0 {
		return usageError("missing command")
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	c := &cli{out: out, cfg: cfg, log: cfg.Log.Logger(os.Stderr)}

	switch args[0] {
	case "init":
		return c.runInit(ctx, args[1:])
	case "compile":
		return c.runCompile(ctx, args[1:])
	case "check":
		return c.runCheck(ctx, args[1:])
	case "create":
		return c.runCreate(ctx, args[1:])
	case "rankings":
		return c.runRankings(ctx, args[1:])
	case "recalc":
		return c.runRecalc(ctx, args[1:])
	case "snapshots":
		return c.runSnapshots(ctx, args[1:])
	case "duel":
		return c.runDuel(ctx, args[1:])
	case "play":
		return c.runPlay(ctx, args[1:])
	case "serve":
		return c.runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// storeFlags registers the backend flags shared by every command that opens
// the ladder, defaulting to the loaded config.
func (c *cli) storeFlags(fs *flag.FlagSet) func() (*api.Client, error) {
	storeKind := fs.String("store", c.cfg.Store.Kind, "store backend: memory|sqlite|postgres")
	dbPath := fs.String("db-path", c.cfg.Store.Path, "sqlite database path")
	dsn := fs.String("dsn", c.cfg.Store.DSN, "postgres connection string")
	return func() (*api.Client, error) {
		cfg := c.cfg
		cfg.Store = config.StoreConfig{Kind: *storeKind, Path: *dbPath, DSN: *dsn}
		return api.New(api.OptionsFromConfig(cfg, &c.log))
	}
}

func (c *cli) runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	open := c.storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}
	rankings, err := client.Rankings(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "initialized store=%s strategies=%d\n", fs.Lookup("store").Value.String(), len(rankings))
	return nil
}

func (c *cli) runCompile(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	graphPath := fs.String("graph", "", "graph document (JSON)")
	outPath := fs.String("out", "", "write program text to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return errors.New("compile requires --graph")
	}
	data, err := os.ReadFile(*graphPath)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: storage.KindMemory})
	if err != nil {
		return err
	}
	text, err := client.Compile(data)
	if err != nil {
		return err
	}
	if *outPath != "" {
		return os.WriteFile(*outPath, []byte(text), 0o644)
	}
	_, err = io.WriteString(c.out, text)
	return err
}

func (c *cli) runCheck(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	file := fs.String("file", "", "program text file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text, err := readProgram(*file)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: storage.KindMemory})
	if err != nil {
		return err
	}
	summary, err := client.Check(text)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ok seed=%s registers=%d constants=%d statements=%d\n",
		summary.Seed, summary.Registers, summary.Constants, summary.Statements)
	_, err = io.WriteString(c.out, summary.Canonical)
	return err
}

func (c *cli) runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	open := c.storeFlags(fs)
	name := fs.String("name", "", "strategy name")
	file := fs.String("file", "", "program text file")
	graphPath := fs.String("graph", "", "graph document (JSON) compiled before storing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*file == "") == (*graphPath == "") {
		return errors.New("create requires exactly one of --file or --graph")
	}

	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	var created struct {
		ID   string
		Rank int
	}
	if *graphPath != "" {
		data, err := os.ReadFile(*graphPath)
		if err != nil {
			return err
		}
		st, err := client.CreateFromGraph(ctx, *name, data)
		if err != nil {
			return err
		}
		created.ID, created.Rank = st.ID, st.Rank
	} else {
		text, err := readProgram(*file)
		if err != nil {
			return err
		}
		st, err := client.Create(ctx, *name, text)
		if err != nil {
			return err
		}
		created.ID, created.Rank = st.ID, st.Rank
	}
	fmt.Fprintf(c.out, "created id=%s name=%s rank=%d\n", created.ID, *name, created.Rank)
	return nil
}

func (c *cli) runRankings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rankings", flag.ContinueOnError)
	open := c.storeFlags(fs)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	rankings, err := client.Rankings(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rankings)
	}
	for _, st := range rankings {
		fmt.Fprintf(c.out, "%d\t%s\t%s\n", st.Rank, st.ID, st.Name)
	}
	return nil
}

func (c *cli) runRecalc(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recalc", flag.ContinueOnError)
	open := c.storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	snap, err := client.Recalculate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "recalculated snapshot=%s strategies=%d passes=%d\n", snap.ID, len(snap.Ranking), len(snap.Passes))
	return nil
}

func (c *cli) runSnapshots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	open := c.storeFlags(fs)
	limit := fs.Int("limit", 10, "number of snapshots, newest first (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	snaps, err := client.Snapshots(ctx, *limit)
	if err != nil {
		return err
	}
	for _, s := range snaps {
		fmt.Fprintf(c.out, "%s\t%s\tstrategies=%d passes=%d\n", s.CreatedAt.Format(time.RFC3339), s.ID, len(s.Ranking), len(s.Passes))
	}
	return nil
}

func (c *cli) runDuel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("duel", flag.ContinueOnError)
	fileA := fs.String("a", "", "program text file for side a")
	fileB := fs.String("b", "", "program text file for side b")
	games := fs.Int("games", c.cfg.Tournament.Games, "games per match")
	rounds := fs.Int("rounds", c.cfg.Tournament.Rounds, "rounds per game")
	seed := fs.Uint64("seed", c.cfg.Tournament.Seed, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := readProgram(*fileA)
	if err != nil {
		return err
	}
	b, err := readProgram(*fileB)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: storage.KindMemory})
	if err != nil {
		return err
	}
	score, err := client.Duel(ctx, api.DuelRequest{A: a, B: b, Games: *games, Rounds: *rounds, Seed: *seed})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "a=%d b=%d\n", score.A, score.B)
	if score.FaultA != "" {
		fmt.Fprintf(c.out, "a aborted %d game(s): %s\n", score.AbortedA, score.FaultA)
	}
	if score.FaultB != "" {
		fmt.Fprintf(c.out, "b aborted %d game(s): %s\n", score.AbortedB, score.FaultB)
	}
	return nil
}

func (c *cli) runPlay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	file := fs.String("file", "", "program text file")
	opponent := fs.String("opponent", "", "opponent moves as 0/1 digits")
	seed := fs.Uint64("seed", c.cfg.Tournament.Seed, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text, err := readProgram(*file)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{StoreKind: storage.KindMemory, Seed: *seed})
	if err != nil {
		return err
	}
	moves, err := client.Play(ctx, api.PlayRequest{Text: text, Opponent: *opponent, Seed: *seed})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, api.FormatMoves(moves))
	return nil
}

func (c *cli) runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	open := c.storeFlags(fs)
	addr := fs.String("addr", c.cfg.Server.Addr, "listen address")
	liveRounds := fs.Int("live-rounds", c.cfg.Server.LiveRounds, "rounds per live session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	srv, err := client.Server(ctx, *liveRounds)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := srv.Handler(*addr)
	errCh := make(chan error, 1)
	go func() {
		c.log.Info().Str("addr", *addr).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.log.Info().Msg("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func readProgram(path string) (string, error) {
	if path == "" {
		return "", errors.New("program file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: twotoonectl [-config file.hcl] <init|compile|check|create|rankings|recalc|snapshots|duel|play|serve> [flags]", msg)
}
