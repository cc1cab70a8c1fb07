// Package config assembles runtime settings from defaults, an optional HCL
// file, a .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"

	"twotoone/internal/storage"
)

const (
	DefaultAddr       = ":8080"
	DefaultLiveRounds = 20
	DefaultDBPath     = "twotoone.db"
	DefaultEnvFile    = ".env"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Store      StoreConfig
	Tournament TournamentConfig
	Server     ServerConfig
	Log        LogConfig
}

type StoreConfig struct {
	Kind string
	Path string
	DSN  string
}

// Location is the backend-specific address passed to storage.NewStore.
func (s StoreConfig) Location() string {
	if s.Kind == storage.KindPostgres {
		return s.DSN
	}
	return s.Path
}

type TournamentConfig struct {
	Games   int
	Rounds  int
	Workers int
	Seed    uint64
}

type ServerConfig struct {
	Addr       string
	LiveRounds int
}

type LogConfig struct {
	Level  string
	Format string
}

func Default() Config {
	return Config{
		Store: StoreConfig{
			Kind: storage.DefaultStoreKind(),
			Path: DefaultDBPath,
		},
		Tournament: TournamentConfig{
			Games:  100,
			Rounds: 100,
			Seed:   1,
		},
		Server: ServerConfig{
			Addr:       DefaultAddr,
			LiveRounds: DefaultLiveRounds,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

type fileConfig struct {
	Store      *storeBlock      `hcl:"store,block"`
	Tournament *tournamentBlock `hcl:"tournament,block"`
	Server     *serverBlock     `hcl:"server,block"`
	Log        *logBlock        `hcl:"log,block"`
}

type storeBlock struct {
	Kind *string `hcl:"kind,optional"`
	Path *string `hcl:"path,optional"`
	DSN  *string `hcl:"dsn,optional"`
}

type tournamentBlock struct {
	Games   *int   `hcl:"games,optional"`
	Rounds  *int   `hcl:"rounds,optional"`
	Workers *int   `hcl:"workers,optional"`
	Seed    *int64 `hcl:"seed,optional"`
}

type serverBlock struct {
	Addr       *string `hcl:"addr,optional"`
	LiveRounds *int    `hcl:"live_rounds,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load reads path (skipped when empty) and the given env files (DefaultEnvFile
// when none are named; missing files are ignored), applies environment
// overrides and validates the result.
func Load(path string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}
	return decodeBody(path, file.Body, cfg)
}

// Parse decodes HCL source held in memory; filename is used in diagnostics.
func Parse(filename string, src []byte) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse HCL file %s: %s", filename, diags.Error())
	}
	cfg := Default()
	if err := decodeBody(filename, file.Body, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decodeBody(filename string, body hcl.Body, cfg *Config) error {
	var parsed fileConfig
	if diags := gohcl.DecodeBody(body, evalContext(), &parsed); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %s", filename, diags.Error())
	}

	if b := parsed.Store; b != nil {
		setString(&cfg.Store.Kind, b.Kind)
		setString(&cfg.Store.Path, b.Path)
		setString(&cfg.Store.DSN, b.DSN)
	}
	if b := parsed.Tournament; b != nil {
		setInt(&cfg.Tournament.Games, b.Games)
		setInt(&cfg.Tournament.Rounds, b.Rounds)
		setInt(&cfg.Tournament.Workers, b.Workers)
		if b.Seed != nil {
			cfg.Tournament.Seed = uint64(*b.Seed)
		}
	}
	if b := parsed.Server; b != nil {
		setString(&cfg.Server.Addr, b.Addr)
		setInt(&cfg.Server.LiveRounds, b.LiveRounds)
	}
	if b := parsed.Log; b != nil {
		setString(&cfg.Log.Level, b.Level)
		setString(&cfg.Log.Format, b.Format)
	}
	return nil
}

// evalContext exposes the process environment to config files as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		cfg.Store.DSN = v
		cfg.Store.Kind = storage.KindPostgres
	}
	if v, ok := os.LookupEnv("TWOTOONE_STORE"); ok && v != "" {
		cfg.Store.Kind = v
	}
	if v, ok := os.LookupEnv("TWOTOONE_DB_PATH"); ok && v != "" {
		cfg.Store.Path = v
	}
	if v, ok := os.LookupEnv("TWOTOONE_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("TWOTOONE_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TWOTOONE_SEED=%q: %v", ErrInvalid, v, err)
		}
		cfg.Tournament.Seed = seed
	}
	return nil
}

func (c Config) Validate() error {
	if c.Tournament.Games <= 0 {
		return fmt.Errorf("%w: tournament games must be > 0", ErrInvalid)
	}
	if c.Tournament.Rounds <= 0 {
		return fmt.Errorf("%w: tournament rounds must be > 0", ErrInvalid)
	}
	if c.Tournament.Workers < 0 {
		return fmt.Errorf("%w: tournament workers must be >= 0", ErrInvalid)
	}
	if c.Server.LiveRounds <= 0 {
		return fmt.Errorf("%w: server live_rounds must be > 0", ErrInvalid)
	}
	switch c.Store.Kind {
	case storage.KindMemory, storage.KindSQLite:
	case storage.KindPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: postgres store requires a dsn", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported store kind: %s", ErrInvalid, c.Store.Kind)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return fmt.Errorf("%w: unknown log level: %q", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: unknown log format: %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Logger builds the process logger writing to w.
func (c LogConfig) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	out := w
	if c.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
