// Package server exposes the ladder over HTTP and hosts live games against
// ranked strategies on a websocket.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"twotoone/internal/compiler"
	"twotoone/internal/graph"
	"twotoone/internal/lang"
	"twotoone/internal/platform"
)

const (
	DefaultLiveRounds = 20
	maxBodyBytes      = 1 << 20
)

var errBadRequest = errors.New("bad request")

type Config struct {
	Ladder     *platform.Ladder
	Logger     *zerolog.Logger
	LiveRounds int
	Seed       uint64
}

type Server struct {
	ladder     *platform.Ladder
	log        zerolog.Logger
	liveRounds int
	upgrader   websocket.Upgrader

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config) *Server {
	s := &Server{
		ladder:     cfg.Ladder,
		log:        zerolog.Nop(),
		liveRounds: cfg.LiveRounds,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "server").Logger()
	}
	if s.liveRounds <= 0 {
		s.liveRounds = DefaultLiveRounds
	}
	return s
}

// Router wires every route onto a chi mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/rankings", s.handleRankingNames)
	r.Post("/", s.handleCreateStrategy)
	r.Get("/live", s.handleLive)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
		r.Get("/rankings", s.handleRankings)
		r.Get("/snapshots", s.handleSnapshots)
		r.Post("/strategies", s.handleCreateStrategy)
		r.Post("/compile", s.handleCompile)
	})
	return r
}

// Handler returns an http.Server ready to serve on addr.
func (s *Server) Handler(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleRankingNames(w http.ResponseWriter, _ *http.Request) {
	standings := s.ladder.Rankings()
	names := make([]string, len(standings))
	for i, st := range standings {
		names[i] = st.Name
	}
	writeJSON(w, http.StatusOK, names)
}

type rankingView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

func (s *Server) handleRankings(w http.ResponseWriter, _ *http.Request) {
	standings := s.ladder.Rankings()
	out := make([]rankingView, len(standings))
	for i, st := range standings {
		out[i] = rankingView{ID: st.ID, Name: st.Name, Rank: st.Rank}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		limit = v
	}
	snaps, err := s.ladder.Snapshots(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

type createRequest struct {
	Name  string          `json:"name"`
	Text  string          `json:"text"`
	Graph json.RawMessage `json:"graph"`
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	if len(req.Graph) > 0 && string(req.Graph) != "null" {
		g, decodeErr := graph.DecodeDocument(req.Graph)
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, decodeErr)
			return
		}
		_, err = s.ladder.CreateFromGraph(r.Context(), req.Name, g)
	} else {
		_, err = s.ladder.CreateStrategy(r.Context(), req.Name, req.Text)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	g, err := graph.DecodeDocument(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text, err := compiler.Compile(g)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err)
}

var clientErrors = []error{
	errBadRequest,
	platform.ErrEmptyName,
	lang.ErrSyntax,
	lang.ErrDuplicateName,
	lang.ErrUnknownOperator,
	compiler.ErrNoEndMarker,
	compiler.ErrDisconnected,
	compiler.ErrCycle,
	graph.ErrUnknownNode,
	graph.ErrSlotRange,
	graph.ErrDuplicateEndMarker,
	graph.ErrInvalidLabel,
	graph.ErrDuplicateLabel,
	graph.ErrInvalidNode,
}

func statusFor(err error) int {
	var pe *lang.PosError
	if errors.As(err, &pe) {
		return http.StatusBadRequest
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, platform.ErrNoStrategies) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
