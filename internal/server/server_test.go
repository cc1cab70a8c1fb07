package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twotoone/internal/model"
	"twotoone/internal/platform"
	"twotoone/internal/storage"
	"twotoone/internal/tournament"
)

const (
	alwaysTrue  = "true{}\ntrue"
	alwaysFalse = "false{}\nfalse"
	contrarian  = "0{}\nx:! #;\nx"
)

const contrarianGraph = `{
  "nodes": [
    {"kind": "opponent"},
    {"kind": "not"},
    {"kind": "end", "prob": 0}
  ],
  "connections": [
    {"from": 0, "to": 1, "slot": 0},
    {"from": 1, "to": 2, "slot": 0}
  ]
}`

func newTestServer(t *testing.T, liveRounds int) (*Server, *platform.Ladder) {
	t.Helper()
	ladder := platform.NewLadder(platform.Config{
		Store:  storage.NewMemoryStore(),
		Engine: tournament.New(tournament.Config{Games: 2, Rounds: 5, Workers: 2, Seed: 3}),
	})
	require.NoError(t, ladder.Init(context.Background()))
	return New(Config{Ladder: ladder, LiveRounds: liveRounds, Seed: 11}), ladder
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv.Router(), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestCreateStrategyAndRankings(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/", mustJSON(t, map[string]string{"name": "loser", "text": alwaysFalse}))
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/strategies", mustJSON(t, map[string]string{"name": "winner", "text": alwaysTrue}))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/rankings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"winner", "loser"}, names)

	rec = do(t, h, http.MethodGet, "/api/rankings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []rankingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "winner", views[0].Name)
	assert.Equal(t, 1, views[0].Rank)
	assert.Equal(t, 2, views[1].Rank)

	rec = do(t, h, http.MethodGet, "/api/snapshots?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []model.RankingSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{views[0].ID, views[1].ID}, snaps[0].Ranking)

	rec = do(t, h, http.MethodGet, "/api/snapshots?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateStrategyFromGraph(t *testing.T) {
	srv, ladder := newTestServer(t, 0)
	body := `{"name": "drawn", "graph": ` + contrarianGraph + `}`
	rec := do(t, srv.Router(), http.MethodPost, "/api/strategies", body)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rankings := ladder.Rankings()
	require.Len(t, rankings, 1)
	assert.Equal(t, "0{}\nn0:! #;\nn0\n", rankings[0].Text)
}

func TestCreateStrategyRejectsBadInput(t *testing.T) {
	srv, ladder := newTestServer(t, 0)
	h := srv.Router()

	cases := map[string]string{
		"not json":       `{"name":`,
		"empty name":     mustJSON(t, map[string]string{"name": "", "text": alwaysTrue}),
		"syntax":         mustJSON(t, map[string]string{"name": "x", "text": "0{}\nx:"}),
		"unknown op":     mustJSON(t, map[string]string{"name": "x", "text": "0{}\nx:frob #;\nx"}),
		"bad graph":      `{"name":"g","graph":{"nodes":[{"kind":"teleporter"}]}}`,
		"graph no end":   `{"name":"g","graph":{"nodes":[{"kind":"opponent"}]}}`,
		"graph dangling": `{"name":"g","graph":{"nodes":[{"kind":"not"},{"kind":"end"}],"connections":[{"from":0,"to":1,"slot":0}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/strategies", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Empty(t, ladder.Rankings())
}

func TestCompile(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/api/compile", contrarianGraph)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"0{}\nn0:! #;\nn0\n"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/compile", `{"nodes":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/compile", `[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv.Router(), http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv.Router(), http.MethodDelete, "/rankings", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLiveWebsocket(t *testing.T) {
	srv, ladder := newTestServer(t, 3)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("1")))
	var failure map[string]string
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Contains(t, failure["error"], "no strategies")

	_, err = ladder.CreateStrategy(context.Background(), "contrarian", contrarian)
	require.NoError(t, err)

	var replies []LiveReply
	for _, msg := range []string{"1", "0", "1"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		var reply LiveReply
		require.NoError(t, conn.ReadJSON(&reply))
		replies = append(replies, reply)
	}
	require.NotNil(t, replies[0].TheyPicked)
	assert.False(t, *replies[0].TheyPicked)
	assert.Equal(t, 2, replies[0].Score)
	assert.False(t, *replies[1].TheyPicked)
	assert.Equal(t, 2, replies[1].Score)
	assert.True(t, *replies[2].TheyPicked)
	assert.Equal(t, 2, replies[2].Score)
	assert.False(t, replies[1].Done)
	assert.True(t, replies[2].Done)
}

func TestLiveRejectsPlainHTTP(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv.Router(), http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, _ = io.Copy(io.Discard, rec.Body)
}
