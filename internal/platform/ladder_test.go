package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"twotoone/internal/graph"
	"twotoone/internal/lang"
	"twotoone/internal/storage"
	"twotoone/internal/tournament"
)

const (
	alwaysTrue  = "true{}\ntrue"
	alwaysFalse = "false{}\nfalse"
)

func newTestLadder(t *testing.T, store storage.Store) *Ladder {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	l := NewLadder(Config{
		Store:  store,
		Engine: tournament.New(tournament.Config{Games: 2, Rounds: 5, Workers: 2, Seed: 7}),
		Now:    func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, l.Init(context.Background()))
	return l
}

func TestLadderRequiresStore(t *testing.T) {
	l := NewLadder(Config{})
	require.Error(t, l.Init(context.Background()))
}

func TestLadderRejectsBeforeInit(t *testing.T) {
	l := NewLadder(Config{Store: storage.NewMemoryStore()})
	_, err := l.CreateStrategy(context.Background(), "x", alwaysTrue)
	require.ErrorIs(t, err, ErrNotStarted)
	_, err = l.Recalculate(context.Background())
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestLadderCreateStrategyRanks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLadder(t, store)

	first, err := l.CreateStrategy(ctx, "loser", alwaysFalse)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Rank)

	second, err := l.CreateStrategy(ctx, "  winner ", alwaysTrue)
	require.NoError(t, err)
	assert.Equal(t, "winner", second.Name)
	assert.Equal(t, 1, second.Rank)

	rankings := l.Rankings()
	require.Len(t, rankings, 2)
	assert.Equal(t, []string{"winner", "loser"}, []string{rankings[0].Name, rankings[1].Name})
	assert.Equal(t, alwaysTrue, rankings[0].Text)

	stored, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"winner", "loser"}, []string{stored[0].Name, stored[1].Name})
	assert.Equal(t, []int{1, 2}, []int{stored[0].Rank, stored[1].Rank})

	snaps, err := l.Snapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, []string{second.ID, first.ID}, snaps[0].Ranking)
	require.Len(t, snaps[0].Passes, 1)
	assert.Equal(t, []string{first.ID}, snaps[0].Passes[0].Eliminated)
	assert.NotEmpty(t, snaps[0].ID)
	assert.NotEqual(t, snaps[0].ID, snaps[1].ID)
}

func TestLadderRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLadder(t, store)

	_, err := l.CreateStrategy(ctx, " ", alwaysTrue)
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = l.CreateStrategy(ctx, "bad", "0{}\nx:nope a;\nx")
	require.Error(t, err)
	var pe *lang.PosError
	require.True(t, errors.As(err, &pe))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, l.Rankings())
}

func TestLadderCreateFromGraph(t *testing.T) {
	ctx := context.Background()
	l := newTestLadder(t, nil)

	g := graph.New()
	opp, err := g.Add(graph.Opponent())
	require.NoError(t, err)
	not, err := g.Add(graph.Not())
	require.NoError(t, err)
	end, err := g.Add(graph.End(0.5))
	require.NoError(t, err)
	require.NoError(t, g.Connect(opp, not, 0))
	require.NoError(t, g.Connect(not, end, 0))

	st, err := l.CreateFromGraph(ctx, "contrarian", g)
	require.NoError(t, err)
	assert.Equal(t, "0.5{}\nn0:! #;\nn0\n", st.Text)

	_, err = l.CreateFromGraph(ctx, "empty", graph.New())
	require.Error(t, err)
	assert.Len(t, l.Rankings(), 1)
}

func TestLadderLoadRestoresOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLadder(t, store)
	_, err := l.CreateStrategy(ctx, "loser", alwaysFalse)
	require.NoError(t, err)
	_, err = l.CreateStrategy(ctx, "winner", alwaysTrue)
	require.NoError(t, err)

	reloaded := newTestLadder(t, store)
	rankings := reloaded.Rankings()
	require.Len(t, rankings, 2)
	assert.Equal(t, "winner", rankings[0].Name)
	assert.Equal(t, 2, rankings[1].Rank)
}

func TestLadderLoadSkipsUnparsable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(ctx))
	_, err := store.InsertStrategy(ctx, "broken", "not a program")
	require.NoError(t, err)
	_, err = store.InsertStrategy(ctx, "fine", alwaysTrue)
	require.NoError(t, err)

	l := newTestLadder(t, store)
	rankings := l.Rankings()
	require.Len(t, rankings, 1)
	assert.Equal(t, "fine", rankings[0].Name)
}

func TestLadderRandomStrategy(t *testing.T) {
	ctx := context.Background()
	l := newTestLadder(t, nil)
	rng := rand.New(rand.NewSource(3))

	_, err := l.RandomStrategy(rng)
	require.ErrorIs(t, err, ErrNoStrategies)

	_, err = l.CreateStrategy(ctx, "a", alwaysTrue)
	require.NoError(t, err)
	_, err = l.CreateStrategy(ctx, "b", alwaysFalse)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := l.RandomStrategy(rng)
		require.NoError(t, err)
		require.NotNil(t, s.Program)
		seen[s.Name] = true
	}
	assert.Len(t, seen, 2)
}

func TestLadderRecalculateStoresSnapshot(t *testing.T) {
	ctx := context.Background()
	l := newTestLadder(t, nil)
	_, err := l.CreateStrategy(ctx, "only", alwaysTrue)
	require.NoError(t, err)

	snap, err := l.Recalculate(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Ranking, 1)
	assert.Empty(t, snap.Passes)
	assert.Equal(t, storage.Versioned(), snap.VersionedRecord)

	latest, err := l.Snapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, snap.ID, latest[0].ID)
}
