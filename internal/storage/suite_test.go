package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"twotoone/internal/model"
)

// runStoreSuite exercises the Store contract against an empty, initialized store.
func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		id, err := store.InsertStrategy(ctx, name, "0.5{}\nEND")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Len(t, map[string]bool{ids[0]: true, ids[1]: true, ids[2]: true}, 3)

	rec, ok, err := store.GetStrategy(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "beta", rec.Name)
	require.Equal(t, "0.5{}\nEND", rec.Text)
	require.Zero(t, rec.Rank)
	require.False(t, rec.CreatedAt.IsZero())

	_, ok, err = store.GetStrategy(ctx, "999999")
	require.NoError(t, err)
	require.False(t, ok)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, names(all))

	require.NoError(t, store.Reorder(ctx, []string{ids[2], ids[0]}))
	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"gamma", "alpha", "beta"}, names(all))
	require.Equal(t, []int{1, 2, 0}, ranks(all))

	err = store.Reorder(ctx, []string{ids[1], "424242"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"gamma", "alpha", "beta"}, names(all), "failed reorder must not apply")

	require.NoError(t, store.Reorder(ctx, []string{ids[1], ids[2], ids[0]}))
	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"beta", "gamma", "alpha"}, names(all))

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.SaveSnapshot(ctx, model.RankingSnapshot{
			VersionedRecord: Versioned(),
			ID:              id,
			CreatedAt:       created.Add(time.Duration(i) * time.Minute),
			Ranking:         []string{ids[1], ids[2], ids[0]},
			Passes: []model.RankingPass{{
				Ranking:    []string{ids[1], ids[2], ids[0]},
				Weights:    []float64{1.8333333333333335, 0.16666666666666652, -1.5},
				Eliminated: []string{ids[0]},
			}},
		}))
	}

	snaps, err := store.ListSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, "s3", snaps[0].ID)
	require.Equal(t, "s2", snaps[1].ID)
	if diff := cmp.Diff([]string{ids[1], ids[2], ids[0]}, snaps[0].Ranking); diff != "" {
		t.Fatalf("snapshot ranking mismatch (-want +got):\n%s", diff)
	}
	require.True(t, snaps[0].CreatedAt.Equal(created.Add(2*time.Minute)))
	require.Equal(t, []string{ids[0]}, snaps[0].Passes[0].Eliminated)

	snaps, err = store.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
}

func names(recs []model.StrategyRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

func ranks(recs []model.StrategyRecord) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Rank
	}
	return out
}
