package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"twotoone/internal/lang"
	"twotoone/internal/ops"
)

func newPlayer(t *testing.T, src string, seed uint64) *Player {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	p, err := NewPlayer("p", prog, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return p
}

func bools(vs ...bool) []ops.Value {
	out := make([]ops.Value, len(vs))
	for i, v := range vs {
		out[i] = ops.Bool(v)
	}
	return out
}

func TestNewPlayerValidation(t *testing.T) {
	if _, err := NewPlayer("p", nil, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected program required error")
	}
	prog, err := lang.Parse("0{}\nEND")
	require.NoError(t, err)
	if _, err := NewPlayer("p", prog, nil); err == nil {
		t.Fatal("expected random source required error")
	}
}

func TestCoinFlipSeedScenario(t *testing.T) {
	prog, err := lang.Parse("0.5{}\nEND")
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))

	const trials = 2000
	trues, total := 0, 0
	for i := 0; i < trials; i++ {
		p, err := NewPlayer("coin", prog, rng)
		require.NoError(t, err)
		moves, err := p.Run(context.Background(), bools(false, false, false))
		require.NoError(t, err)
		require.Len(t, moves, 3)
		for _, m := range moves {
			if m.Kind() != ops.KindBool {
				t.Fatalf("expected boolean move, got %v", m)
			}
			if m.Truthy() {
				trues++
			}
			total++
		}
	}
	avg := float64(trues) / float64(total)
	if avg < 0.45 || avg > 0.55 {
		t.Fatalf("expected average near 0.5, got %f", avg)
	}
}

func TestSeedCarriesPreviousMove(t *testing.T) {
	// The seed is drawn once; later rounds see the previous move under END.
	p := newPlayer(t, "0.5{}\nEND", 3)
	first, err := p.Step(ops.Absent())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		move, err := p.Step(ops.Bool(true))
		require.NoError(t, err)
		require.Equal(t, first, move)
	}
}

func TestDeterministicUnderFixedSeed(t *testing.T) {
	src := "0.5{r:~0.5}\nc:~0.3;\nx:^ # c;\ny:| x r;\ny\n{x}"
	opponent := bools(true, false, false, true, true, false, true, false, true, true,
		false, false, true, false, true, true, true, false, false, true)

	run := func() []ops.Value {
		p := newPlayer(t, src, 99)
		moves, err := p.Run(context.Background(), opponent)
		require.NoError(t, err)
		return moves
	}
	require.Equal(t, run(), run())
}

func TestMirrorPlaysOpponentsLastMove(t *testing.T) {
	p := newPlayer(t, "1{}\n#", 1)
	moves, err := p.Run(context.Background(), bools(false, true, true, false))
	require.NoError(t, err)
	require.Equal(t, bools(true, false, true, true), moves)
}

func TestRegisterUpdatesReadThisRoundsStatements(t *testing.T) {
	// If the round state were cleared before the update ran, r would become
	// absent and x would stay true forever.
	p := newPlayer(t, "0{r:false}\nx:! r;\nx\n{x}", 1)
	moves, err := p.Run(context.Background(), make([]ops.Value, 6))
	require.NoError(t, err)
	require.Equal(t, bools(false, true, false, true, false, true), moves)
}

func TestRegistersSurviveAndStatementsReset(t *testing.T) {
	p := newPlayer(t, "0{n:0}\nm:+ n 1;\nbig:> m 2;\nbig\n{m}", 1)
	moves, err := p.Run(context.Background(), make([]ops.Value, 5))
	require.NoError(t, err)
	require.Equal(t, bools(false, false, false, true, true), moves)
}

func TestChanceIsNotMemoized(t *testing.T) {
	p := newPlayer(t, "0{}\nc:~0.5;\nsame:= c c;\nsame", 11)
	_, err := p.Step(ops.Absent())
	require.NoError(t, err)
	differed := false
	for i := 0; i < 200; i++ {
		move, err := p.Step(ops.Absent())
		require.NoError(t, err)
		if !move.Truthy() {
			differed = true
		}
	}
	require.True(t, differed, "two references to one chance constant always agreed")
}

func TestConditionalEvaluatesOneBranch(t *testing.T) {
	p := newPlayer(t, "0{}\nbad:\"nope\";\nc:? true # bad;\nc", 1)
	moves, err := p.Run(context.Background(), bools(true, true, false))
	require.NoError(t, err)
	require.Equal(t, bools(false, true, true), moves)
}

func TestNumericInput(t *testing.T) {
	p := newPlayer(t, "0{}\nk:\" 2.5 \";\nx:> k 2;\nx", 1)
	moves, err := p.Run(context.Background(), make([]ops.Value, 2))
	require.NoError(t, err)
	require.Equal(t, bools(false, true), moves)
}

func TestNonNumericInputStopsPlayer(t *testing.T) {
	p := newPlayer(t, "0{}\nk:\"abc\";\nx:& k #;\nx", 1)
	first, err := p.Step(ops.Absent())
	require.NoError(t, err)
	require.Equal(t, ops.Bool(false), first)

	_, err = p.Step(ops.Bool(true))
	if !errors.Is(err, ErrNonNumericInput) {
		t.Fatalf("expected ErrNonNumericInput, got: %v", err)
	}
	_, err = p.Step(ops.Bool(true))
	require.ErrorIs(t, err, ErrNonNumericInput)
	require.ErrorIs(t, p.Err(), ErrNonNumericInput)

	p.Reset()
	require.NoError(t, p.Err())
	_, err = p.Step(ops.Absent())
	require.NoError(t, err)
}

func TestRunHonoursContext(t *testing.T) {
	p := newPlayer(t, "0{}\nEND", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	moves, err := p.Run(ctx, bools(true, true))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, moves)
}
