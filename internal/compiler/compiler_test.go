package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"twotoone/internal/agent"
	"twotoone/internal/graph"
	"twotoone/internal/lang"
	"twotoone/internal/ops"
)

func add(t *testing.T, g *graph.Graph, n graph.Node) graph.NodeID {
	t.Helper()
	id, err := g.Add(n)
	require.NoError(t, err)
	return id
}

func connect(t *testing.T, g *graph.Graph, from, to graph.NodeID, slot int) {
	t.Helper()
	require.NoError(t, g.Connect(from, to, slot))
}

func TestCompileWithoutEndMarker(t *testing.T) {
	g := graph.New()
	a := add(t, g, graph.BoolConst("a", true))
	n := add(t, g, graph.Not())
	connect(t, g, a, n, 0)

	_, err := Compile(g)
	if !errors.Is(err, ErrNoEndMarker) {
		t.Fatalf("expected ErrNoEndMarker, got: %v", err)
	}
	_, err = Compile(graph.New())
	require.ErrorIs(t, err, ErrNoEndMarker)
}

func TestCompileMirror(t *testing.T) {
	g := graph.New()
	opp := add(t, g, graph.Opponent())
	end := add(t, g, graph.End(0.5))
	connect(t, g, opp, end, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "0.5{}\n#\n", text)
	_, err = lang.Parse(text)
	require.NoError(t, err)
}

func TestCompileUsesPreviousMove(t *testing.T) {
	g := graph.New()
	end := add(t, g, graph.End(1))
	n := add(t, g, graph.Not())
	connect(t, g, end, n, 0)
	connect(t, g, n, end, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "1{}\nn0:! END;\nn0\n", text)
}

func TestCompileRegistersAndConstants(t *testing.T) {
	g := graph.New()
	opp := add(t, g, graph.Opponent())
	reg := add(t, g, graph.Register(false))
	and := add(t, g, graph.Binary("&"))
	end := add(t, g, graph.End(1))
	coin := add(t, g, graph.Chance("coin", 0.3))
	or := add(t, g, graph.Binary("|"))
	connect(t, g, opp, and, 0)
	connect(t, g, reg, and, 1)
	connect(t, g, and, or, 0)
	connect(t, g, coin, or, 1)
	connect(t, g, or, end, 0)
	connect(t, g, opp, reg, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "1{r0:false}\nn0:& # r0;\ncoin:~0.3;\nn1:| n0 coin;\nn1\n{#}\n", text)

	p, err := lang.Parse(text)
	require.NoError(t, err)
	require.Len(t, p.Registers, 1)
	require.Len(t, p.Constants, 1)
	require.Len(t, p.Statements, 2)
}

func TestCompileConstantKinds(t *testing.T) {
	g := graph.New()
	in := add(t, g, graph.NumericInput("limit", `3"`))
	yes := add(t, g, graph.BoolConst("", true))
	cond := add(t, g, graph.Cond())
	end := add(t, g, graph.End(0))
	connect(t, g, yes, cond, 0)
	connect(t, g, in, cond, 1)
	connect(t, g, end, cond, 2)
	connect(t, g, cond, end, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "0{}\nlimit:\"3\\\"\";\nn0:true;\nn1:? n0 limit END;\nn1\n", text)
	_, err = lang.Parse(text)
	require.NoError(t, err)
}

func TestCompileSkipsTakenNames(t *testing.T) {
	g := graph.New()
	a := add(t, g, graph.BoolConst("n0", true))
	r := add(t, g, graph.Register(true))
	named := add(t, g, graph.Register(false))
	b := add(t, g, graph.BoolConst("r0", false))
	x := add(t, g, graph.Binary("^"))
	end := add(t, g, graph.End(0.5))
	connect(t, g, a, x, 0)
	connect(t, g, r, x, 1)
	connect(t, g, x, end, 0)
	connect(t, g, x, r, 0)
	connect(t, g, b, named, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "0.5{r1:true r2:false}\nn0:true;\nr0:false;\nn1:^ n0 r1;\nn1\n{n1 r0}\n", text)
	_, err = lang.Parse(text)
	require.NoError(t, err)
}

func TestCompileDisconnected(t *testing.T) {
	g := graph.New()
	a := add(t, g, graph.BoolConst("a", true))
	and := add(t, g, graph.Binary("&"))
	end := add(t, g, graph.End(0.5))
	connect(t, g, a, and, 0)
	connect(t, g, and, end, 0)

	_, err := Compile(g)
	require.ErrorIs(t, err, ErrDisconnected)

	empty := graph.New()
	add(t, empty, graph.End(0.5))
	_, err = Compile(empty)
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestCompileDisconnectedRegister(t *testing.T) {
	g := graph.New()
	opp := add(t, g, graph.Opponent())
	end := add(t, g, graph.End(0.5))
	add(t, g, graph.Register(false))
	connect(t, g, opp, end, 0)

	_, err := Compile(g)
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestCompileCycle(t *testing.T) {
	g := graph.New()
	opp := add(t, g, graph.Opponent())
	and := add(t, g, graph.Binary("&"))
	not := add(t, g, graph.Not())
	end := add(t, g, graph.End(0.5))
	connect(t, g, not, and, 0)
	connect(t, g, opp, and, 1)
	connect(t, g, and, not, 0)
	connect(t, g, and, end, 0)

	_, err := Compile(g)
	require.ErrorIs(t, err, ErrCycle)
}

func TestCompileSourcelessLoop(t *testing.T) {
	g := graph.New()
	a := add(t, g, graph.Not())
	b := add(t, g, graph.Not())
	end := add(t, g, graph.End(0.5))
	connect(t, g, a, b, 0)
	connect(t, g, b, a, 0)
	connect(t, g, b, end, 0)

	_, err := Compile(g)
	require.ErrorIs(t, err, ErrCycle)
}

func TestCompileSelfLoop(t *testing.T) {
	g := graph.New()
	x := add(t, g, graph.Binary("|"))
	opp := add(t, g, graph.Opponent())
	end := add(t, g, graph.End(0.5))
	connect(t, g, x, x, 0)
	connect(t, g, opp, x, 1)
	connect(t, g, x, end, 0)

	_, err := Compile(g)
	require.ErrorIs(t, err, ErrCycle)
}

func TestCompileIgnoresDeadNodes(t *testing.T) {
	g := graph.New()
	opp := add(t, g, graph.Opponent())
	// dangling: never feeds the end marker
	add(t, g, graph.Binary("&"))
	end := add(t, g, graph.End(0.5))
	connect(t, g, opp, end, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "0.5{}\n#\n", text)
}

func TestCompileLabelNamedLikeOperator(t *testing.T) {
	g := graph.New()
	m := add(t, g, graph.BoolConst("max", true))
	b := add(t, g, graph.BoolConst("b", false))
	x := add(t, g, graph.Binary("max"))
	end := add(t, g, graph.End(0.5))
	connect(t, g, m, x, 0)
	connect(t, g, b, x, 1)
	connect(t, g, x, end, 0)

	text, err := Compile(g)
	require.NoError(t, err)
	require.Equal(t, "0.5{}\nmax:true;\nb:false;\nn0:max max b;\nn0\n", text)

	prog, err := lang.Parse(text)
	require.NoError(t, err)
	call, ok := prog.Statements[0].Call.(lang.Apply)
	require.True(t, ok, "expected an operator call, got %T", prog.Statements[0].Call)
	require.Equal(t, "max", call.Op)
	require.Len(t, call.Args, 2)
}

// orderedGraph builds one fixed strategy, adding its nodes in the given order.
func orderedGraph(t *testing.T, order []string) *graph.Graph {
	t.Helper()
	nodes := map[string]graph.Node{
		"opp":  graph.Opponent(),
		"reg":  graph.Register(true),
		"coin": graph.Chance("", 0.4),
		"and":  graph.Binary("&"),
		"not":  graph.Not(),
		"cond": graph.Cond(),
		"xor":  graph.Binary("^"),
		"end":  graph.End(0.5),
	}
	require.Len(t, order, len(nodes))

	g := graph.New()
	ids := make(map[string]graph.NodeID, len(order))
	for _, name := range order {
		n, ok := nodes[name]
		require.True(t, ok, "unknown node %s", name)
		ids[name] = add(t, g, n)
	}
	wires := []struct {
		from, to string
		slot     int
	}{
		{"opp", "and", 0},
		{"reg", "and", 1},
		{"opp", "not", 0},
		{"coin", "cond", 0},
		{"and", "cond", 1},
		{"not", "cond", 2},
		{"cond", "end", 0},
		{"opp", "xor", 0},
		{"end", "xor", 1},
		{"xor", "reg", 0},
	}
	for _, w := range wires {
		connect(t, g, ids[w.from], ids[w.to], w.slot)
	}
	return g
}

func playCompiled(t *testing.T, g *graph.Graph, opponent []ops.Value) []ops.Value {
	t.Helper()
	text, err := Compile(g)
	require.NoError(t, err)
	prog, err := lang.Parse(text)
	require.NoError(t, err, "compiled text:\n%s", text)

	player, err := agent.NewPlayer("p", prog, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	moves := make([]ops.Value, 0, len(opponent))
	for _, o := range opponent {
		m, err := player.Step(o)
		require.NoError(t, err)
		moves = append(moves, m)
	}
	return moves
}

func TestCompileInsensitiveToCreationOrder(t *testing.T) {
	forward := orderedGraph(t, []string{"opp", "reg", "coin", "and", "not", "cond", "xor", "end"})
	backward := orderedGraph(t, []string{"end", "xor", "cond", "not", "and", "coin", "reg", "opp"})
	shuffled := orderedGraph(t, []string{"cond", "opp", "end", "coin", "xor", "reg", "not", "and"})

	opponent := make([]ops.Value, 40)
	for i := range opponent {
		switch i % 5 {
		case 0, 3:
			opponent[i] = ops.Bool(true)
		case 4:
			opponent[i] = ops.Absent()
		default:
			opponent[i] = ops.Bool(false)
		}
	}

	want := playCompiled(t, forward, opponent)
	require.Equal(t, want, playCompiled(t, backward, opponent))
	require.Equal(t, want, playCompiled(t, shuffled, opponent))
}
