package graph

import (
	"errors"
	"fmt"

	"twotoone/internal/lang"
	"twotoone/internal/ops"
)

var (
	ErrUnknownNode        = errors.New("unknown node")
	ErrSlotRange          = errors.New("input slot out of range")
	ErrDuplicateEndMarker = errors.New("graph already has an end marker")
	ErrInvalidLabel       = errors.New("invalid node label")
	ErrDuplicateLabel     = errors.New("duplicate node label")
	ErrInvalidNode        = errors.New("invalid node")
)

// NodeID is a handle into a Graph's node arena, assigned in creation order.
type NodeID int

// NoNode marks an empty input slot.
const NoNode NodeID = -1

// DefaultSeedName is the name the end marker's value is bound to in Program Text.
const DefaultSeedName = lang.DefaultSeedName

type Kind uint8

const (
	KindChance Kind = iota + 1
	KindBool
	KindNumericInput
	KindOpponent
	KindNot
	KindCond
	KindBinary
	KindRegister
	KindEnd
)

var kindNames = map[Kind]string{
	KindChance:       "chance",
	KindBool:         "bool",
	KindNumericInput: "input",
	KindOpponent:     "opponent",
	KindNot:          "not",
	KindCond:         "cond",
	KindBinary:       "binary",
	KindRegister:     "register",
	KindEnd:          "end",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidNode, s)
}

// Slots is the number of input slots a node of this kind declares.
func (k Kind) Slots() int {
	switch k {
	case KindNot, KindRegister, KindEnd:
		return 1
	case KindBinary:
		return 2
	case KindCond:
		return 3
	default:
		return 0
	}
}

// IsSource reports whether the kind has no inputs.
func (k Kind) IsSource() bool { return k.Slots() == 0 }

// Node is one block of the graph. Which literal field is meaningful depends
// on Kind: Prob for chance constants and the end marker's seed, Bool for
// boolean constants and register initial values, Raw for numeric inputs and
// Op for binary operators.
type Node struct {
	ID    NodeID
	Kind  Kind
	Label string
	Op    string
	Prob  float64
	Bool  bool
	Raw   string
}

func Chance(label string, p float64) Node { return Node{Kind: KindChance, Label: label, Prob: p} }
func BoolConst(label string, b bool) Node { return Node{Kind: KindBool, Label: label, Bool: b} }
func NumericInput(label, raw string) Node { return Node{Kind: KindNumericInput, Label: label, Raw: raw} }
func Opponent() Node                      { return Node{Kind: KindOpponent} }
func Not() Node                           { return Node{Kind: KindNot} }
func Cond() Node                          { return Node{Kind: KindCond} }
func Binary(op string) Node               { return Node{Kind: KindBinary, Op: op} }
func Register(initial bool) Node          { return Node{Kind: KindRegister, Bool: initial} }
func End(seedProb float64) Node           { return Node{Kind: KindEnd, Prob: seedProb} }

// Connection feeds From's output into slot Slot of To.
type Connection struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
	Slot int    `json:"slot"`
}

// Graph is an arena of nodes addressed by NodeID plus the list of
// connections between them. The zero value is not usable; call New.
type Graph struct {
	nodes       []Node
	inputs      [][]NodeID
	connections []Connection
	labels      map[string]NodeID
	end         NodeID
	registers   []NodeID
}

func New() *Graph {
	return &Graph{labels: make(map[string]NodeID), end: NoNode}
}

// Add appends a node and returns its handle. At most one end marker may exist.
func (g *Graph) Add(n Node) (NodeID, error) {
	if _, ok := kindNames[n.Kind]; !ok {
		return NoNode, fmt.Errorf("%w: kind %d", ErrInvalidNode, n.Kind)
	}
	switch n.Kind {
	case KindEnd:
		if g.end != NoNode {
			return NoNode, ErrDuplicateEndMarker
		}
		if n.Prob < 0 || n.Prob > 1 {
			return NoNode, fmt.Errorf("%w: seed probability %v outside [0,1]", ErrInvalidNode, n.Prob)
		}
	case KindChance:
		if n.Prob < 0 || n.Prob > 1 {
			return NoNode, fmt.Errorf("%w: probability %v outside [0,1]", ErrInvalidNode, n.Prob)
		}
	case KindBinary:
		if !ops.ValidSymbol(n.Op) {
			return NoNode, fmt.Errorf("%w: operator %q", ErrInvalidNode, n.Op)
		}
		if n.Op == ops.NotSymbol || n.Op == ops.CondSymbol {
			return NoNode, fmt.Errorf("%w: %s is not a binary operator", ErrInvalidNode, n.Op)
		}
	}
	if n.Label != "" {
		if n.Kind == KindEnd || n.Kind == KindOpponent {
			return NoNode, fmt.Errorf("%w: %s nodes cannot be labelled", ErrInvalidLabel, n.Kind)
		}
		if !ValidLabel(n.Label) {
			return NoNode, fmt.Errorf("%w: %q", ErrInvalidLabel, n.Label)
		}
		if _, exists := g.labels[n.Label]; exists {
			return NoNode, fmt.Errorf("%w: %s", ErrDuplicateLabel, n.Label)
		}
	}

	id := NodeID(len(g.nodes))
	n.ID = id
	g.nodes = append(g.nodes, n)
	slots := make([]NodeID, n.Kind.Slots())
	for i := range slots {
		slots[i] = NoNode
	}
	g.inputs = append(g.inputs, slots)
	if n.Label != "" {
		g.labels[n.Label] = id
	}
	switch n.Kind {
	case KindEnd:
		g.end = id
	case KindRegister:
		g.registers = append(g.registers, id)
	}
	return id, nil
}

// Connect wires from's output into the given input slot of to. An occupied
// slot is overwritten. Cycles are not rejected here; the compiler reports them.
func (g *Graph) Connect(from, to NodeID, slot int) error {
	if !g.has(from) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, from)
	}
	if !g.has(to) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, to)
	}
	if slot < 0 || slot >= len(g.inputs[to]) {
		return fmt.Errorf("%w: node %d (%s) has %d slot(s), got %d", ErrSlotRange, to, g.nodes[to].Kind, len(g.inputs[to]), slot)
	}

	if g.inputs[to][slot] != NoNode {
		for i, c := range g.connections {
			if c.To == to && c.Slot == slot {
				g.connections[i].From = from
				g.inputs[to][slot] = from
				return nil
			}
		}
	}
	g.inputs[to][slot] = from
	g.connections = append(g.connections, Connection{From: from, To: to, Slot: slot})
	return nil
}

// Disconnect empties an input slot. Emptying an empty slot is a no-op.
func (g *Graph) Disconnect(to NodeID, slot int) error {
	if !g.has(to) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, to)
	}
	if slot < 0 || slot >= len(g.inputs[to]) {
		return fmt.Errorf("%w: node %d has %d slot(s), got %d", ErrSlotRange, to, len(g.inputs[to]), slot)
	}
	if g.inputs[to][slot] == NoNode {
		return nil
	}
	g.inputs[to][slot] = NoNode
	for i, c := range g.connections {
		if c.To == to && c.Slot == slot {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			break
		}
	}
	return nil
}

func (g *Graph) has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

func (g *Graph) Node(id NodeID) (Node, bool) {
	if !g.has(id) {
		return Node{}, false
	}
	return g.nodes[id], true
}

// Nodes returns a copy of the arena in creation order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

func (g *Graph) Len() int { return len(g.nodes) }

// Input returns the node feeding the given slot, or NoNode.
func (g *Graph) Input(to NodeID, slot int) NodeID {
	if !g.has(to) || slot < 0 || slot >= len(g.inputs[to]) {
		return NoNode
	}
	return g.inputs[to][slot]
}

// Inputs returns a copy of the node's slots, NoNode where empty.
func (g *Graph) Inputs(id NodeID) []NodeID {
	if !g.has(id) {
		return nil
	}
	return append([]NodeID(nil), g.inputs[id]...)
}

func (g *Graph) Connections() []Connection {
	return append([]Connection(nil), g.connections...)
}

func (g *Graph) End() (NodeID, bool) {
	return g.end, g.end != NoNode
}

// Registers lists feedback registers in creation order.
func (g *Graph) Registers() []NodeID {
	return append([]NodeID(nil), g.registers...)
}

// ValidLabel accepts Program Text names other than the default seed name.
func ValidLabel(s string) bool {
	return s != DefaultSeedName && lang.ValidName(s)
}
