// Package compiler linearizes a block graph into Program Text.
package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"twotoone/internal/graph"
)

var (
	ErrNoEndMarker  = errors.New("graph has no end marker")
	ErrDisconnected = errors.New("graph has an unconnected input")
	ErrCycle        = errors.New("graph contains a cycle")
)

const opponentName = "#"

type compilation struct {
	g         *graph.Graph
	nodes     []graph.Node
	relevant  []bool
	resolved  []bool
	names     []string
	consumers [][]graph.NodeID
	taken     map[string]bool
	nextNode  int
	nextReg   int
	body      strings.Builder
}

// Compile turns g into Program Text. Only nodes that feed the end marker or a
// feedback register take part; anything else on the canvas is ignored.
// Statement order follows node creation order wherever more than one node is
// ready, so the output is deterministic for a given graph.
func Compile(g *graph.Graph) (string, error) {
	end, ok := g.End()
	if !ok {
		return "", ErrNoEndMarker
	}

	c := &compilation{
		g:         g,
		nodes:     g.Nodes(),
		relevant:  make([]bool, g.Len()),
		resolved:  make([]bool, g.Len()),
		names:     make([]string, g.Len()),
		consumers: make([][]graph.NodeID, g.Len()),
		taken:     map[string]bool{graph.DefaultSeedName: true},
	}
	for _, n := range c.nodes {
		if n.Label != "" {
			c.taken[n.Label] = true
		}
	}
	for _, conn := range g.Connections() {
		c.consumers[conn.From] = append(c.consumers[conn.From], conn.To)
	}
	for i := range c.consumers {
		sort.Slice(c.consumers[i], func(a, b int) bool { return c.consumers[i][a] < c.consumers[i][b] })
	}

	registers := g.Registers()
	c.markRelevant(end)
	for _, r := range registers {
		c.markRelevant(r)
	}
	if err := c.checkConnected(); err != nil {
		return "", err
	}

	// The end marker and the registers hold last round's values, so they are
	// bound before any statement runs.
	c.names[end] = graph.DefaultSeedName
	c.resolved[end] = true
	for _, r := range registers {
		c.names[r] = c.nameFor(c.nodes[r])
		c.resolved[r] = true
	}

	if err := c.linearize(end, registers); err != nil {
		return "", err
	}

	var out strings.Builder
	endNode := c.nodes[end]
	out.WriteString(formatProb(endNode.Prob))
	out.WriteByte('{')
	for i, r := range registers {
		if i > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(c.names[r])
		out.WriteByte(':')
		out.WriteString(strconv.FormatBool(c.nodes[r].Bool))
	}
	out.WriteString("}\n")
	out.WriteString(c.body.String())
	out.WriteString(c.names[c.g.Input(end, 0)])
	out.WriteByte('\n')
	if len(registers) > 0 {
		out.WriteByte('{')
		for i, r := range registers {
			if i > 0 {
				out.WriteByte(' ')
			}
			out.WriteString(c.names[c.g.Input(r, 0)])
		}
		out.WriteString("}\n")
	}
	return out.String(), nil
}

func (c *compilation) markRelevant(id graph.NodeID) {
	stack := []graph.NodeID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.relevant[n] {
			continue
		}
		c.relevant[n] = true
		for _, in := range c.g.Inputs(n) {
			if in != graph.NoNode && !c.relevant[in] {
				stack = append(stack, in)
			}
		}
	}
}

func (c *compilation) checkConnected() error {
	for id, n := range c.nodes {
		if !c.relevant[id] {
			continue
		}
		for slot, in := range c.g.Inputs(graph.NodeID(id)) {
			if in == graph.NoNode {
				return fmt.Errorf("%w: %s node %d slot %d", ErrDisconnected, n.Kind, id, slot)
			}
		}
	}
	return nil
}

func (c *compilation) linearize(end graph.NodeID, registers []graph.NodeID) error {
	frontier := make(map[graph.NodeID]bool)
	push := func(id graph.NodeID) {
		if c.relevant[id] && !c.resolved[id] {
			frontier[id] = true
		}
	}
	for id, n := range c.nodes {
		if n.Kind.IsSource() {
			push(graph.NodeID(id))
		}
	}
	for _, pre := range append([]graph.NodeID{end}, registers...) {
		for _, consumer := range c.consumers[pre] {
			push(consumer)
		}
	}

	for len(frontier) > 0 {
		ids := make([]graph.NodeID, 0, len(frontier))
		for id := range frontier {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		progress := false
		for _, id := range ids {
			if !c.ready(id) {
				continue
			}
			c.emit(id)
			c.resolved[id] = true
			delete(frontier, id)
			progress = true
			for _, consumer := range c.consumers[id] {
				push(consumer)
			}
		}
		if !progress {
			return fmt.Errorf("%w: %d node(s) wait on each other", ErrCycle, len(frontier))
		}
	}

	// Every relevant node is fully connected, so anything left unresolved sits
	// on a loop that no source reaches.
	for id := range c.nodes {
		if c.relevant[id] && !c.resolved[id] {
			return fmt.Errorf("%w: node %d is unreachable from any source", ErrCycle, id)
		}
	}
	return nil
}

func (c *compilation) ready(id graph.NodeID) bool {
	for _, in := range c.g.Inputs(id) {
		if !c.resolved[in] {
			return false
		}
	}
	return true
}

func (c *compilation) emit(id graph.NodeID) {
	n := c.nodes[id]
	if n.Kind == graph.KindOpponent {
		c.names[id] = opponentName
		return
	}
	name := c.nameFor(n)
	c.names[id] = name

	b := &c.body
	b.WriteString(name)
	b.WriteByte(':')
	switch n.Kind {
	case graph.KindChance:
		b.WriteByte('~')
		b.WriteString(formatProb(n.Prob))
	case graph.KindBool:
		b.WriteString(strconv.FormatBool(n.Bool))
	case graph.KindNumericInput:
		b.WriteString(strconv.Quote(n.Raw))
	case graph.KindNot:
		b.WriteString("!")
	case graph.KindCond:
		b.WriteString("?")
	case graph.KindBinary:
		b.WriteString(n.Op)
	}
	for _, in := range c.g.Inputs(id) {
		b.WriteByte(' ')
		b.WriteString(c.names[in])
	}
	b.WriteString(";\n")
}

func (c *compilation) nameFor(n graph.Node) string {
	if n.Label != "" {
		return n.Label
	}
	prefix, counter := "n", &c.nextNode
	if n.Kind == graph.KindRegister {
		prefix, counter = "r", &c.nextReg
	}
	for {
		name := prefix + strconv.Itoa(*counter)
		*counter++
		if !c.taken[name] {
			c.taken[name] = true
			return name
		}
	}
}

func formatProb(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
