package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NodeDoc is the wire form of a Node. Value carries "true"/"false" for
// boolean constants and register initial values, and the raw text of a
// numeric input.
type NodeDoc struct {
	Kind  string   `json:"kind"`
	Label string   `json:"label,omitempty"`
	Op    string   `json:"op,omitempty"`
	Value string   `json:"value,omitempty"`
	Prob  *float64 `json:"prob,omitempty"`
}

// Document is the editor's interchange form. Node handles are positions in
// Nodes.
type Document struct {
	Nodes       []NodeDoc    `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// DefaultSeedProb is used for an end marker whose document omits prob.
const DefaultSeedProb = 0.5

func (d Document) Graph() (*Graph, error) {
	g := New()
	for i, nd := range d.Nodes {
		n, err := nd.node()
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if _, err := g.Add(n); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	for i, c := range d.Connections {
		if err := g.Connect(c.From, c.To, c.Slot); err != nil {
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
	}
	return g, nil
}

func (nd NodeDoc) node() (Node, error) {
	kind, err := ParseKind(nd.Kind)
	if err != nil {
		return Node{}, err
	}
	n := Node{Kind: kind, Label: nd.Label, Op: nd.Op}
	switch kind {
	case KindChance:
		if nd.Prob == nil {
			return Node{}, fmt.Errorf("%w: chance node requires prob", ErrInvalidNode)
		}
		n.Prob = *nd.Prob
	case KindEnd:
		n.Prob = DefaultSeedProb
		if nd.Prob != nil {
			n.Prob = *nd.Prob
		}
	case KindBool, KindRegister:
		if nd.Value != "" {
			b, err := strconv.ParseBool(nd.Value)
			if err != nil {
				return Node{}, fmt.Errorf("%w: boolean value %q", ErrInvalidNode, nd.Value)
			}
			n.Bool = b
		}
	case KindNumericInput:
		n.Raw = nd.Value
	}
	return n, nil
}

// Document renders g back to its wire form.
func (g *Graph) Document() Document {
	doc := Document{
		Nodes:       make([]NodeDoc, 0, len(g.nodes)),
		Connections: g.Connections(),
	}
	for _, n := range g.nodes {
		nd := NodeDoc{Kind: n.Kind.String(), Label: n.Label, Op: n.Op}
		switch n.Kind {
		case KindChance, KindEnd:
			p := n.Prob
			nd.Prob = &p
		case KindBool, KindRegister:
			nd.Value = strconv.FormatBool(n.Bool)
		case KindNumericInput:
			nd.Value = n.Raw
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}

// DecodeDocument parses a JSON graph document.
func DecodeDocument(data []byte) (*Graph, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode graph document: %w", err)
	}
	return doc.Graph()
}
