// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ancestry builds the lineage tree of testcases kept by a fuzzing engine:
// which input was mutated into which, and what code each of them covered first.
package ancestry

import (
	"errors"
	"fmt"

	"github.com/asapfuzz/lineage/pkg/fuzzlog"
	"github.com/asapfuzz/lineage/pkg/hash"
)

var (
	ErrDuplicateRoot   = errors.New("more than one ancestry root")
	ErrDuplicateParent = errors.New("testcase has more than one parent")
	ErrCycle           = errors.New("testcase is its own ancestor")
	ErrUnknownTestcase = errors.New("unknown testcase")
	errEmptyEdgeMember = errors.New("empty testcase id in edge")
)

// Display indentation of the root and of each following generation.
const (
	rootLevel = 5
	levelInc  = 2
)

// Edge is a parent->child mutation relation. Line is the log position it came from, if any.
type Edge struct {
	Parent string
	Child  string
	Line   int
}

// EdgeError is returned by Build for an edge that violates the tree structure.
type EdgeError struct {
	Edge Edge
	Err  error
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("%v: %v -> %v", e.Err, e.Edge.Parent, e.Edge.Child)
}

func (e *EdgeError) Unwrap() error {
	return e.Err
}

// Metadata is what the engine reported about a testcase when it was discovered,
// plus the code locations it covered first.
type Metadata struct {
	Discovered    bool // the scalar fields below are valid
	Index         uint64
	Coverage      int
	Bits          int
	Indir         int
	Units         int
	ExecsPerSec   int
	Seconds       int
	InputLen      int
	MutationCount int
	Action        string
	Locations     []fuzzlog.Location
}

// FromDiscovery converts a classified discovery line into node metadata.
func FromDiscovery(d *fuzzlog.Discovery) Metadata {
	return Metadata{
		Discovered:    true,
		Index:         d.Index,
		Coverage:      d.Coverage,
		Bits:          d.Bits,
		Indir:         d.Indir,
		Units:         d.Units,
		ExecsPerSec:   d.ExecsPerSec,
		Seconds:       d.Seconds,
		InputLen:      d.InputLen,
		MutationCount: d.MutationCount,
		Action:        d.Action,
	}
}

// Node is a testcase in the tree. Nodes are owned by the Tree and must not be modified.
type Node struct {
	ID    string
	Level int
	Meta  Metadata

	idx      int
	parent   int
	children []int
	seen     map[fuzzlog.Location]bool
}

func (n *Node) IsRoot() bool {
	return n.parent < 0
}

// Tree is an arena of nodes connected by parent/child indices.
type Tree struct {
	nodes []*Node
	index map[string]int
	root  int
}

func newTree() *Tree {
	return &Tree{
		index: make(map[string]int),
		root:  -1,
	}
}

func (t *Tree) node(id string) *Node {
	if idx, ok := t.index[id]; ok {
		return t.nodes[idx]
	}
	n := &Node{
		ID:     id,
		idx:    len(t.nodes),
		parent: -1,
	}
	t.nodes = append(t.nodes, n)
	t.index[id] = n.idx
	return n
}

// Build assembles the tree from edges given in discovery order.
// The first node that never appears as a child is the root; a second such node
// is an error. If there are no edges the tree consists of the zero sentinel root.
func Build(edges []Edge) (*Tree, error) {
	t := newTree()
	for _, e := range edges {
		if e.Parent == "" || e.Child == "" {
			return nil, &EdgeError{e, errEmptyEdgeMember}
		}
		parent, child := t.node(e.Parent), t.node(e.Child)
		if child.parent >= 0 {
			if child.parent == parent.idx {
				continue
			}
			return nil, &EdgeError{e, ErrDuplicateParent}
		}
		for p := parent; ; p = t.nodes[p.parent] {
			if p == child {
				return nil, &EdgeError{e, ErrCycle}
			}
			if p.parent < 0 {
				break
			}
		}
		child.parent = parent.idx
		parent.children = append(parent.children, child.idx)
	}
	if len(t.nodes) == 0 {
		t.node(hash.Zero)
	}
	for _, n := range t.nodes {
		if n.parent >= 0 {
			continue
		}
		if t.root >= 0 {
			e := Edge{Parent: n.ID}
			if len(n.children) != 0 {
				e.Child = t.nodes[n.children[0]].ID
			}
			for _, edge := range edges {
				if edge.Parent == e.Parent {
					e.Line = edge.Line
					break
				}
			}
			return nil, &EdgeError{e, ErrDuplicateRoot}
		}
		t.root = n.idx
	}
	t.assignLevels()
	return t, nil
}

func (t *Tree) assignLevels() {
	t.Walk(func(n *Node) bool {
		if n.parent < 0 {
			n.Level = rootLevel
		} else {
			n.Level = t.nodes[n.parent].Level + levelInc
		}
		return true
	})
}

// Attach merges metadata into the node with the given id; a blank id denotes the root.
// Attaching the same metadata again does not change the node.
func (t *Tree) Attach(id string, meta Metadata) error {
	n := t.Root()
	if id != "" {
		n = t.Lookup(id)
		if n == nil {
			return fmt.Errorf("%w %v", ErrUnknownTestcase, id)
		}
	}
	locs := meta.Locations
	if meta.Discovered {
		meta.Locations = n.Meta.Locations
		n.Meta = meta
	}
	for _, loc := range locs {
		if n.seen[loc] {
			continue
		}
		if n.seen == nil {
			n.seen = make(map[fuzzlog.Location]bool)
		}
		n.seen[loc] = true
		n.Meta.Locations = append(n.Meta.Locations, loc)
	}
	return nil
}

// AttachLocations is a shorthand for attaching only covered locations.
func (t *Tree) AttachLocations(id string, locs ...fuzzlog.Location) error {
	return t.Attach(id, Metadata{Locations: locs})
}

func (t *Tree) Root() *Node {
	return t.nodes[t.root]
}

func (t *Tree) Lookup(id string) *Node {
	idx, ok := t.index[id]
	if !ok {
		return nil
	}
	return t.nodes[idx]
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// Parent returns nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	if n.parent < 0 {
		return nil
	}
	return t.nodes[n.parent]
}

// Children returns children in discovery order.
func (t *Tree) Children(n *Node) []*Node {
	res := make([]*Node, len(n.children))
	for i, idx := range n.children {
		res[i] = t.nodes[idx]
	}
	return res
}

// Ancestors returns the chain from the node's parent up to the root.
func (t *Tree) Ancestors(n *Node) []*Node {
	var res []*Node
	for p := t.Parent(n); p != nil; p = t.Parent(p) {
		res = append(res, p)
	}
	return res
}

// Walk visits nodes in pre-order with children in discovery order.
// If fn returns false the subtree of the node is skipped.
func (t *Tree) Walk(fn func(n *Node) bool) {
	stack := []int{t.root}
	for len(stack) != 0 {
		n := t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
}
