// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ancestry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/asapfuzz/lineage/pkg/fuzzlog"
	"github.com/asapfuzz/lineage/pkg/hash"
)

var (
	zero = hash.Zero
	tcA  = strings.Repeat("a", 40)
	tcB  = strings.Repeat("b", 40)
	tcC  = strings.Repeat("c", 40)
	tcD  = strings.Repeat("d", 40)
)

func ids(nodes []*Node) []string {
	var res []string
	for _, n := range nodes {
		res = append(res, n.ID)
	}
	return res
}

func preOrder(tree *Tree) []string {
	var res []string
	tree.Walk(func(n *Node) bool {
		res = append(res, n.ID)
		return true
	})
	return res
}

func TestBuild(t *testing.T) {
	tree, err := Build([]Edge{
		{Parent: zero, Child: tcA},
		{Parent: tcA, Child: tcB},
		{Parent: zero, Child: tcC},
		{Parent: tcA, Child: tcD},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, tree.Len())
	root := tree.Root()
	assert.Equal(t, zero, root.ID)
	assert.True(t, root.IsRoot())
	assert.Nil(t, tree.Parent(root))
	assert.Equal(t, []string{tcA, tcC}, ids(tree.Children(root)))
	assert.Equal(t, []string{tcB, tcD}, ids(tree.Children(tree.Lookup(tcA))))
	assert.Equal(t, []string{zero, tcA, tcB, tcD, tcC}, preOrder(tree))
	assert.Equal(t, []string{tcA, zero}, ids(tree.Ancestors(tree.Lookup(tcD))))
	levels := map[string]int{}
	tree.Walk(func(n *Node) bool {
		levels[n.ID] = n.Level
		return true
	})
	assert.Equal(t, map[string]int{zero: 5, tcA: 7, tcB: 9, tcC: 7, tcD: 9}, levels)
	assert.Nil(t, tree.Lookup("nope"))
}

func TestBuildStructure(t *testing.T) {
	// Every node except the root has exactly one parent and reaches the root.
	tree, err := Build([]Edge{
		{Parent: tcB, Child: tcC},
		{Parent: tcA, Child: tcB},
		{Parent: tcC, Child: tcD},
	})
	require.NoError(t, err)
	assert.Equal(t, tcA, tree.Root().ID)
	roots := 0
	tree.Walk(func(n *Node) bool {
		if n.IsRoot() {
			roots++
			return true
		}
		anc := tree.Ancestors(n)
		assert.Equal(t, tree.Root(), anc[len(anc)-1])
		assert.NotContains(t, ids(anc), n.ID)
		return true
	})
	assert.Equal(t, 1, roots)
	assert.Equal(t, []string{tcA, tcB, tcC, tcD}, preOrder(tree))
	assert.Equal(t, 11, tree.Lookup(tcD).Level)
}

func TestBuildEmpty(t *testing.T) {
	tree, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, zero, tree.Root().ID)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		edges []Edge
		err   error
		line  int
	}{
		{
			name: "two roots",
			edges: []Edge{
				{Parent: zero, Child: tcA, Line: 1},
				{Parent: tcB, Child: tcC, Line: 2},
			},
			err:  ErrDuplicateRoot,
			line: 2,
		},
		{
			name: "two parents",
			edges: []Edge{
				{Parent: zero, Child: tcA, Line: 1},
				{Parent: zero, Child: tcB, Line: 2},
				{Parent: tcB, Child: tcA, Line: 3},
			},
			err:  ErrDuplicateParent,
			line: 3,
		},
		{
			name: "cycle",
			edges: []Edge{
				{Parent: tcA, Child: tcB, Line: 4},
				{Parent: tcB, Child: tcC, Line: 5},
				{Parent: tcC, Child: tcA, Line: 6},
			},
			err:  ErrCycle,
			line: 6,
		},
		{
			name:  "self",
			edges: []Edge{{Parent: tcA, Child: tcA, Line: 9}},
			err:   ErrCycle,
			line:  9,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Build(test.edges)
			require.Error(t, err)
			assert.True(t, errors.Is(err, test.err), "got %v", err)
			var eerr *EdgeError
			require.True(t, errors.As(err, &eerr))
			assert.Equal(t, test.line, eerr.Edge.Line)
		})
	}
}

func TestBuildRepeatedEdge(t *testing.T) {
	tree, err := Build([]Edge{
		{Parent: zero, Child: tcA},
		{Parent: zero, Child: tcA},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{tcA}, ids(tree.Children(tree.Root())))
}

func TestAttachIdempotent(t *testing.T) {
	tree, err := Build([]Edge{{Parent: zero, Child: tcA}})
	require.NoError(t, err)
	meta := Metadata{
		Discovered: true,
		Index:      1,
		Coverage:   3,
		Action:     "Foo-",
		Locations: []fuzzlog.Location{
			{PC: 0x10, Func: "f", File: "a.c", Line: 3, Column: 1},
			{PC: 0x20},
		},
	}
	require.NoError(t, tree.Attach(tcA, meta))
	first := tree.Lookup(tcA).Meta
	require.NoError(t, tree.Attach(tcA, meta))
	require.NoError(t, tree.AttachLocations(tcA, meta.Locations...))
	if diff := cmp.Diff(first, tree.Lookup(tcA).Meta); diff != "" {
		t.Fatal(diff)
	}
	assert.Len(t, tree.Lookup(tcA).Meta.Locations, 2)

	// Locations that arrive before the discovery survive it.
	require.NoError(t, tree.AttachLocations(tcA, fuzzlog.Location{PC: 0x30}))
	require.NoError(t, tree.Attach(tcA, Metadata{Discovered: true, Index: 2}))
	got := tree.Lookup(tcA).Meta
	assert.Equal(t, uint64(2), got.Index)
	assert.Len(t, got.Locations, 3)
}

func TestAttachRootAndUnknown(t *testing.T) {
	tree, err := Build([]Edge{{Parent: zero, Child: tcA}})
	require.NoError(t, err)
	require.NoError(t, tree.AttachLocations("", fuzzlog.Location{PC: 0x42}))
	assert.Equal(t, []fuzzlog.Location{{PC: 0x42}}, tree.Root().Meta.Locations)
	assert.Empty(t, tree.Lookup(tcA).Meta.Locations)
	assert.False(t, tree.Root().Meta.Discovered)

	err = tree.AttachLocations(tcB, fuzzlog.Location{PC: 1})
	assert.True(t, errors.Is(err, ErrUnknownTestcase))
}

func TestWalkSkip(t *testing.T) {
	tree, err := Build([]Edge{
		{Parent: zero, Child: tcA},
		{Parent: tcA, Child: tcB},
		{Parent: zero, Child: tcC},
	})
	require.NoError(t, err)
	var got []string
	tree.Walk(func(n *Node) bool {
		got = append(got, n.ID)
		return n.ID != tcA
	})
	assert.Equal(t, []string{zero, tcA, tcC}, got)
}

func TestRender(t *testing.T) {
	tree, err := Build([]Edge{
		{Parent: zero, Child: tcA},
		{Parent: tcA, Child: tcB},
	})
	require.NoError(t, err)
	require.NoError(t, tree.Attach(tcA, Metadata{
		Discovered: true, Index: 1, Coverage: 3, Action: "Foo-",
		Locations: []fuzzlog.Location{{PC: 0x10, File: "a.c", Line: 3, Column: 1}},
	}))
	require.NoError(t, tree.Attach(tcB, Metadata{
		Discovered: true, Index: 20, Coverage: 5, ExecsPerSec: 1000, Action: "ChangeBit-",
		Locations: []fuzzlog.Location{{PC: 0x18, File: "a.c", Line: 3, Column: 9}, {PC: 0x77}},
	}))
	pad := strings.Repeat(" ", 29)
	want := strings.Join([]string{
		"ROOT | " + zero,
		"{{{", "}}}",
		"{{{", "}}}",
		"{{{",
		"     --| 1        " + tcA + " cov:        3 exec/s:        0 Foo-",
		"{{{",
		pad + "| a.c" + strings.Repeat(" ", 37) + " : 3",
		"}}}",
		"{{{",
		pad + "| a.c:3 " + tcB,
		"}}}",
		"{{{",
		"       --| 20       " + tcB + " cov:        5 exec/s:     1000 ChangeBit-",
		"{{{",
		pad + "| a.c" + strings.Repeat(" ", 37) + " : 3",
		pad + "| 0x77",
		"}}}",
		"{{{",
		pad + "| a.c:3 " + tcA,
		"}}}",
		"{{{", "}}}",
		"}}}",
		"}}}",
	}, "\n") + "\n"
	buf := new(bytes.Buffer)
	require.NoError(t, tree.Render(buf))
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatal(diff)
	}
	// Rendering does not change the tree.
	again := new(bytes.Buffer)
	require.NoError(t, tree.Render(again))
	assert.Equal(t, buf.String(), again.String())
}

func TestRenderFencesBalanced(t *testing.T) {
	var edges []Edge
	prev := zero
	for i := 0; i < 50; i++ {
		id := hash.String([]byte{byte(i)})
		parent := prev
		if i%3 == 0 {
			parent = zero
		}
		edges = append(edges, Edge{Parent: parent, Child: id})
		prev = id
	}
	tree, err := Build(edges)
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	require.NoError(t, tree.Render(buf))
	out := buf.String()
	assert.Equal(t, strings.Count(out, "{{{"), strings.Count(out, "}}}"))
	assert.Equal(t, 3*tree.Len(), strings.Count(out, "{{{"))
	for _, e := range edges {
		assert.Equal(t, 1, strings.Count(out, e.Child))
	}
}

func TestExport(t *testing.T) {
	tree, err := Build([]Edge{{Parent: zero, Child: tcA}})
	require.NoError(t, err)
	require.NoError(t, tree.Attach(tcA, Metadata{
		Discovered: true, Index: 1, Coverage: 3, Action: "Foo-",
		Locations: []fuzzlog.Location{{File: "a.c", Line: 3}},
	}))
	want := &Doc{
		ID: zero,
		Children: []*Doc{{
			ID: tcA, Index: 1, Coverage: 3, Action: "Foo-",
			Locations: []string{"a.c:3"},
		}},
	}

	buf := new(bytes.Buffer)
	require.NoError(t, tree.WriteJSON(buf))
	got := new(Doc)
	require.NoError(t, json.Unmarshal(buf.Bytes(), got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}

	buf.Reset()
	require.NoError(t, tree.WriteYAML(buf))
	got = new(Doc)
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}
