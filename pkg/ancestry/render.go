// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ancestry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	fenceOpen  = "{{{"
	fenceClose = "}}}"
	blockPad   = 29
)

type fileLine struct {
	file string
	line int
}

// Render prints the tree as nested fenced blocks that an editor can fold (vim foldmethod=marker).
// Each node is a record line followed by the block of locations it covered first,
// the block of other testcases that first covered the same source lines,
// and the block of its children.
func (t *Tree) Render(w io.Writer) error {
	xref := make(map[fileLine][]*Node)
	t.Walk(func(n *Node) bool {
		for _, loc := range n.Meta.Locations {
			if !loc.Symbolized() {
				continue
			}
			key := fileLine{loc.File, loc.Line}
			xref[key] = append(xref[key], n)
		}
		return true
	})
	buf := new(bytes.Buffer)
	t.render(buf, t.Root(), xref)
	_, err := w.Write(buf.Bytes())
	return err
}

func (t *Tree) render(buf *bytes.Buffer, n *Node, xref map[fileLine][]*Node) {
	if parent := t.Parent(n); parent == nil {
		fmt.Fprintf(buf, "ROOT | %v\n", n.ID)
	} else {
		line := strings.Repeat(" ", parent.Level) + strings.Repeat("-", n.Level-parent.Level) +
			fmt.Sprintf("| %-8d %-40v cov: %8d exec/s: %8d %v",
				n.Meta.Index, n.ID, n.Meta.Coverage, n.Meta.ExecsPerSec, n.Meta.Action)
		buf.WriteString(strings.TrimRight(line, " "))
		buf.WriteByte('\n')
	}
	pad := strings.Repeat(" ", blockPad)
	buf.WriteString(fenceOpen + "\n")
	for _, loc := range n.Meta.Locations {
		if loc.Symbolized() {
			fmt.Fprintf(buf, "%v| %-40v : %v\n", pad, loc.File, loc.Line)
		} else {
			fmt.Fprintf(buf, "%v| %v\n", pad, loc)
		}
	}
	buf.WriteString(fenceClose + "\n")
	buf.WriteString(fenceOpen + "\n")
	for _, ref := range crossRefs(n, xref) {
		fmt.Fprintf(buf, "%v| %v\n", pad, ref)
	}
	buf.WriteString(fenceClose + "\n")
	buf.WriteString(fenceOpen + "\n")
	for _, idx := range n.children {
		t.render(buf, t.nodes[idx], xref)
	}
	buf.WriteString(fenceClose + "\n")
}

func crossRefs(n *Node, xref map[fileLine][]*Node) []string {
	var res []string
	dup := make(map[string]bool)
	for _, loc := range n.Meta.Locations {
		if !loc.Symbolized() {
			continue
		}
		key := fileLine{loc.File, loc.Line}
		for _, other := range xref[key] {
			ref := fmt.Sprintf("%v:%v %v", loc.File, loc.Line, other.ID)
			if other == n || dup[ref] {
				continue
			}
			dup[ref] = true
			res = append(res, ref)
		}
	}
	return res
}

// Doc is the exported form of a node and its subtree.
type Doc struct {
	ID            string   `json:"id" yaml:"id"`
	Index         uint64   `json:"index,omitempty" yaml:"index,omitempty"`
	Coverage      int      `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	ExecsPerSec   int      `json:"execs_per_sec,omitempty" yaml:"execs_per_sec,omitempty"`
	Seconds       int      `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	InputLen      int      `json:"input_len,omitempty" yaml:"input_len,omitempty"`
	MutationCount int      `json:"mutations,omitempty" yaml:"mutations,omitempty"`
	Action        string   `json:"action,omitempty" yaml:"action,omitempty"`
	Locations     []string `json:"locations,omitempty" yaml:"locations,omitempty"`
	Children      []*Doc   `json:"children,omitempty" yaml:"children,omitempty"`
}

// Export returns the tree as nested documents.
func (t *Tree) Export() *Doc {
	return t.export(t.Root())
}

func (t *Tree) export(n *Node) *Doc {
	doc := &Doc{
		ID:            n.ID,
		Index:         n.Meta.Index,
		Coverage:      n.Meta.Coverage,
		ExecsPerSec:   n.Meta.ExecsPerSec,
		Seconds:       n.Meta.Seconds,
		InputLen:      n.Meta.InputLen,
		MutationCount: n.Meta.MutationCount,
		Action:        n.Meta.Action,
	}
	for _, loc := range n.Meta.Locations {
		doc.Locations = append(doc.Locations, loc.String())
	}
	for _, idx := range n.children {
		doc.Children = append(doc.Children, t.export(t.nodes[idx]))
	}
	return doc
}

func (t *Tree) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(t.Export())
}

func (t *Tree) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t.Export()); err != nil {
		return err
	}
	return enc.Close()
}
