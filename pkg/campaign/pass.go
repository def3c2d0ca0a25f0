// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"errors"
	"fmt"
	"sort"

	"github.com/asapfuzz/lineage/pkg/ancestry"
	"github.com/asapfuzz/lineage/pkg/fuzzlog"
	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/timeline"
)

type positioned struct {
	seq  int
	file string
	ent  fuzzlog.Entry
}

type attachment struct {
	at    positioned
	owner string
	meta  ancestry.Metadata
}

// link is a libFuzzer ancestry line that may be paired with a discovery.
type link struct {
	at    positioned
	child string
	seed  bool
}

// pass is the state of the single ordered pass over all entries.
//
// The i-th discovery is paired with the i-th ancestry line, so the pairing does not
// depend on whether libFuzzer flushed the NEW or the ANCESTRY line first. Seeds loaded
// at startup are announced with a zero parent and no NEW line; such a line seen while
// no discovery waits for its ancestry is only a marker that hangs the seed off the
// root and is not counted.
type pass struct {
	runID       string
	file        string
	timeline    *timeline.Builder
	seq         int
	edges       []ancestry.Edge
	edgeAt      []positioned
	attach      []attachment
	discoveries []positioned
	links       []link
	pending     int         // discoveries not yet followed by an ancestry line
	unpaired    *positioned // first ancestry line not preceded by a discovery
	crashes     []Crash
	stats       map[string]int64
}

func newPass(runID string) *pass {
	return &pass{
		runID:    runID,
		timeline: timeline.NewBuilder(),
		stats:    make(map[string]int64),
	}
}

func (p *pass) add(ent fuzzlog.Entry) error {
	statEntries.Add(1)
	if err := p.timeline.Add(ent); err != nil {
		var merr *fuzzlog.MalformedError
		if errors.As(err, &merr) {
			merr.File = p.file
		}
		return err
	}
	p.seq++
	at := positioned{p.seq, p.file, ent}
	switch ev := ent.Event.(type) {
	case *fuzzlog.Discovery:
		p.discoveries = append(p.discoveries, at)
		p.pending++
	case *fuzzlog.Ancestry:
		p.ancestry(at, ev)
	case *fuzzlog.NewLocation:
		statLocations.Add(1)
		p.attach = append(p.attach, attachment{
			at:    at,
			owner: ev.Owner,
			meta:  ancestry.Metadata{Locations: []fuzzlog.Location{ev.Location}},
		})
	case *fuzzlog.Crash:
		statCrashes.Add(1)
		t, job := p.timeline.Now()
		p.crashes = append(p.crashes, Crash{Crash: *ev, Time: t, Job: job})
	case *fuzzlog.FinalStat:
		p.stats[ev.Name] += ev.Value
	}
	return nil
}

func (p *pass) ancestry(at positioned, ev *fuzzlog.Ancestry) {
	p.edges = append(p.edges, ancestry.Edge{Parent: ev.Parent, Child: ev.Child, Line: at.ent.Line})
	p.edgeAt = append(p.edgeAt, at)
	if ev.HasProgress {
		// AFL lines are self-contained and are not paired with discoveries.
		return
	}
	l := link{at: at, child: ev.Child}
	switch {
	case p.pending != 0:
		p.pending--
	case ev.Sentinel:
		log.Logf(2, "seed %v", ev.Child)
		l.seed = true
	case p.unpaired == nil:
		p.unpaired = &at
	}
	p.links = append(p.links, l)
}

// pair attaches the metadata of every discovery to the testcase of its ancestry line.
// If the totals only match with the seed markers counted, the markers are paired too.
func (p *pass) pair() error {
	var lines []link
	for _, l := range p.links {
		if !l.seed {
			lines = append(lines, l)
		}
	}
	if len(lines) != len(p.discoveries) && len(p.links) == len(p.discoveries) {
		lines = p.links
	}
	if len(lines) != len(p.discoveries) {
		err := fmt.Errorf("%w: %v discoveries, %v ancestry edges",
			ErrCountMismatch, len(p.discoveries), len(lines))
		// Report the earliest line that found nothing to pair with in log order.
		at := p.unpaired
		if p.pending != 0 {
			if first := &p.discoveries[len(p.discoveries)-p.pending]; at == nil || first.seq < at.seq {
				at = first
			}
		}
		if at == nil {
			return &fuzzlog.MalformedError{File: p.file, Err: err}
		}
		return fuzzlog.Malformed(at.file, at.ent, err)
	}
	for i, l := range lines {
		p.attach = append(p.attach, attachment{
			at:    l.at,
			owner: l.child,
			meta:  ancestry.FromDiscovery(p.discoveries[i].ent.Event.(*fuzzlog.Discovery)),
		})
	}
	return nil
}

// finish checks the count invariant, builds the tree and attaches metadata.
func (p *pass) finish(sym symbolize) (*Result, error) {
	if err := p.pair(); err != nil {
		return nil, err
	}
	tree, err := ancestry.Build(p.edges)
	if err != nil {
		var eerr *ancestry.EdgeError
		if errors.As(err, &eerr) {
			if at := p.edgePosition(eerr.Edge); at != nil {
				return nil, fuzzlog.Malformed(at.file, at.ent, err)
			}
		}
		return nil, &fuzzlog.MalformedError{File: p.file, Err: err}
	}
	if err := sym.resolve(p.attach); err != nil {
		return nil, err
	}
	for _, a := range p.attach {
		if err := tree.Attach(a.owner, a.meta); err != nil {
			return nil, fuzzlog.Malformed(a.at.file, a.at.ent, err)
		}
	}
	statTestcases.Add(tree.Len())
	sort.SliceStable(p.crashes, func(i, j int) bool {
		return p.crashes[i].Time < p.crashes[j].Time
	})
	return &Result{
		RunID:       p.runID,
		Tree:        tree,
		Crashes:     p.crashes,
		Stats:       p.stats,
		Discoveries: len(p.discoveries),
		Jobs:        p.timeline.Jobs(),
	}, nil
}

// edgePosition finds the log line of an edge reported by the tree builder.
func (p *pass) edgePosition(edge ancestry.Edge) *positioned {
	for i, e := range p.edges {
		if e.Line == edge.Line && e.Parent == edge.Parent {
			return &p.edgeAt[i]
		}
	}
	return nil
}

func (e *Engine) finish(p *pass) (*Result, error) {
	return p.finish(symbolize{e.Symbolizer, e.Config.Binary})
}
