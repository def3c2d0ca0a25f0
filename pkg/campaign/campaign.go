// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package campaign reconstructs a fuzzing campaign from engine logs: the ancestry tree
// of kept testcases with the code they covered first, crashes found on the way,
// and the coverage-vs-time table of the whole campaign.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/asapfuzz/lineage/pkg/ancestry"
	"github.com/asapfuzz/lineage/pkg/fuzzlog"
	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/oracle"
	"github.com/asapfuzz/lineage/pkg/resample"
	"github.com/asapfuzz/lineage/pkg/stat"
	"github.com/asapfuzz/lineage/pkg/symbolizer"
	"github.com/asapfuzz/lineage/pkg/timeline"
)

// ErrCountMismatch means that NEW lines and ANCESTRY lines of a log went out of sync.
var ErrCountMismatch = errors.New("number of discoveries does not match number of ancestry edges")

var (
	statEntries = stat.New("log entries", "Recognized log lines",
		stat.Prometheus("lineage_log_entries"))
	statTestcases = stat.New("testcases", "Testcases in the ancestry tree",
		stat.Console, stat.Prometheus("lineage_testcases"))
	statLocations = stat.New("new locations", "Code locations reported as newly covered",
		stat.Console)
	statCrashes = stat.New("crashes", "Crash, leak and timeout artifacts",
		stat.Console, stat.Prometheus("lineage_crashes"))
)

// Source is one log. Logs of parallel jobs may be given as separate sources.
type Source struct {
	Name string
	R    io.Reader
}

// Crash is an artifact written by the engine, placed on the campaign timeline.
type Crash struct {
	fuzzlog.Crash
	Time float64
	Job  int
}

type Result struct {
	RunID   string
	Tree    *ancestry.Tree
	Events  []timeline.Event
	Rows    []resample.Row
	Crashes []Crash
	// Final engine stats (stat::name lines) summed over all jobs.
	Stats       map[string]int64
	Discoveries int
	Jobs        int
}

// Engine holds the collaborators of a reconstruction. Oracle and Symbolizer are optional:
// without an oracle no coverage table is produced, without a symbolizer raw NEW_PC
// addresses are kept as is.
type Engine struct {
	Config     *Config
	Oracle     oracle.Oracle
	Symbolizer symbolizer.Symbolizer
	RunID      string

	closers []func() error
}

// NewEngine creates collaborators according to cfg.
func NewEngine(cfg *Config) (*Engine, error) {
	if err := cfg.Complete(); err != nil {
		return nil, err
	}
	e := &Engine{
		Config: cfg,
		RunID:  uuid.New().String(),
	}
	if cfg.HasOracle() {
		switch cfg.Engine {
		case EngineLibFuzzer:
			lf := oracle.NewLibFuzzer(cfg.Fuzzer, oracle.CorpusDir(cfg.Corpus), cfg.OracleTimeout())
			lf.Scratch = fmt.Sprintf("lineage-%v-", e.RunID)
			e.Oracle = oracle.Instrument(lf)
			e.closers = append(e.closers, lf.Close)
		case EngineAFL:
			e.Oracle = oracle.Instrument(oracle.NewAFLMaps(cfg.Findings))
		}
	}
	if cfg.Binary != "" {
		e.Symbolizer = symbolizer.NewCache(symbolizer.NewLLVM(cfg.Symbolizer))
		e.closers = append(e.closers, func() error {
			e.Symbolizer.Close()
			return nil
		})
	}
	return e, nil
}

func (e *Engine) Close() error {
	var errs []error
	for _, fn := range e.closers {
		errs = append(errs, fn())
	}
	e.closers = nil
	return errors.Join(errs...)
}

type classified struct {
	src     Source
	entries []fuzzlog.Entry
	first   int64
}

// Reconstruct processes complete logs. Sources are classified concurrently, then
// processed in a single ordered pass: sources are ordered by their first timestamp
// and every source starts a new job. Malformed logs abort the reconstruction.
// If only some coverage samples failed, the result is returned together with the error.
func (e *Engine) Reconstruct(ctx context.Context, sources ...Source) (*Result, error) {
	logs := make([]*classified, len(sources))
	g, _ := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			entries, err := fuzzlog.ReadAll(src.R)
			if err != nil {
				return fmt.Errorf("%v: %w", src.Name, err)
			}
			logs[i] = &classified{src: src, entries: entries, first: firstTimestamp(entries)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].first < logs[j].first
	})
	p := newPass(e.RunID)
	for i, l := range logs {
		log.Logf(1, "processing %v: %v entries", l.src.Name, len(l.entries))
		if i != 0 {
			p.timeline.NewJob()
		}
		p.file = l.src.Name
		for _, ent := range l.entries {
			if err := p.add(ent); err != nil {
				return nil, err
			}
		}
	}
	res, err := e.finish(p)
	if err != nil {
		return nil, err
	}
	res.Events = p.timeline.Events()
	if e.Oracle == nil {
		return res, nil
	}
	log.Logf(0, "resampling %v events of %v jobs", len(res.Events), res.Jobs)
	res.Rows, err = resample.Resample(ctx, res.Events, e.Config.Samples, e.Oracle)
	return res, err
}

// Follow processes a log that is still being written and calls emit with coverage rows
// as soon as every job has progressed past their time. It returns at the end of input.
func (e *Engine) Follow(ctx context.Context, src Source, emit func([]resample.Row) error) (*Result, error) {
	if e.Oracle == nil {
		return nil, fmt.Errorf("following a log requires a coverage oracle")
	}
	stream, err := resample.NewStream(e.Oracle, float64(e.Config.IntervalSec))
	if err != nil {
		return nil, err
	}
	p := newPass(e.RunID)
	p.file = src.Name
	var rows []resample.Row
	var errs []error
	publish := func(batch []resample.Row, err error) error {
		if err != nil {
			log.Logf(0, "%v", err)
			errs = append(errs, err)
		}
		if len(batch) == 0 {
			return nil
		}
		rows = append(rows, batch...)
		return emit(batch)
	}
	s := fuzzlog.NewScanner(src.R)
	for s.Scan() {
		if err := p.add(s.Entry()); err != nil {
			return nil, err
		}
		events := p.timeline.Drain()
		if len(events) == 0 {
			continue
		}
		stream.Add(events...)
		if wm, ok := p.timeline.Watermark(); ok {
			if err := publish(stream.Advance(ctx, wm)); err != nil {
				return nil, err
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", src.Name, err)
	}
	p.timeline.Close()
	stream.Add(p.timeline.Drain()...)
	if err := publish(stream.Flush(ctx)); err != nil {
		return nil, err
	}
	res, err := e.finish(p)
	if err != nil {
		return nil, err
	}
	res.Events = p.timeline.Events()
	res.Rows = rows
	return res, errors.Join(errs...)
}

func firstTimestamp(entries []fuzzlog.Entry) int64 {
	for _, ent := range entries {
		if ts, ok := ent.Event.(*fuzzlog.Timestamp); ok {
			return ts.Time
		}
	}
	return math.MaxInt64
}
