// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package timeline reconstructs a global clock for a campaign with several parallel jobs.
//
// Engines print absolute timestamps only when a job (re)starts and otherwise report
// seconds and executions relative to the last restart. For every job the builder keeps
// the last anchor and the executions accumulated before it, and emits events whose
// time is relative to the first anchor of the whole campaign. Executions are monotonic
// within a job, but not across the merged stream.
package timeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/asapfuzz/lineage/pkg/fuzzlog"
)

var (
	ErrBackwardAnchor = errors.New("timestamp moves backwards within a job")
	ErrBeforeStart    = errors.New("timestamp precedes the start of the campaign")
)

// Event is a point on a job's timeline. Unit is set if a new testcase was kept at this point.
type Event struct {
	Time  float64 // seconds since the campaign start
	Unit  string
	Execs uint64 // executions of this job so far
	Job   int
}

type job struct {
	id          int
	anchor      int64
	hasAnchor   bool
	accumulated uint64
	pending     uint64
	cursor      float64
	events      int
	exited      bool
}

func (j *job) execs() uint64 {
	return j.accumulated + j.pending
}

// Builder consumes classified entries in log order.
type Builder struct {
	start   int64
	started bool
	jobs    []*job
	cur     *job
	aliases map[int]*job // job ids printed in the log to jobs
	events  []Event
	drained int
	clamped int
}

func NewBuilder() *Builder {
	b := &Builder{
		aliases: make(map[int]*job),
	}
	b.NewJob()
	return b
}

// NewJob makes subsequent entries belong to a fresh job and returns its id.
func (b *Builder) NewJob() int {
	if b.cur != nil && b.cur.events == 0 && !b.cur.hasAnchor && !b.cur.exited {
		// Nothing was attributed to the current job yet, reuse it.
		return b.cur.id
	}
	j := &job{id: len(b.jobs)}
	b.jobs = append(b.jobs, j)
	b.cur = j
	return j.id
}

// Add incorporates one entry. Entries that carry no timing information are ignored.
func (b *Builder) Add(ent fuzzlog.Entry) error {
	switch ev := ent.Event.(type) {
	case *fuzzlog.Timestamp:
		if err := b.anchor(ev); err != nil {
			return fuzzlog.Malformed("", ent, err)
		}
	case *fuzzlog.Progress:
		b.progress(ev.Execs, ev.Seconds, "")
	case *fuzzlog.Discovery:
		if ev.Fields.Has(fuzzlog.FieldSeconds) {
			b.progress(ev.Index, ev.Seconds, "")
		}
	case *fuzzlog.Ancestry:
		if ev.HasProgress {
			b.progress(ev.Execs, ev.Seconds, ev.Child)
		} else {
			b.unit(ev.Child)
		}
	case *fuzzlog.JobBoundary:
		j := b.aliases[ev.Job]
		if j == nil {
			j = b.cur
		}
		delete(b.aliases, ev.Job)
		j.exited = true
		if j == b.cur {
			b.NewJob()
		}
	}
	return nil
}

func (b *Builder) anchor(ev *fuzzlog.Timestamp) error {
	if ev.HasJob {
		j := b.aliases[ev.Job]
		if j == nil || j.exited {
			b.NewJob()
			j = b.cur
			b.aliases[ev.Job] = j
		}
		b.cur = j
	}
	j := b.cur
	if !b.started {
		b.start = ev.Time
		b.started = true
	}
	if j.hasAnchor && ev.Time < j.anchor {
		return fmt.Errorf("%w: %v < %v", ErrBackwardAnchor, ev.Time, j.anchor)
	}
	if ev.Time < b.start {
		return fmt.Errorf("%w: %v < %v", ErrBeforeStart, ev.Time, b.start)
	}
	j.accumulated += j.pending
	j.pending = 0
	j.anchor = ev.Time
	j.hasAnchor = true
	if t := float64(ev.Time - b.start); t > j.cursor {
		j.cursor = t
	}
	return nil
}

func (b *Builder) progress(execs uint64, secs int, unit string) {
	j := b.cur
	base := int64(0)
	if j.hasAnchor {
		base = j.anchor - b.start
	}
	t := float64(base + int64(secs))
	if t < j.cursor {
		b.clamped++
		t = j.cursor
	}
	j.cursor = t
	if execs > j.pending {
		j.pending = execs
	}
	b.emit(j, unit)
}

func (b *Builder) unit(unit string) {
	b.emit(b.cur, unit)
}

func (b *Builder) emit(j *job, unit string) {
	j.events++
	b.events = append(b.events, Event{
		Time:  j.cursor,
		Unit:  unit,
		Execs: j.execs(),
		Job:   j.id,
	})
}

// Events returns all events merged and stably sorted by time.
func (b *Builder) Events() []Event {
	return Merge(b.events)
}

// Drain returns the events added since the previous call, in log order.
func (b *Builder) Drain() []Event {
	res := b.events[b.drained:]
	b.drained = len(b.events)
	return res
}

// Watermark is the time up to which the timeline is final: every live job that has
// an anchor or has reported progress is at or past it. No event added later can
// precede the watermark unless it belongs to a job that is not known yet.
func (b *Builder) Watermark() (float64, bool) {
	wm, ok := 0.0, false
	for _, j := range b.jobs {
		if j.exited || (!j.hasAnchor && j.events == 0) {
			continue
		}
		if !ok || j.cursor < wm {
			wm, ok = j.cursor, true
		}
	}
	return wm, ok
}

// Close marks every job as exited.
func (b *Builder) Close() {
	for _, j := range b.jobs {
		j.exited = true
	}
}

// Jobs returns the number of jobs that reported at least one event.
func (b *Builder) Jobs() int {
	n := 0
	for _, j := range b.jobs {
		if j.events != 0 {
			n++
		}
	}
	return n
}

// Now returns the clock and the id of the job that the next entry belongs to.
func (b *Builder) Now() (float64, int) {
	return b.cur.cursor, b.cur.id
}

// Start returns the absolute time of the first timestamp, if any.
func (b *Builder) Start() (int64, bool) {
	return b.start, b.started
}

// Clamped returns the number of progress reports that would have moved a job's clock backwards.
func (b *Builder) Clamped() int {
	return b.clamped
}

// Merge sorts events by time, keeping the input order for equal times.
func Merge(events []Event) []Event {
	res := append([]Event(nil), events...)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Time < res[j].Time
	})
	return res
}
