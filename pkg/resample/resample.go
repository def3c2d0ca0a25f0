// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package resample turns the merged timeline of a campaign into a coverage-vs-time table
// with evenly spaced rows. Executions are linearly interpolated per job and summed,
// coverage is recomputed by an oracle whenever the set of kept units grows.
package resample

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/oracle"
	"github.com/asapfuzz/lineage/pkg/timeline"
)

// Row is one sample. If Err is set the coverage could not be computed.
type Row struct {
	Time     float64
	Coverage int
	Execs    uint64
	Err      error
}

// SampleError is an oracle failure for one row.
type SampleError struct {
	Index int
	Time  float64
	Err   error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %v (time %.0f): %v", e.Index, e.Time, e.Err)
}

func (e *SampleError) Unwrap() error {
	return e.Err
}

// Resample computes n rows at evenly spaced times from 0 to the time of the last event.
// Oracle failures do not stop resampling: the row gets Err set, the next row retries,
// and all failures are returned joined together with the rows.
func Resample(ctx context.Context, events []timeline.Event, n int, o oracle.Oracle) ([]Row, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bad number of samples %v", n)
	}
	events = timeline.Merge(events)
	s := newSampler(o)
	for _, ev := range events {
		s.add(ev)
	}
	end := 0.0
	if len(events) != 0 {
		end = events[len(events)-1].Time
	}
	var rows []Row
	var errs []error
	var units []string
	pos := 0
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = end * float64(i) / float64(n-1)
		}
		if i == n-1 {
			t = end
		}
		for ; pos < len(events) && events[pos].Time <= t; pos++ {
			if events[pos].Unit != "" {
				units = append(units, events[pos].Unit)
			}
		}
		row := s.row(ctx, i, t, units)
		if row.Err != nil {
			errs = append(errs, row.Err)
			if ctx.Err() != nil {
				return rows, errors.Join(errs...)
			}
		}
		rows = append(rows, row)
	}
	return rows, errors.Join(errs...)
}

type sampler struct {
	o     oracle.Oracle
	jobs  map[int][]timeline.Event
	ids   []int
	lastN int
	cov   int
}

func newSampler(o oracle.Oracle) *sampler {
	return &sampler{
		o:    o,
		jobs: make(map[int][]timeline.Event),
	}
}

// add appends an event; events of one job must come in time order.
func (s *sampler) add(ev timeline.Event) {
	if _, ok := s.jobs[ev.Job]; !ok {
		s.ids = append(s.ids, ev.Job)
		sort.Ints(s.ids)
	}
	s.jobs[ev.Job] = append(s.jobs[ev.Job], ev)
}

func (s *sampler) row(ctx context.Context, idx int, t float64, units []string) Row {
	row := Row{
		Time:  t,
		Execs: s.execs(t),
	}
	if len(units) > s.lastN {
		cov, err := s.o.Coverage(ctx, append([]string(nil), units...))
		if err != nil {
			row.Err = &SampleError{Index: idx, Time: t, Err: err}
		} else {
			if cov < s.cov {
				log.Logf(1, "oracle returned coverage %v for %v units, less than %v for %v units",
					cov, len(units), s.cov, s.lastN)
				cov = s.cov
			}
			s.cov = cov
			s.lastN = len(units)
		}
	}
	row.Coverage = s.cov
	return row
}

// execs sums the interpolated executions of all jobs that have reported by time t.
func (s *sampler) execs(t float64) uint64 {
	total := 0.0
	for _, id := range s.ids {
		total += interpolate(s.jobs[id], t)
	}
	return uint64(math.Round(total))
}

// interpolate returns executions of one job at time t: linear between the last event
// at or before t and the first event after t, or the last known value if there is none.
func interpolate(events []timeline.Event, t float64) float64 {
	idx := sort.Search(len(events), func(i int) bool {
		return events[i].Time > t
	}) - 1
	if idx < 0 {
		return 0
	}
	last := events[idx]
	if idx+1 == len(events) {
		return float64(last.Execs)
	}
	next := events[idx+1]
	frac := (t - last.Time) / (next.Time - last.Time)
	return float64(last.Execs) + (float64(next.Execs)-float64(last.Execs))*frac
}
