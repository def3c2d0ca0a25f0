// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package resample

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/asapfuzz/lineage/pkg/oracle"
	"github.com/asapfuzz/lineage/pkg/timeline"
)

// Stream samples a growing timeline at a fixed interval. A row is produced only once
// the timeline is final up to its time, so rows never change after they are returned.
type Stream struct {
	s        *sampler
	interval float64
	units    []timeline.Event
	next     int
	end      float64
	done     bool
}

func NewStream(o oracle.Oracle, interval float64) (*Stream, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("bad sample interval %v", interval)
	}
	return &Stream{
		s:        newSampler(o),
		interval: interval,
	}, nil
}

// Add incorporates events in log order.
func (st *Stream) Add(events ...timeline.Event) {
	for _, ev := range events {
		st.s.add(ev)
		if ev.Unit != "" {
			st.units = append(st.units, ev)
		}
		if ev.Time > st.end {
			st.end = ev.Time
		}
	}
}

// Advance returns the rows for all sample times before the watermark.
// Events at the watermark itself may still arrive, so its row is left for later.
func (st *Stream) Advance(ctx context.Context, watermark float64) ([]Row, error) {
	var rows []Row
	var errs []error
	for !st.done {
		t := float64(st.next) * st.interval
		if t >= watermark {
			break
		}
		row := st.sample(ctx, t)
		if row.Err != nil {
			errs = append(errs, row.Err)
		}
		rows = append(rows, row)
	}
	return rows, errors.Join(errs...)
}

// Flush is called at the end of input. It returns the remaining rows before the last
// event and a final row at the time of the last event.
func (st *Stream) Flush(ctx context.Context) ([]Row, error) {
	if st.done {
		return nil, nil
	}
	rows, err := st.Advance(ctx, st.end)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if len(rows) == 0 || rows[len(rows)-1].Time < st.end {
		row := st.sample(ctx, st.end)
		if row.Err != nil {
			errs = append(errs, row.Err)
		}
		rows = append(rows, row)
	}
	st.done = true
	return rows, errors.Join(errs...)
}

func (st *Stream) sample(ctx context.Context, t float64) Row {
	var upto []timeline.Event
	for _, ev := range st.units {
		if ev.Time <= t {
			upto = append(upto, ev)
		}
	}
	sort.SliceStable(upto, func(i, j int) bool {
		return upto[i].Time < upto[j].Time
	})
	units := make([]string, len(upto))
	for i, ev := range upto {
		units[i] = ev.Unit
	}
	row := st.s.row(ctx, st.next, t, units)
	st.next++
	return row
}
