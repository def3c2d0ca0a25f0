// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package oracle computes the exact coverage of a set of corpus units by delegating
// to an external tool. Coverage is never estimated locally.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/asapfuzz/lineage/pkg/stat"
)

// Oracle returns the coverage achieved by the given units (testcase ids).
// Units that no longer exist on disk are skipped.
type Oracle interface {
	Coverage(ctx context.Context, units []string) (int, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, units []string) (int, error)

func (f Func) Coverage(ctx context.Context, units []string) (int, error) {
	return f(ctx, units)
}

// Error is a failure of the external tool, or output that could not be parsed.
type Error struct {
	Units int
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("coverage oracle failed on %v units: %v", e.Units, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MissingArtifact says that a unit file was removed by the engine (crash, quarantine).
type MissingArtifact struct {
	Unit string
	Path string
}

func (e *MissingArtifact) Error() string {
	return fmt.Sprintf("unit %v is missing at %v", e.Unit, e.Path)
}

var (
	statCalls = stat.New("oracle calls", "Coverage oracle invocations",
		stat.Console, stat.Prometheus("lineage_oracle_calls"))
	statFailures = stat.New("oracle failures", "Failed coverage oracle invocations",
		stat.Console, stat.Prometheus("lineage_oracle_failures"))
	statLatency = stat.New("oracle latency", "Coverage oracle call duration (ms)",
		stat.Distribution{})
	statSetSize = stat.New("oracle units", "Number of units per oracle call",
		stat.Distribution{})
	statMissing = stat.New("missing units", "Units that vanished from the corpus",
		stat.Console, stat.Prometheus("lineage_missing_units"))
)

type instrumented struct {
	o Oracle
}

// Instrument records calls, failures and latency of o in the stat registry.
func Instrument(o Oracle) Oracle {
	return &instrumented{o}
}

func (in *instrumented) Coverage(ctx context.Context, units []string) (int, error) {
	start := time.Now()
	cov, err := in.o.Coverage(ctx, units)
	statCalls.Add(1)
	statSetSize.Add(len(units))
	statLatency.Add(int(time.Since(start) / time.Millisecond))
	if err != nil {
		statFailures.Add(1)
	}
	return cov, err
}
