// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzlog

import (
	"fmt"
)

// Kind identifies the variant of an Event.
type Kind int

const (
	KindDiscovery Kind = iota
	KindProgress
	KindAncestry
	KindNewLocation
	KindTimestamp
	KindJobBoundary
	KindCrash
	KindFinalStat
)

var kindNames = [...]string{
	KindDiscovery:   "discovery",
	KindProgress:    "progress",
	KindAncestry:    "ancestry",
	KindNewLocation: "new location",
	KindTimestamp:   "timestamp",
	KindJobBoundary: "job boundary",
	KindCrash:       "crash",
	KindFinalStat:   "final stat",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Event is one classified log line. The concrete type is one of
// *Discovery, *Progress, *Ancestry, *NewLocation, *Timestamp, *JobBoundary, *Crash, *FinalStat.
type Event interface {
	Kind() Kind
}

// Field is a set of optional Discovery fields that were present on the line.
type Field uint

const (
	FieldFeatures Field = 1 << iota
	FieldBits
	FieldIndir
	FieldCorpusBytes
	FieldLimit
	FieldRSS
	FieldSeconds
	FieldMaxLen
)

func (f Field) Has(x Field) bool {
	return f&x == x
}

// Discovery is a "#N NEW cov: ..." line: the engine kept a new testcase.
type Discovery struct {
	Index         uint64 // executed units so far, the "#N" prefix
	Coverage      int
	Features      int
	Bits          int
	Indir         int
	Units         int // "units:" or "corp:" count
	CorpusBytes   int
	Limit         int
	ExecsPerSec   int
	RSS           int // MB
	Seconds       int
	InputLen      int
	MaxLen        int
	MutationCount int
	Action        string
	Fields        Field
}

// Progress is any other line that reports executed units and elapsed seconds.
type Progress struct {
	Execs   uint64
	Seconds int
	Status  string // pulse, REDUCE, INITED, DONE, ... or "afl"
}

// Ancestry is a parent->child mutation edge.
// Sentinel is set when the parent is the all-zero hash (the input has no parent).
// The AFL flavor of the line additionally carries progress counters.
type Ancestry struct {
	Parent      string
	Child       string
	Sentinel    bool
	HasProgress bool
	Execs       uint64
	Seconds     int
}

// Location is a covered code location. File is empty while the location
// is only known as a raw program counter.
type Location struct {
	PC     uint64
	Func   string
	File   string
	Line   int
	Column int // 0 if unknown
}

func (loc Location) Symbolized() bool {
	return loc.File != ""
}

func (loc Location) String() string {
	if !loc.Symbolized() {
		return fmt.Sprintf("0x%x", loc.PC)
	}
	if loc.Column != 0 {
		return fmt.Sprintf("%v:%v:%v", loc.File, loc.Line, loc.Column)
	}
	return fmt.Sprintf("%v:%v", loc.File, loc.Line)
}

// NewLocation is a NEW_PC line. Owner is the testcase that covered the location first,
// empty if the location was covered before any testcase was announced.
type NewLocation struct {
	Owner    string
	Location Location
}

// Timestamp is an absolute wall clock anchor (unix seconds) printed by the engine.
type Timestamp struct {
	Time   int64
	Job    int
	HasJob bool
}

// JobBoundary is printed when a worker process exits and the slot is reused.
type JobBoundary struct {
	Job      int
	ExitCode int
}

// Crash is an artifact (crash, leak, timeout, oom) written by the engine.
type Crash struct {
	Path string
	Type string
	Hash string
}

// FinalStat is a "stat::name: value" line printed at engine exit.
type FinalStat struct {
	Name  string
	Value int64
}

func (*Discovery) Kind() Kind   { return KindDiscovery }
func (*Progress) Kind() Kind    { return KindProgress }
func (*Ancestry) Kind() Kind    { return KindAncestry }
func (*NewLocation) Kind() Kind { return KindNewLocation }
func (*Timestamp) Kind() Kind   { return KindTimestamp }
func (*JobBoundary) Kind() Kind { return KindJobBoundary }
func (*Crash) Kind() Kind       { return KindCrash }
func (*FinalStat) Kind() Kind   { return KindFinalStat }
