// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzlog classifies lines of libFuzzer and AFL engine logs into typed events.
// Lines that match no known format are not an error and classify to nil.
package fuzzlog

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/asapfuzz/lineage/pkg/hash"
)

var (
	// Accepts every generation of the NEW line: bits/indir/ft counters are optional,
	// units: was later renamed to corp: with an optional size suffix.
	discoveryRe = regexp.MustCompile(`^#(\d+)\s+NEW\s+cov: (\d+)` +
		`(?:\s+ft: (\d+))?(?:\s+bits: (\d+))?(?:\s+indir: (\d+))?` +
		`\s+(?:units|corp): (\d+)(?:/(\d+)([KMG]?)b)?` +
		`(?:\s+lim: (\d+))?\s+exec/s: (\d+)(?:\s+rss: (\d+)Mb)?(?:\s+secs: (\d+))?` +
		`\s+L: (\d+)(?:/(\d+))?\s+MS: (\d+)\s*(.*)$`)
	progressRe    = regexp.MustCompile(`^#(\d+)\s+(\S+)\s.*\ssecs: (\d+)(?:\s|$)`)
	aflProgressRe = regexp.MustCompile(`(?:^|\s)execs: (\d+) secs: (\d+)`)
	ancestryRe    = regexp.MustCompile(`^ANCESTRY: ([0-9a-fA-F]{40}) -> ([0-9a-fA-F]{40})$`)
	aflAncestryRe = regexp.MustCompile(`ANCESTRY: ([0-9a-fA-F]+) -> ([0-9a-fA-F]+) execs: (\d+) secs: (\d+)`)
	rawPCRe       = regexp.MustCompile(`NEW_PC: (0x[0-9a-fA-F]+) tc:\s*([0-9a-fA-F]{40})?\s*$`)
	symPCRe       = regexp.MustCompile(`NEW_PC: (0x[0-9a-fA-F]+) in (\S+) ([^:\s]+):(\d+)(?::(\d+))?`)
	timestampRe   = regexp.MustCompile(`(?:^|\s)timestamp: (\d+)(?:\s+job: (\d+))?`)
	jobExitRe     = regexp.MustCompile(`^=+ Job (\d+) exited with exit code (-?\d+) =+`)
	crashRe       = regexp.MustCompile(`Test unit written to (\S+)`)
	crashNameRe   = regexp.MustCompile(`^(crash|leak|timeout|oom|slow-unit)-([0-9a-fA-F]+)$`)
	statRe        = regexp.MustCompile(`^stat::([a-z_]+):\s+(-?\d+)\s*$`)
)

// Classifier turns log lines into events.
// The only state it keeps is the testcase most recently announced by an ancestry line,
// which owns subsequent pre-symbolized NEW_PC lines.
type Classifier struct {
	last string
}

func NewClassifier() *Classifier {
	return new(Classifier)
}

// Last returns the most recently announced testcase id.
func (c *Classifier) Last() string {
	return c.last
}

// Classify returns the event for the line, or nil if the line is not recognized.
func (c *Classifier) Classify(line string) Event {
	line = strings.TrimRight(line, " \t\r\n")
	switch {
	case strings.Contains(line, "timestamp: "):
		return parseTimestamp(line)
	case strings.HasPrefix(line, "#"):
		if ev := parseDiscovery(line); ev != nil {
			return ev
		}
		return parseProgress(line)
	case strings.Contains(line, "ANCESTRY: "):
		ev := parseAncestry(line)
		if ev != nil {
			c.last = ev.Child
			return ev
		}
	case strings.Contains(line, "NEW_PC: "):
		return c.parseNewPC(line)
	case strings.Contains(line, " exited with exit code "):
		return parseJobExit(line)
	case strings.Contains(line, "Test unit written to "):
		return parseCrash(line)
	case strings.HasPrefix(line, "stat::"):
		return parseStat(line)
	case strings.Contains(line, "execs: "):
		return parseAFLProgress(line)
	}
	return nil
}

func parseDiscovery(line string) Event {
	m := discoveryRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	ev := &Discovery{
		Index:         atou(m[1]),
		Coverage:      atoi(m[2]),
		Units:         atoi(m[6]),
		ExecsPerSec:   atoi(m[10]),
		InputLen:      atoi(m[13]),
		MutationCount: atoi(m[15]),
		Action:        m[16],
	}
	opt := func(s string, f Field, v *int) {
		if s != "" {
			*v = atoi(s)
			ev.Fields |= f
		}
	}
	opt(m[3], FieldFeatures, &ev.Features)
	opt(m[4], FieldBits, &ev.Bits)
	opt(m[5], FieldIndir, &ev.Indir)
	opt(m[7], FieldCorpusBytes, &ev.CorpusBytes)
	opt(m[9], FieldLimit, &ev.Limit)
	opt(m[11], FieldRSS, &ev.RSS)
	opt(m[12], FieldSeconds, &ev.Seconds)
	opt(m[14], FieldMaxLen, &ev.MaxLen)
	if ev.Fields.Has(FieldCorpusBytes) {
		switch m[8] {
		case "K":
			ev.CorpusBytes <<= 10
		case "M":
			ev.CorpusBytes <<= 20
		case "G":
			ev.CorpusBytes <<= 30
		}
	}
	return ev
}

func parseProgress(line string) Event {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	return &Progress{
		Execs:   atou(m[1]),
		Seconds: atoi(m[3]),
		Status:  m[2],
	}
}

func parseAFLProgress(line string) Event {
	m := aflProgressRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	return &Progress{
		Execs:   atou(m[1]),
		Seconds: atoi(m[2]),
		Status:  "afl",
	}
}

func parseAncestry(line string) *Ancestry {
	if m := aflAncestryRe.FindStringSubmatch(line); m != nil {
		return &Ancestry{
			Parent:      strings.ToLower(m[1]),
			Child:       strings.ToLower(m[2]),
			HasProgress: true,
			Execs:       atou(m[3]),
			Seconds:     atoi(m[4]),
		}
	}
	m := ancestryRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	ev := &Ancestry{
		Parent: strings.ToLower(m[1]),
		Child:  strings.ToLower(m[2]),
	}
	if sig, err := hash.FromString(ev.Parent); err == nil && sig.IsZero() {
		ev.Sentinel = true
	}
	return ev
}

func (c *Classifier) parseNewPC(line string) Event {
	if m := symPCRe.FindStringSubmatch(line); m != nil {
		return &NewLocation{
			Owner: c.last,
			Location: Location{
				PC:     parsePC(m[1]),
				Func:   m[2],
				File:   m[3],
				Line:   atoi(m[4]),
				Column: atoi(m[5]),
			},
		}
	}
	if m := rawPCRe.FindStringSubmatch(line); m != nil {
		return &NewLocation{
			Owner:    strings.ToLower(m[2]),
			Location: Location{PC: parsePC(m[1])},
		}
	}
	return nil
}

func parseTimestamp(line string) Event {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	ev := &Timestamp{Time: int64(atou(m[1]))}
	if m[2] != "" {
		ev.Job = atoi(m[2])
		ev.HasJob = true
	}
	return ev
}

func parseJobExit(line string) Event {
	m := jobExitRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	return &JobBoundary{
		Job:      atoi(m[1]),
		ExitCode: atoi(m[2]),
	}
}

func parseCrash(line string) Event {
	m := crashRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	n := crashNameRe.FindStringSubmatch(filepath.Base(m[1]))
	if n == nil {
		return nil
	}
	return &Crash{
		Path: m[1],
		Type: n[1],
		Hash: strings.ToLower(n[2]),
	}
}

func parseStat(line string) Event {
	m := statRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil
	}
	return &FinalStat{Name: m[1], Value: v}
}

func parsePC(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0
	}
	return v
}

func atou(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
