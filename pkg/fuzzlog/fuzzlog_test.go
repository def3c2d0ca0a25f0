// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzlog

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	zeros = "0000000000000000000000000000000000000000"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		ev   Event
	}{
		{
			line: "#1\tNEW    cov: 3 bits: 4 units: 1 exec/s: 0 secs: 0 L: 1 MS: 1 Foo-",
			ev: &Discovery{
				Index: 1, Coverage: 3, Bits: 4, Units: 1, InputLen: 1, MutationCount: 1,
				Action: "Foo-", Fields: FieldBits | FieldSeconds,
			},
		},
		{
			line: "#2054\tNEW    cov: 12 bits: 18 indir: 2 units: 7 exec/s: 1027 secs: 2 L: 64 MS: 3 ChangeBit-CrossOver-",
			ev: &Discovery{
				Index: 2054, Coverage: 12, Bits: 18, Indir: 2, Units: 7, ExecsPerSec: 1027, Seconds: 2,
				InputLen: 64, MutationCount: 3, Action: "ChangeBit-CrossOver-",
				Fields: FieldBits | FieldIndir | FieldSeconds,
			},
		},
		{
			line: "#1336\tNEW    cov: 40 ft: 61 corp: 9/1Kb lim: 4 exec/s: 0 rss: 31Mb L: 3/4 MS: 2 InsertByte-CopyPart-",
			ev: &Discovery{
				Index: 1336, Coverage: 40, Features: 61, Units: 9, CorpusBytes: 1 << 10, Limit: 4,
				RSS: 31, InputLen: 3, MaxLen: 4, MutationCount: 2, Action: "InsertByte-CopyPart-",
				Fields: FieldFeatures | FieldCorpusBytes | FieldLimit | FieldRSS | FieldMaxLen,
			},
		},
		{
			line: "#77\tNEW    cov: 20 ft: 22 corp: 5/35b exec/s: 0 rss: 25Mb secs: 1 L: 10 MS: 1 EraseBytes- ",
			ev: &Discovery{
				Index: 77, Coverage: 20, Features: 22, Units: 5, CorpusBytes: 35, RSS: 25, Seconds: 1,
				InputLen: 10, MutationCount: 1, Action: "EraseBytes-",
				Fields: FieldFeatures | FieldCorpusBytes | FieldRSS | FieldSeconds,
			},
		},
		{
			line: "#65536\tpulse  cov: 12 bits: 18 units: 7 exec/s: 21845 secs: 3",
			ev:   &Progress{Execs: 65536, Seconds: 3, Status: "pulse"},
		},
		{
			line: "#1000000\tDONE   cov: 47 ft: 80 corp: 11/86b exec/s: 333333 rss: 38Mb secs: 3 L: 8/8",
			ev:   &Progress{Execs: 1000000, Seconds: 3, Status: "DONE"},
		},
		{
			line: "#3\tINITED cov: 2 units: 1 exec/s: 0 secs: 12",
			ev:   &Progress{Execs: 3, Seconds: 12, Status: "INITED"},
		},
		{
			line: "#3\tINITED cov: 2 units: 1 exec/s: 0",
			ev:   nil,
		},
		{
			line: "[*] fuzzing: cycle 3 execs: 5020 secs: 61",
			ev:   &Progress{Execs: 5020, Seconds: 61, Status: "afl"},
		},
		{
			line: "ANCESTRY: " + zeros + " -> " + hashA,
			ev:   &Ancestry{Parent: zeros, Child: hashA, Sentinel: true},
		},
		{
			line: "ANCESTRY: " + strings.ToUpper(hashA) + " -> " + hashB + "\r",
			ev:   &Ancestry{Parent: hashA, Child: hashB},
		},
		{
			line: "ANCESTRY: 000003 -> 00000c execs: 12000 secs: 14",
			ev:   &Ancestry{Parent: "000003", Child: "00000c", HasProgress: true, Execs: 12000, Seconds: 14},
		},
		{
			line: "ANCESTRY: abc -> def",
			ev:   nil,
		},
		{
			line: "NEW_PC: 0x4f1a2b tc: " + hashA,
			ev:   &NewLocation{Owner: hashA, Location: Location{PC: 0x4f1a2b}},
		},
		{
			line: "NEW_PC: 0x4f1a2b tc: ",
			ev:   &NewLocation{Location: Location{PC: 0x4f1a2b}},
		},
		{
			line: "NEW_PC: 0x51d3 in png_read_row /src/libpng/pngread.c:452:7",
			ev: &NewLocation{Location: Location{
				PC: 0x51d3, Func: "png_read_row", File: "/src/libpng/pngread.c", Line: 452, Column: 7,
			}},
		},
		{
			line: "fuss: started timestamp: 1467032105",
			ev:   &Timestamp{Time: 1467032105},
		},
		{
			line: "fuss: started timestamp: 1467032105 job: 3",
			ev:   &Timestamp{Time: 1467032105, Job: 3, HasJob: true},
		},
		{
			line: "[+] timestamp: 1467032105 (fuzzer started)",
			ev:   &Timestamp{Time: 1467032105},
		},
		{
			line: "fuss: started timestamp: 1467032105 job: 3 pid: 811",
			ev:   &Timestamp{Time: 1467032105, Job: 3, HasJob: true},
		},
		{
			line: "================== Job 2 exited with exit code 1 ============",
			ev:   &JobBoundary{Job: 2, ExitCode: 1},
		},
		{
			line: "artifact_prefix='./'; Test unit written to ./crash-0eb8e4ed029b774d80f2b66408203801cb982a60",
			ev: &Crash{
				Path: "./crash-0eb8e4ed029b774d80f2b66408203801cb982a60",
				Type: "crash",
				Hash: "0eb8e4ed029b774d80f2b66408203801cb982a60",
			},
		},
		{
			line: "Test unit written to /out/leak-ab12",
			ev:   &Crash{Path: "/out/leak-ab12", Type: "leak", Hash: "ab12"},
		},
		{
			line: "Test unit written to ./somefile",
			ev:   nil,
		},
		{
			line: "stat::number_of_executed_units: 1000000",
			ev:   &FinalStat{Name: "number_of_executed_units", Value: 1000000},
		},
		{
			line: "INFO: Seed: 1608565063",
			ev:   nil,
		},
		{
			line: "",
			ev:   nil,
		},
	}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			got := NewClassifier().Classify(test.line)
			if diff := cmp.Diff(test.ev, got); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestClassifierOwner(t *testing.T) {
	c := NewClassifier()
	pc := "NEW_PC: 0x10 in main /src/a.c:1:1"
	assert.Equal(t, "", c.Classify(pc).(*NewLocation).Owner)
	c.Classify("ANCESTRY: " + zeros + " -> " + hashA)
	assert.Equal(t, hashA, c.Classify(pc).(*NewLocation).Owner)
	c.Classify("ANCESTRY: " + hashA + " -> " + hashB)
	assert.Equal(t, hashB, c.Last())
	assert.Equal(t, hashB, c.Classify(pc).(*NewLocation).Owner)
	// Raw form names its owner explicitly.
	assert.Equal(t, hashA, c.Classify("NEW_PC: 0x10 tc: "+hashA).(*NewLocation).Owner)
}

func TestScanner(t *testing.T) {
	log := strings.Join([]string{
		"INFO: Seed: 1",
		"fuss: started timestamp: 100",
		"#1\tNEW    cov: 3 bits: 4 units: 1 exec/s: 0 secs: 0 L: 1 MS: 1 Foo-",
		"ANCESTRY: " + zeros + " -> " + hashA,
		"",
		"NEW_PC: 0x1 tc: " + hashA,
	}, "\n")
	entries, err := ReadAll(strings.NewReader(log))
	require.NoError(t, err)
	var lines []int
	var kinds []Kind
	for _, ent := range entries {
		lines = append(lines, ent.Line)
		kinds = append(kinds, ent.Event.Kind())
	}
	assert.Equal(t, []int{2, 3, 4, 6}, lines)
	assert.Equal(t, []Kind{KindTimestamp, KindDiscovery, KindAncestry, KindNewLocation}, kinds)
	assert.Equal(t, "fuss: started timestamp: 100", entries[0].Text)
}

func TestScannerLongLine(t *testing.T) {
	log := strings.Repeat("x", 1<<20) + "\n#5\tpulse  cov: 1 units: 1 exec/s: 0 secs: 9\n"
	entries, err := ReadAll(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Line)
}

func TestMalformedError(t *testing.T) {
	errBad := errors.New("bad thing")
	err := Malformed("fuzz-0.log", Entry{Line: 7, Text: "ANCESTRY: x"}, errBad)
	assert.True(t, errors.Is(err, errBad))
	assert.Equal(t, "malformed log: fuzz-0.log:7: bad thing\n\tANCESTRY: x", err.Error())
	var merr *MalformedError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, 7, merr.Line)
	assert.Equal(t, "malformed log: bad thing", (&MalformedError{Err: errBad}).Error())
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "0x4f1a", Location{PC: 0x4f1a}.String())
	assert.Equal(t, "a.c:3", Location{File: "a.c", Line: 3}.String())
	assert.Equal(t, "a.c:3:9", Location{File: "a.c", Line: 3, Column: 9}.String())
	assert.Equal(t, "ancestry", KindAncestry.String())
}
