// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbolizer maps program counters found in engine logs to source locations.
package symbolizer

import (
	"github.com/ianlancetaylor/demangle"
)

// Frame is one function of a possibly inlined call chain at a PC.
// File is empty if the PC could not be symbolized.
type Frame struct {
	PC     uint64
	Func   string
	File   string
	Line   int
	Column int
	Inline bool
}

type Symbolizer interface {
	// Symbolize returns frames for all pcs, innermost frame first for each pc.
	Symbolize(bin string, pcs ...uint64) ([]Frame, error)
	Close()
}

// Demangle returns the readable form of a C++/Rust symbol, or the name itself.
func Demangle(name string) string {
	return demangle.Filter(name)
}

// Innermost returns the first frame for every pc in frames,
// this is the source line the pc actually belongs to.
func Innermost(frames []Frame) map[uint64]Frame {
	res := make(map[uint64]Frame)
	for _, frame := range frames {
		if _, ok := res[frame.PC]; !ok {
			res[frame.PC] = frame
		}
	}
	return res
}
