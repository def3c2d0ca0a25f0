// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"fmt"

	"github.com/asapfuzz/lineage/pkg/fuzzlog"
	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/symbolizer"
)

type symbolize struct {
	s   symbolizer.Symbolizer
	bin string
}

// resolve replaces raw program counters in attachments with source locations.
// Locations the symbolizer knows nothing about stay raw.
func (sym symbolize) resolve(attach []attachment) error {
	if sym.s == nil || sym.bin == "" {
		return nil
	}
	var pcs []uint64
	seen := make(map[uint64]bool)
	for _, a := range attach {
		for _, loc := range a.meta.Locations {
			if !loc.Symbolized() && !seen[loc.PC] {
				seen[loc.PC] = true
				pcs = append(pcs, loc.PC)
			}
		}
	}
	if len(pcs) == 0 {
		return nil
	}
	log.Logf(1, "symbolizing %v pcs in %v", len(pcs), sym.bin)
	frames, err := sym.s.Symbolize(sym.bin, pcs...)
	if err != nil {
		return fmt.Errorf("symbolization failed: %w", err)
	}
	inner := symbolizer.Innermost(frames)
	for _, a := range attach {
		locs := a.meta.Locations
		for i, loc := range locs {
			frame, ok := inner[loc.PC]
			if loc.Symbolized() || !ok || frame.File == "" {
				continue
			}
			locs[i] = fuzzlog.Location{
				PC:     loc.PC,
				Func:   frame.Func,
				File:   frame.File,
				Line:   frame.Line,
				Column: frame.Column,
			}
		}
	}
	return nil
}
