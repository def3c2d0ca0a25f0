// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package oracle

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// AFLMaps computes coverage as the number of distinct blocks in the per-unit
// "block:count" maps that the instrumented AFL writes to <findings>/maps.
type AFLMaps struct {
	Findings string

	blocks map[string][]uint64
}

func NewAFLMaps(findings string) *AFLMaps {
	return &AFLMaps{
		Findings: findings,
		blocks:   make(map[string][]uint64),
	}
}

var mapLineRe = regexp.MustCompile(`^(\d+):(\d+)$`)

func (am *AFLMaps) Coverage(ctx context.Context, units []string) (int, error) {
	seen := make(map[uint64]bool)
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		blocks, err := am.unitBlocks(unit)
		if err != nil {
			if skipMissing(err) {
				continue
			}
			return 0, &Error{Units: len(units), Err: err}
		}
		for _, b := range blocks {
			seen[b] = true
		}
	}
	return len(seen), nil
}

func (am *AFLMaps) unitBlocks(unit string) ([]uint64, error) {
	if blocks, ok := am.blocks[unit]; ok {
		return blocks, nil
	}
	queued, err := AFLQueue(am.Findings).Resolve(unit)
	if err != nil {
		return nil, err
	}
	mapFile := filepath.Join(am.Findings, "maps", filepath.Base(queued))
	data, err := os.ReadFile(mapFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingArtifact{Unit: unit, Path: mapFile}
		}
		return nil, err
	}
	var blocks []uint64
	s := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; s.Scan(); line++ {
		text := s.Text()
		if text == "" {
			continue
		}
		m := mapLineRe.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("%v:%v: bad map line %q", mapFile, line, text)
		}
		b, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%v:%v: %w", mapFile, line, err)
		}
		blocks = append(blocks, b)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	am.blocks[unit] = blocks
	return blocks, nil
}
