// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package oracle

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolver maps a unit id to its file. A unit without a file yields *MissingArtifact.
type Resolver interface {
	Resolve(unit string) (string, error)
}

// CorpusDir resolves libFuzzer units, which are named by their content hash.
type CorpusDir string

func (dir CorpusDir) Resolve(unit string) (string, error) {
	path := filepath.Join(string(dir), unit)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", &MissingArtifact{Unit: unit, Path: path}
		}
		return "", err
	}
	return path, nil
}

// AFLQueue resolves AFL queue ids (e.g. 000012) inside a findings dir.
type AFLQueue string

func (findings AFLQueue) Resolve(unit string) (string, error) {
	pattern := filepath.Join(string(findings), "queue", fmt.Sprintf("id:%v,*", unit))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", &MissingArtifact{Unit: unit, Path: pattern}
	}
	return matches[0], nil
}
