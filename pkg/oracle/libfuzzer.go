// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/osutil"
)

// LibFuzzer runs a reference fuzzer binary with -runs=0 over a scratch corpus
// that holds exactly the requested units, and reads coverage from its final stats.
type LibFuzzer struct {
	Binary   string
	Resolver Resolver
	Timeout  time.Duration

	// Prefix of the scratch corpus dir name.
	Scratch string

	dir     string
	present map[string]bool
}

func NewLibFuzzer(binary string, res Resolver, timeout time.Duration) *LibFuzzer {
	return &LibFuzzer{
		Binary:   binary,
		Resolver: res,
		Timeout:  timeout,
		Scratch:  "lineage-oracle-",
	}
}

func (lf *LibFuzzer) Coverage(ctx context.Context, units []string) (int, error) {
	if err := lf.sync(units); err != nil {
		return 0, &Error{Units: len(units), Err: err}
	}
	log.Logf(1, "running %v on %v units", lf.Binary, len(lf.present))
	cmd := osutil.Command(lf.Binary, "-runs=0", lf.dir)
	output, err := osutil.RunContext(ctx, lf.Timeout, cmd)
	if err != nil {
		return 0, &Error{Units: len(units), Err: err}
	}
	cov, err := ParseCoverage(output)
	if err != nil {
		return 0, &Error{Units: len(units), Err: err}
	}
	return cov, nil
}

// sync makes the scratch corpus hold exactly the existing files of units.
// Sets requested by the resampler only grow, so usually only the new units are copied.
func (lf *LibFuzzer) sync(units []string) error {
	if lf.dir == "" {
		dir, err := osutil.TempDir(lf.Scratch)
		if err != nil {
			return err
		}
		lf.dir = dir
		lf.present = make(map[string]bool)
	}
	want := make(map[string]bool)
	for _, unit := range units {
		path, err := lf.Resolver.Resolve(unit)
		if err != nil {
			if skipMissing(err) {
				continue
			}
			return err
		}
		name := filepath.Base(path)
		want[name] = true
		if lf.present[name] {
			continue
		}
		if err := linkOrCopy(path, filepath.Join(lf.dir, name)); err != nil {
			if os.IsNotExist(err) && skipMissing(&MissingArtifact{Unit: unit, Path: path}) {
				delete(want, name)
				continue
			}
			return err
		}
		lf.present[name] = true
	}
	for name := range lf.present {
		if want[name] {
			continue
		}
		if err := os.Remove(filepath.Join(lf.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
		delete(lf.present, name)
	}
	return nil
}

// Close removes the scratch corpus.
func (lf *LibFuzzer) Close() error {
	if lf.dir == "" {
		return nil
	}
	err := os.RemoveAll(lf.dir)
	lf.dir = ""
	lf.present = nil
	return err
}

func skipMissing(err error) bool {
	var missing *MissingArtifact
	if !errors.As(err, &missing) {
		return false
	}
	log.Logf(1, "skipping: %v", missing)
	statMissing.Add(1)
	return true
}

func linkOrCopy(oldFile, newFile string) error {
	if err := os.Link(oldFile, newFile); err == nil {
		return nil
	}
	if _, err := os.Stat(oldFile); err != nil {
		return err
	}
	return osutil.CopyFile(oldFile, newFile)
}

var (
	doneCovRe   = regexp.MustCompile(`(?m)^#\d+\s+DONE\s.*\bcov: (\d+)`)
	initedCovRe = regexp.MustCompile(`(?m)^#\d+\s+INITED\s.*\bcov: (\d+)`)
)

// ParseCoverage extracts coverage from the final stats line of a -runs=0 run.
// The last DONE line wins, INITED is used if the fuzzer did not print DONE.
func ParseCoverage(output []byte) (int, error) {
	for _, re := range []*regexp.Regexp{doneCovRe, initedCovRe} {
		matches := re.FindAllSubmatch(output, -1)
		if len(matches) == 0 {
			continue
		}
		cov, err := strconv.Atoi(string(matches[len(matches)-1][1]))
		if err != nil {
			return 0, fmt.Errorf("bad coverage value: %w", err)
		}
		return cov, nil
	}
	const maxOutput = 512
	if len(output) > maxOutput {
		output = output[len(output)-maxOutput:]
	}
	return 0, fmt.Errorf("no coverage in fuzzer output:\n%s", output)
}
