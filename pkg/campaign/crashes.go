// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCrashes writes crashes as CSV with a header line, in the order of their time.
func WriteCrashes(w io.Writer, runID string, crashes []Crash) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"run", "type", "hash", "time", "job", "path"})
	for _, crash := range crashes {
		cw.Write([]string{
			runID,
			crash.Type,
			crash.Hash,
			fmt.Sprintf("%.0f", crash.Time),
			fmt.Sprint(crash.Job),
			crash.Path,
		})
	}
	cw.Flush()
	return cw.Error()
}

// TimeToFirstCrash returns the time of the earliest crash of the given type ("" for any).
func TimeToFirstCrash(crashes []Crash, typ string) (float64, bool) {
	for _, crash := range crashes {
		if typ == "" || crash.Type == typ {
			return crash.Time, true
		}
	}
	return 0, false
}
