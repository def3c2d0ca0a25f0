// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package resample

import (
	"bufio"
	"fmt"
	"io"
)

// WriteHeader writes the column names of the coverage-vs-time table.
func WriteHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%-8v\t%-8v\t%-12v\n", "time", "coverage", "execs")
	return err
}

// WriteRows writes tab-separated rows. Rows without coverage print nan.
func WriteRows(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	for _, row := range rows {
		if row.Err != nil {
			fmt.Fprintf(bw, "%8.0f\t%8v\t%12d\n", row.Time, "nan", row.Execs)
			continue
		}
		fmt.Fprintf(bw, "%8.0f\t%8d\t%12d\n", row.Time, row.Coverage, row.Execs)
	}
	return bw.Flush()
}

// WriteTable writes the header and all rows.
func WriteTable(w io.Writer, rows []Row) error {
	if err := WriteHeader(w); err != nil {
		return err
	}
	return WriteRows(w, rows)
}
