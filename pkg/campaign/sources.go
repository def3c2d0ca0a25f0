// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"errors"
	"io"
	"os"

	"github.com/asapfuzz/lineage/pkg/logfile"
)

// OpenSources opens log files, compressed or not. Without paths stdin is the only source.
// The returned function closes all opened files.
func OpenSources(paths ...string) ([]Source, func() error, error) {
	if len(paths) == 0 {
		r, err := logfile.Decompress(os.Stdin)
		if err != nil {
			return nil, nil, err
		}
		return []Source{{Name: "<stdin>", R: r}}, func() error { return nil }, nil
	}
	var sources []Source
	var files []io.Closer
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	for _, path := range paths {
		f, err := logfile.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		sources = append(sources, Source{Name: path, R: f})
	}
	return sources, closeAll, nil
}
