// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package logfile opens engine logs: plain, gzip or xz compressed, or still being written.
package logfile

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ulikunitz/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var firstErr error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open opens a log file and transparently decompresses it based on its contents.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := Decompress(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	rc := &readCloser{Reader: r, closers: []io.Closer{f}}
	if c, ok := r.(io.Closer); ok {
		rc.closers = append([]io.Closer{c}, rc.closers...)
	}
	return rc, nil
}

// Decompress wraps r into a decompressor if the data starts with a gzip or xz header.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(magic, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("bad xz stream: %w", err)
		}
		return xr, nil
	case bytes.HasPrefix(magic, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("bad gzip stream: %w", err)
		}
		return gr, nil
	}
	return br, nil
}

// Follower reads a log that is still being appended to. At the end of the data it waits
// for the file to grow, and reports io.EOF only once the context is done or the file is
// removed or renamed.
type Follower struct {
	ctx     context.Context
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	poll    time.Duration // not every filesystem delivers events
	gone    bool
}

// Follow starts following path from its beginning.
func Follow(ctx context.Context, path string) (*Follower, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		f.Close()
		return nil, fmt.Errorf("failed to watch %v: %w", path, err)
	}
	return &Follower{
		ctx:     ctx,
		path:    path,
		file:    f,
		watcher: w,
		poll:    time.Second,
	}, nil
}

func (fl *Follower) Read(p []byte) (int, error) {
	for {
		n, err := fl.file.Read(p)
		if n != 0 || err != nil && err != io.EOF {
			return n, err
		}
		if fl.gone {
			return 0, io.EOF
		}
		select {
		case <-fl.ctx.Done():
			return 0, io.EOF
		case ev, ok := <-fl.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				fl.gone = true
			}
		case err, ok := <-fl.watcher.Errors:
			if ok {
				return 0, err
			}
		case <-time.After(fl.poll):
		}
		// Unlinking an open file is reported only as an attribute change.
		if _, err := os.Stat(fl.path); os.IsNotExist(err) {
			fl.gone = true
		}
	}
}

func (fl *Follower) Close() error {
	fl.watcher.Close()
	return fl.file.Close()
}
