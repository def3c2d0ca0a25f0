// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package logfile

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/asapfuzz/lineage/pkg/osutil"
)

const logData = "fuss: timestamp: 100\n#1\tNEW    cov: 3 bits: 4 units: 1 exec/s: 0 secs: 0 L: 1 MS: 1 Foo-\n"

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	gz := new(bytes.Buffer)
	gw := gzip.NewWriter(gz)
	gw.Write([]byte(logData))
	require.NoError(t, gw.Close())

	xzb := new(bytes.Buffer)
	xw, err := xz.NewWriter(xzb)
	require.NoError(t, err)
	xw.Write([]byte(logData))
	require.NoError(t, xw.Close())

	files := map[string][]byte{
		"plain.log": []byte(logData),
		"log.gz":    gz.Bytes(),
		"log.xz":    xzb.Bytes(),
		"empty.log": nil,
		"tiny.log":  []byte("x"),
	}
	for name, data := range files {
		require.NoError(t, osutil.WriteFile(filepath.Join(dir, name), data))
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			rc, err := Open(filepath.Join(dir, name))
			require.NoError(t, err)
			defer rc.Close()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			want := data
			if name == "log.gz" || name == "log.xz" {
				want = []byte(logData)
			}
			assert.Equal(t, string(want), string(got))
		})
	}

	_, err = Open(filepath.Join(dir, "nope"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, osutil.WriteFile(filepath.Join(dir, "bad.gz"), []byte{0x1f, 0x8b, 0, 0}))
	_, err = Open(filepath.Join(dir, "bad.gz"))
	assert.Error(t, err)
}

func TestFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuzz-0.log")
	require.NoError(t, osutil.WriteFile(path, []byte("first\n")))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fl, err := Follow(ctx, path)
	require.NoError(t, err)
	defer fl.Close()
	fl.poll = 10 * time.Millisecond

	buf := make([]byte, 100)
	n, err := fl.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(buf[:n]))

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return
		}
		f.Write([]byte("second\n"))
		f.Close()
	}()
	n, err = fl.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(buf[:n]))

	cancel()
	n, err = fl.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestFollowRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuzz-0.log")
	require.NoError(t, osutil.WriteFile(path, []byte("only\n")))
	fl, err := Follow(context.Background(), path)
	require.NoError(t, err)
	defer fl.Close()
	fl.poll = 10 * time.Millisecond
	require.NoError(t, os.Remove(path))
	data, err := io.ReadAll(fl)
	require.NoError(t, err)
	assert.Equal(t, "only\n", string(data))
}
