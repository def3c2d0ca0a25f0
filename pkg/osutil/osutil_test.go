// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := WriteFile(src, []byte("unit")); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "unit" {
		t.Fatalf("copied %q, want %q", data, "unit")
	}
	if _, err := os.Stat(dst + ".tmp"); err == nil {
		t.Fatalf("temp file left behind")
	}
}

func TestRunFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell")
	}
	_, err := RunContext(context.Background(), time.Minute, Command("sh", "-c", "echo oops; exit 3"))
	var verr *VerboseError
	if !errors.As(err, &verr) {
		t.Fatalf("want VerboseError, got %v", err)
	}
	if verr.ExitCode != 3 || string(verr.Output) != "oops\n" {
		t.Fatalf("bad error: code=%v output=%q", verr.ExitCode, verr.Output)
	}
}

func TestRunContextCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := RunContext(ctx, time.Hour, Command("sleep", "60"))
	if err == nil {
		t.Fatalf("cancelled command succeeded")
	}
	if time.Since(start) > 30*time.Second {
		t.Fatalf("cancellation did not kill the command")
	}
}
