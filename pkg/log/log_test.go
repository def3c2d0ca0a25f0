// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
)

func init() {
	EnableLogCaching(4, 20)
}

func TestCaching(t *testing.T) {
	tests := []struct{ str, want string }{
		{"", ""},
		{"a", "a\n"},
		{"bb", "a\nbb\n"},
		{"ccc", "a\nbb\nccc\n"},
		{"dddd", "a\nbb\nccc\ndddd\n"},
		{"eeeee", "bb\nccc\ndddd\neeeee\n"},
		{"ffffff", "ccc\ndddd\neeeee\nffffff\n"},
		{"ggggggg", "eeeee\nffffff\nggggggg\n"},
		{"hhhhhhhh", "ggggggg\nhhhhhhhh\n"},
		{"jjjjjjjjjjjjjjjjjjjjjjjjj", "jjjjjjjjjjjjjjjjjjjjjjjjj\n"},
	}
	prependTime = false
	SetOutput(new(bytes.Buffer))
	for _, test := range tests {
		Logf(1, test.str)
		out := CachedLogOutput()
		if out != test.want {
			t.Fatalf("wrote: %v\nwant: %v\ngot: %v", test.str, test.want, out)
		}
	}
}

func TestVerbosity(t *testing.T) {
	buf := new(bytes.Buffer)
	SetOutput(buf)
	SetVerbosity(1)
	defer SetVerbosity(0)
	Logf(2, "hidden")
	Logf(1, "shown %v", 1)
	Errorf("broken %v", "oracle")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("verbosity 2 message printed at -vv=1:\n%v", out)
	}
	if !strings.Contains(out, "shown 1") || !strings.Contains(out, "ERROR: broken oracle") {
		t.Errorf("missing messages:\n%v", out)
	}
	if !V(1) || V(2) {
		t.Errorf("V reports wrong levels")
	}
}
