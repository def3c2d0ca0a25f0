// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	set := NewSet()
	lines := set.New("lines", "log lines scanned", Console)
	latency := set.New("oracle ms", "oracle latency", Distribution{})
	pending := 7
	ext := set.New("pending", "pending units", func() int { return pending })

	assert.Equal(t, 0, latency.Val())
	lines.Add(3)
	lines.Add(2)
	for _, ms := range []int{10, 20, 30} {
		latency.Add(ms)
	}
	assert.Equal(t, 5, lines.Val())
	assert.Equal(t, 20, latency.Val())
	assert.InDelta(t, 20, latency.Quantile(0.5), 10)
	assert.Equal(t, 7, ext.Val())
	assert.Panics(t, func() { ext.Add(1) })

	ui := set.Collect(All)
	assert.Len(t, ui, 3)
	assert.Equal(t, "lines", ui[0].Name)
	assert.Equal(t, "5", ui[0].Value)

	assert.Len(t, set.Collect(Console), 1)
}
