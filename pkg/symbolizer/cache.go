// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"strings"
	"sync"
)

// Cache memoizes results of another Symbolizer per (binary, pc) in a thread-safe way.
// Only pcs that were not seen before are passed to the inner symbolizer.
type Cache struct {
	Inner Symbolizer

	mu    sync.RWMutex
	cache map[cacheKey][]Frame
}

type cacheKey struct {
	bin string
	pc  uint64
}

func NewCache(inner Symbolizer) *Cache {
	return &Cache{Inner: inner}
}

func (c *Cache) Symbolize(bin string, pcs ...uint64) ([]Frame, error) {
	var missing []uint64
	dup := make(map[uint64]bool)
	c.mu.RLock()
	for _, pc := range pcs {
		if _, ok := c.cache[cacheKey{bin, pc}]; !ok && !dup[pc] {
			dup[pc] = true
			missing = append(missing, pc)
		}
	}
	c.mu.RUnlock()
	if len(missing) != 0 {
		frames, err := c.Inner.Symbolize(bin, missing...)
		if err != nil {
			return nil, err
		}
		fresh := make(map[uint64][]Frame)
		for _, frame := range frames {
			fresh[frame.PC] = append(fresh[frame.PC], frame)
		}
		c.mu.Lock()
		if c.cache == nil {
			c.cache = make(map[cacheKey][]Frame)
		}
		for _, pc := range missing {
			key := cacheKey{bin, pc}
			if _, ok := c.cache[key]; !ok {
				c.cache[key] = fresh[pc]
			}
		}
		c.mu.Unlock()
	}
	var res []Frame
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, pc := range pcs {
		res = append(res, c.cache[cacheKey{bin, pc}]...)
	}
	return res, nil
}

func (c *Cache) Close() {
	c.Inner.Close()
}

// Interner allows to intern/deduplicate strings.
// Interner.Do semantically returns the same string, but physically it will point
// to an existing string with the same contents (if there was one passed to Do in the past).
// Interned strings are also "cloned", that is, if the passed string points to a large
// buffer, it won't after interning (and won't prevent GC'ing of the large buffer).
type Interner struct {
	m sync.Map
}

func (in *Interner) Do(s string) string {
	if interned, ok := in.m.Load(s); ok {
		return interned.(string)
	}
	s = strings.Clone(s)
	in.m.Store(s, s)
	return s
}
