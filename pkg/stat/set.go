// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat is a registry of named metrics of a reconstruction run.
// The tools print Collect results at the end of a run and export the metrics
// marked with Prometheus over HTTP in follow mode.
//
//	statUnits := stat.New("units", "Units passed to the oracle", stat.Console)
//	statUnits.Add(len(units))
//
//	statLatency := stat.New("oracle latency", "Oracle call duration (ms)", stat.Distribution{})
package stat

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// UI is a snapshot of one metric prepared for printing.
type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

// Level says where the metric is shown.
type Level int

const (
	// All metrics are shown with -vv and on the /stats page.
	All Level = iota
	// Console metrics are also printed at the end of a run.
	Console
)

// Prometheus exports the metric as a gauge under the given name.
type Prometheus string

// Distribution makes the metric keep a histogram of added samples instead of a sum.
type Distribution struct{}

// A 'func() int' option makes the metric read its value from the function.

func New(name, desc string, opts ...any) *Val {
	return global.New(name, desc, opts...)
}

func Collect(level Level) []UI {
	return global.Collect(level)
}

var global = NewSet()

type Set struct {
	mu   sync.Mutex
	vals map[string]*Val
}

func NewSet() *Set {
	return &Set{vals: make(map[string]*Val)}
}

func (s *Set) New(name, desc string, opts ...any) *Val {
	v := &Val{name: name, desc: desc}
	for _, opt := range opts {
		v.apply(opt)
	}
	s.mu.Lock()
	s.vals[name] = v
	s.mu.Unlock()
	return v
}

// Collect returns metrics of at least the given level, console metrics first.
func (s *Set) Collect(level Level) []UI {
	s.mu.Lock()
	vals := make([]*Val, 0, len(s.vals))
	for _, v := range s.vals {
		if v.level >= level {
			vals = append(vals, v)
		}
	}
	s.mu.Unlock()
	sort.Slice(vals, func(i, j int) bool {
		if vals[i].level != vals[j].level {
			return vals[i].level > vals[j].level
		}
		return vals[i].name < vals[j].name
	})
	res := make([]UI, len(vals))
	for i, v := range vals {
		val := v.Val()
		res[i] = UI{
			Name:  v.name,
			Desc:  v.desc,
			Level: v.level,
			Value: v.format(val),
			V:     val,
		}
	}
	return res
}

type Val struct {
	name  string
	desc  string
	level Level
	sum   atomic.Int64
	ext   func() int
	dist  *distribution
}

func (v *Val) apply(opt any) {
	switch opt := opt.(type) {
	case Level:
		v.level = opt
	case Distribution:
		v.dist = new(distribution)
	case func() int:
		v.ext = opt
	case Prometheus:
		// Registration fails only for a duplicate name, the first metric wins.
		prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: string(opt),
			Help: v.desc,
		}, func() float64 {
			return float64(v.Val())
		}))
	default:
		panic(fmt.Sprintf("unknown stat option %#v", opt))
	}
}

func (v *Val) Add(val int) {
	switch {
	case v.ext != nil:
		panic(fmt.Sprintf("stat %v reads its value from a function", v.name))
	case v.dist != nil:
		v.dist.add(float64(val))
	default:
		v.sum.Add(int64(val))
	}
}

// Val returns the sum of added values, or the mean for distributions.
func (v *Val) Val() int {
	switch {
	case v.ext != nil:
		return v.ext()
	case v.dist != nil:
		return int(v.dist.mean())
	}
	return int(v.sum.Load())
}

// Quantile returns the q-th quantile of a distribution, or 0 for other metrics.
func (v *Val) Quantile(q float64) float64 {
	if v.dist == nil {
		return 0
	}
	return v.dist.quantile(q)
}

func (v *Val) format(val int) string {
	if v.dist == nil {
		return strconv.Itoa(val)
	}
	return v.dist.format()
}

const histogramBins = 255

type distribution struct {
	mu sync.Mutex
	h  *gohistogram.NumericHistogram
}

func (d *distribution) add(val float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.h == nil {
		d.h = gohistogram.NewHistogram(histogramBins)
	}
	d.h.Add(val)
}

func (d *distribution) mean() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.h == nil {
		return 0
	}
	return d.h.Mean()
}

func (d *distribution) quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.h == nil {
		return 0
	}
	return d.h.Quantile(q)
}

func (d *distribution) format() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.h == nil {
		return "-"
	}
	return fmt.Sprintf("mean %.0f (p50 %.0f, p90 %.0f, n=%v)",
		d.h.Mean(), d.h.Quantile(0.5), d.h.Quantile(0.9), d.h.Count())
}
