// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains various helper utilitites useful for implementation of command line tools.
package tool

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/asapfuzz/lineage/pkg/log"
)

var (
	flagCPUProfile = flag.String("cpuprofile", "", "write CPU profile to this file")
	flagMemProfile = flag.String("memprofile", "", "write memory profile to this file")
)

// Init parses command line flags and starts profiling if requested.
// The returned function must be deferred by main.
func Init() func() {
	flag.Parse()
	log.EnableLogCaching(200, 64<<10)
	stopCPU := startCPUProfile(*flagCPUProfile)
	return func() {
		stopCPU()
		writeMemProfile(*flagMemProfile)
	}
}

func startCPUProfile(file string) func() {
	if file == "" {
		return func() {}
	}
	f, err := os.Create(file)
	if err != nil {
		Failf("failed to create cpuprofile file: %v", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		Failf("failed to start cpu profile: %v", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}
}

func writeMemProfile(file string) {
	if file == "" {
		return
	}
	f, err := os.Create(file)
	if err != nil {
		Failf("failed to create memprofile file: %v", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		Failf("failed to write mem profile: %v", err)
	}
}

// Failf prints the message and the recent log output to stderr and exits.
func Failf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	if recent := log.CachedLogOutput(); recent != "" {
		fmt.Fprintf(os.Stderr, "\nrecent log output:\n%s", recent)
	}
	os.Exit(1)
}

func Fail(err error) {
	Failf("%v", err)
}
