// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// asap-ancestry prints the ancestry tree of testcases kept by a fuzzing campaign
// together with the code locations each of them covered first.
//
// Usage:
//
//	asap-ancestry [flags] [fuzz-0.log fuzz-1.log.xz ...]
//
// Without log files the log is read from stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/asapfuzz/lineage/pkg/campaign"
	"github.com/asapfuzz/lineage/pkg/tool"
)

var (
	flagConfig     = flag.String("config", "", "campaign config file (optional)")
	flagBinary     = flag.String("elf", "", "fuzzer binary used to symbolize raw NEW_PC addresses")
	flagSymbolizer = flag.String("symbolizer", "", "path to llvm-symbolizer")
	flagFormat     = flag.String("format", "text", "output format: text, json or yaml")
)

func main() {
	defer tool.Init()()
	cfg := campaign.DefaultConfig()
	if *flagConfig != "" {
		var err error
		if cfg, err = campaign.LoadConfig(*flagConfig); err != nil {
			tool.Fail(err)
		}
	}
	if *flagBinary != "" {
		cfg.Binary = *flagBinary
	}
	if *flagSymbolizer != "" {
		cfg.Symbolizer = *flagSymbolizer
	}
	e, err := campaign.NewEngine(cfg)
	if err != nil {
		tool.Fail(err)
	}
	defer e.Close()
	// The tree does not need coverage.
	e.Oracle = nil
	sources, closeSources, err := campaign.OpenSources(flag.Args()...)
	if err != nil {
		tool.Fail(err)
	}
	defer closeSources()
	res, err := e.Reconstruct(context.Background(), sources...)
	if err != nil {
		tool.Fail(err)
	}
	switch *flagFormat {
	case "text":
		err = res.Tree.Render(os.Stdout)
	case "json":
		err = res.Tree.WriteJSON(os.Stdout)
	case "yaml":
		err = res.Tree.WriteYAML(os.Stdout)
	default:
		err = fmt.Errorf("unknown format %q", *flagFormat)
	}
	if err != nil {
		tool.Fail(err)
	}
}
