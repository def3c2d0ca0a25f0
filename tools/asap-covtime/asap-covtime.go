// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// asap-covtime prints the coverage-vs-time table of a fuzzing campaign.
// Coverage of every row is recomputed from the corpus by the coverage oracle.
//
// Usage:
//
//	asap-covtime -fuzzer ./fuzzer -corpus corpus/ fuzz-0.log fuzz-1.log
//	asap-covtime -engine afl -findings out/ < afl.log
//	asap-covtime -fuzzer ./fuzzer -corpus corpus/ -follow -http :8080 fuzz.log
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asapfuzz/lineage/pkg/campaign"
	"github.com/asapfuzz/lineage/pkg/config"
	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/logfile"
	"github.com/asapfuzz/lineage/pkg/resample"
	"github.com/asapfuzz/lineage/pkg/stat"
	"github.com/asapfuzz/lineage/pkg/tool"
)

var (
	flagConfig   = flag.String("config", "", "campaign config file (optional)")
	flagEngine   = flag.String("engine", "", "engine that wrote the log: libfuzzer or afl")
	flagFuzzer   = flag.String("fuzzer", "", "reference fuzzer binary (libfuzzer)")
	flagCorpus   = flag.String("corpus", "", "corpus dir (libfuzzer)")
	flagFindings = flag.String("findings", "", "findings dir (afl)")
	flagSamples  = flag.Int("samples", 0, "number of rows in the table")
	flagFollow   = flag.Bool("follow", false, "follow a log that is still written")
	flagInterval = flag.Int("interval", 0, "seconds between rows in follow mode")
	flagCrashes  = flag.String("crashes", "", "write crashes found by the campaign to this CSV file")
	flagHTTP     = flag.String("http", "", "serve Prometheus metrics on this address")
	flagSaveCfg  = flag.String("save_config", "", "write the effective config to this file")
)

func main() {
	defer tool.Init()()
	cfg := loadConfig()
	e, err := campaign.NewEngine(cfg)
	if err != nil {
		tool.Fail(err)
	}
	defer e.Close()
	if *flagSaveCfg != "" {
		if err := config.SaveFile(*flagSaveCfg, cfg); err != nil {
			tool.Failf("failed to save config: %v", err)
		}
	}
	if e.Oracle == nil {
		tool.Failf("coverage oracle is not configured: need -fuzzer and -corpus, or -findings")
	}
	if *flagHTTP != "" {
		serveHTTP(*flagHTTP)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var res *campaign.Result
	if *flagFollow {
		res, err = follow(ctx, e)
	} else {
		res, err = reconstruct(ctx, e)
	}
	if res == nil {
		tool.Fail(err)
	}
	if err != nil {
		log.Errorf("%v", err)
	}
	if *flagCrashes != "" {
		writeCrashes(*flagCrashes, res)
	}
	log.Logf(0, "run %v: %v testcases, %v crashes, %v jobs", res.RunID, res.Tree.Len(), len(res.Crashes), res.Jobs)
	for _, st := range stat.Collect(stat.Console) {
		log.Logf(0, "%-20v: %v", st.Name, st.Value)
	}
	if err != nil {
		e.Close()
		os.Exit(1)
	}
}

func loadConfig() *campaign.Config {
	cfg := campaign.DefaultConfig()
	if *flagConfig != "" {
		var err error
		if cfg, err = campaign.LoadConfig(*flagConfig); err != nil {
			tool.Fail(err)
		}
	}
	override := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	override(&cfg.Engine, *flagEngine)
	override(&cfg.Fuzzer, *flagFuzzer)
	override(&cfg.Corpus, *flagCorpus)
	override(&cfg.Findings, *flagFindings)
	if *flagSamples != 0 {
		cfg.Samples = *flagSamples
	}
	if *flagInterval != 0 {
		cfg.IntervalSec = *flagInterval
	}
	return cfg
}

func reconstruct(ctx context.Context, e *campaign.Engine) (*campaign.Result, error) {
	sources, closeSources, err := campaign.OpenSources(flag.Args()...)
	if err != nil {
		tool.Fail(err)
	}
	defer closeSources()
	res, err := e.Reconstruct(ctx, sources...)
	if res != nil {
		if err := resample.WriteTable(os.Stdout, res.Rows); err != nil {
			tool.Fail(err)
		}
	}
	return res, err
}

func follow(ctx context.Context, e *campaign.Engine) (*campaign.Result, error) {
	if flag.NArg() != 1 {
		tool.Failf("-follow needs exactly one log file")
	}
	fl, err := logfile.Follow(ctx, flag.Arg(0))
	if err != nil {
		tool.Fail(err)
	}
	defer fl.Close()
	if err := resample.WriteHeader(os.Stdout); err != nil {
		tool.Fail(err)
	}
	// Interrupt stops reading the log, the remaining rows are still computed.
	return e.Follow(context.WithoutCancel(ctx), campaign.Source{Name: flag.Arg(0), R: fl},
		func(rows []resample.Row) error {
			return resample.WriteRows(os.Stdout, rows)
		})
}

func writeCrashes(file string, res *campaign.Result) {
	f, err := os.Create(file)
	if err != nil {
		tool.Failf("failed to create crashes file: %v", err)
	}
	err = campaign.WriteCrashes(f, res.RunID, res.Crashes)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		tool.Failf("failed to write crashes: %v", err)
	}
	if ttfc, ok := campaign.TimeToFirstCrash(res.Crashes, ""); ok {
		log.Logf(0, "first crash after %.0f seconds", ttfc)
	}
}

func serveHTTP(addr string) {
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		http.Handle(pattern, handlers.CompressHandler(http.HandlerFunc(handler)))
	}
	handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}).ServeHTTP)
	handle("/stats", func(w http.ResponseWriter, r *http.Request) {
		for _, st := range stat.Collect(stat.All) {
			fmt.Fprintf(w, "%-20v: %-30v %v\n", st.Name, st.Value, st.Desc)
		}
	})
	log.Logf(0, "serving http on http://%v", addr)
	go func() {
		err := http.ListenAndServe(addr, nil)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to listen on %v: %v", addr, err)
		}
	}()
}
