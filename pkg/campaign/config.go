// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"fmt"
	"time"

	"github.com/asapfuzz/lineage/pkg/config"
	"github.com/asapfuzz/lineage/pkg/osutil"
)

const (
	EngineLibFuzzer = "libfuzzer"
	EngineAFL       = "afl"
)

// Config describes where the artifacts of a campaign live.
// It is loaded from a JSON (or YAML) file, and command line flags override it.
type Config struct {
	// Engine that produced the log: "libfuzzer" (default) or "afl".
	Engine string `json:"engine,omitempty"`
	// Reference fuzzer binary that computes coverage of a corpus with -runs=0 (libfuzzer).
	Fuzzer string `json:"fuzzer,omitempty"`
	// Corpus dir with units named by their hash (libfuzzer).
	Corpus string `json:"corpus,omitempty"`
	// AFL findings dir with queue/ and maps/ subdirs (afl).
	Findings string `json:"findings,omitempty"`
	// Binary used to symbolize raw NEW_PC addresses.
	Binary string `json:"binary,omitempty"`
	// Path to llvm-symbolizer.
	Symbolizer string `json:"symbolizer,omitempty"`
	// Number of rows in the coverage table.
	Samples int `json:"samples,omitempty"`
	// Distance between rows when following a log that is still written.
	IntervalSec int `json:"interval_sec,omitempty"`
	// Timeout for one coverage oracle invocation.
	OracleTimeoutSec int `json:"oracle_timeout_sec,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine:           EngineLibFuzzer,
		Symbolizer:       "llvm-symbolizer",
		Samples:          100,
		IntervalSec:      60,
		OracleTimeoutSec: 600,
	}
}

// LoadConfig loads the file on top of the defaults and validates the result.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Complete(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return cfg, nil
}

// Complete fills in defaults for unset fields and checks the configuration.
func (cfg *Config) Complete() error {
	def := DefaultConfig()
	if cfg.Engine == "" {
		cfg.Engine = def.Engine
	}
	if cfg.Symbolizer == "" {
		cfg.Symbolizer = def.Symbolizer
	}
	if cfg.Samples == 0 {
		cfg.Samples = def.Samples
	}
	if cfg.IntervalSec == 0 {
		cfg.IntervalSec = def.IntervalSec
	}
	if cfg.OracleTimeoutSec == 0 {
		cfg.OracleTimeoutSec = def.OracleTimeoutSec
	}
	switch cfg.Engine {
	case EngineLibFuzzer:
		if cfg.Findings != "" {
			return fmt.Errorf("findings is only used with afl engine")
		}
	case EngineAFL:
		if cfg.Fuzzer != "" || cfg.Corpus != "" {
			return fmt.Errorf("fuzzer and corpus are only used with libfuzzer engine")
		}
	default:
		return fmt.Errorf("unknown engine %q", cfg.Engine)
	}
	if cfg.Samples < 0 {
		return fmt.Errorf("bad samples %v", cfg.Samples)
	}
	if cfg.IntervalSec < 0 || cfg.OracleTimeoutSec < 0 {
		return fmt.Errorf("bad interval or timeout")
	}
	for _, dir := range []*string{&cfg.Fuzzer, &cfg.Corpus, &cfg.Findings, &cfg.Binary} {
		if *dir != "" {
			*dir = osutil.Abs(*dir)
		}
	}
	return nil
}

func (cfg *Config) OracleTimeout() time.Duration {
	return time.Duration(cfg.OracleTimeoutSec) * time.Second
}

// HasOracle says if the config is sufficient to compute coverage.
func (cfg *Config) HasOracle() bool {
	switch cfg.Engine {
	case EngineLibFuzzer:
		return cfg.Fuzzer != "" && cfg.Corpus != ""
	case EngineAFL:
		return cfg.Findings != ""
	}
	return false
}
