// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/asapfuzz/lineage/pkg/log"
	"github.com/asapfuzz/lineage/pkg/osutil"
)

// LLVM runs one long-lived llvm-symbolizer per binary and talks to it over stdin/stdout.
type LLVM struct {
	Path     string
	subprocs map[string]*subprocess
	interner Interner
}

func NewLLVM(path string) *LLVM {
	if path == "" {
		path = "llvm-symbolizer"
	}
	return &LLVM{Path: path}
}

type subprocess struct {
	cmd     *exec.Cmd
	stdin   io.Closer
	stdout  io.Closer
	input   *bufio.Writer
	scanner *bufio.Scanner
}

func (s *LLVM) Symbolize(bin string, pcs ...uint64) ([]Frame, error) {
	sub, err := s.getSubprocess(bin)
	if err != nil {
		return nil, err
	}
	frames, err := symbolize(sub.input, sub.scanner, pcs, &s.interner)
	if err != nil {
		sub.kill()
		delete(s.subprocs, bin)
		return nil, fmt.Errorf("failed to symbolize %v: %w", bin, err)
	}
	return frames, nil
}

func (s *LLVM) Close() {
	for _, sub := range s.subprocs {
		sub.kill()
	}
	s.subprocs = nil
}

func (s *LLVM) getSubprocess(bin string) (*subprocess, error) {
	if sub := s.subprocs[bin]; sub != nil {
		return sub, nil
	}
	cmd := osutil.Command(s.Path, "--obj="+bin, "--inlining", "--no-demangle")
	cmd.Stderr = log.VerboseWriter(2)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to start %v: %w", s.Path, err)
	}
	sub := &subprocess{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		input:   bufio.NewWriter(stdin),
		scanner: bufio.NewScanner(stdout),
	}
	if s.subprocs == nil {
		s.subprocs = make(map[string]*subprocess)
	}
	s.subprocs[bin] = sub
	return sub, nil
}

func (sub *subprocess) kill() {
	sub.stdin.Close()
	sub.stdout.Close()
	sub.cmd.Process.Kill()
	sub.cmd.Wait()
}

// symbolize writes pcs and reads the replies concurrently: llvm-symbolizer answers
// as soon as it reads a request, so writing all requests first can fill both pipes.
func symbolize(input *bufio.Writer, scanner *bufio.Scanner, pcs []uint64, interner *Interner) ([]Frame, error) {
	var g errgroup.Group
	g.Go(func() error {
		for _, pc := range pcs {
			if _, err := fmt.Fprintf(input, "0x%x\n", pc); err != nil {
				return err
			}
			if err := input.Flush(); err != nil {
				return err
			}
		}
		return nil
	})
	var frames []Frame
	for _, pc := range pcs {
		res, err := parse(scanner, pc, interner)
		if err != nil {
			// The writer fails once the caller kills the process.
			return nil, err
		}
		frames = append(frames, res...)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// parse reads the reply for one pc: pairs of function and file:line:column lines
// (one pair per inlined frame, innermost first) terminated by an empty line.
func parse(s *bufio.Scanner, pc uint64, interner *Interner) ([]Frame, error) {
	var frames []Frame
	for {
		if !s.Scan() {
			if err := s.Err(); err != nil {
				return nil, err
			}
			return nil, io.ErrUnexpectedEOF
		}
		fn := s.Text()
		if fn == "" {
			break
		}
		if !s.Scan() {
			if err := s.Err(); err != nil {
				return nil, err
			}
			return nil, io.ErrUnexpectedEOF
		}
		file, line, col, err := parseFileLine(s.Text())
		if err != nil {
			return nil, err
		}
		frame := Frame{
			PC:     pc,
			Func:   Demangle(fn),
			File:   interner.Do(file),
			Line:   line,
			Column: col,
			Inline: true,
		}
		if fn == "??" {
			frame.Func = ""
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames for pc 0x%x", pc)
	}
	frames[len(frames)-1].Inline = false
	return frames, nil
}

// parseFileLine splits "file:line:column" or "file:line". An unknown file ("??") is returned as "".
func parseFileLine(s string) (string, int, int, error) {
	file, line, col := s, 0, 0
	colon := strings.LastIndexByte(file, ':')
	if colon == -1 {
		return "", 0, 0, fmt.Errorf("bad symbolizer line %q", s)
	}
	last, err := strconv.Atoi(file[colon+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("bad symbolizer line %q", s)
	}
	file = file[:colon]
	line = last
	if colon = strings.LastIndexByte(file, ':'); colon != -1 {
		if v, err := strconv.Atoi(file[colon+1:]); err == nil {
			file, line, col = file[:colon], v, last
		}
	}
	if file == "??" {
		return "", 0, 0, nil
	}
	return file, line, col, nil
}
