// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzlog

import (
	"bufio"
	"fmt"
	"io"
)

// Entry is a classified line together with its position in the input.
type Entry struct {
	Line  int // 1-based
	Text  string
	Event Event
}

// Scanner reads a log and yields the recognized entries in input order.
// Unrecognized lines are skipped.
type Scanner struct {
	s     *bufio.Scanner
	c     *Classifier
	line  int
	entry Entry
}

const maxLineLen = 4 << 20

func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64<<10), maxLineLen)
	return &Scanner{
		s: s,
		c: NewClassifier(),
	}
}

// Scan advances to the next recognized entry. It returns false at the end of input
// or on a read error, which is then returned by Err.
func (s *Scanner) Scan() bool {
	for s.s.Scan() {
		s.line++
		text := s.s.Text()
		ev := s.c.Classify(text)
		if ev == nil {
			continue
		}
		s.entry = Entry{
			Line:  s.line,
			Text:  text,
			Event: ev,
		}
		return true
	}
	return false
}

func (s *Scanner) Entry() Entry {
	return s.entry
}

func (s *Scanner) Err() error {
	if err := s.s.Err(); err != nil {
		return fmt.Errorf("line %v: %w", s.line+1, err)
	}
	return nil
}

// ReadAll classifies the whole input.
func ReadAll(r io.Reader) ([]Entry, error) {
	var entries []Entry
	s := NewScanner(r)
	for s.Scan() {
		entries = append(entries, s.Entry())
	}
	return entries, s.Err()
}

// MalformedError reports a structural violation in a log that makes the
// reconstruction meaningless. Line is 0 if the violation has no single location.
type MalformedError struct {
	File string
	Line int
	Text string
	Err  error
}

func (e *MalformedError) Error() string {
	pos := ""
	switch {
	case e.File != "" && e.Line != 0:
		pos = fmt.Sprintf("%v:%v: ", e.File, e.Line)
	case e.File != "":
		pos = e.File + ": "
	case e.Line != 0:
		pos = fmt.Sprintf("line %v: ", e.Line)
	}
	if e.Text == "" {
		return fmt.Sprintf("malformed log: %v%v", pos, e.Err)
	}
	return fmt.Sprintf("malformed log: %v%v\n\t%v", pos, e.Err, e.Text)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Malformed wraps err with the position of the entry.
func Malformed(file string, ent Entry, err error) error {
	return &MalformedError{
		File: file,
		Line: ent.Line,
		Text: ent.Text,
		Err:  err,
	}
}
