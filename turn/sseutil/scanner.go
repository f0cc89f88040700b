// Package sseutil provides a minimal server-sent-events line scanner for
// turn.Service implementations that stream over HTTP. The core runtime
// never opens an HTTP connection itself; this is a convenience for the
// out-of-scope concrete provider adapters that plug into turn.Service.
package sseutil

import (
	"bufio"
	"bytes"
	"io"
)

// Scanner scans an SSE byte stream, yielding the payload of each "data:"
// line in order and skipping event-boundary blank lines and other fields.
type Scanner struct {
	scanner *bufio.Scanner
	data    string
	err     error
}

// NewScanner wraps r as an SSE scanner.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r)}
}

// Scan advances to the next "data:" line, returning false at end of
// stream or on a read error (check Err to distinguish the two).
func (s *Scanner) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("data: ")) {
			s.data = string(bytes.TrimPrefix(line, []byte("data: ")))
			return true
		}
		if bytes.HasPrefix(line, []byte("data:")) {
			s.data = string(bytes.TrimPrefix(line, []byte("data:")))
			return true
		}
	}
	s.err = s.scanner.Err()
	return false
}

// Data returns the payload of the most recently scanned event.
func (s *Scanner) Data() string { return s.data }

// Err returns the first non-EOF error encountered while scanning, if any.
func (s *Scanner) Err() error { return s.err }
