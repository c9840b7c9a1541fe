/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kmer

import (
	"io"
)

// scannerChunk is the read granularity. It bounds nothing about the input:
// records and lines of any length are handled.
const scannerChunk = 64 * 1024

// Scanner streams the mers of FASTA-style sequence data. A '>' at the start
// of a line opens a new record and resets the rolling window so no mer spans
// two records; newlines within a record are ignored, and any other non-base
// symbol simply breaks the window where it stands.
//
// Input is consumed in fixed-size chunks, so a whole chromosome on a single
// line is fine.
type Scanner struct {
	r      io.Reader
	window *Window
	buf    []byte
	pos    int
	n      int
	err    error

	lineStart bool
	skipLine  bool
}

// NewScanner returns a Scanner emitting mers of length k from r, canonical
// if requested.
func NewScanner(r io.Reader, k int, canonical bool) *Scanner {
	return &Scanner{
		r:         r,
		window:    NewWindow(k, canonical),
		buf:       make([]byte, scannerChunk),
		lineStart: true,
	}
}

// Next returns the next mer of the stream. It returns io.EOF once the input
// is exhausted, or the underlying read error.
func (s *Scanner) Next() (Mer, error) {
	for {
		for s.pos < s.n {
			b := s.buf[s.pos]
			s.pos++
			switch {
			case b == '\n':
				s.lineStart, s.skipLine = true, false
			case b == '\r':
				// Part of the line terminator; the '\n' flips lineStart.
			case s.skipLine:
				// Rest of a header line.
			case s.lineStart && b == '>':
				s.window.Reset()
				s.skipLine = true
			default:
				s.lineStart = false
				if m, ok := s.window.Push(b); ok {
					return m, nil
				}
			}
		}
		if s.err != nil {
			return 0, s.err
		}
		// A short read with io.EOF still carries data; the error is only
		// surfaced once the chunk above has been drained.
		s.n, s.err = s.r.Read(s.buf)
		s.pos = 0
	}
}
