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

// Package dump serializes counting table snapshots to spill and output
// files, and reads them back as ordered (key, count) streams.
//
// Two interchangeable encodings exist behind the same header: a compact
// binary form (little-endian key and counter at the widths the header
// declares) and a human-readable text form (one "MER COUNT" line per
// record). Records are always in ascending numeric order of the packed key,
// the canonical total order the k-way merge relies on.
package dump

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mercount/mercount/common"
	"github.com/mercount/mercount/format"
	"github.com/mercount/mercount/kmer"
)

// Writer emits (key, count) records in the encoding the header declares.
// Callers must supply records in ascending key order; Writer enforces it.
type Writer struct {
	w        io.Writer
	text     bool
	merLen   int
	keyB     int
	ctrB     int
	maxCount uint64
	buf      []byte

	started bool
	lastKey kmer.Mer
}

// NewWriter writes the header to w and returns a record writer for the
// encoding it declares.
func NewWriter(w io.Writer, hdr *format.Header) (*Writer, error) {
	var text bool
	switch hdr.Format {
	case format.FormatBinary:
		text = false
	case format.FormatText:
		text = true
	default:
		return nil, fmt.Errorf("invalid dump format %q", hdr.Format)
	}
	if hdr.KeyLen < 2 || hdr.KeyLen%2 != 0 || hdr.KeyLen > 2*kmer.MaxK {
		return nil, fmt.Errorf("invalid key length %d", hdr.KeyLen)
	}
	if hdr.CounterLen < 1 || hdr.CounterLen > 64 {
		return nil, fmt.Errorf("invalid counter length %d", hdr.CounterLen)
	}
	if _, err := hdr.WriteTo(w); err != nil {
		return nil, err
	}
	return &Writer{
		w:        w,
		text:     text,
		merLen:   hdr.KeyLen / 2,
		keyB:     hdr.KeyBytes(),
		ctrB:     hdr.CounterBytes(),
		maxCount: common.MaxForWidth(hdr.CounterLen),
		buf:      make([]byte, hdr.KeyBytes()+hdr.CounterBytes()),
	}, nil
}

// Write appends one record. Counts above the declared counter width
// saturate at its maximum. Out-of-order keys are an error.
func (w *Writer) Write(m kmer.Mer, count uint64) error {
	if w.started && m <= w.lastKey {
		return fmt.Errorf("records out of order: %d after %d", m, w.lastKey)
	}
	w.started, w.lastKey = true, m
	count = common.Min(count, w.maxCount)
	if w.text {
		_, err := fmt.Fprintf(w.w, "%s %d\n", m.String(w.merLen), count)
		return err
	}
	var kb, cb [8]byte
	binary.LittleEndian.PutUint64(kb[:], uint64(m))
	binary.LittleEndian.PutUint64(cb[:], count)
	n := copy(w.buf, kb[:w.keyB])
	copy(w.buf[n:], cb[:w.ctrB])
	_, err := w.w.Write(w.buf)
	return err
}
