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

// Package format defines the on-disk file header shared by every file this
// module reads or writes: bloom counter files and binary or text count
// dumps. The header is a JSON document prefixed by a fixed magic and a
// little-endian length, followed immediately by the payload.
package format

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Format tags carried in the header. Readers reject any file whose tag does
// not match the one they expect.
const (
	FormatBloomCounter = "bloomcounter"
	FormatBinary       = "binary/counts"
	FormatText         = "text/counts"
)

// Magic identifies a mercount file. It precedes the header length.
var Magic = [8]byte{'M', 'E', 'R', 'C', 'N', 'T', '0', '1'}

// maxHeaderLen bounds the serialized header, guarding against reading an
// arbitrary length field from a corrupt or foreign file.
const maxHeaderLen = 1 << 20

// Header is the metadata block at the start of every mercount file.
//
// KeyLen is in bits (2 * mer length) and must agree across all files that
// are ever merged together. CounterLen is the output counter width in bits.
// For bloom counter files Size, NbHashes and the hash seed pair describe the
// filter geometry and its hash functions; a file built with different seeds
// is unusable and must be rejected.
type Header struct {
	Format     string `json:"format"`
	KeyLen     int    `json:"key_len"`
	CounterLen int    `json:"counter_len,omitempty"`
	Canonical  bool   `json:"canonical"`

	// Bloom counter geometry.
	Size     uint64 `json:"size,omitempty"`
	NbHashes int    `json:"nb_hashes,omitempty"`
	SeedA    uint64 `json:"hash_seed_a,omitempty"`
	SeedB    uint64 `json:"hash_seed_b,omitempty"`

	// Inclusive count bounds applied when the file was written. Zero values
	// mean unbounded.
	Lower uint64 `json:"lower_count,omitempty"`
	Upper uint64 `json:"upper_count,omitempty"`

	// Provenance, opaque to the engine.
	Cmdline  []string `json:"cmdline,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
	Time     string   `json:"time,omitempty"`
}

// FillStandard populates the provenance fields from the running process.
func (h *Header) FillStandard() {
	h.Cmdline = os.Args
	h.Hostname, _ = os.Hostname()
	h.Time = time.Now().Format(time.RFC3339)
}

// WriteTo serializes the header: magic, uint32 length, JSON bytes.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 0, len(Magic)+4+len(body))
	buf = append(buf, Magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom parses a header from the current position of r.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	var pre [12]byte
	n, err := io.ReadFull(r, pre[:])
	if err != nil {
		return int64(n), errors.Wrap(err, "reading file header")
	}
	if [8]byte(pre[:8]) != Magic {
		return int64(n), errors.New("not a mercount file (bad magic)")
	}
	bodyLen := binary.LittleEndian.Uint32(pre[8:])
	if bodyLen > maxHeaderLen {
		return int64(n), errors.Errorf("implausible header length %d", bodyLen)
	}
	body := make([]byte, bodyLen)
	m, err := io.ReadFull(r, body)
	n += m
	if err != nil {
		return int64(n), errors.Wrap(err, "reading file header")
	}
	if err := json.Unmarshal(body, h); err != nil {
		return int64(n), errors.Wrap(err, "decoding file header")
	}
	return int64(n), nil
}

// KeyBytes returns the number of bytes a packed key occupies in a binary
// record.
func (h *Header) KeyBytes() int {
	return (h.KeyLen + 7) / 8
}

// CounterBytes returns the number of bytes a counter occupies in a binary
// record.
func (h *Header) CounterBytes() int {
	return (h.CounterLen + 7) / 8
}

// Compatible reports whether two count files may participate in the same
// merge: identical key length and canonicalization. A non-nil error names
// the mismatching field.
func (h *Header) Compatible(other *Header) error {
	if h.KeyLen != other.KeyLen {
		return errors.Errorf("key length mismatch: %d vs %d", h.KeyLen, other.KeyLen)
	}
	if h.Canonical != other.Canonical {
		return errors.Errorf("canonical flag mismatch: %v vs %v", h.Canonical, other.Canonical)
	}
	return nil
}
