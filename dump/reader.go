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

package dump

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mercount/mercount/format"
	"github.com/mercount/mercount/kmer"
)

// Reader streams the (key, count) records of a dump file in the order they
// were written.
type Reader struct {
	path string
	f    *os.File
	br   *bufio.Reader
	hdr  format.Header
	text bool
	rec  []byte
}

// Open reads and validates the header of a dump file. Both the binary and
// the text encoding are accepted.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dump file %s", path)
	}
	br := bufio.NewReader(f)
	r := &Reader{path: path, f: f, br: br}
	if _, err := r.hdr.ReadFrom(br); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "parsing dump file %s", path)
	}
	switch r.hdr.Format {
	case format.FormatBinary:
		r.text = false
		r.rec = make([]byte, r.hdr.KeyBytes()+r.hdr.CounterBytes())
	case format.FormatText:
		r.text = true
	default:
		f.Close()
		return nil, errors.Errorf("%s: invalid format %q, expected %q or %q",
			path, r.hdr.Format, format.FormatBinary, format.FormatText)
	}
	return r, nil
}

// Header returns the file's header.
func (r *Reader) Header() *format.Header { return &r.hdr }

// Path returns the file path the reader was opened on.
func (r *Reader) Path() string { return r.path }

// Next returns the next record, or io.EOF at the end of the file. A record
// cut short mid-way is reported as a corruption error, not as end of
// stream.
func (r *Reader) Next() (kmer.Mer, uint64, error) {
	if r.text {
		return r.nextText()
	}
	if _, err := io.ReadFull(r.br, r.rec); err != nil {
		if err == io.EOF {
			return 0, 0, io.EOF
		}
		return 0, 0, errors.Wrapf(err, "truncated record in %s", r.path)
	}
	var kb, cb [8]byte
	copy(kb[:], r.rec[:r.hdr.KeyBytes()])
	copy(cb[:], r.rec[r.hdr.KeyBytes():])
	return kmer.Mer(binary.LittleEndian.Uint64(kb[:])), binary.LittleEndian.Uint64(cb[:]), nil
}

func (r *Reader) nextText() (kmer.Mer, uint64, error) {
	line, err := r.br.ReadString('\n')
	if err == io.EOF && line == "" {
		return 0, 0, io.EOF
	}
	if err != nil && err != io.EOF {
		return 0, 0, errors.Wrapf(err, "reading %s", r.path)
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, errors.Errorf("%s: malformed record %q", r.path, strings.TrimSpace(line))
	}
	m, err := kmer.Parse(fields[0])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s: malformed record", r.path)
	}
	count, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s: malformed count %q", r.path, fields[1])
	}
	return m, count, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
