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

package pipeline

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/mercount/mercount/kmer"
)

// Source supplies a worker's partition of the mer stream. Next returns
// io.EOF when the partition is exhausted.
type Source interface {
	Next() (kmer.Mer, error)
}

// readerSource scans mers from a single reader.
type readerSource struct {
	sc     *kmer.Scanner
	closer io.Closer
}

// NewReaderSource scans mers of length k from r, canonical if requested.
// If r is also an io.Closer it is closed at end of stream.
func NewReaderSource(r io.Reader, k int, canonical bool) Source {
	s := &readerSource{sc: kmer.NewScanner(r, k, canonical)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *readerSource) Next() (kmer.Mer, error) {
	m, err := s.sc.Next()
	if err == io.EOF && s.closer != nil {
		s.closer.Close()
		s.closer = nil
	}
	return m, err
}

// fileSource streams the mers of a list of sequence files, opened one at a
// time.
type fileSource struct {
	paths     []string
	k         int
	canonical bool
	wrap      func(io.Reader) io.Reader
	f         *os.File
	sc        *kmer.Scanner
}

// NewFileSource streams mers of length k from the given sequence files in
// order.
func NewFileSource(paths []string, k int, canonical bool) Source {
	return &fileSource{paths: paths, k: k, canonical: canonical}
}

// NewFileSourceWrapped is NewFileSource with each opened file passed
// through wrap, e.g. for progress accounting.
func NewFileSourceWrapped(paths []string, k int, canonical bool, wrap func(io.Reader) io.Reader) Source {
	return &fileSource{paths: paths, k: k, canonical: canonical, wrap: wrap}
}

func (s *fileSource) Next() (kmer.Mer, error) {
	for {
		if s.sc == nil {
			if len(s.paths) == 0 {
				return 0, io.EOF
			}
			f, err := os.Open(s.paths[0])
			if err != nil {
				return 0, errors.Wrapf(err, "opening sequence file %s", s.paths[0])
			}
			var r io.Reader = f
			if s.wrap != nil {
				r = s.wrap(f)
			}
			s.f, s.sc = f, kmer.NewScanner(r, s.k, s.canonical)
			s.paths = s.paths[1:]
		}
		m, err := s.sc.Next()
		if err == io.EOF {
			s.f.Close()
			s.f, s.sc = nil, nil
			continue
		}
		return m, err
	}
}

// concatSource drains a list of sources in order.
type concatSource struct {
	srcs []Source
}

// Concat joins sources front to back.
func Concat(srcs ...Source) Source {
	return &concatSource{srcs: srcs}
}

func (s *concatSource) Next() (kmer.Mer, error) {
	for len(s.srcs) > 0 {
		m, err := s.srcs[0].Next()
		if err == io.EOF {
			s.srcs = s.srcs[1:]
			continue
		}
		return m, err
	}
	return 0, io.EOF
}

// PartitionPaths distributes input files round-robin over n workers.
// Workers whose share is empty are dropped, so the result may hold fewer
// than n partitions.
func PartitionPaths(paths []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	parts := make([][]string, n)
	for i, p := range paths {
		parts[i%n] = append(parts[i%n], p)
	}
	out := parts[:0]
	for _, part := range parts {
		if len(part) > 0 {
			out = append(out, part)
		}
	}
	return out
}
