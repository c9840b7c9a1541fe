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

// Package merge consolidates the spill files of one counting run into a
// single output file by a streaming k-way merge.
//
// Every input must share the first file's key length and canonicalization;
// records arrive in ascending key order, so the merge repeatedly pops the
// smallest current key across all streams, sums its contributions, and
// emits it once. Sums that exceed the output counter width saturate at the
// width's maximum representable value; counts outside the inclusive
// [min, max] range are dropped from the output.
//
// On any failure the spill files are left in place so the run can be
// diagnosed or retried.
package merge

import (
	"bufio"
	"container/heap"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/mercount/mercount/common"
	"github.com/mercount/mercount/dump"
	"github.com/mercount/mercount/format"
	"github.com/mercount/mercount/kmer"
)

// MergeError is any fatal condition raised while merging: incompatible
// spill headers, unreadable input, or an unwritable output path.
type MergeError struct {
	File string
	Err  error
}

func (e *MergeError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("merge: %v", e.Err)
	}
	return fmt.Sprintf("merge %s: %v", e.File, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// stream is one input positioned at its current record.
type stream struct {
	r     *dump.Reader
	m     kmer.Mer
	count uint64
}

// advance loads the stream's next record; done is true at end of input.
func (s *stream) advance() (done bool, err error) {
	m, count, err := s.r.Next()
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	s.m, s.count = m, count
	return false, nil
}

// streamHeap orders streams by their current key.
type streamHeap []*stream

func (h streamHeap) Len() int            { return len(h) }
func (h streamHeap) Less(i, j int) bool  { return h[i].m < h[j].m }
func (h streamHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *streamHeap) Push(x interface{}) { *h = append(*h, x.(*stream)) }
func (h *streamHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}

// Merge combines the given spill files into outPath, keeping counts within
// [min, max] inclusive. The provenance header contributes the opaque
// cmdline fields of the output. On success it returns the input paths it
// consumed, so the caller may delete them.
func Merge(paths []string, outPath string, provenance format.Header, min, max uint64) ([]string, error) {
	if len(paths) == 0 {
		return nil, &MergeError{Err: errors.New("no input files")}
	}

	readers := make([]*dump.Reader, 0, len(paths))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	var first *format.Header
	outCounterLen := 0
	h := make(streamHeap, 0, len(paths))
	for _, p := range paths {
		r, err := dump.Open(p)
		if err != nil {
			return nil, &MergeError{File: p, Err: err}
		}
		readers = append(readers, r)
		if first == nil {
			first = r.Header()
		} else if err := first.Compatible(r.Header()); err != nil {
			return nil, &MergeError{File: p, Err: err}
		}
		outCounterLen = common.Max(outCounterLen, r.Header().CounterLen)
		s := &stream{r: r}
		done, err := s.advance()
		if err != nil {
			return nil, &MergeError{File: p, Err: err}
		}
		if !done {
			h = append(h, s)
		}
	}
	heap.Init(&h)

	hdr := provenance
	hdr.Format = first.Format
	hdr.KeyLen = first.KeyLen
	hdr.CounterLen = outCounterLen
	hdr.Canonical = first.Canonical
	hdr.Lower = min
	if max != ^uint64(0) {
		hdr.Upper = max
	}

	out, err := os.Create(outPath)
	if err != nil {
		return nil, &MergeError{File: outPath, Err: err}
	}
	bw := bufio.NewWriter(out)
	w, err := dump.NewWriter(bw, &hdr)
	if err != nil {
		out.Close()
		return nil, &MergeError{File: outPath, Err: err}
	}

	maxCount := common.MaxForWidth(outCounterLen)
	for h.Len() > 0 {
		key := h[0].m
		var sum uint64
		for h.Len() > 0 && h[0].m == key {
			s := h[0]
			if next := sum + s.count; next < sum || next > maxCount {
				sum = maxCount
			} else {
				sum = next
			}
			done, err := s.advance()
			if err != nil {
				out.Close()
				return nil, &MergeError{File: s.r.Path(), Err: err}
			}
			if done {
				heap.Pop(&h)
			} else {
				heap.Fix(&h, 0)
			}
		}
		if sum < min || sum > max {
			continue
		}
		if err := w.Write(key, sum); err != nil {
			out.Close()
			return nil, &MergeError{File: outPath, Err: err}
		}
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return nil, &MergeError{File: outPath, Err: err}
	}
	if err := out.Close(); err != nil {
		return nil, &MergeError{File: outPath, Err: err}
	}
	return paths, nil
}
