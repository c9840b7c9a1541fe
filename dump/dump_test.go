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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercount/mercount/counting"
	"github.com/mercount/mercount/format"
	"github.com/mercount/mercount/kmer"
)

// readAll drains a dump file into an ordered slice of entries.
func readAll(t *testing.T, path string) []counting.Entry {
	t.Helper()
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	var out []counting.Entry
	for {
		m, count, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, counting.Entry{Mer: m, Count: count})
	}
}

func dumpOne(t *testing.T, dir string, text bool, snap *counting.Snapshot, min, max uint64) string {
	t.Helper()
	d := NewDumper(filepath.Join(dir, "out.mrc"), text, 32, format.Header{})
	d.OneFile(true)
	if min != 0 || max != 0 {
		d.SetBounds(min, max)
	}
	require.NoError(t, d.Dump(snap))
	return filepath.Join(dir, "out.mrc")
}

func TestRoundTripBinaryAndText(t *testing.T) {
	snap := &counting.Snapshot{
		Entries: []counting.Entry{
			{Mer: 99, Count: 1},
			{Mer: 7, Count: 3},
			{Mer: 13, Count: 2},
		},
		MerLen:     5,
		CounterLen: 16,
		Canonical:  true,
	}
	for _, text := range []bool{false, true} {
		path := dumpOne(t, t.TempDir(), text, snap, 0, 0)
		got := readAll(t, path)
		// Dumps are sorted in ascending key order.
		want := []counting.Entry{
			{Mer: 7, Count: 3},
			{Mer: 13, Count: 2},
			{Mer: 99, Count: 1},
		}
		assert.Equal(t, want, got, "text=%v", text)

		r, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, 10, r.Header().KeyLen)
		assert.True(t, r.Header().Canonical)
		r.Close()
	}
}

// The counting scenario [A, A, B, A, C, B] with a table large enough for
// three keys yields A=3, B=2, C=1; dumping with bounds [2, 10] must omit C
// entirely.
func TestBoundsOmitEntries(t *testing.T) {
	tbl, err := counting.New(16, 3, 16)
	require.NoError(t, err)
	a, _ := kmer.Parse("AAC")
	b, _ := kmer.Parse("ACG")
	c, _ := kmer.Parse("CGT")
	for _, m := range []kmer.Mer{a, a, b, a, c, b} {
		require.NoError(t, tbl.Add(m, 1))
	}
	snap := tbl.SnapshotAndReset()

	path := dumpOne(t, t.TempDir(), false, snap, 2, 10)
	got := readAll(t, path)
	want := []counting.Entry{
		{Mer: a, Count: 3},
		{Mer: b, Count: 2},
	}
	assert.Equal(t, want, got)
}

func TestSpillFileNaming(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "counts.mrc")
	d := NewDumper(out, false, 16, format.Header{})

	snap := &counting.Snapshot{
		Entries:    []counting.Entry{{Mer: 1, Count: 1}},
		MerLen:     3,
		CounterLen: 16,
	}
	require.NoError(t, d.Dump(snap))
	require.NoError(t, d.Dump(snap))

	assert.Equal(t, 2, d.NbFiles())
	assert.Equal(t, []string{out + "_0", out + "_1"}, d.Files())
	for _, p := range d.Files() {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
	// The final output path was not written.
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterSaturatesAtOutputWidth(t *testing.T) {
	var buf bytes.Buffer
	hdr := format.Header{Format: format.FormatBinary, KeyLen: 10, CounterLen: 8}
	w, err := NewWriter(&buf, &hdr)
	require.NoError(t, err)
	require.NoError(t, w.Write(5, 1000)) // exceeds 8-bit max

	r := bytes.NewReader(buf.Bytes())
	var got format.Header
	_, err = got.ReadFrom(r)
	require.NoError(t, err)
	rec := make([]byte, got.KeyBytes()+got.CounterBytes())
	_, err = io.ReadFull(r, rec)
	require.NoError(t, err)
	assert.Equal(t, byte(255), rec[got.KeyBytes()])
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	var buf bytes.Buffer
	hdr := format.Header{Format: format.FormatBinary, KeyLen: 10, CounterLen: 8}
	w, err := NewWriter(&buf, &hdr)
	require.NoError(t, err)
	require.NoError(t, w.Write(9, 1))
	assert.Error(t, w.Write(9, 1))
	assert.Error(t, w.Write(3, 1))
}

func TestReaderRejectsTruncatedRecord(t *testing.T) {
	snap := &counting.Snapshot{
		Entries:    []counting.Entry{{Mer: 1, Count: 1}, {Mer: 2, Count: 2}},
		MerLen:     5,
		CounterLen: 16,
	}
	path := dumpOne(t, t.TempDir(), false, snap, 0, 0)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	_, _, err = r.Next()
	require.NoError(t, err)
	_, _, err = r.Next()
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestOpenRejectsBloomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.bc")
	f, err := os.Create(path)
	require.NoError(t, err)
	hdr := format.Header{Format: format.FormatBloomCounter, KeyLen: 34}
	_, err = hdr.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
