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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	testCases := []struct {
		seq  string
		want Mer
	}{
		{"A", 0},
		{"C", 1},
		{"G", 2},
		{"T", 3},
		{"AC", 1},
		{"CG", 6},
		{"GT", 11},
		{"ACGT", 0x1B},
		{"TTTT", 0xFF},
	}
	for _, tc := range testCases {
		m, err := Parse(tc.seq)
		require.NoError(t, err)
		assert.Equal(t, tc.want, m, "packing %q", tc.seq)
		assert.Equal(t, tc.seq, m.String(len(tc.seq)))
	}
}

func TestParseLowerCase(t *testing.T) {
	lo, err := Parse("acgt")
	require.NoError(t, err)
	up, err := Parse("ACGT")
	require.NoError(t, err)
	assert.Equal(t, up, lo)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("ACNGT")
	assert.Error(t, err)

	_, err = Parse(strings.Repeat("A", MaxK+1))
	assert.Error(t, err)
}

func TestReverseComplement(t *testing.T) {
	testCases := []struct {
		seq, rc string
	}{
		{"A", "T"},
		{"AC", "GT"},
		{"ACGT", "ACGT"}, // palindrome
		{"AAAA", "TTTT"},
		{"GATTACA", "TGTAATC"},
	}
	for _, tc := range testCases {
		m, err := Parse(tc.seq)
		require.NoError(t, err)
		want, err := Parse(tc.rc)
		require.NoError(t, err)
		got := ReverseComplement(m, len(tc.seq))
		assert.Equal(t, want, got, "rc of %q", tc.seq)
		// Involution
		assert.Equal(t, m, ReverseComplement(got, len(tc.seq)))
	}
}

func TestCanonical(t *testing.T) {
	m, err := Parse("GATTACA")
	require.NoError(t, err)
	rc := ReverseComplement(m, 7)
	assert.Equal(t, Canonical(m, 7), Canonical(rc, 7))
	c := Canonical(m, 7)
	assert.True(t, c == m || c == rc)
	assert.LessOrEqual(t, uint64(c), uint64(m))
	assert.LessOrEqual(t, uint64(c), uint64(rc))
}

func TestWindowEmitsOverlappingMers(t *testing.T) {
	w := NewWindow(2, false)
	var got []Mer
	for _, b := range []byte("ACGT") {
		if m, ok := w.Push(b); ok {
			got = append(got, m)
		}
	}
	want := []Mer{1, 6, 11} // AC, CG, GT
	assert.Equal(t, want, got)
}

func TestWindowResetsOnInvalidBase(t *testing.T) {
	w := NewWindow(3, false)
	var got []Mer
	for _, b := range []byte("ACNGTA") {
		if m, ok := w.Push(b); ok {
			got = append(got, m)
		}
	}
	// Only GTA completes: no mer spans the N.
	gta, err := Parse("GTA")
	require.NoError(t, err)
	assert.Equal(t, []Mer{gta}, got)
}

func TestWindowCanonical(t *testing.T) {
	w := NewWindow(2, true)
	w.Push('T')
	m, ok := w.Push('T')
	require.True(t, ok)
	// TT canonicalizes to AA.
	assert.Equal(t, Mer(0), m)
}

func scanAll(t *testing.T, input string, k int, canonical bool) []Mer {
	t.Helper()
	sc := NewScanner(strings.NewReader(input), k, canonical)
	var got []Mer
	for {
		m, err := sc.Next()
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
		got = append(got, m)
	}
}

func TestScannerSingleRecord(t *testing.T) {
	got := scanAll(t, ">read1\nACGTA\n", 3, false)
	want := make([]Mer, 0, 3)
	for _, s := range []string{"ACG", "CGT", "GTA"} {
		m, err := Parse(s)
		require.NoError(t, err)
		want = append(want, m)
	}
	assert.Equal(t, want, got)
}

func TestScannerRecordBoundary(t *testing.T) {
	// No mer spans the two records.
	got := scanAll(t, ">r1\nACG\n>r2\nTTT\n", 3, false)
	acg, _ := Parse("ACG")
	ttt, _ := Parse("TTT")
	assert.Equal(t, []Mer{acg, ttt}, got)
}

func TestScannerMultiLineSequence(t *testing.T) {
	// A mer may span a line break within one record.
	joined := scanAll(t, ">r\nACGTAC\n", 4, false)
	split := scanAll(t, ">r\nACG\nTAC\n", 4, false)
	assert.Equal(t, joined, split)
	assert.Len(t, joined, 3)
}

func TestScannerUnboundedLineLength(t *testing.T) {
	// Whole-chromosome-on-one-line input: a single sequence line much larger
	// than the read chunk must stream through without a length error.
	const k = 25
	n := 5 << 20
	seq := strings.Repeat("ACGT", n/4)
	got := scanAll(t, ">chr1\n"+seq+"\n", k, false)
	assert.Len(t, got, n-k+1)

	first, err := Parse(seq[:k])
	require.NoError(t, err)
	last, err := Parse(seq[n-k:])
	require.NoError(t, err)
	assert.Equal(t, first, got[0])
	assert.Equal(t, last, got[len(got)-1])
}

func TestScannerEmptyInput(t *testing.T) {
	assert.Empty(t, scanAll(t, "", 3, false))
	assert.Empty(t, scanAll(t, ">only header\n", 3, false))
}
