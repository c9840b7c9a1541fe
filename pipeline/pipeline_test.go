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
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercount/mercount/bloom"
	"github.com/mercount/mercount/counting"
	"github.com/mercount/mercount/kmer"
)

func TestChainOrderAndShortCircuit(t *testing.T) {
	var calls []string
	record := func(name string, accept bool) Filter {
		return FilterFunc(func(kmer.Mer) bool {
			calls = append(calls, name)
			return accept
		})
	}

	assert.True(t, Chain().Accept(0))
	assert.True(t, All.Accept(12345))

	f := Chain(record("a", true), record("b", false), record("c", true))
	assert.False(t, f.Accept(0))
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	f = Chain(record("a", true), record("b", true))
	assert.True(t, f.Accept(0))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestBloomGatePassesRepeatsOnly(t *testing.T) {
	bc, err := bloom.NewCounter(1<<12, 4, 9)
	require.NoError(t, err)
	gate := BloomGate(bc)

	m := kmer.Mer(4242)
	assert.False(t, gate.Accept(m))
	bc.Insert(m)
	assert.False(t, gate.Accept(m))
	bc.Insert(m)
	assert.True(t, gate.Accept(m))
}

// tableCounts drains a table into a map keyed by packed mer.
func tableCounts(t *counting.Table) map[kmer.Mer]uint64 {
	out := make(map[kmer.Mer]uint64)
	for _, e := range t.SnapshotAndReset().Entries {
		out[e.Mer] = e.Count
	}
	return out
}

// randomSequence builds a FASTA record of n random bases.
func randomSequence(rng *rand.Rand, n int) string {
	var sb strings.Builder
	sb.WriteString(">read\n")
	for i := 0; i < n; i++ {
		sb.WriteByte("ACGT"[rng.Intn(4)])
		if (i+1)%70 == 0 {
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func TestRunMatchesSequentialScan(t *testing.T) {
	const k = 9
	rng := rand.New(rand.NewSource(7))
	seqs := make([]string, 8)
	for i := range seqs {
		seqs[i] = randomSequence(rng, 2000)
	}

	want := make(map[kmer.Mer]uint64)
	for _, s := range seqs {
		sc := kmer.NewScanner(strings.NewReader(s), k, true)
		for {
			m, err := sc.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			want[m]++
		}
	}

	tbl, err := counting.New(1<<10, k, 32, counting.WithCanonical(true), counting.WithSizeDoubling(true))
	require.NoError(t, err)
	sources := make([]Source, len(seqs))
	for i, s := range seqs {
		sources[i] = NewReaderSource(strings.NewReader(s), k, true)
	}
	require.NoError(t, Run(tbl, nil, ModeCount, sources))
	assert.Equal(t, want, tableCounts(tbl))
}

func TestRunPrimeThenUpdate(t *testing.T) {
	const k = 5
	primed := ">p\nAACGT\n"
	// Two records: the window must not roll from one into the other.
	update := ">u\nAACGTAACGT\n>t\nTTTTT\n"

	tbl, err := counting.New(64, k, 16)
	require.NoError(t, err)

	require.NoError(t, Run(tbl, nil, ModePrime,
		[]Source{NewReaderSource(strings.NewReader(primed), k, false)}))
	require.NoError(t, Run(tbl, nil, ModeUpdate,
		[]Source{NewReaderSource(strings.NewReader(update), k, false)}))

	aacgt, _ := kmer.Parse("AACGT")
	ttttt, _ := kmer.Parse("TTTTT")
	got := tableCounts(tbl)
	// AACGT was primed to zero, then updated twice. The remaining mers of the
	// update stream were never primed but are still inserted and counted.
	assert.Equal(t, uint64(2), got[aacgt])
	assert.Equal(t, uint64(1), got[ttttt])
	for _, bridge := range []string{"ACGTT", "CGTTT", "GTTTT"} {
		m, _ := kmer.Parse(bridge)
		assert.NotContains(t, got, m, "mer %s spans the record boundary", bridge)
	}
}

// A counting pass gated by a primed bloom counter admits no singletons:
// every key in the table was seen at least twice in the input.
func TestRunWithBloomGateDropsSingletons(t *testing.T) {
	const k = 9
	rng := rand.New(rand.NewSource(11))
	seq := randomSequence(rng, 4000)

	bc, err := bloom.NewCounter(1<<20, 4, k)
	require.NoError(t, err)
	sc := kmer.NewScanner(strings.NewReader(seq), k, true)
	exact := make(map[kmer.Mer]uint64)
	for {
		m, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		bc.Insert(m)
		exact[m]++
	}

	tbl, err := counting.New(1<<10, k, 32, counting.WithCanonical(true), counting.WithSizeDoubling(true))
	require.NoError(t, err)
	err = Run(tbl, Chain(BloomGate(bc)), ModeCount,
		[]Source{NewReaderSource(strings.NewReader(seq), k, true)})
	require.NoError(t, err)

	got := tableCounts(tbl)
	for m := range got {
		assert.GreaterOrEqual(t, exact[m], uint64(2), "singleton %s passed the gate", m.String(k))
	}
	// The gate never undershoots, so repeated mers pass on every occurrence
	// and keep their exact counts.
	for m, n := range exact {
		if n >= 2 {
			assert.Equal(t, n, got[m], "repeated mer %s", m.String(k))
		}
	}
}

func TestRunPropagatesSourceError(t *testing.T) {
	tbl, err := counting.New(64, 5, 16)
	require.NoError(t, err)

	boom := errors.New("stream broke")
	bad := sourceFunc(func() (kmer.Mer, error) { return 0, boom })
	good := NewReaderSource(strings.NewReader(">r\nAACGTAACGT\n"), 5, false)

	err = Run(tbl, nil, ModeCount, []Source{good, bad})
	assert.ErrorIs(t, err, boom)
}

type sourceFunc func() (kmer.Mer, error)

func (f sourceFunc) Next() (kmer.Mer, error) { return f() }

func TestFileSourceAndConcat(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.fa")
	p2 := filepath.Join(dir, "b.fa")
	require.NoError(t, os.WriteFile(p1, []byte(">a\nAACGT\n"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte(">b\nTTTTT\n"), 0o644))

	var got []kmer.Mer
	src := NewFileSource([]string{p1, p2}, 5, false)
	for {
		m, err := src.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, m)
	}
	aacgt, _ := kmer.Parse("AACGT")
	ttttt, _ := kmer.Parse("TTTTT")
	assert.Equal(t, []kmer.Mer{aacgt, ttttt}, got)

	src = Concat(
		NewReaderSource(strings.NewReader(">x\nAACGT\n"), 5, false),
		NewReaderSource(strings.NewReader(">y\nTTTTT\n"), 5, false),
	)
	got = got[:0]
	for {
		m, err := src.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, m)
	}
	assert.Equal(t, []kmer.Mer{aacgt, ttttt}, got)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource([]string{filepath.Join(t.TempDir(), "nope.fa")}, 5, false)
	_, err := src.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.fa")
}

func TestPartitionPaths(t *testing.T) {
	paths := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "c", "e"}, {"b", "d"}}, PartitionPaths(paths, 2))
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "e"}}, PartitionPaths(paths, 0))
	// Workers beyond the file count get no partition.
	assert.Equal(t, [][]string{{"a"}, {"b"}}, PartitionPaths(paths[:2], 4))
	assert.Empty(t, PartitionPaths(nil, 3))
}

func TestGeneratorManagerStreamsCommands(t *testing.T) {
	dir := t.TempDir()
	gens := filepath.Join(dir, "generators")
	content := "printf '>g1\\nAACGT\\n'\n" +
		"\n" +
		"printf '>g2\\nTTTTT\\n'\n" +
		"printf '>g3\\nCCCCC\\n'\n"
	require.NoError(t, os.WriteFile(gens, []byte(content), 0o644))

	mgr, err := NewGeneratorManager(gens, 2, "/bin/sh")
	require.NoError(t, err)
	pipes := mgr.Start()
	require.Len(t, pipes, 2)

	got := make(map[kmer.Mer]bool)
	for _, p := range pipes {
		sc := kmer.NewScanner(p, 5, false)
		for {
			m, err := sc.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			got[m] = true
		}
	}
	require.NoError(t, mgr.Wait())

	for _, s := range []string{"AACGT", "TTTTT", "CCCCC"} {
		m, _ := kmer.Parse(s)
		assert.True(t, got[m], "missing output of generator for %s", s)
	}
}

// A failing generator still delivers the data it produced before exiting,
// and Wait reports the failure afterwards.
func TestGeneratorManagerReportsFailure(t *testing.T) {
	dir := t.TempDir()
	gens := filepath.Join(dir, "generators")
	content := "printf '>g\\nAACGT\\n'; exit 3\n"
	require.NoError(t, os.WriteFile(gens, []byte(content), 0o644))

	mgr, err := NewGeneratorManager(gens, 1, "/bin/sh")
	require.NoError(t, err)
	pipes := mgr.Start()
	require.Len(t, pipes, 1)

	sc := kmer.NewScanner(pipes[0], 5, false)
	m, err := sc.Next()
	require.NoError(t, err)
	aacgt, _ := kmer.Parse("AACGT")
	assert.Equal(t, aacgt, m)
	_, err = sc.Next()
	assert.Equal(t, io.EOF, err)

	err = mgr.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestGeneratorManagerRejectsEmptyFile(t *testing.T) {
	gens := filepath.Join(t.TempDir(), "generators")
	require.NoError(t, os.WriteFile(gens, []byte("\n\n"), 0o644))
	_, err := NewGeneratorManager(gens, 2, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no commands")
}
