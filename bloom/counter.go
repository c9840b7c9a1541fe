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

// Package bloom implements an approximate counting filter over packed k-mer
// keys: a fixed array of small saturating counters indexed by several hash
// functions derived from a seed pair via double hashing. Check returns the
// minimum counter across the indexed positions, an upper bound on how many
// times the key has been observed. One-sided error only: the estimate can
// overshoot on hash collisions, never undershoot.
//
// The counting engine uses a loaded filter read-only, to defer exact
// counting of apparent singletons: a key is admitted to the exact table only
// once its estimate exceeds one.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/twmb/murmur3"

	"github.com/mercount/mercount/kmer"
)

// Default hash seed pair. Filters built and consumed by the same pipeline
// share these unless overridden; the pair travels in the file header and a
// mismatch there is fatal at load time.
const (
	DefaultSeedA = uint64(9001)
	DefaultSeedB = uint64(9002)
)

// counterMax is the saturation point of the 8-bit cells.
const counterMax = math.MaxUint8

// Counter is the approximate counting filter. Insert is not safe for
// concurrent use; Check on a filter that is no longer being written is.
type Counter struct {
	merLen   int
	size     uint64
	nbHashes int
	seedA    uint64
	seedB    uint64
	counters []uint8
}

// Option configures a Counter under construction.
type Option func(*Counter)

// WithSeeds sets the hash seed pair. The all-zero pair is reserved: it marks
// an absent pair in file headers and is rejected at construction.
func WithSeeds(a, b uint64) Option {
	return func(c *Counter) { c.seedA, c.seedB = a, b }
}

// NewCounter creates a filter with size counter positions and nbHashes hash
// functions for mers of length merLen.
func NewCounter(size uint64, nbHashes, merLen int, opts ...Option) (*Counter, error) {
	if size == 0 {
		return nil, fmt.Errorf("filter size must be positive")
	}
	if nbHashes < 1 {
		return nil, fmt.Errorf("nbHashes must be positive")
	}
	if !kmer.ValidK(merLen) {
		return nil, fmt.Errorf("invalid mer length %d: must be in [1, %d]", merLen, kmer.MaxK)
	}
	c := &Counter{
		merLen:   merLen,
		size:     size,
		nbHashes: nbHashes,
		seedA:    DefaultSeedA,
		seedB:    DefaultSeedB,
		counters: make([]uint8, size),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.seedA == 0 && c.seedB == 0 {
		return nil, fmt.Errorf("hash seed pair must not be all zero")
	}
	return c, nil
}

// NewCounterForItems sizes a filter for the expected number of distinct
// mers at the target false positive probability.
func NewCounterForItems(items uint64, fpp float64, merLen int, opts ...Option) (*Counter, error) {
	if items == 0 {
		return nil, fmt.Errorf("items must be positive")
	}
	if fpp <= 0.0 || fpp >= 1.0 {
		return nil, fmt.Errorf("fpp must be between 0 and 1")
	}
	size := SuggestSize(items, fpp)
	return NewCounter(size, SuggestNbHashes(items, size), merLen, opts...)
}

// SuggestSize returns the number of counter positions needed to hold the
// expected item count at the target false positive probability.
func SuggestSize(items uint64, fpp float64) uint64 {
	bits := math.Ceil(-float64(items) * math.Log(fpp) / (math.Ln2 * math.Ln2))
	if bits < 1 {
		return 1
	}
	return uint64(bits)
}

// SuggestNbHashes returns the optimal hash function count for the ratio of
// positions to items.
func SuggestNbHashes(items, size uint64) int {
	if items == 0 {
		return 1
	}
	k := int(math.Ceil(float64(size) / float64(items) * math.Ln2))
	if k < 1 {
		return 1
	}
	return k
}

// MerLen returns the mer length the filter was built for.
func (c *Counter) MerLen() int { return c.merLen }

// KeyLen returns the key width in bits.
func (c *Counter) KeyLen() int { return 2 * c.merLen }

// Size returns the number of counter positions.
func (c *Counter) Size() uint64 { return c.size }

// NbHashes returns the number of hash functions.
func (c *Counter) NbHashes() int { return c.nbHashes }

// Seeds returns the hash seed pair.
func (c *Counter) Seeds() (uint64, uint64) { return c.seedA, c.seedB }

// hashPair derives the two base hashes of a key; position i is
// (h1 + i*h2) mod size.
func (c *Counter) hashPair(m kmer.Mer) (uint64, uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m))
	return murmur3.SeedSum128(c.seedA, c.seedB, buf[:])
}

// Insert records one observation of m. Only positions holding the current
// minimum are incremented, so Check stays as tight an upper bound as the
// geometry allows. Cells saturate rather than wrap.
func (c *Counter) Insert(m kmer.Mer) {
	h1, h2 := c.hashPair(m)
	est := uint8(counterMax)
	for i := 0; i < c.nbHashes; i++ {
		pos := (h1 + uint64(i)*h2) % c.size
		if v := c.counters[pos]; v < est {
			est = v
		}
	}
	if est == counterMax {
		return
	}
	for i := 0; i < c.nbHashes; i++ {
		pos := (h1 + uint64(i)*h2) % c.size
		if c.counters[pos] == est {
			c.counters[pos] = est + 1
		}
	}
}

// Check returns the filter's estimate of how many times m has been
// observed: the minimum counter across the indexed positions.
func (c *Counter) Check(m kmer.Mer) uint {
	h1, h2 := c.hashPair(m)
	est := uint8(counterMax)
	for i := 0; i < c.nbHashes; i++ {
		pos := (h1 + uint64(i)*h2) % c.size
		if v := c.counters[pos]; v < est {
			est = v
		}
	}
	return uint(est)
}
