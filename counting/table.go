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

// Package counting implements the concurrent fixed-capacity hash table
// mapping packed k-mer keys to bounded-width counters.
//
// The table is an open-addressed array of (key, counter) cell pairs. Slot
// claims are lock-free: a writer CASes the cell's key word from the empty
// sentinel to the key, retrying along a bounded linear reprobe sequence on
// collision. Counters saturate at the configured width's maximum and never
// wrap. When occupancy crosses the high-water mark, or a reprobe sequence is
// exhausted, exactly one goroutine relieves the pressure behind a barrier
// that pauses all mutators: the table either doubles in size or hands a
// snapshot to the configured flush function and resets.
package counting

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/mercount/mercount/common"
	"github.com/mercount/mercount/kmer"
)

// ErrTableFull is returned when an insertion cannot proceed and neither size
// doubling nor disk spill is available. The configured capacity was too
// small for the key distribution.
var ErrTableFull = errors.New("counting table full: rerun with a larger size or disk spill enabled")

// occupiedBit marks a cell's key word as claimed. Packed keys use at most
// 2*kmer.MaxK = 62 bits, so the zero word can serve as the empty sentinel
// even for the all-A mer.
const occupiedBit = uint64(1) << 63

// loadFactor is the high-water occupancy fraction beyond which the table
// asks to be relieved.
const loadFactor = 0.75

// DefaultMaxReprobes bounds the linear reprobe sequence.
const DefaultMaxReprobes = 126

// cell is one slot of the table. The key word is zero while empty, and
// occupiedBit|key once claimed; the count word is only touched after a
// successful claim.
type cell struct {
	key   atomic.Uint64
	count atomic.Uint64
}

// Entry is one (key, count) pair of a snapshot.
type Entry struct {
	Mer   kmer.Mer
	Count uint64
}

// Snapshot is the extracted content of the table at flush time. Entries are
// in arbitrary slot order; the dumper establishes the canonical key order.
type Snapshot struct {
	Entries    []Entry
	MerLen     int
	CounterLen int
	Canonical  bool
}

// FlushFunc receives a snapshot when the table spills. A non-nil error
// aborts the run.
type FlushFunc func(*Snapshot) error

// Table is the concurrent counting table. All mutation methods are safe for
// concurrent use without external synchronization.
type Table struct {
	merLen      int
	counterLen  int
	maxCount    uint64
	maxReprobes int
	canonical   bool
	doubling    bool
	flushFn     FlushFunc

	// mu is the flush barrier: mutators hold it shared, the relieve path
	// exclusively. cells, mask and threshold only change under the
	// exclusive lock.
	mu        sync.RWMutex
	cells     []cell
	mask      uint64
	threshold int64
	occupied  atomic.Int64
	epoch     atomic.Uint64

	workers sync.WaitGroup
}

// Option configures a Table.
type Option func(*Table)

// WithReprobes sets the maximum number of reprobe steps.
func WithReprobes(n int) Option {
	return func(t *Table) { t.maxReprobes = n }
}

// WithCanonical records that keys in this table are canonical mers. The
// table itself never canonicalizes; the flag travels into snapshots and file
// headers.
func WithCanonical(c bool) Option {
	return func(t *Table) { t.canonical = c }
}

// WithSizeDoubling lets the table double its capacity under pressure
// instead of spilling. Disabled when disk spill is requested.
func WithSizeDoubling(d bool) Option {
	return func(t *Table) { t.doubling = d }
}

// WithFlushFunc installs the spill destination. With a flush function set,
// capacity pressure produces a snapshot instead of growth.
func WithFlushFunc(f FlushFunc) Option {
	return func(t *Table) { t.flushFn = f }
}

// New creates a table of at least size slots (rounded up to a power of two)
// for mers of length merLen with counters of counterLen bits.
func New(size uint64, merLen, counterLen int, opts ...Option) (*Table, error) {
	if !kmer.ValidK(merLen) {
		return nil, fmt.Errorf("invalid mer length %d: must be in [1, %d]", merLen, kmer.MaxK)
	}
	if counterLen < 1 || counterLen > 64 {
		return nil, fmt.Errorf("invalid counter length %d: must be in [1, 64]", counterLen)
	}
	if size == 0 {
		return nil, fmt.Errorf("table size must be positive")
	}
	n := common.CeilPowerOf2(size)
	t := &Table{
		merLen:      merLen,
		counterLen:  counterLen,
		maxCount:    common.MaxForWidth(counterLen),
		maxReprobes: DefaultMaxReprobes,
		cells:       make([]cell, n),
		mask:        n - 1,
		threshold:   int64(float64(n) * loadFactor),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// MerLen returns the configured mer length.
func (t *Table) MerLen() int { return t.merLen }

// KeyLen returns the key width in bits (2 * mer length).
func (t *Table) KeyLen() int { return 2 * t.merLen }

// CounterLen returns the counter width in bits.
func (t *Table) CounterLen() int { return t.counterLen }

// Size returns the current number of slots.
func (t *Table) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.cells))
}

// Occupied returns the number of claimed slots.
func (t *Table) Occupied() int64 {
	return t.occupied.Load()
}

// slotHash maps a packed key to its primary slot index.
func slotHash(m kmer.Mer) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m))
	return xxhash.Sum64(buf[:])
}

// claim finds or claims the cell for m, reprobing linearly. Must be called
// with the barrier held shared. The second return is false when the reprobe
// sequence was exhausted.
func (t *Table) claim(m kmer.Mer) (*cell, bool) {
	stored := uint64(m) | occupiedBit
	idx := slotHash(m) & t.mask
	for probe := 0; probe <= t.maxReprobes; probe++ {
		c := &t.cells[(idx+uint64(probe))&t.mask]
		for {
			cur := c.key.Load()
			if cur == stored {
				return c, true
			}
			if cur == 0 {
				if c.key.CompareAndSwap(0, stored) {
					t.occupied.Add(1)
					return c, true
				}
				// Lost the race for this slot; reread it, the winner may
				// have stored our key.
				continue
			}
			break
		}
	}
	return nil, false
}

// bump adds delta to the cell's counter, saturating at the counter width's
// maximum.
func (t *Table) bump(c *cell, delta uint64) {
	for {
		cur := c.count.Load()
		if cur >= t.maxCount {
			return
		}
		next := cur + delta
		if next > t.maxCount || next < cur {
			next = t.maxCount
		}
		if c.count.CompareAndSwap(cur, next) {
			return
		}
	}
}

// mutate is the shared path of Add, Set and UpdateAdd. withCount selects
// whether the counter is bumped after the claim.
func (t *Table) mutate(m kmer.Mer, delta uint64, withCount bool) error {
	for {
		t.mu.RLock()
		c, ok := t.claim(m)
		if ok {
			if withCount {
				t.bump(c, delta)
			}
			over := t.occupied.Load() > t.threshold
			epoch := t.epoch.Load()
			t.mu.RUnlock()
			if over && (t.doubling || t.flushFn != nil) {
				return t.relieve(epoch)
			}
			return nil
		}
		epoch := t.epoch.Load()
		t.mu.RUnlock()
		if err := t.relieve(epoch); err != nil {
			return err
		}
	}
}

// Add inserts m with count delta, or increments its existing counter.
func (t *Table) Add(m kmer.Mer, delta uint64) error {
	return t.mutate(m, delta, true)
}

// Set marks m present without altering its count: a priming insert. A key
// already in the table keeps its counter.
func (t *Table) Set(m kmer.Mer) error {
	return t.mutate(m, 0, false)
}

// UpdateAdd increments the counter of a previously primed key. A key absent
// from the table is inserted fresh, so mers unseen during the priming pass
// are still counted.
func (t *Table) UpdateAdd(m kmer.Mer, delta uint64) error {
	return t.mutate(m, delta, true)
}

// relieve resolves capacity pressure observed at the given epoch. Exactly
// one caller performs the growth or spill; goroutines that observed the same
// pressure find the epoch advanced and return immediately.
func (t *Table) relieve(epoch uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch.Load() != epoch {
		return nil
	}
	switch {
	case t.doubling:
		return t.growLocked()
	case t.flushFn != nil:
		return t.flushFn(t.snapshotLocked())
	default:
		return ErrTableFull
	}
}

// growLocked doubles the cell array, reinserting every claimed cell. Counts
// carry over unchanged. Requires the exclusive lock.
func (t *Table) growLocked() error {
	old := t.cells
	size := uint64(len(old))
	for {
		size *= 2
		cells := make([]cell, size)
		mask := size - 1
		if rehash(old, cells, mask, t.maxReprobes) {
			t.cells = cells
			t.mask = mask
			t.threshold = int64(float64(size) * loadFactor)
			t.epoch.Add(1)
			return nil
		}
		// Reprobe exhaustion even at double size: keep doubling.
	}
}

// rehash moves claimed cells from old into cells, returning false if any
// reprobe sequence is exhausted.
func rehash(old, cells []cell, mask uint64, maxReprobes int) bool {
	for i := range old {
		k := old[i].key.Load()
		if k == 0 {
			continue
		}
		m := kmer.Mer(k &^ occupiedBit)
		idx := slotHash(m) & mask
		placed := false
		for probe := 0; probe <= maxReprobes; probe++ {
			c := &cells[(idx+uint64(probe))&mask]
			if c.key.Load() == 0 {
				c.key.Store(k)
				c.count.Store(old[i].count.Load())
				placed = true
				break
			}
		}
		if !placed {
			return false
		}
	}
	return true
}

// snapshotLocked extracts all entries and resets the table to empty at the
// same capacity. Requires the exclusive lock.
func (t *Table) snapshotLocked() *Snapshot {
	entries := make([]Entry, 0, t.occupied.Load())
	for i := range t.cells {
		k := t.cells[i].key.Load()
		if k == 0 {
			continue
		}
		entries = append(entries, Entry{
			Mer:   kmer.Mer(k &^ occupiedBit),
			Count: t.cells[i].count.Load(),
		})
	}
	t.cells = make([]cell, len(t.cells))
	t.occupied.Store(0)
	t.epoch.Add(1)
	return &Snapshot{
		Entries:    entries,
		MerLen:     t.merLen,
		CounterLen: t.counterLen,
		Canonical:  t.canonical,
	}
}

// SnapshotAndReset pauses all mutators, extracts the table's contents and
// resets it to empty. Used for the final dump, and by the spill path through
// the flush function.
func (t *Table) SnapshotAndReset() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// RegisterWorkers declares how many workers will mutate the table before
// the end-of-run join.
func (t *Table) RegisterWorkers(n int) {
	t.workers.Add(n)
}

// Done marks one worker's input partition as exhausted.
func (t *Table) Done() {
	t.workers.Done()
}

// Wait blocks until every registered worker has called Done.
func (t *Table) Wait() {
	t.workers.Wait()
}
