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
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/mercount/mercount/counting"
	"github.com/mercount/mercount/format"
)

// Dumper serializes counting table snapshots. Each Dump call appends a new
// spill file named after the output path and its sequence number, unless
// one-file mode is set and this is the run's only dump, in which case the
// output path itself is written as the final artifact.
//
// Entries with counts outside the configured [min, max] bounds are omitted
// from the output entirely, not clamped.
type Dumper struct {
	outPath    string
	text       bool
	outCounter int
	provenance format.Header

	min     uint64
	max     uint64
	oneFile bool
	files   []string
}

// NewDumper creates a dumper writing to outPath. outCounterLen is the
// output counter width in bits; text selects the human-readable encoding.
// The provenance header contributes the opaque cmdline/host/time fields to
// every file written.
func NewDumper(outPath string, text bool, outCounterLen int, provenance format.Header) *Dumper {
	return &Dumper{
		outPath:    outPath,
		text:       text,
		outCounter: outCounterLen,
		provenance: provenance,
		min:        0,
		max:        math.MaxUint64,
	}
}

// SetBounds restricts subsequent dumps to counts within [min, max]
// inclusive.
func (d *Dumper) SetBounds(min, max uint64) {
	d.min, d.max = min, max
}

// OneFile makes the next dump, if it is the first, write the final output
// path directly instead of a spill file.
func (d *Dumper) OneFile(one bool) {
	d.oneFile = one
}

// Files returns the spill files written so far, in dump order.
func (d *Dumper) Files() []string { return d.files }

// NbFiles returns the number of spill files written so far.
func (d *Dumper) NbFiles() int { return len(d.files) }

// Dump writes one snapshot, sorted in ascending key order.
func (d *Dumper) Dump(snap *counting.Snapshot) error {
	path := fmt.Sprintf("%s_%d", d.outPath, len(d.files))
	final := d.oneFile && len(d.files) == 0
	if final {
		path = d.outPath
	}

	hdr := d.provenance
	hdr.Format = format.FormatBinary
	if d.text {
		hdr.Format = format.FormatText
	}
	hdr.KeyLen = 2 * snap.MerLen
	hdr.CounterLen = d.outCounter
	if hdr.CounterLen == 0 {
		hdr.CounterLen = snap.CounterLen
	}
	hdr.Canonical = snap.Canonical
	hdr.Lower = d.min
	if d.max != math.MaxUint64 {
		hdr.Upper = d.max
	}

	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Mer < snap.Entries[j].Mer
	})

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating dump file %s", path)
	}
	bw := bufio.NewWriter(f)
	w, err := NewWriter(bw, &hdr)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "dump file %s", path)
	}
	for _, e := range snap.Entries {
		if e.Count < d.min || e.Count > d.max {
			continue
		}
		if err := w.Write(e.Mer, e.Count); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing dump file %s", path)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing dump file %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing dump file %s", path)
	}
	if !final {
		d.files = append(d.files, path)
	}
	return nil
}
