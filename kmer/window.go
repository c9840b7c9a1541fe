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

// Window is a rolling k-base encoder. Bases are pushed one at a time; once k
// valid bases have been seen since the last reset, every further push yields
// the next overlapping mer. The forward mer and its reverse complement are
// maintained together so canonicalization is a single comparison per base.
type Window struct {
	k         int
	canonical bool
	mask      uint64
	shift     uint // distance to the high base position of the RC mer
	fwd       uint64
	rc        uint64
	filled    int
}

// NewWindow returns a rolling window over mers of length k. When canonical
// is set, Push emits the smaller of the mer and its reverse complement.
func NewWindow(k int, canonical bool) *Window {
	return &Window{
		k:         k,
		canonical: canonical,
		mask:      Mask(k),
		shift:     uint(2 * (k - 1)),
	}
}

// K returns the mer length of the window.
func (w *Window) K() int { return w.k }

// Reset discards the partial window, e.g. at a sequence boundary.
func (w *Window) Reset() {
	w.fwd, w.rc, w.filled = 0, 0, 0
}

// Push feeds one sequence byte. It returns the mer ending at this base and
// true once the window is full. A byte outside ACGTacgt resets the window:
// no mer spanning an ambiguous base is ever emitted.
func (w *Window) Push(b byte) (Mer, bool) {
	code, ok := baseCode(b)
	if !ok {
		w.Reset()
		return 0, false
	}
	w.fwd = ((w.fwd << 2) | code) & w.mask
	w.rc = (w.rc >> 2) | ((^code&3)<<w.shift)&w.mask
	if w.filled < w.k {
		w.filled++
		if w.filled < w.k {
			return 0, false
		}
	}
	if w.canonical && w.rc < w.fwd {
		return Mer(w.rc), true
	}
	return Mer(w.fwd), true
}
