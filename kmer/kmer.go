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

// Package kmer implements fixed-length nucleotide substrings ("k-mers")
// packed two bits per base into a 64-bit integer, together with the rolling
// window and sequence scanner that turn raw sequence bytes into successive
// canonical k-mers.
//
// The packed encoding is A=0, C=1, G=2, T=3, with the 5' end of the k-mer in
// the most significant bits. Keys compare in unsigned numeric order of the
// packed encoding; that order is the canonical total order used by every
// on-disk (key, count) stream in this module.
package kmer

import (
	"fmt"
)

// MaxK is the largest supported mer length. One bit of the 64-bit cell word
// is reserved as an occupancy marker by the counting table, leaving 62 bits
// (31 bases) for the key itself.
const MaxK = 31

// Mer is a packed k-mer. The mer length is carried externally: it is a
// process-wide configuration value fixed before any counting begins.
type Mer uint64

// baseChars maps a 2-bit code back to its nucleotide symbol.
var baseChars = [4]byte{'A', 'C', 'G', 'T'}

// baseCode converts an upper- or lower-case nucleotide symbol to its 2-bit
// code. The second return is false for any symbol outside ACGTacgt.
func baseCode(b byte) (uint64, bool) {
	switch b {
	case 'A', 'a', 'C', 'c', 'G', 'g', 'T', 't':
		return uint64(((b >> 1) ^ ((b & 4) >> 2)) & 3), true
	default:
		return 0, false
	}
}

// ValidK reports whether k is a usable mer length.
func ValidK(k int) bool {
	return k >= 1 && k <= MaxK
}

// Mask returns the bit mask covering the 2k low bits of a packed mer.
func Mask(k int) uint64 {
	return (uint64(1) << uint(2*k)) - 1
}

// ReverseComplement returns the mer read on the opposite strand: bases in
// reverse order, each complemented (A<->T, C<->G).
func ReverseComplement(m Mer, k int) Mer {
	v := uint64(m)
	var rc uint64
	for i := 0; i < k; i++ {
		rc = (rc << 2) | (^v & 3)
		v >>= 2
	}
	return Mer(rc & Mask(k))
}

// Canonical returns the lexicographically smaller of m and its reverse
// complement, the single representative key for both strands.
func Canonical(m Mer, k int) Mer {
	if rc := ReverseComplement(m, k); rc < m {
		return rc
	}
	return m
}

// Parse packs a nucleotide string of length k. Any symbol outside ACGTacgt
// is an error.
func Parse(s string) (Mer, error) {
	if len(s) > MaxK {
		return 0, fmt.Errorf("mer %q longer than %d bases", s, MaxK)
	}
	var m uint64
	for i := 0; i < len(s); i++ {
		code, ok := baseCode(s[i])
		if !ok {
			return 0, fmt.Errorf("invalid base %q in mer %q", s[i], s)
		}
		m = (m << 2) | code
	}
	return Mer(m), nil
}

// String renders the mer as k nucleotide symbols.
func (m Mer) String(k int) string {
	buf := make([]byte, k)
	v := uint64(m)
	for i := k - 1; i >= 0; i-- {
		buf[i] = baseChars[v&3]
		v >>= 2
	}
	return string(buf)
}
