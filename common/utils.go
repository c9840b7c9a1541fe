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

// Package common holds small numeric helpers shared across the module.
package common

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Min returns the smaller of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// CeilPowerOf2 returns the smallest power of 2 greater than or equal to n.
func CeilPowerOf2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(1) << (64 - bits.LeadingZeros64(n-1))
}

// IsPowerOf2 returns true if the given number is a positive power of 2.
func IsPowerOf2(n uint64) bool {
	return n > 0 && (n&(n-1)) == 0
}

// ExactLog2 returns log2(n) for a power-of-2 n; ok is false otherwise.
func ExactLog2(n uint64) (int, bool) {
	if !IsPowerOf2(n) {
		return 0, false
	}
	return bits.TrailingZeros64(n), true
}

// MaxForWidth returns the largest value representable in w bits, the
// saturation point of a w-bit counter. Widths of 64 and above saturate the
// full word.
func MaxForWidth(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}
