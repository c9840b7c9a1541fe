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

// Package pipeline drives the counting phase: a fixed pool of workers, each
// consuming a disjoint partition of the input mer stream, applying the
// filter chain, and mutating the shared counting table according to the
// run's operation mode.
package pipeline

import (
	"github.com/mercount/mercount/bloom"
	"github.com/mercount/mercount/kmer"
)

// Filter decides whether a mer is passed on to the counting table.
type Filter interface {
	Accept(kmer.Mer) bool
}

// FilterFunc adapts a plain predicate to the Filter interface.
type FilterFunc func(kmer.Mer) bool

// Accept calls f.
func (f FilterFunc) Accept(m kmer.Mer) bool { return f(m) }

// All is the default filter: every mer is accepted.
var All Filter = FilterFunc(func(kmer.Mer) bool { return true })

// Chain combines filters conjunctively, in order, short-circuiting on the
// first rejection.
func Chain(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return All
	case 1:
		return filters[0]
	}
	return FilterFunc(func(m kmer.Mer) bool {
		for _, f := range filters {
			if !f.Accept(m) {
				return false
			}
		}
		return true
	})
}

// BloomGate accepts a mer only once the bloom counter estimates it has been
// seen more than once, deferring exact counting of apparent singletons.
func BloomGate(c *bloom.Counter) Filter {
	return FilterFunc(func(m kmer.Mer) bool {
		return c.Check(m) > 1
	})
}
