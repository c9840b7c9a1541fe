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
	"io"
	"sync"
	"sync/atomic"

	"github.com/mercount/mercount/counting"
)

// Mode is the process-wide operation mode of a counting pass.
type Mode int

const (
	// ModeCount increments every accepted mer: the single-pass default.
	ModeCount Mode = iota
	// ModePrime marks accepted mers present without incrementing,
	// pre-seeding the table before an update pass.
	ModePrime
	// ModeUpdate increments previously primed mers; a mer absent from the
	// table is inserted fresh.
	ModeUpdate
)

func (m Mode) String() string {
	switch m {
	case ModeCount:
		return "count"
	case ModePrime:
		return "prime"
	case ModeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Run executes one counting pass: one worker per source, all mutating the
// shared table through the filter chain until every partition is exhausted.
// The first error aborts the pass; remaining workers stop at the next mer.
func Run(t *counting.Table, filter Filter, mode Mode, sources []Source) error {
	if filter == nil {
		filter = All
	}
	t.RegisterWorkers(len(sources))

	var (
		stop    atomic.Bool
		errOnce sync.Once
		runErr  error
		wg      sync.WaitGroup
	)
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
		stop.Store(true)
	}

	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			defer t.Done()
			for !stop.Load() {
				m, err := src.Next()
				if err == io.EOF {
					return
				}
				if err != nil {
					fail(err)
					return
				}
				if !filter.Accept(m) {
					continue
				}
				switch mode {
				case ModeCount:
					err = t.Add(m, 1)
				case ModePrime:
					err = t.Set(m)
				case ModeUpdate:
					err = t.UpdateAdd(m, 1)
				}
				if err != nil {
					fail(err)
					return
				}
			}
		}(src)
	}
	wg.Wait()
	t.Wait()
	return runErr
}
