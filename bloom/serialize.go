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

package bloom

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/mercount/mercount/format"
)

// WriteTo serializes the filter: a "bloomcounter" header followed by the
// raw counter cells.
func (c *Counter) WriteTo(w io.Writer) (int64, error) {
	hdr := format.Header{
		Format:   format.FormatBloomCounter,
		KeyLen:   c.KeyLen(),
		Size:     c.size,
		NbHashes: c.nbHashes,
		SeedA:    c.seedA,
		SeedB:    c.seedB,
	}
	hdr.FillStandard()
	n, err := hdr.WriteTo(w)
	if err != nil {
		return n, err
	}
	m, err := w.Write(c.counters)
	return n + int64(m), err
}

// Save writes the filter to path.
func (c *Counter) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating bloom counter file %s", path)
	}
	bw := bufio.NewWriter(f)
	if _, err := c.WriteTo(bw); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing bloom counter file %s", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing bloom counter file %s", path)
	}
	return f.Close()
}

// Load reads a bloom counter file and validates it against the run's mer
// length. Every mismatch is fatal and names the file and the offending
// field: wrong format tag, wrong key length, missing hash seed pair, or a
// truncated counter array.
func Load(path string, merLen int) (*Counter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bloom counter file %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var hdr format.Header
	if _, err := hdr.ReadFrom(r); err != nil {
		return nil, errors.Wrapf(err, "parsing bloom counter file %s", path)
	}
	if hdr.Format != format.FormatBloomCounter {
		return nil, errors.Errorf("%s: invalid format %q, expected %q", path, hdr.Format, format.FormatBloomCounter)
	}
	if hdr.KeyLen != 2*merLen {
		return nil, errors.Errorf("%s: key length %d does not match mer length %d (expected %d)",
			path, hdr.KeyLen, merLen, 2*merLen)
	}
	if hdr.SeedA == 0 && hdr.SeedB == 0 {
		return nil, errors.Errorf("%s: missing hash seed pair", path)
	}

	c, err := NewCounter(hdr.Size, hdr.NbHashes, merLen, WithSeeds(hdr.SeedA, hdr.SeedB))
	if err != nil {
		return nil, errors.Wrapf(err, "bloom counter file %s", path)
	}
	if _, err := io.ReadFull(r, c.counters); err != nil {
		return nil, errors.Wrapf(err, "bloom counter file %s is truncated", path)
	}
	return c, nil
}
