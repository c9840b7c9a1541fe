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

package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/mercount/mercount/dump"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] file",
	Short: "Print a count file as text",
	Long: `Print a count file as text

Reads a binary or text count file and writes one "MER COUNT" line per
record to stdout, optionally restricted to counts within [-L, -U].`,
	Args: cobra.ExactArgs(1),
	Run:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	fs := dumpCmd.Flags()
	fs.Uint64P("lower-count", "L", 0, "do not output mers with count < lower-count")
	fs.Uint64P("upper-count", "U", math.MaxUint64, "do not output mers with count > upper-count")
}

func runDump(cmd *cobra.Command, args []string) {
	lower := getFlagUint64(cmd, "lower-count")
	upper := getFlagUint64(cmd, "upper-count")

	r, err := dump.Open(args[0])
	checkError(err)
	defer r.Close()

	merLen := r.Header().KeyLen / 2
	w := bufio.NewWriter(os.Stdout)
	for {
		m, count, err := r.Next()
		if err == io.EOF {
			break
		}
		checkError(err)
		if count < lower || count > upper {
			continue
		}
		fmt.Fprintf(w, "%s %d\n", m.String(merLen), count)
	}
	checkError(w.Flush())
}
