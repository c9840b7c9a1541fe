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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version of the mercount tool.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "mercount",
	Short:   "Fast, memory-bounded k-mer counting",
	Version: Version,
	Long: `mercount - fast, memory-bounded k-mer counting

Counts the occurrences of fixed-length substrings (k-mers) of nucleotide
sequence data into a compact on-disk table of (k-mer, count) pairs. The
in-memory table is a fixed-capacity concurrent hash; when disk spill is
enabled it may exceed physical memory by flushing intermediate files and
merging them afterward.`,
}

// Execute runs the root command; any error exits non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
