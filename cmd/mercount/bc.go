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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mercount/mercount/bloom"
	"github.com/mercount/mercount/kmer"
)

var bcCmd = &cobra.Command{
	Use:   "bc [flags] file...",
	Short: "Build a bloom counter file from sequence files",
	Long: `Build a bloom counter file from sequence files

Streams every mer of the inputs through an approximate counting filter and
writes it out. The resulting file can be handed to 'mercount count --bf' to
keep singleton mers out of the exact table.`,
	Run: runBC,
}

func init() {
	rootCmd.AddCommand(bcCmd)
	fs := bcCmd.Flags()
	fs.IntP("mer-len", "m", 0, "length of mer (required)")
	fs.Uint64P("size", "s", 0, "expected number of distinct mers (required)")
	fs.Float64P("fpr", "f", 0.01, "false positive rate")
	fs.BoolP("canonical", "C", false, "count both strand, canonical representation")
	fs.StringP("output", "o", "mer_bloom.bc", "output file path")
	bcCmd.MarkFlagRequired("mer-len")
	bcCmd.MarkFlagRequired("size")
}

func runBC(cmd *cobra.Command, args []string) {
	merLen := getFlagPositiveInt(cmd, "mer-len")
	size := getFlagUint64(cmd, "size")
	fpr, err := cmd.Flags().GetFloat64("fpr")
	checkError(err)
	canonical := getFlagBool(cmd, "canonical")
	output := getFlagString(cmd, "output")

	if len(args) == 0 {
		checkError(fmt.Errorf("no input sequence files"))
	}

	bc, err := bloom.NewCounterForItems(size, fpr, merLen)
	checkError(err)

	for _, path := range args {
		f, err := os.Open(path)
		checkError(err)
		sc := kmer.NewScanner(f, merLen, canonical)
		for {
			m, err := sc.Next()
			if err == io.EOF {
				break
			}
			checkError(err)
			bc.Insert(m)
		}
		checkError(f.Close())
	}

	checkError(bc.Save(output))
}
