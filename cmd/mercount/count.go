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
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/mercount/mercount/bloom"
	"github.com/mercount/mercount/counting"
	"github.com/mercount/mercount/dump"
	"github.com/mercount/mercount/format"
	"github.com/mercount/mercount/merge"
	"github.com/mercount/mercount/pipeline"
)

var countCmd = &cobra.Command{
	Use:   "count [flags] file...",
	Short: "Count k-mers in sequence files",
	Long: `Count k-mers in sequence files

Counts every mer of length -m across the input files into a table of -s
slots with counters of -c bits. With -C each mer and its reverse complement
are counted as one canonical key.

With --disk the table does not grow: when it fills, an intermediate file is
written and counting continues; all intermediates are merged into the output
afterward. With --bf only mers the bloom counter has seen more than once
enter the table, keeping singletons out of memory. With --if the table is
first primed with every mer of the given files before the main pass runs.`,
	Run: runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)
	fs := countCmd.Flags()
	fs.IntP("mer-len", "m", 0, "length of mer (required)")
	fs.Uint64P("size", "s", 0, "initial table size in slots (required)")
	fs.IntP("counter-len", "c", 7, "length of counting field in bits")
	fs.IntP("threads", "t", 1, "number of worker threads")
	fs.IntP("reprobes", "p", counting.DefaultMaxReprobes, "maximum number of reprobes")
	fs.BoolP("canonical", "C", false, "count both strand, canonical representation")
	fs.StringP("output", "o", "mer_counts.mrc", "output file path")
	fs.Bool("text", false, "dump in text format")
	fs.Bool("disk", false, "disk operation: do not grow the table, spill and merge")
	fs.Uint64P("lower-count", "L", 0, "do not output mers with count < lower-count")
	fs.Uint64P("upper-count", "U", math.MaxUint64, "do not output mers with count > upper-count")
	fs.Int("out-counter-len", 32, "length of counter field in output, in bits")
	fs.String("bf", "", "bloom counter file to filter out singleton mers")
	fs.StringSlice("if", nil, "mer files to prime the table with")
	fs.StringP("generator", "g", "", "file of generator commands")
	fs.IntP("generators", "G", 1, "number of generators to run simultaneously")
	fs.String("shell", "", "shell used to run generator commands")
	fs.String("timing", "", "print timing information to file")
	fs.Bool("no-write", false, "do not write output")
	fs.Bool("no-merge", false, "do not merge intermediate files")
	fs.Bool("no-unlink", false, "do not delete intermediate files after merging")
	fs.Bool("progress", false, "show a progress bar over the input files")
	countCmd.MarkFlagRequired("mer-len")
	countCmd.MarkFlagRequired("size")
}

func runCount(cmd *cobra.Command, args []string) {
	startTime := time.Now()

	merLen := getFlagPositiveInt(cmd, "mer-len")
	size := getFlagUint64(cmd, "size")
	counterLen := getFlagPositiveInt(cmd, "counter-len")
	threads := getFlagPositiveInt(cmd, "threads")
	reprobes := getFlagPositiveInt(cmd, "reprobes")
	canonical := getFlagBool(cmd, "canonical")
	output := getFlagString(cmd, "output")
	text := getFlagBool(cmd, "text")
	disk := getFlagBool(cmd, "disk")
	lower := getFlagUint64(cmd, "lower-count")
	upper := getFlagUint64(cmd, "upper-count")
	outCounterLen := getFlagPositiveInt(cmd, "out-counter-len")
	bfPath := getFlagString(cmd, "bf")
	ifFiles := getFlagStringSlice(cmd, "if")
	generatorPath := getFlagString(cmd, "generator")
	generators := getFlagPositiveInt(cmd, "generators")
	shell := getFlagString(cmd, "shell")
	timingPath := getFlagString(cmd, "timing")
	noWrite := getFlagBool(cmd, "no-write")
	noMerge := getFlagBool(cmd, "no-merge")
	noUnlink := getFlagBool(cmd, "no-unlink")
	progress := getFlagBool(cmd, "progress")

	if len(args) == 0 && generatorPath == "" {
		checkError(fmt.Errorf("no input: supply sequence files or a generator file"))
	}

	var provenance format.Header
	provenance.FillStandard()

	dumper := dump.NewDumper(output, text, outCounterLen, provenance)

	opts := []counting.Option{
		counting.WithCanonical(canonical),
		counting.WithReprobes(reprobes),
	}
	if disk {
		opts = append(opts, counting.WithFlushFunc(dumper.Dump))
	} else {
		opts = append(opts, counting.WithSizeDoubling(true))
	}
	table, err := counting.New(size, merLen, counterLen, opts...)
	checkError(err)

	// Spawn external generators before any counting so their pipes are
	// part of the main pass. A termination signal kills them first, then
	// the process exits without completing any output.
	var manager *pipeline.GeneratorManager
	var pipes []io.Reader
	if generatorPath != "" {
		manager, err = pipeline.NewGeneratorManager(generatorPath, generators, shell)
		checkError(err)
		pipes = manager.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			<-sigCh
			manager.Kill()
			os.Exit(1)
		}()
	}

	afterInit := time.Now()

	// Priming pass: mark every mer of the --if files present before the
	// main pass increments anything.
	mode := pipeline.ModeCount
	if len(ifFiles) > 0 {
		parts := pipeline.PartitionPaths(ifFiles, threads)
		sources := make([]pipeline.Source, len(parts))
		for i, p := range parts {
			sources[i] = pipeline.NewFileSource(p, merLen, canonical)
		}
		checkError(pipeline.Run(table, nil, pipeline.ModePrime, sources))
		mode = pipeline.ModeUpdate
	}

	filter := pipeline.All
	if bfPath != "" {
		bc, err := bloom.Load(bfPath, merLen)
		checkError(err)
		filter = pipeline.Chain(pipeline.BloomGate(bc))
	}

	var bar *pb.ProgressBar
	wrap := func(r io.Reader) io.Reader { return r }
	if progress {
		var total int64
		for _, p := range args {
			if fi, err := os.Stat(p); err == nil {
				total += fi.Size()
			}
		}
		bar = pb.Full.Start64(total)
		wrap = func(r io.Reader) io.Reader { return bar.NewProxyReader(r) }
	}

	var sources []pipeline.Source
	for _, part := range pipeline.PartitionPaths(args, threads) {
		sources = append(sources, pipeline.NewFileSourceWrapped(part, merLen, canonical, wrap))
	}
	for _, p := range pipes {
		sources = append(sources, pipeline.NewReaderSource(p, merLen, canonical))
	}
	checkError(pipeline.Run(table, filter, mode, sources))

	if bar != nil {
		bar.Finish()
	}
	if manager != nil {
		signal.Reset(syscall.SIGTERM, syscall.SIGINT)
		checkError(manager.Wait())
	}

	afterCount := time.Now()

	if !noWrite {
		snap := table.SnapshotAndReset()
		if dumper.NbFiles() == 0 {
			// Never spilled: write the output directly, no merge pass.
			dumper.OneFile(true)
			dumper.SetBounds(lower, upper)
			checkError(dumper.Dump(snap))
		} else {
			checkError(dumper.Dump(snap))
			if !noMerge {
				consumed, err := merge.Merge(dumper.Files(), output, provenance, lower, upper)
				checkError(err)
				if !noUnlink {
					for _, p := range consumed {
						os.Remove(p)
					}
				}
			}
		}
	}

	afterDump := time.Now()

	if timingPath != "" {
		f, err := os.Create(timingPath)
		checkError(err)
		fmt.Fprintf(f, "Init     %g\nCounting %g\nWriting  %g\n",
			afterInit.Sub(startTime).Seconds(),
			afterCount.Sub(afterInit).Seconds(),
			afterDump.Sub(afterCount).Seconds())
		checkError(f.Close())
	}
}
