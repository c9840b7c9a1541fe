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
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// GeneratorManager runs external generator commands whose stdout supplies
// additional sequence streams. Commands are read one per line from a
// generators file and distributed over a fixed number of lanes; each lane
// runs its share sequentially and exposes the concatenated output as one
// pipe.
//
// Kill is the cancellation hook: on a termination signal the caller kills
// the currently running commands before exiting. A command exiting non-zero
// is remembered and reported by Wait after the lane's remaining output has
// been consumed, so data already produced is still counted while the run as
// a whole fails.
type GeneratorManager struct {
	commands []string
	lanes    int
	shell    string
	pipes    []io.Reader

	mu      sync.Mutex
	running map[int]*exec.Cmd
	killed  bool

	wg   sync.WaitGroup
	errs []error
}

// NewGeneratorManager reads generator commands from path, to be spread over
// the given number of lanes. An empty shell selects $SHELL, falling back to
// /bin/sh.
func NewGeneratorManager(path string, lanes int, shell string) (*GeneratorManager, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening generators file %s", path)
	}
	defer f.Close()

	var commands []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			commands = append(commands, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading generators file %s", path)
	}
	if len(commands) == 0 {
		return nil, errors.Errorf("generators file %s contains no commands", path)
	}
	if lanes < 1 {
		lanes = 1
	}
	if lanes > len(commands) {
		lanes = len(commands)
	}
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &GeneratorManager{
		commands: commands,
		lanes:    lanes,
		shell:    shell,
		running:  make(map[int]*exec.Cmd),
	}, nil
}

// Start launches the lanes and returns one reader per lane.
func (g *GeneratorManager) Start() []io.Reader {
	g.pipes = make([]io.Reader, g.lanes)
	g.errs = make([]error, g.lanes)
	for i := 0; i < g.lanes; i++ {
		pr, pw := io.Pipe()
		g.pipes[i] = pr
		g.wg.Add(1)
		go g.runLane(i, pw)
	}
	return g.pipes
}

// runLane executes every i-th command modulo the lane count, streaming
// stdout into pw. The pipe is closed cleanly even on command failure so
// consumers still count what was produced.
func (g *GeneratorManager) runLane(lane int, pw *io.PipeWriter) {
	defer g.wg.Done()
	defer pw.Close()
	n := len(g.pipes)
	for i := lane; i < len(g.commands); i += n {
		g.mu.Lock()
		if g.killed {
			g.mu.Unlock()
			return
		}
		cmd := exec.Command(g.shell, "-c", g.commands[i])
		cmd.Stdout = pw
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			g.errs[lane] = errors.Wrapf(err, "starting generator %q", g.commands[i])
			g.mu.Unlock()
			return
		}
		g.running[lane] = cmd
		g.mu.Unlock()

		err := cmd.Wait()

		g.mu.Lock()
		delete(g.running, lane)
		killed := g.killed
		g.mu.Unlock()
		if err != nil && !killed {
			g.errs[lane] = errors.Wrapf(err, "generator %q failed", g.commands[i])
			return
		}
		if killed {
			return
		}
	}
}

// Kill terminates the currently running generator commands. Safe to call
// from a signal handler goroutine.
func (g *GeneratorManager) Kill() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killed = true
	for _, cmd := range g.running {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}
}

// Wait blocks until every lane has finished and reports the first generator
// failure, if any.
func (g *GeneratorManager) Wait() error {
	g.wg.Wait()
	for _, err := range g.errs {
		if err != nil {
			return err
		}
	}
	return nil
}
