// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/lfit/github2gerrit/internal/shell"
)

// StubExecutor is a stub [shell.Executor] for testing.
// Commands run in the order stubs were added for matching argv prefixes;
// unmatched commands fail.
type StubExecutor struct {
	mu    sync.Mutex
	stubs []*Stub
	log   [][]string
}

// Stub is a single stub execution. When asked to run a command whose
// argv equals args, the executor calls fn and returns its result.
type Stub struct {
	args []string
	fn   func(cmd shell.Cmd) (shell.Result, error)
}

// Add registers a stub for the exact argv. Re-adding the same argv
// replaces the earlier stub.
func (se *StubExecutor) Add(args []string, fn func(cmd shell.Cmd) (shell.Result, error)) {
	se.mu.Lock()
	defer se.mu.Unlock()
	for _, st := range se.stubs {
		if slices.Equal(st.args, args) {
			st.fn = fn
			return
		}
	}
	se.stubs = append(se.stubs, &Stub{args: args, fn: fn})
}

// AddOutput registers a stub that succeeds with the given stdout.
func (se *StubExecutor) AddOutput(args []string, stdout string) {
	se.Add(args, func(shell.Cmd) (shell.Result, error) {
		return shell.Result{Stdout: stdout}, nil
	})
}

// Run implements [shell.Executor.Run].
func (se *StubExecutor) Run(_ context.Context, cmd shell.Cmd) (shell.Result, error) {
	se.mu.Lock()
	se.log = append(se.log, slices.Clone(cmd.Args))
	stubs := se.stubs
	se.mu.Unlock()
	for _, st := range stubs {
		if slices.Equal(st.args, cmd.Args) {
			return st.fn(cmd)
		}
	}
	return shell.Result{}, &shell.Error{Args: cmd.Args, Err: fmt.Errorf("no stub for %q", cmd.Args)}
}

// Commands returns the argv of every command run so far.
func (se *StubExecutor) Commands() [][]string {
	se.mu.Lock()
	defer se.mu.Unlock()
	return slices.Clone(se.log)
}
