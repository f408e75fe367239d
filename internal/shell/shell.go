// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package shell runs external commands (git, ssh, git-review) on behalf
// of the submission pipeline, capturing their output and classifying
// failures as transient or fatal.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"time"
)

// A Cmd describes a single external command invocation.
type Cmd struct {
	Args    []string      // command and arguments; Args[0] is the program
	Dir     string        // working directory; empty means current
	Env     []string      // extra KEY=VALUE entries appended to the environment
	Stdin   string        // data fed to standard input
	Timeout time.Duration // per-invocation timeout; zero means none
	Masks   []string      // secret tokens replaced by "***" before logging
}

// A Result holds the outcome of a completed command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// An Error is returned when a command exits non-zero or cannot be started.
// It carries the captured streams so that callers can decide whether the
// failure is fatal or recoverable.
type Error struct {
	Args   []string
	Result Result
	Err    error // non-nil when the command could not be run at all
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", strings.Join(e.Args, " "), e.Result.ExitCode)
}

func (e *Error) Unwrap() error { return e.Err }

// An Executor runs external commands. The production implementation is
// [*Runner]; tests substitute a stub.
type Executor interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// A Runner is an [Executor] that runs commands on the local system.
type Runner struct {
	slog *slog.Logger
}

// New returns a new [Runner] that logs through lg.
func New(lg *slog.Logger) *Runner {
	return &Runner{slog: lg}
}

// Run executes cmd and captures its output. On a non-zero exit it returns
// the captured [Result] together with an [*Error]; callers that tolerate
// failure can keep the result and ignore the error.
func (r *Runner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, &Error{Err: errors.New("empty command")}
	}
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	r.slog.Debug("exec", "cmd", Mask(strings.Join(cmd.Args, " "), cmd.Masks), "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	var stdout, stderr strings.Builder
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			r.slog.Debug("exec failed",
				"cmd", Mask(strings.Join(cmd.Args, " "), cmd.Masks),
				"exit", res.ExitCode,
				"stderr", Mask(res.Stderr, cmd.Masks))
			return res, &Error{Args: cmd.Args, Result: res}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		r.slog.Error("exec could not run", "cmd", Mask(strings.Join(cmd.Args, " "), cmd.Masks), "err", err)
		return res, &Error{Args: cmd.Args, Result: res, Err: err}
	}

	if res.Stdout != "" {
		r.slog.Debug("exec stdout", "out", Mask(res.Stdout, cmd.Masks))
	}
	if res.Stderr != "" {
		r.slog.Debug("exec stderr", "out", Mask(res.Stderr, cmd.Masks))
	}
	return res, nil
}

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 5 * time.Second
)

// Backoff returns the sleep before retry number attempt (1-based):
// min(base·2^(attempt-1), cap) plus random jitter of up to half the delay.
func Backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt && d < backoffCap; i++ {
		d *= 2
	}
	d = min(d, backoffCap)
	return d + time.Duration(rand.Int63n(int64(d/2+1)))
}

// RunWithRetries runs cmd, re-invoking it up to retries additional times
// when transient reports the failure as retryable. A non-transient failure
// or an exhausted retry budget is returned as the final error.
func (r *Runner) RunWithRetries(ctx context.Context, cmd Cmd, retries int, transient func(Result) bool) (Result, error) {
	if transient == nil {
		transient = func(res Result) bool { return IsTransient(res.Stderr) }
	}
	for attempt := 1; ; attempt++ {
		res, err := r.Run(ctx, cmd)
		if err == nil {
			return res, nil
		}
		var ee *Error
		if !errors.As(err, &ee) || ee.Err != nil {
			// Could not start or timed out; not retryable here.
			return res, err
		}
		if attempt > retries || !transient(res) {
			return res, err
		}
		d := Backoff(attempt)
		r.slog.Warn("retrying after transient failure",
			"cmd", Mask(strings.Join(cmd.Args, " "), cmd.Masks),
			"attempt", attempt,
			"sleep", d)
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(d):
		}
	}
}

// transientPatterns are stderr substrings that indicate a network blip
// rather than a permanent failure. Matching is case-insensitive.
var transientPatterns = []string{
	"unable to access",
	"could not resolve host",
	"failed to connect",
	"connection timed out",
	"connection reset by peer",
	"early eof",
	"the remote end hung up unexpectedly",
	"transport endpoint is not connected",
	"network is unreachable",
	"temporary failure",
	"ssl: couldn't",
	"ssl: certificate",
}

// IsTransient reports whether stderr text looks like a transient
// network failure worth retrying.
func IsTransient(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, pat := range transientPatterns {
		if strings.Contains(s, pat) {
			return true
		}
	}
	return false
}

// Mask replaces each secret token in text with a fixed mask.
// Empty tokens are ignored.
func Mask(text string, masks []string) string {
	for _, tok := range masks {
		if tok == "" {
			continue
		}
		text = strings.ReplaceAll(text, tok, "***")
	}
	return text
}
