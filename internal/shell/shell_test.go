// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package shell

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"testing"
	"time"
)

// testLogger avoids importing testutil, which depends on this package.
func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(logWriter{t}, nil))
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(b []byte) (int, error) {
	w.t.Logf("%s", b)
	return len(b), nil
}

func TestRunCapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test uses sh")
	}
	r := New(testLogger(t))
	res, err := r.Run(context.Background(), Cmd{
		Args: []string{"sh", "-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "out\n" || res.Stderr != "err\n" {
		t.Errorf("got stdout %q stderr %q", res.Stdout, res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestRunFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test uses sh")
	}
	r := New(testLogger(t))
	res, err := r.Run(context.Background(), Cmd{
		Args: []string{"sh", "-c", "echo boom >&2; exit 3"},
	})
	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Stderr != "boom\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test uses sh")
	}
	r := New(testLogger(t))
	_, err := r.Run(context.Background(), Cmd{
		Args:    []string{"sh", "-c", "sleep 10"},
		Timeout: 50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunWithRetriesNonTransient(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test uses sh")
	}
	r := New(testLogger(t))
	start := time.Now()
	_, err := r.RunWithRetries(context.Background(), Cmd{
		Args: []string{"sh", "-c", "echo 'permanent failure' >&2; exit 1"},
	}, 2, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	// A non-transient failure must not sleep through the backoff schedule.
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("non-transient failure took %v; retries were attempted", elapsed)
	}
}

func TestIsTransient(t *testing.T) {
	for _, tc := range []struct {
		stderr string
		want   bool
	}{
		{"fatal: could not resolve host: example.com", true},
		{"Connection Reset By Peer", true},
		{"fatal: early EOF", true},
		{"Temporary failure in name resolution", true},
		{"permanent failure", false},
		{"", false},
	} {
		if got := IsTransient(tc.stderr); got != tc.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.stderr, got, tc.want)
		}
	}
}

func TestMask(t *testing.T) {
	masks := []string{"hunter2", ""}
	in := "pushing with token hunter2 to server"
	out := Mask(in, masks)
	if out != "pushing with token *** to server" {
		t.Errorf("Mask = %q", out)
	}
	// Idempotent: masking already-masked text changes nothing.
	if again := Mask(out, masks); again != out {
		t.Errorf("second Mask = %q, want %q", again, out)
	}
	// An empty token must be a no-op, not an infinite expansion.
	if got := Mask("abc", []string{""}); got != "abc" {
		t.Errorf("Mask with empty token = %q", got)
	}
}

func TestBackoffCapped(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := Backoff(attempt)
		if d < backoffBase {
			t.Errorf("Backoff(%d) = %v, below base", attempt, d)
		}
		if d > backoffCap+backoffCap/2 {
			t.Errorf("Backoff(%d) = %v, beyond cap plus jitter", attempt, d)
		}
	}
}
