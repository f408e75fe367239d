// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package gitreview

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lfit/github2gerrit/internal/testutil"
)

const sample = "[gerrit]\nhost=gerrit.example.org\nport=29418\nproject=foo/bar.git\n"

func TestResolveLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".gitreview"), []byte(sample), 0o666); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(testutil.Slogger(t), nil, nil)

	info, err := r.Resolve(ctx, dir, "org/foo-bar", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &Info{Host: "gerrit.example.org", Port: 29418, Project: "foo/bar"}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRaw(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/org/foo-bar/master/.gitreview" {
			fmt.Fprint(w, sample)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := NewResolver(testutil.Slogger(t), nil, srv.Client())
	r.raw = srv.URL

	info, err := r.Resolve(ctx, "", "org/foo-bar", CandidateRefs("missing-branch", "", "master"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if info.Host != "gerrit.example.org" || info.Project != "foo/bar" {
		t.Errorf("Resolve = %+v", info)
	}
}

func TestResolveExplicit(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(testutil.Slogger(t), nil, nil)

	info, err := r.Resolve(ctx, "", "org/releng-builder", nil,
		&Info{Host: "gerrit.example.org"})
	if err != nil {
		t.Fatal(err)
	}
	// The project stays empty; deriving one from the repository name
	// is the caller's call, not the resolver's.
	want := &Info{Host: "gerrit.example.org", Port: DefaultPort}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveNothing(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(testutil.Slogger(t), nil, nil)
	if _, err := r.Resolve(ctx, "", "org/repo", nil, nil); err == nil {
		t.Fatal("Resolve succeeded with no sources")
	}
}
