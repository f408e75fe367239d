// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lfit/github2gerrit/internal/secret"
	"github.com/lfit/github2gerrit/internal/shell"
	"github.com/lfit/github2gerrit/internal/testutil"
)

// xssi is the anti-hijacking prefix Gerrit puts before JSON bodies.
const xssi = ")]}'\n"

// testClient returns a Client talking to a fake Gerrit server.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	host := strings.TrimPrefix(srv.URL, "http://")
	c := New(testutil.Slogger(t), host, secret.Empty(), srv.Client())
	c.scheme = "http"
	return c
}

func TestQueryChange(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/changes/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if want := "limit:1 is:open project:foo/bar Iabc"; q != want {
			t.Errorf("query = %q, want %q", q, want)
		}
		if got := r.URL.Query().Get("o"); got != "CURRENT_REVISION" {
			t.Errorf("o = %q, want CURRENT_REVISION", got)
		}
		w.Write([]byte(xssi + `[{"id": "foo%2Fbar~master~Iabc", "project": "foo/bar",
			"change_id": "Iabc", "_number": 4242, "status": "NEW",
			"current_revision": "deadbeef"}]`))
	})
	c := testClient(t, mux)

	ci, err := c.QueryChange(ctx, "foo/bar", "Iabc")
	testutil.Check(t, err)
	if ci == nil || ci.Number != 4242 || ci.CurrentRevision != "deadbeef" {
		t.Errorf("QueryChange = %+v", ci)
	}
}

func TestQueryChangeNone(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, xssi+`[]`)
	}))
	ci, err := c.QueryChange(ctx, "foo/bar", "Imissing")
	testutil.Check(t, err)
	if ci != nil {
		t.Errorf("QueryChange = %+v, want nil", ci)
	}
}

func TestBasePathFallback(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/changes/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	var rHits int
	mux.HandleFunc("/r/changes/", func(w http.ResponseWriter, r *http.Request) {
		rHits++
		fmt.Fprint(w, xssi+`[{"_number": 7, "current_revision": "aaa"}]`)
	})
	c := testClient(t, mux)

	ci, err := c.QueryChange(ctx, "p", "Iaaa")
	testutil.Check(t, err)
	if ci == nil || ci.Number != 7 {
		t.Fatalf("QueryChange = %+v", ci)
	}

	// The /r base is remembered; the second query goes there directly.
	_, err = c.QueryChange(ctx, "p", "Iaaa")
	testutil.Check(t, err)
	if rHits != 2 {
		t.Errorf("hits under /r = %d, want 2", rHits)
	}
}

func TestSubmissionsSkipsFailures(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/changes/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "Igood") {
			fmt.Fprint(w, xssi+`[{"_number": 12, "current_revision": "bbb"}]`)
			return
		}
		fmt.Fprint(w, xssi+`[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	lg, out := testutil.SlogBuffer()
	c := NewTesting(lg, strings.TrimPrefix(srv.URL, "http://"), secret.Empty(), srv.Client())

	subs := c.Submissions(ctx, "foo/bar", []string{"Imissing", "Igood"})
	want := []Submission{{
		ChangeID: "Igood",
		Number:   12,
		URL:      "https://" + c.host + "/c/foo/bar/+/12",
		SHA:      "bbb",
	}}
	if diff := cmp.Diff(want, subs); diff != "" {
		t.Errorf("Submissions mismatch (-want +got):\n%s", diff)
	}
	testutil.ExpectLog(t, out, "gerrit change not found", 1)
}

func TestChangeURL(t *testing.T) {
	got := ChangeURL("gerrit.example.org", "foo/bar", 99)
	if want := "https://gerrit.example.org/c/foo/bar/+/99"; got != want {
		t.Errorf("ChangeURL = %q, want %q", got, want)
	}
}

func TestProbeREST(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/self", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := testClient(t, mux)
	testutil.Check(t, c.ProbeREST(ctx))

	bad := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if err := bad.ProbeREST(ctx); err == nil {
		t.Error("ProbeREST succeeded against a 502 server")
	}
}

func TestPostBackref(t *testing.T) {
	ctx := context.Background()
	c := New(testutil.Slogger(t), "gerrit.example.org", secret.Empty(), nil)

	se := new(testutil.StubExecutor)
	se.AddOutput([]string{
		"ssh", "-n", "-p", "29418", "g2g@gerrit.example.org",
		"gerrit", "review", "-m", `"GHPR: https://github.com/org/proj/pull/7"`,
		"--branch", "master", "--project", "foo/bar", "deadbeef",
	}, "")

	err := c.PostBackref(ctx, se, "g2g", 0, "foo/bar", "master",
		"deadbeef", "GHPR: https://github.com/org/proj/pull/7")
	testutil.Check(t, err)
	if len(se.Commands()) != 1 {
		t.Errorf("ran %d commands, want 1", len(se.Commands()))
	}
}

var _ shell.Executor = (*testutil.StubExecutor)(nil)
