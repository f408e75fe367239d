// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lfit/github2gerrit/internal/secret"
	"github.com/lfit/github2gerrit/internal/testutil"
)

// testClient returns a Client talking to a fake API server.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sdb := secret.Map{"api.github.com": "g2g:token"}
	c := New(testutil.Slogger(t), sdb, srv.Client())
	c.api = srv.URL
	return c
}

func TestPullRequest(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/proj/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		if _, pass, _ := r.BasicAuth(); pass != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{
			"number": 7, "title": "Fix widget", "state": "open",
			"user": {"login": "dev"},
			"head": {"ref": "fix-widget", "sha": "abc123"},
			"base": {"ref": "master", "sha": "def456"}
		}`)
	})
	c := testClient(t, mux)

	pr, err := c.PullRequest(ctx, "org/proj", 7)
	testutil.Check(t, err)
	want := &PullRequest{
		Number: 7,
		Title:  "Fix widget",
		State:  "open",
		User:   User{Login: "dev"},
		Head:   Ref{Ref: "fix-widget", SHA: "abc123"},
		Base:   Ref{Ref: "master", SHA: "def456"},
	}
	if diff := cmp.Diff(want, pr); diff != "" {
		t.Errorf("PullRequest mismatch (-want +got):\n%s", diff)
	}
}

func TestPullRequestError(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such pull", http.StatusNotFound)
	}))
	if _, err := c.PullRequest(ctx, "org/proj", 404); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestIssueCommentsTail(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/proj/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var comments []*IssueComment
		if r.URL.Query().Get("page") == "1" {
			for i := 0; i < 5; i++ {
				comments = append(comments, &IssueComment{Body: fmt.Sprintf("comment %d", i)})
			}
		}
		json.NewEncoder(w).Encode(comments)
	})
	c := testClient(t, mux)

	got, err := c.IssueComments(ctx, "org/proj", 7, 2)
	testutil.Check(t, err)
	want := []*IssueComment{{Body: "comment 3"}, {Body: "comment 4"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IssueComments mismatch (-want +got):\n%s", diff)
	}
}

func TestPostIssueCommentAndClose(t *testing.T) {
	ctx := context.Background()
	var posted, patched string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/proj/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		posted = body["body"]
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/repos/org/proj/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		patched = body["state"]
		fmt.Fprint(w, `{}`)
	})
	c := testClient(t, mux)

	testutil.Check(t, c.PostIssueComment(ctx, "org/proj", 7, "submitted"))
	if posted != "submitted" {
		t.Errorf("posted comment = %q", posted)
	}
	testutil.Check(t, c.ClosePullRequest(ctx, "org/proj", 7))
	if patched != "closed" {
		t.Errorf("patched state = %q", patched)
	}
}

func TestFileContent(t *testing.T) {
	ctx := context.Background()
	content := "[gerrit]\nhost=gerrit.example.org\n"
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/proj/contents/.gitreview", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ref"); got != "master" {
			t.Errorf("ref = %q, want master", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})
	c := testClient(t, mux)

	got, err := c.FileContent(ctx, "org/proj", "master", ".gitreview")
	testutil.Check(t, err)
	if string(got) != content {
		t.Errorf("FileContent = %q, want %q", got, content)
	}
}

func TestDefaultBranch(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/proj", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"default_branch": "main"}`)
	})
	c := testClient(t, mux)

	got, err := c.DefaultBranch(ctx, "org/proj")
	testutil.Check(t, err)
	if got != "main" {
		t.Errorf("DefaultBranch = %q, want main", got)
	}
}

func TestToken(t *testing.T) {
	if got := Token(secret.Map{"api.github.com": "user:tok"}); got != "tok" {
		t.Errorf("Token = %q, want tok", got)
	}
	if got := Token(secret.Map{"api.github.com": "bare"}); got != "bare" {
		t.Errorf("Token = %q, want bare", got)
	}
	if got := Token(secret.Empty()); got != "" {
		t.Errorf("Token on empty db = %q, want empty", got)
	}
}
