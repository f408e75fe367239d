// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("SUBMIT_SINGLE_COMMITS", "true")
	t.Setenv("GERRIT_SSH_USER_G2G", "g2g")
	t.Setenv("GERRIT_SERVER_PORT", "29419")
	t.Setenv("FETCH_DEPTH", "notanumber")

	in := FromEnv()
	if !in.SubmitSingleCommits {
		t.Error("SubmitSingleCommits = false")
	}
	if in.GerritSSHUser != "g2g" {
		t.Errorf("GerritSSHUser = %q", in.GerritSSHUser)
	}
	if in.GerritServerPort != 29419 {
		t.Errorf("GerritServerPort = %d", in.GerritServerPort)
	}
	if in.FetchDepth != 0 {
		t.Errorf("FetchDepth = %d, want 0 for unparseable value", in.FetchDepth)
	}
}

func TestContextFromEnv(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "org/repo")
	t.Setenv("GITHUB_REPOSITORY_OWNER", "")
	t.Setenv("GITHUB_SERVER_URL", "")
	t.Setenv("GITHUB_EVENT_NAME", "pull_request_target")
	t.Setenv("PR_NUMBER", "42")

	gctx := ContextFromEnv()
	if gctx.Owner != "org" {
		t.Errorf("Owner = %q, want org (derived from repository)", gctx.Owner)
	}
	if gctx.ServerURL != "https://github.com" {
		t.Errorf("ServerURL = %q", gctx.ServerURL)
	}
	if gctx.PRNumber != 42 {
		t.Errorf("PRNumber = %d", gctx.PRNumber)
	}
}

func TestValidateStrategyConflict(t *testing.T) {
	in := &Inputs{SubmitSingleCommits: true, UsePRAsCommit: true}
	err := in.Validate()
	var ue *UsageError
	if !errors.As(err, &ue) {
		t.Fatalf("Validate = %v, want UsageError", err)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	in := &Inputs{GerritSSHUser: "g2g"}
	err := in.Validate()
	var ue *UsageError
	if !errors.As(err, &ue) {
		t.Fatalf("Validate = %v, want UsageError", err)
	}

	// Dry-run needs no credentials.
	in = &Inputs{DryRun: true}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate dry-run = %v", err)
	}

	in = &Inputs{
		GerritSSHUser:      "g2g",
		GerritSSHUserEmail: "g2g@example.org",
		GerritSSHPrivKey:   "KEY",
	}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate complete inputs = %v", err)
	}
}

func TestReviewers(t *testing.T) {
	in := &Inputs{ReviewersEmail: "a@example.org, b@example.org,,"}
	got := in.Reviewers()
	want := []string{"a@example.org", "b@example.org"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Reviewers mismatch (-want +got):\n%s", diff)
	}
	if got := (&Inputs{}).Reviewers(); got != nil {
		t.Errorf("Reviewers on empty input = %v", got)
	}
}

func TestOrgConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("G2G_CONFIG_DIR", dir)
	content := `
gerrit_server: gerrit.example.org
gerrit_ssh_user: org-g2g
reviewers_email: infra@example.org
preserve_github_prs: true
`
	if err := os.WriteFile(filepath.Join(dir, "myorg.yaml"), []byte(content), 0o666); err != nil {
		t.Fatal(err)
	}

	oc, err := LoadOrgConfig("myorg")
	if err != nil {
		t.Fatal(err)
	}

	in := &Inputs{GerritSSHUser: "explicit"}
	in.Merge(oc)
	if in.GerritServer != "gerrit.example.org" {
		t.Errorf("GerritServer = %q", in.GerritServer)
	}
	if in.GerritSSHUser != "explicit" {
		t.Errorf("GerritSSHUser = %q, explicit input must win", in.GerritSSHUser)
	}
	if in.ReviewersEmail != "infra@example.org" {
		t.Errorf("ReviewersEmail = %q", in.ReviewersEmail)
	}
	if !in.PreserveGitHubPRs {
		t.Error("PreserveGitHubPRs = false")
	}
}

func TestOrgConfigMissing(t *testing.T) {
	t.Setenv("G2G_CONFIG_DIR", t.TempDir())
	oc, err := LoadOrgConfig("unknown")
	if err != nil {
		t.Fatal(err)
	}
	if *oc != (OrgConfig{}) {
		t.Errorf("LoadOrgConfig missing file = %+v, want zero", oc)
	}
}

func TestOrgConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("G2G_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("gerrit_server: [unclosed"), 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrgConfig("bad"); err == nil {
		t.Fatal("LoadOrgConfig succeeded on malformed yaml")
	}
}
