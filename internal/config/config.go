// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package config assembles the submitter's inputs from flags, process
// environment and per-organization configuration files, and validates
// them before a pipeline run starts.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Inputs are the operator-facing knobs of a submission run. The record
// is immutable once validated; the pipeline only reads it.
type Inputs struct {
	SubmitSingleCommits bool   // one Gerrit change per PR commit
	UsePRAsCommit       bool   // squash message from PR title and body
	FetchDepth          int    // git fetch depth, 0 means full history
	GerritKnownHosts    string // known_hosts lines for the Gerrit host
	GerritSSHPrivKey    string // private key material for the push user
	GerritSSHUser       string // Gerrit SSH user name
	GerritSSHUserEmail  string // committer email of the push user
	Organization        string // GitHub organization, for config lookup
	ReviewersEmail      string // comma-separated reviewer addresses
	GerritServer        string // explicit Gerrit host, overrides .gitreview
	GerritServerPort    int    // explicit Gerrit SSH port
	GerritProject       string // explicit Gerrit project
	TopicPrefix         string // topic prefix, default "GH"
	PreserveGitHubPRs   bool   // do not close the PR after submission
	DryRun              bool   // validate and probe, push nothing
	DisableNetwork      bool   // skip network probes in dry-run
}

// A Context describes the GitHub event the run was triggered by,
// read from the Actions environment or synthesized for a direct-URL
// invocation.
type Context struct {
	EventName   string // "pull_request_target", "workflow_dispatch", ...
	EventAction string // "opened", "synchronize", "reopened", ...
	Repository  string // "org/repo"
	Owner       string // "org"
	ServerURL   string // "https://github.com"
	RunID       string
	SHA         string
	BaseRef     string
	HeadRef     string
	PRNumber    int
}

// A UsageError is a configuration mistake the operator must fix; the
// CLI reports it and exits with status 2.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// FromEnv reads Inputs from the process environment using the
// conventional variable names of the submission action.
func FromEnv() *Inputs {
	return &Inputs{
		SubmitSingleCommits: envBool("SUBMIT_SINGLE_COMMITS"),
		UsePRAsCommit:       envBool("USE_PR_AS_COMMIT"),
		FetchDepth:          envInt("FETCH_DEPTH"),
		GerritKnownHosts:    os.Getenv("GERRIT_KNOWN_HOSTS"),
		GerritSSHPrivKey:    os.Getenv("GERRIT_SSH_PRIVKEY_G2G"),
		GerritSSHUser:       os.Getenv("GERRIT_SSH_USER_G2G"),
		GerritSSHUserEmail:  os.Getenv("GERRIT_SSH_USER_G2G_EMAIL"),
		Organization:        os.Getenv("ORGANIZATION"),
		ReviewersEmail:      os.Getenv("REVIEWERS_EMAIL"),
		GerritServer:        os.Getenv("GERRIT_SERVER"),
		GerritServerPort:    envInt("GERRIT_SERVER_PORT"),
		GerritProject:       os.Getenv("GERRIT_PROJECT"),
		TopicPrefix:         os.Getenv("G2G_TOPIC_PREFIX"),
		PreserveGitHubPRs:   envBool("PRESERVE_GITHUB_PRS"),
		DryRun:              envBool("DRY_RUN"),
		DisableNetwork:      envBool("G2G_DISABLE_NETWORK"),
	}
}

// ContextFromEnv reads the GitHub event context from the Actions
// environment.
func ContextFromEnv() *Context {
	repo := os.Getenv("GITHUB_REPOSITORY")
	owner := os.Getenv("GITHUB_REPOSITORY_OWNER")
	if owner == "" {
		owner, _, _ = strings.Cut(repo, "/")
	}
	return &Context{
		EventName:   os.Getenv("GITHUB_EVENT_NAME"),
		EventAction: os.Getenv("GITHUB_EVENT_ACTION"),
		Repository:  repo,
		Owner:       owner,
		ServerURL:   orDefault(os.Getenv("GITHUB_SERVER_URL"), "https://github.com"),
		RunID:       os.Getenv("GITHUB_RUN_ID"),
		SHA:         os.Getenv("GITHUB_SHA"),
		BaseRef:     os.Getenv("GITHUB_BASE_REF"),
		HeadRef:     os.Getenv("GITHUB_HEAD_REF"),
		PRNumber:    envInt("PR_NUMBER"),
	}
}

// Validate checks the assembled inputs. Strategy conflicts and missing
// credentials are usage errors; they abort before any repository state
// is touched.
func (in *Inputs) Validate() error {
	if in.SubmitSingleCommits && in.UsePRAsCommit {
		return &UsageError{"SUBMIT_SINGLE_COMMITS and USE_PR_AS_COMMIT are mutually exclusive"}
	}
	if in.DryRun {
		return nil
	}
	var missing []string
	if in.GerritSSHUser == "" {
		missing = append(missing, "GERRIT_SSH_USER_G2G")
	}
	if in.GerritSSHUserEmail == "" {
		missing = append(missing, "GERRIT_SSH_USER_G2G_EMAIL")
	}
	if in.GerritSSHPrivKey == "" {
		missing = append(missing, "GERRIT_SSH_PRIVKEY_G2G")
	}
	if len(missing) > 0 {
		return &UsageError{"missing required inputs: " + strings.Join(missing, ", ")}
	}
	return nil
}

// Reviewers splits the comma-separated reviewer list, dropping empty
// entries.
func (in *Inputs) Reviewers() []string {
	var out []string
	for _, r := range strings.Split(in.ReviewersEmail, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func envInt(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return n
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
