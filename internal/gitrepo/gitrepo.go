// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package gitrepo has functions to inspect and rewrite the history of a
// checked out git repository: commit ranges, trailers, cherry-picks and
// amends used to reshape a pull request for Gerrit ingestion.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lfit/github2gerrit/internal/shell"
	"github.com/lfit/github2gerrit/internal/trailer"
)

// gitRetries is the retry budget for git commands that may touch the
// network (fetch, remote operations). Local history rewrites fail fast.
const gitRetries = 2

// A Repo is a checked out git repository rooted at Dir.
type Repo struct {
	slog *slog.Logger
	dir  string
	exec shell.Executor
}

// New returns a [Repo] for the working tree at dir, running git through exec.
func New(lg *slog.Logger, dir string, exec shell.Executor) *Repo {
	return &Repo{slog: lg, dir: dir, exec: exec}
}

// Dir returns the repository working tree directory.
func (r *Repo) Dir() string { return r.dir }

// An Error wraps a failed git command with the captured streams.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("git %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// git runs a git subcommand in the working tree and returns its stdout.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.exec.Run(ctx, shell.Cmd{Args: append([]string{"git"}, args...), Dir: r.dir})
	if err != nil {
		return res.Stdout, &Error{Op: args[0], Err: err}
	}
	return res.Stdout, nil
}

// gitRetry is git with retries for transient network failures.
func (r *Repo) gitRetry(ctx context.Context, args ...string) (string, error) {
	cmd := shell.Cmd{Args: append([]string{"git"}, args...), Dir: r.dir}
	var res shell.Result
	var err error
	if runner, ok := r.exec.(*shell.Runner); ok {
		res, err = runner.RunWithRetries(ctx, cmd, gitRetries, nil)
	} else {
		res, err = r.exec.Run(ctx, cmd)
	}
	if err != nil {
		return res.Stdout, &Error{Op: args[0], Err: err}
	}
	return res.Stdout, nil
}

// Fetch fetches ref from the named remote.
func (r *Repo) Fetch(ctx context.Context, remote, ref string) error {
	_, err := r.gitRetry(ctx, "fetch", remote, ref)
	return err
}

// RevParse resolves ref to a commit sha.
func (r *Repo) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := r.git(ctx, "rev-parse", ref)
	return strings.TrimSpace(out), err
}

// HasRef reports whether the fully qualified ref exists.
func (r *Repo) HasRef(ctx context.Context, ref string) bool {
	_, err := r.git(ctx, "show-ref", "--verify", "--quiet", ref)
	return err == nil
}

// CommitRange returns the commit shas reachable from head but not base,
// ordered oldest to newest. An empty range is not an error.
func (r *Repo) CommitRange(ctx context.Context, base, head string) ([]string, error) {
	out, err := r.git(ctx, "rev-list", "--reverse", base+".."+head)
	if err != nil {
		return nil, err
	}
	var shas []string
	for _, ln := range strings.Split(out, "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			shas = append(shas, s)
		}
	}
	return shas, nil
}

// CheckoutNewBranch creates branch name at start and checks it out.
func (r *Repo) CheckoutNewBranch(ctx context.Context, name, start string) error {
	_, err := r.git(ctx, "checkout", "-b", name, start)
	return err
}

// Checkout checks out an existing ref.
func (r *Repo) Checkout(ctx context.Context, ref string) error {
	_, err := r.git(ctx, "checkout", ref)
	return err
}

// DeleteBranch force-deletes a local branch. Missing branches are not an
// error; cleanup is best-effort.
func (r *Repo) DeleteBranch(ctx context.Context, name string) {
	if _, err := r.git(ctx, "branch", "-D", name); err != nil {
		r.slog.Debug("branch delete failed", "branch", name, "err", err)
	}
}

// CherryPick applies the named commit onto the current branch.
func (r *Repo) CherryPick(ctx context.Context, sha string) error {
	_, err := r.git(ctx, "cherry-pick", sha)
	return err
}

// SquashMerge merges ref into the current branch, staging the combined
// diff without committing (git merge --squash).
func (r *Repo) SquashMerge(ctx context.Context, ref string) error {
	_, err := r.git(ctx, "merge", "--squash", ref)
	return err
}

// A CommitOpts describes a commit or amend.
type CommitOpts struct {
	Message string // full commit message; empty on amend preserves the current one
	Author  string // "Name <email>"; empty keeps the default
	Signoff bool
}

// CommitNew creates a new commit from the staged index.
func (r *Repo) CommitNew(ctx context.Context, opts CommitOpts) error {
	if opts.Message == "" {
		return &Error{Op: "commit", Err: errors.New("empty commit message")}
	}
	args := []string{"commit"}
	if opts.Signoff {
		args = append(args, "-s")
	}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	args = append(args, "-m", opts.Message)
	_, err := r.git(ctx, args...)
	return err
}

// CommitAmend amends the commit at HEAD. Without a message the current
// message is preserved (--no-edit). Amending re-runs the commit-msg hook,
// which is how a missing Change-Id trailer gets assigned.
func (r *Repo) CommitAmend(ctx context.Context, opts CommitOpts) error {
	args := []string{"commit", "--amend"}
	if opts.Message == "" {
		args = append(args, "--no-edit")
	}
	if opts.Signoff {
		args = append(args, "-s")
	}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.Message != "" {
		args = append(args, "-m", opts.Message)
	}
	_, err := r.git(ctx, args...)
	return err
}

// Show returns `git show -s --pretty=format:<format>` for rev.
func (r *Repo) Show(ctx context.Context, rev, format string) (string, error) {
	out, err := r.git(ctx, "show", "-s", "--pretty=format:"+format, rev)
	return out, err
}

// Author returns the "Name <email>" authorship of rev.
func (r *Repo) Author(ctx context.Context, rev string) (string, error) {
	out, err := r.Show(ctx, rev, "%an <%ae>")
	return strings.TrimSpace(out), err
}

// MessageLog returns the concatenated commit messages of base..head,
// oldest first, as produced by `git log --format=%B --reverse`.
func (r *Repo) MessageLog(ctx context.Context, base, head string) (string, error) {
	return r.git(ctx, "log", "--format=%B", "--reverse", base+".."+head)
}

// Trailers parses the full commit message of rev into a trailer map,
// optionally filtered to the given keys.
func (r *Repo) Trailers(ctx context.Context, rev string, keys ...string) (trailer.Map, error) {
	body, err := r.Show(ctx, rev, "%B")
	if err != nil {
		return nil, err
	}
	return trailer.Parse(body).Filter(keys...), nil
}

// LastCommitTrailers is Trailers("HEAD", keys...), except that a missing
// HEAD (fresh repository) yields an empty map rather than an error.
// Other git failures are propagated.
func (r *Repo) LastCommitTrailers(ctx context.Context, keys ...string) (trailer.Map, error) {
	m, err := r.Trailers(ctx, "HEAD", keys...)
	if err != nil {
		if _, herr := r.RevParse(ctx, "HEAD"); herr != nil {
			return trailer.Map{}, nil
		}
		return nil, err
	}
	return m, nil
}

// ConfigSet sets a repository-local git config key.
func (r *Repo) ConfigSet(ctx context.Context, key, value string) error {
	_, err := r.git(ctx, "config", key, value)
	return err
}

// ConfigGet returns a single-valued git config key, or "" when unset.
func (r *Repo) ConfigGet(ctx context.Context, key string) string {
	out, err := r.git(ctx, "config", "--get", key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// ConfigGetAll returns every value of a multi-valued git config key.
func (r *Repo) ConfigGetAll(ctx context.Context, key string) []string {
	out, err := r.git(ctx, "config", "--get-all", key)
	if err != nil {
		return nil
	}
	var vals []string
	for _, ln := range strings.Split(out, "\n") {
		if v := strings.TrimSpace(ln); v != "" {
			vals = append(vals, v)
		}
	}
	return vals
}

// RemoteAdd adds a named remote if it is not already configured.
func (r *Repo) RemoteAdd(ctx context.Context, name, url string) error {
	if r.ConfigGet(ctx, "remote."+name+".url") != "" {
		return nil
	}
	_, err := r.git(ctx, "remote", "add", name, url)
	return err
}
