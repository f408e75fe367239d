// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package changeid reshapes the commits of a pull request into the
// form Gerrit ingests: either one change per original commit or a
// single squashed change, each carrying a stable Change-Id trailer.
//
// For the per-commit strategy a trailer already carried by a commit is
// kept. For the squash strategy the id comes from a previous submission
// of the same pull request recorded in its comments, or else from the
// Gerrit commit-msg hook, which assigns a fresh one while the commit is
// amended; ids found in the original commit messages are stripped, not
// reused, since they may belong to unrelated changes.
package changeid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lfit/github2gerrit/internal/gitrepo"
	"github.com/lfit/github2gerrit/internal/github"
	"github.com/lfit/github2gerrit/internal/trailer"
)

// commentScanWindow is how many of the most recent pull request
// comments are searched for a previously submitted Change-Id.
const commentScanWindow = 50

// An Engine prepares commits for submission.
type Engine struct {
	slog *slog.Logger
	git  *gitrepo.Repo
	gh   *github.Client
}

// New returns an Engine over the given working tree. The GitHub
// client may be nil when Change-Id reuse from pull request comments is
// not wanted.
func New(lg *slog.Logger, git *gitrepo.Repo, gh *github.Client) *Engine {
	return &Engine{slog: lg, git: git, gh: gh}
}

// A Prepared describes the commits sitting on the temporary branch,
// ready to push. ChangeIDs and CommitSHAs are parallel to the
// submission order, oldest first; ChangeIDs is deduplicated.
type Prepared struct {
	ChangeIDs  []string
	CommitSHAs []string
}

// tempBranch returns a fresh temporary branch name. The name is
// returned to the caller, which owns cleanup; nothing is stashed in
// the process environment.
func tempBranch() string {
	return "g2g-tmp-" + uuid.NewString()
}

// PreparePerCommit rebuilds every commit of baseRef..headRef onto a
// new temporary branch rooted at baseRef, amending each so that the
// commit-msg hook can add a Change-Id where one is missing. It returns
// the prepared commits and the temporary branch name, which is left
// checked out.
func (e *Engine) PreparePerCommit(ctx context.Context, baseRef, headRef string) (*Prepared, string, error) {
	shas, err := e.git.CommitRange(ctx, baseRef, headRef)
	if err != nil {
		return nil, "", err
	}
	if len(shas) == 0 {
		// Nothing to submit; leave history untouched.
		e.slog.Info("empty commit range", "base", baseRef, "head", headRef)
		return new(Prepared), "", nil
	}

	branch := tempBranch()
	if err := e.git.CheckoutNewBranch(ctx, branch, baseRef); err != nil {
		return nil, "", err
	}

	p := new(Prepared)
	for _, sha := range shas {
		if err := e.git.CherryPick(ctx, sha); err != nil {
			return nil, branch, fmt.Errorf("cherry-pick %s: %w", sha, err)
		}
		author, err := e.git.Author(ctx, sha)
		if err != nil {
			return nil, branch, err
		}
		// The amend re-runs the commit-msg hook, which assigns a
		// Change-Id to commits that lack one.
		if err := e.git.CommitAmend(ctx, gitrepo.CommitOpts{Author: author, Signoff: true}); err != nil {
			return nil, branch, err
		}
		m, err := e.git.LastCommitTrailers(ctx, "Change-Id")
		if err != nil {
			return nil, branch, err
		}
		id := m.First("Change-Id")
		if !trailer.ValidChangeID(id) {
			return nil, branch, fmt.Errorf("commit %s has no usable Change-Id after amend", sha)
		}
		newSHA, err := e.git.RevParse(ctx, "HEAD")
		if err != nil {
			return nil, branch, err
		}
		p.ChangeIDs = append(p.ChangeIDs, id)
		p.CommitSHAs = append(p.CommitSHAs, newSHA)
	}
	p.ChangeIDs = trailer.Dedup(p.ChangeIDs)
	e.slog.Info("prepared per-commit submission",
		"branch", branch, "commits", len(p.CommitSHAs), "changeids", len(p.ChangeIDs))
	return p, branch, nil
}

// SquashOpts control PrepareSquash.
type SquashOpts struct {
	BaseRef string
	HeadRef string

	// Title and Body, when Title is set, replace the synthesized
	// message body; Signed-off-by lines from the original commits are
	// still appended.
	Title string
	Body  string

	// ReuseFromPR scans the pull request's recent comments for a
	// Change-Id from an earlier submission of the same PR, keeping the
	// change history in Gerrit connected across reopens and updates.
	ReuseFromPR bool
	Project     string // "org/repo", for the comment scan
	PRNumber    int

	Author string // authorship of the squashed commit, "Name <email>"
}

// PrepareSquash combines baseRef..headRef into one commit on a new
// temporary branch and returns it along with the branch name, which is
// left checked out.
func (e *Engine) PrepareSquash(ctx context.Context, opts SquashOpts) (*Prepared, string, error) {
	headSHA, err := e.git.RevParse(ctx, opts.HeadRef)
	if err != nil {
		return nil, "", err
	}
	shas, err := e.git.CommitRange(ctx, opts.BaseRef, opts.HeadRef)
	if err != nil {
		return nil, "", err
	}
	if len(shas) == 0 {
		e.slog.Info("empty commit range", "base", opts.BaseRef, "head", opts.HeadRef)
		return new(Prepared), "", nil
	}
	messages, err := e.git.MessageLog(ctx, opts.BaseRef, opts.HeadRef)
	if err != nil {
		return nil, "", err
	}
	sm := trailer.Squash(messages)

	if opts.Title != "" {
		sm.Body = []string{opts.Title}
		if body := strings.TrimSpace(opts.Body); body != "" {
			sm.Body = append(sm.Body, "", body)
		}
	}

	reused := ""
	if opts.ReuseFromPR && e.gh != nil {
		reused, err = e.RecentChangeID(ctx, opts.Project, opts.PRNumber)
		if err != nil {
			e.slog.Warn("change-id reuse scan failed", "err", err)
		}
	}

	branch := tempBranch()
	if err := e.git.CheckoutNewBranch(ctx, branch, opts.BaseRef); err != nil {
		return nil, "", err
	}
	if err := e.git.SquashMerge(ctx, headSHA); err != nil {
		return nil, branch, fmt.Errorf("squash merge %s: %w", headSHA, err)
	}
	if err := e.git.CommitNew(ctx, gitrepo.CommitOpts{
		Message: sm.Compose(reused),
		Author:  opts.Author,
		Signoff: true,
	}); err != nil {
		return nil, branch, err
	}

	// No prior Change-Id anywhere: amend so the commit-msg hook
	// assigns a fresh one.
	m, err := e.git.LastCommitTrailers(ctx, "Change-Id")
	if err != nil {
		return nil, branch, err
	}
	if !trailer.ValidChangeID(m.First("Change-Id")) {
		if err := e.git.CommitAmend(ctx, gitrepo.CommitOpts{Author: opts.Author, Signoff: true}); err != nil {
			return nil, branch, err
		}
		m, err = e.git.LastCommitTrailers(ctx, "Change-Id")
		if err != nil {
			return nil, branch, err
		}
	}
	id := m.First("Change-Id")
	if !trailer.ValidChangeID(id) {
		return nil, branch, fmt.Errorf("squashed commit has no usable Change-Id")
	}

	sha, err := e.git.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, branch, err
	}
	e.slog.Info("prepared squash submission", "branch", branch, "changeid", id)
	return &Prepared{ChangeIDs: []string{id}, CommitSHAs: []string{sha}}, branch, nil
}

// RecentChangeID scans the pull request's most recent comments for
// Change-Id trailers from an earlier submission. The last mention
// wins; "" means none were found.
func (e *Engine) RecentChangeID(ctx context.Context, project string, prNumber int) (string, error) {
	comments, err := e.gh.IssueComments(ctx, project, prNumber, commentScanWindow)
	if err != nil {
		return "", err
	}
	last := ""
	for _, c := range comments {
		for _, id := range trailer.FindChangeIDs(c.Body) {
			if trailer.ValidChangeID(id) {
				last = id
			}
		}
	}
	return last, nil
}
