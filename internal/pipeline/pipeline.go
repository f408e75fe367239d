// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package pipeline runs a pull request through submission to Gerrit:
// resolve the Gerrit coordinates, stage credentials, reshape the
// commits, push with git-review, read the created changes back, and
// cross-link both sides.
//
// The pipeline is strictly sequential. Later steps depend on the git
// working tree state left by earlier ones, and bulk mode shares one
// working tree across pull requests, so one pull request runs to
// completion before the next begins. Once the push has happened every
// later failure degrades to a warning; nothing may mask a completed
// push.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lfit/github2gerrit/internal/changeid"
	"github.com/lfit/github2gerrit/internal/config"
	"github.com/lfit/github2gerrit/internal/gerrit"
	"github.com/lfit/github2gerrit/internal/github"
	"github.com/lfit/github2gerrit/internal/gitrepo"
	"github.com/lfit/github2gerrit/internal/gitreview"
	"github.com/lfit/github2gerrit/internal/metrics"
	"github.com/lfit/github2gerrit/internal/secret"
	"github.com/lfit/github2gerrit/internal/shell"
	"github.com/lfit/github2gerrit/internal/sshsetup"
)

// defaultTopicPrefix prefixes the Gerrit topic when the operator
// configures none.
const defaultTopicPrefix = "GH"

// pushRetries is the retry budget for the git-review push.
const pushRetries = 2

// A Pipeline submits pull requests of one repository to Gerrit.
type Pipeline struct {
	slog     *slog.Logger
	inputs   *config.Inputs
	gctx     *config.Context
	exec     shell.Executor // git-review pushes and ssh review comments
	git      *gitrepo.Repo
	gh       *github.Client
	engine   *changeid.Engine
	resolver *gitreview.Resolver
	secret   secret.DB
	metrics  *metrics.Metrics

	sshDir    string                           // "" means ~/.ssh
	newGerrit func(host string) *gerrit.Client // test seam
	directURL bool                             // invoked with a repository URL, not an event
}

// New assembles a Pipeline. The executor runs the push and the SSH
// review comments; the git repository carries its own.
func New(lg *slog.Logger, in *config.Inputs, gctx *config.Context, exec shell.Executor,
	git *gitrepo.Repo, gh *github.Client, sdb secret.DB) *Pipeline {
	p := &Pipeline{
		slog:     lg,
		inputs:   in,
		gctx:     gctx,
		exec:     exec,
		git:      git,
		gh:       gh,
		engine:   changeid.New(lg, git, gh),
		resolver: gitreview.NewResolver(lg, gh, http.DefaultClient),
		secret:   sdb,
		metrics:  metrics.New(lg),
	}
	p.newGerrit = func(host string) *gerrit.Client {
		return gerrit.New(lg, host, sdb, http.DefaultClient)
	}
	return p
}

// SetDirectURL marks the run as a direct-URL invocation, which
// relaxes the event context requirements and permits deriving the
// Gerrit project from the repository name.
func (p *Pipeline) SetDirectURL() { p.directURL = true }

// A Result describes one submitted pull request.
type Result struct {
	Project    string   // Gerrit project
	Branch     string   // Gerrit target branch
	TempBranch string   // temporary working branch, already deleted
	ChangeIDs  []string // submission order
	URLs       []string // parallel to ChangeIDs where resolvable
	Numbers    []int
	SHAs       []string
	DryRun     bool
}

// Run submits the pull request named by the context. On a dry run it
// stops after the preflight checks.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.guardContext(); err != nil {
		return nil, err
	}

	info, err := p.resolveGerrit(ctx)
	if err != nil {
		return nil, err
	}
	gc := p.newGerrit(info.Host)

	if p.inputs.DryRun {
		p.metrics.Run(ctx, "dry-run")
		if err := p.preflight(ctx, gc, info); err != nil {
			return nil, err
		}
		return &Result{Project: info.Project, DryRun: true}, nil
	}
	p.metrics.Run(ctx, p.mode())

	if err := p.setupSSH(info); err != nil {
		return nil, err
	}
	if err := p.configureGit(ctx, info); err != nil {
		return nil, err
	}

	branch, err := p.targetBranch(ctx)
	if err != nil {
		return nil, err
	}
	prepared, tempBranch, err := p.prepareCommits(ctx, branch)
	if tempBranch != "" {
		defer p.cleanup(ctx, branch, tempBranch)
	}
	if err != nil {
		return nil, err
	}
	if len(prepared.CommitSHAs) == 0 {
		p.slog.Info("nothing to submit", "pr", p.gctx.PRNumber)
		return &Result{Project: info.Project, Branch: branch}, nil
	}

	if err := p.push(ctx, info, branch, tempBranch); err != nil {
		return nil, err
	}
	p.metrics.Push(ctx, len(prepared.CommitSHAs))

	// The push succeeded. Everything below is best-effort reporting.
	res := &Result{
		Project:    info.Project,
		Branch:     branch,
		TempBranch: tempBranch,
		ChangeIDs:  prepared.ChangeIDs,
	}
	for _, sub := range gc.Submissions(ctx, info.Project, prepared.ChangeIDs) {
		res.URLs = append(res.URLs, sub.URL)
		res.Numbers = append(res.Numbers, sub.Number)
		res.SHAs = append(res.SHAs, sub.SHA)
		p.backref(ctx, gc, info, branch, sub)
	}
	p.commentAndClose(ctx, res)
	return res, nil
}

// RunAll submits every open pull request of the repository, one at a
// time. A failing pull request is reported and skipped; the rest of
// the batch still runs.
func (p *Pipeline) RunAll(ctx context.Context) ([]*Result, error) {
	owner, repo, ok := strings.Cut(p.gctx.Repository, "/")
	if !ok {
		return nil, &config.UsageError{Msg: "repository must be org/repo, got " + p.gctx.Repository}
	}
	numbers, err := github.OpenPullRequests(ctx, github.AuthClient(ctx, p.secret), owner, repo)
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests: %w", err)
	}
	p.slog.Info("bulk submission", "repository", p.gctx.Repository, "open", len(numbers))

	var results []*Result
	for _, n := range numbers {
		p.gctx.PRNumber = n
		res, err := p.Run(ctx)
		if err != nil {
			p.slog.Error("pull request submission failed", "pr", n, "err", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// guardContext checks that the event context identifies a pull
// request in a repository.
func (p *Pipeline) guardContext() error {
	if p.gctx.Repository == "" || !strings.Contains(p.gctx.Repository, "/") {
		return &config.UsageError{Msg: "no repository in context"}
	}
	if p.gctx.PRNumber <= 0 && !p.inputs.DryRun {
		return &config.UsageError{Msg: "no pull request number in context"}
	}
	return nil
}

// resolveGerrit finds the Gerrit coordinates for this repository.
func (p *Pipeline) resolveGerrit(ctx context.Context) (*gitreview.Info, error) {
	var explicit *gitreview.Info
	if p.inputs.GerritServer != "" {
		explicit = &gitreview.Info{
			Host:    p.inputs.GerritServer,
			Port:    p.inputs.GerritServerPort,
			Project: p.inputs.GerritProject,
		}
	}
	refs := gitreview.CandidateRefs(p.gctx.HeadRef, p.gctx.SHA, p.gctx.BaseRef)
	if p.gctx.HeadRef == "" && p.gctx.SHA == "" && p.gh != nil {
		// Direct-URL invocations have no event refs; ask GitHub for the
		// default branch before falling back to the conventional names.
		if b, err := p.gh.DefaultBranch(ctx, p.gctx.Repository); err == nil && b != "" {
			refs = append([]string{b}, refs...)
		}
	}
	info, err := p.resolver.Resolve(ctx, p.git.Dir(), p.gctx.Repository, refs, explicit)
	if err != nil {
		return nil, err
	}
	if info.Project == "" {
		if !p.inputs.DryRun && !p.directURL {
			return nil, &config.UsageError{Msg: "no Gerrit project configured and none found in .gitreview"}
		}
		_, repo, _ := strings.Cut(p.gctx.Repository, "/")
		info.Project = gitreview.ProjectFromGitHub(repo)
		p.slog.Info("gerrit project derived from repository name", "project", info.Project)
	}
	p.slog.Info("gerrit resolved",
		"host", info.Host, "port", info.Port,
		"project", info.Project, "repo", info.Names().GitHub)
	return info, nil
}

// mode names the submission strategy for logs and metrics.
func (p *Pipeline) mode() string {
	if p.inputs.SubmitSingleCommits {
		return "per-commit"
	}
	return "squash"
}

// preflight verifies connectivity without changing anything: name
// resolution, the SSH port, the REST API, and the pull request
// metadata. Network checks can be disabled for offline validation.
func (p *Pipeline) preflight(ctx context.Context, gc *gerrit.Client, info *gitreview.Info) error {
	p.slog.Info("dry run", "host", info.Host, "port", info.Port, "project", info.Project)
	if p.inputs.DisableNetwork {
		p.slog.Info("network checks disabled")
		return nil
	}
	if err := gc.ProbeDNS(ctx); err != nil {
		return err
	}
	if err := gc.ProbeSSHPort(ctx, info.Port); err != nil {
		return err
	}
	if err := gc.ProbeREST(ctx); err != nil {
		return err
	}
	if p.gctx.PRNumber > 0 {
		pr, err := p.gh.PullRequest(ctx, p.gctx.Repository, p.gctx.PRNumber)
		if err != nil {
			return fmt.Errorf("github preflight: %w", err)
		}
		p.slog.Info("github preflight ok", "pr", pr.Number, "state", pr.State)
	}
	return nil
}

// setupSSH stages the push user's credentials.
func (p *Pipeline) setupSSH(info *gitreview.Info) error {
	s, err := sshsetup.New(p.slog, p.sshDir)
	if err != nil {
		return err
	}
	return s.Install(p.inputs.GerritSSHPrivKey, p.inputs.GerritKnownHosts,
		info.Host, info.Port, p.inputs.GerritSSHUser)
}

// configureGit prepares the working tree for git-review: identity,
// gitreview keys, the gerrit remote, and the commit-msg hook.
func (p *Pipeline) configureGit(ctx context.Context, info *gitreview.Info) error {
	in := p.inputs
	for _, kv := range [][2]string{
		{"user.name", in.GerritSSHUser},
		{"user.email", in.GerritSSHUserEmail},
		{"gitreview.username", in.GerritSSHUser},
	} {
		if err := p.git.ConfigSet(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	remote := fmt.Sprintf("ssh://%s@%s:%d/%s", in.GerritSSHUser, info.Host, info.Port, info.Project)
	if err := p.git.RemoteAdd(ctx, "gerrit", remote); err != nil {
		return err
	}
	// Installs the commit-msg hook from the server.
	_, err := p.runRetry(ctx, pushRetries, "git", "review", "-s", "-v")
	if err != nil {
		return fmt.Errorf("git review -s: %w", err)
	}
	return nil
}

// prepareCommits reshapes the pull request onto a temporary branch
// per the configured strategy.
func (p *Pipeline) prepareCommits(ctx context.Context, branch string) (*changeid.Prepared, string, error) {
	baseRef := "origin/" + branch
	headSHA, err := p.git.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, "", err
	}
	if err := p.git.Fetch(ctx, "origin", branch); err != nil {
		p.slog.Warn("fetch of target branch failed, using local ref", "branch", branch, "err", err)
		baseRef = branch
	}

	if p.inputs.SubmitSingleCommits {
		return p.engine.PreparePerCommit(ctx, baseRef, headSHA)
	}

	author, err := p.git.Author(ctx, headSHA)
	if err != nil {
		return nil, "", err
	}
	opts := changeid.SquashOpts{
		BaseRef:     baseRef,
		HeadRef:     headSHA,
		ReuseFromPR: p.gctx.EventAction == "reopened" || p.gctx.EventAction == "synchronize",
		Project:     p.gctx.Repository,
		PRNumber:    p.gctx.PRNumber,
		Author:      author,
	}
	if p.inputs.UsePRAsCommit {
		pr, err := p.gh.PullRequest(ctx, p.gctx.Repository, p.gctx.PRNumber)
		if err != nil {
			return nil, "", fmt.Errorf("fetching pull request for message override: %w", err)
		}
		opts.Title = pr.Title
		opts.Body = pr.Body
	}
	return p.engine.PrepareSquash(ctx, opts)
}

// push hands the prepared branch to git-review.
func (p *Pipeline) push(ctx context.Context, info *gitreview.Info, branch, tempBranch string) error {
	topic := p.topic(info)
	args := []string{"git", "review", "--yes", "-t", topic}
	for _, r := range p.reviewers(ctx) {
		args = append(args, "--reviewer", r)
	}
	args = append(args, branch)
	if _, err := p.runRetry(ctx, pushRetries, args...); err != nil {
		return fmt.Errorf("git review push from %s: %w", tempBranch, err)
	}
	p.slog.Info("pushed to gerrit", "project", info.Project, "branch", branch, "topic", topic)
	return nil
}

// topic returns the Gerrit topic: prefix, the GitHub rendering of the
// project name, and the pull request number when there is one.
func (p *Pipeline) topic(info *gitreview.Info) string {
	prefix := p.inputs.TopicPrefix
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	t := prefix + "-" + info.Names().GitHub
	if p.gctx.PRNumber > 0 {
		t += "-" + strconv.Itoa(p.gctx.PRNumber)
	}
	return t
}

// reviewers resolves the reviewer list: explicit input, then git
// config, then the push user itself.
func (p *Pipeline) reviewers(ctx context.Context) []string {
	if rs := p.inputs.Reviewers(); len(rs) > 0 {
		return rs
	}
	for _, key := range []string{"github2gerrit.reviewersEmail", "reviewers.email"} {
		var out []string
		for _, v := range p.git.ConfigGetAll(ctx, key) {
			out = append(out, splitList(v)...)
		}
		if len(out) > 0 {
			return out
		}
	}
	if p.inputs.GerritSSHUserEmail != "" {
		return []string{p.inputs.GerritSSHUserEmail}
	}
	return nil
}

// targetBranch resolves the Gerrit branch to submit to: the event's
// base ref, then the remote default branch, then the conventional
// names.
func (p *Pipeline) targetBranch(ctx context.Context) (string, error) {
	if p.gctx.BaseRef != "" {
		return strings.TrimPrefix(p.gctx.BaseRef, "refs/heads/"), nil
	}
	if head, err := p.git.Show(ctx, "origin/HEAD", "%D"); err == nil {
		for _, part := range strings.Split(head, ",") {
			part = strings.TrimSpace(part)
			if b, ok := strings.CutPrefix(part, "origin/"); ok && b != "HEAD" {
				return b, nil
			}
		}
	}
	for _, b := range []string{"master", "main"} {
		if p.git.HasRef(ctx, "refs/remotes/origin/"+b) {
			return b, nil
		}
	}
	return "master", nil
}

// backref posts a review comment on the change pointing back at the
// pull request and workflow run. Warn-only; the push already landed.
func (p *Pipeline) backref(ctx context.Context, gc *gerrit.Client, info *gitreview.Info, branch string, sub gerrit.Submission) {
	msg := fmt.Sprintf("GHPR: %s/%s/pull/%d | Action-Run: %s/%s/actions/runs/%s",
		p.gctx.ServerURL, p.gctx.Repository, p.gctx.PRNumber,
		p.gctx.ServerURL, p.gctx.Repository, p.gctx.RunID)
	err := gc.PostBackref(ctx, p.exec, p.inputs.GerritSSHUser, info.Port,
		info.Project, branch, sub.SHA, msg)
	if err != nil {
		p.slog.Warn("backref comment failed", "change", sub.Number, "err", err)
	}
}

// commentAndClose reports the change URLs on the pull request and
// closes it when policy says so. Warn-only.
func (p *Pipeline) commentAndClose(ctx context.Context, res *Result) {
	if len(res.URLs) > 0 {
		body := "The pull-request PR has been submitted to Gerrit:\n" +
			strings.Join(res.URLs, "\n")
		if err := p.gh.PostIssueComment(ctx, p.gctx.Repository, p.gctx.PRNumber, body); err != nil {
			p.slog.Warn("result comment failed", "err", err)
		} else {
			p.metrics.Comment(ctx)
		}
	}
	if p.gctx.EventName == "pull_request_target" && !p.inputs.PreserveGitHubPRs {
		if err := p.gh.ClosePullRequest(ctx, p.gctx.Repository, p.gctx.PRNumber); err != nil {
			p.slog.Warn("closing pull request failed", "err", err)
		}
	}
}

// cleanup returns the working tree to the target branch and deletes
// the temporary branch.
func (p *Pipeline) cleanup(ctx context.Context, branch, tempBranch string) {
	if err := p.git.Checkout(ctx, branch); err != nil {
		p.slog.Warn("checkout after submission failed", "branch", branch, "err", err)
	}
	p.git.DeleteBranch(ctx, tempBranch)
}

// runRetry runs argv in the working tree through the pipeline
// executor, retrying transient network failures.
func (p *Pipeline) runRetry(ctx context.Context, retries int, argv ...string) (shell.Result, error) {
	cmd := shell.Cmd{Args: argv, Dir: p.git.Dir()}
	if runner, ok := p.exec.(*shell.Runner); ok {
		return runner.RunWithRetries(ctx, cmd, retries, func(r shell.Result) bool {
			if !shell.IsTransient(r.Stderr) {
				return false
			}
			p.metrics.Retry(ctx)
			return true
		})
	}
	return p.exec.Run(ctx, cmd)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
