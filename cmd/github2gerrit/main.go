// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Github2gerrit submits GitHub pull requests to a Gerrit code review
// instance. It normally runs inside a GitHub Actions workflow, reading
// its context from the environment, but can also be pointed directly
// at a pull request or repository URL.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lfit/github2gerrit/internal/config"
	"github.com/lfit/github2gerrit/internal/github"
	"github.com/lfit/github2gerrit/internal/gitrepo"
	"github.com/lfit/github2gerrit/internal/pipeline"
	"github.com/lfit/github2gerrit/internal/secret"
	"github.com/lfit/github2gerrit/internal/shell"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ue *config.UsageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		level   string
		workDir string
		in      = config.FromEnv()
	)

	cmd := &cobra.Command{
		Use:   "github2gerrit [repository-or-pull-request-url]",
		Short: "Submit GitHub pull requests to Gerrit",
		Long: `github2gerrit reshapes the commits of a GitHub pull request into
Gerrit changes, pushes them with git-review, and cross-links both
sides. Given a repository URL without a pull request number it
submits every open pull request in turn.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := newLogger(level)
			return run(cmd.Context(), lg, in, workDir, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&level, "level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&workDir, "dir", "", "git working tree (default: current directory)")
	f.BoolVar(&in.DryRun, "dry-run", in.DryRun, "validate and probe connectivity, push nothing")
	f.BoolVar(&in.DisableNetwork, "disable-network", in.DisableNetwork, "skip network probes during a dry run")
	f.BoolVar(&in.SubmitSingleCommits, "submit-single-commits", in.SubmitSingleCommits, "one Gerrit change per pull request commit")
	f.BoolVar(&in.UsePRAsCommit, "use-pr-as-commit", in.UsePRAsCommit, "use the pull request title and body as the commit message")
	f.BoolVar(&in.PreserveGitHubPRs, "preserve-github-prs", in.PreserveGitHubPRs, "do not close the pull request after submission")
	f.StringVar(&in.GerritServer, "gerrit-server", in.GerritServer, "Gerrit host, overrides .gitreview")
	f.IntVar(&in.GerritServerPort, "gerrit-port", in.GerritServerPort, "Gerrit SSH port")
	f.StringVar(&in.GerritProject, "gerrit-project", in.GerritProject, "Gerrit project, overrides .gitreview")
	f.StringVar(&in.ReviewersEmail, "reviewers", in.ReviewersEmail, "comma-separated reviewer addresses")
	f.StringVar(&in.TopicPrefix, "topic-prefix", in.TopicPrefix, "Gerrit topic prefix")
	f.IntVar(&in.FetchDepth, "fetch-depth", in.FetchDepth, "git fetch depth, 0 for full history")
	return cmd
}

func newLogger(level string) *slog.Logger {
	var lv slog.LevelVar
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &lv}))
}

func run(ctx context.Context, lg *slog.Logger, in *config.Inputs, workDir string, args []string) error {
	gctx := config.ContextFromEnv()
	direct := false
	if len(args) == 1 {
		repo, pr, err := parseTarget(args[0])
		if err != nil {
			return err
		}
		direct = true
		gctx.Repository = repo
		gctx.Owner, _, _ = strings.Cut(repo, "/")
		gctx.PRNumber = pr
		if gctx.EventName == "" {
			gctx.EventName = "workflow_dispatch"
		}
	}
	if in.Organization == "" {
		in.Organization = gctx.Owner
	}

	oc, err := config.LoadOrgConfig(in.Organization)
	if err != nil {
		return err
	}
	in.Merge(oc)
	if err := in.Validate(); err != nil {
		return err
	}

	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	sdb := secretDB(lg)
	exec := shell.New(lg)
	git := gitrepo.New(lg, workDir, exec)
	gh := github.New(lg, sdb, http.DefaultClient)

	p := pipeline.New(lg, in, gctx, exec, git, gh, sdb)
	if direct {
		p.SetDirectURL()
	}

	if direct && gctx.PRNumber == 0 && !in.DryRun {
		results, err := p.RunAll(ctx)
		if err != nil {
			return err
		}
		for _, res := range results {
			printResult(res)
		}
		return nil
	}

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

// secretDB builds the secret database: tokens handed over in the
// environment win over ~/.netrc.
func secretDB(lg *slog.Logger) secret.DB {
	m := secret.Map{}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		m.Set("api.github.com", "x-access-token:"+tok)
	}
	if len(m) > 0 {
		return m
	}
	return secret.Netrc(lg)
}

// printResult writes the submission outputs in KEY=value form, the
// shape workflow steps consume.
func printResult(res *pipeline.Result) {
	if res.DryRun {
		fmt.Printf("DRY_RUN=true\nGERRIT_PROJECT=%s\n", res.Project)
		return
	}
	fmt.Printf("GERRIT_PROJECT=%s\n", res.Project)
	fmt.Printf("GERRIT_BRANCH=%s\n", res.Branch)
	fmt.Printf("GERRIT_CHANGE_REQUEST_URL=%s\n", strings.Join(res.URLs, " "))
	var nums []string
	for _, n := range res.Numbers {
		nums = append(nums, fmt.Sprint(n))
	}
	fmt.Printf("GERRIT_CHANGE_REQUEST_NUM=%s\n", strings.Join(nums, " "))
	fmt.Printf("GERRIT_COMMIT_SHA=%s\n", strings.Join(res.SHAs, " "))
}
