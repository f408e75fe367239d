// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package gitreview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lfit/github2gerrit/internal/github"
)

// rawBase is where raw file contents of public GitHub repositories
// are served. Tests override it.
const rawBase = "https://raw.githubusercontent.com"

// A Resolver finds the .gitreview of a repository, trying the local
// checkout first, then the GitHub contents API, then the public raw
// file server, and finally explicitly configured coordinates.
type Resolver struct {
	slog *slog.Logger
	gh   *github.Client
	http *http.Client
	raw  string
}

// NewResolver returns a Resolver. The GitHub client may be nil when
// only the local checkout and explicit coordinates should be tried.
func NewResolver(lg *slog.Logger, gh *github.Client, hc *http.Client) *Resolver {
	return &Resolver{slog: lg, gh: gh, http: hc, raw: rawBase}
}

// Resolve determines the Gerrit coordinates for the GitHub project
// ("org/repo"). It reads repoDir/.gitreview when repoDir is not empty,
// then asks GitHub for the file at each candidate ref in order, and
// finally falls back to explicit, which holds operator-configured
// coordinates and may be nil.
func (r *Resolver) Resolve(ctx context.Context, repoDir, project string, refs []string, explicit *Info) (*Info, error) {
	if repoDir != "" {
		data, err := os.ReadFile(filepath.Join(repoDir, ".gitreview"))
		if err == nil {
			info, err := Parse(string(data))
			if err == nil {
				r.slog.Debug("gitreview from checkout", "host", info.Host)
				return info, nil
			}
			r.slog.Warn("gitreview in checkout unparseable", "err", err)
		}
	}

	refs = dedup(refs)
	if r.gh != nil {
		for _, ref := range refs {
			data, err := r.gh.FileContent(ctx, project, ref, ".gitreview")
			if err != nil {
				r.slog.Debug("gitreview not via API", "ref", ref, "err", err)
				continue
			}
			if info, err := Parse(string(data)); err == nil {
				r.slog.Debug("gitreview from API", "ref", ref, "host", info.Host)
				return info, nil
			}
		}
	}

	if r.http != nil {
		for _, ref := range refs {
			data, err := r.fetchRaw(ctx, project, ref)
			if err != nil {
				r.slog.Debug("gitreview not via raw", "ref", ref, "err", err)
				continue
			}
			if info, err := Parse(string(data)); err == nil {
				r.slog.Debug("gitreview from raw", "ref", ref, "host", info.Host)
				return info, nil
			}
		}
	}

	if explicit != nil && explicit.Host != "" {
		info := *explicit
		if info.Port == 0 {
			info.Port = DefaultPort
		}
		// A missing project is left empty here; whether deriving one
		// from the repository name is allowed depends on the
		// invocation mode, which the caller knows.
		return &info, nil
	}

	return nil, fmt.Errorf("no .gitreview found for %s and no Gerrit server configured", project)
}

func (r *Resolver) fetchRaw(ctx context.Context, project, ref string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/%s/.gitreview", r.raw, project, ref)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// CandidateRefs lists the refs to look for .gitreview at, in order:
// the pull request's head, the event commit sha, the base, then the
// conventional default branch names.
func CandidateRefs(headRef, sha, baseRef string) []string {
	var refs []string
	if headRef != "" {
		refs = append(refs, headRef)
	}
	if sha != "" {
		refs = append(refs, sha)
	}
	if baseRef != "" {
		refs = append(refs, baseRef)
	}
	return append(refs, "master", "main")
}

func dedup(ss []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range ss {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
