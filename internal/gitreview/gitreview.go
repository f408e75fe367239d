// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package gitreview locates and parses the .gitreview file that names
// the Gerrit instance a repository submits to.
package gitreview

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPort is the standard Gerrit SSH port, used when .gitreview
// does not name one.
const DefaultPort = 29418

// An Info identifies the Gerrit instance and project a repository
// submits changes to.
type Info struct {
	Host    string // "gerrit.example.org"
	Port    int    // SSH port, DefaultPort when unset
	Project string // Gerrit project, "releng/builder" (no .git suffix)
}

var (
	hostRE    = regexp.MustCompile(`(?m)^\s*host\s*=\s*(\S+)`)
	portRE    = regexp.MustCompile(`(?m)^\s*port\s*=\s*(\d+)`)
	projectRE = regexp.MustCompile(`(?m)^\s*project\s*=\s*(\S+)`)
)

// Parse extracts the Gerrit coordinates from .gitreview content.
// Only the host, port and project keys are read; a missing port
// defaults to [DefaultPort] and a trailing ".git" on the project is
// stripped. A missing host is an error.
func Parse(content string) (*Info, error) {
	info := &Info{Port: DefaultPort}
	if m := hostRE.FindStringSubmatch(content); m != nil {
		info.Host = m[1]
	}
	if m := portRE.FindStringSubmatch(content); m != nil {
		p, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf(".gitreview: bad port %q", m[1])
		}
		info.Port = p
	}
	if m := projectRE.FindStringSubmatch(content); m != nil {
		info.Project = strings.TrimSuffix(m[1], ".git")
	}
	if info.Host == "" {
		return nil, fmt.Errorf(".gitreview: no host")
	}
	return info, nil
}

// RepoNames are the two renderings of a project name. Gerrit projects
// use slashes ("releng/builder"); the GitHub mirror of the same
// project replaces them with hyphens ("releng-builder").
type RepoNames struct {
	Gerrit string
	GitHub string
}

// Names derives both renderings from the Gerrit project name.
func (i *Info) Names() RepoNames {
	return RepoNames{
		Gerrit: i.Project,
		GitHub: strings.ReplaceAll(i.Project, "/", "-"),
	}
}

// ProjectFromGitHub derives the Gerrit project name from a GitHub
// repository name by reversing the hyphen rendering. The mapping is a
// convention, not an inverse; it is only used when no .gitreview
// names the project explicitly.
func ProjectFromGitHub(repo string) string {
	return strings.ReplaceAll(repo, "-", "/")
}
