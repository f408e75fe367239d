// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package main

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lfit/github2gerrit/internal/config"
)

// parseTarget turns a direct invocation argument into a repository
// and, when present, a pull request number. Accepted forms:
//
//	https://github.com/org/repo
//	https://github.com/org/repo/pull/42
//	org/repo
func parseTarget(arg string) (repo string, pr int, err error) {
	path := arg
	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil {
			return "", 0, &config.UsageError{Msg: "unparseable URL: " + arg}
		}
		if u.Host != "github.com" {
			return "", 0, &config.UsageError{Msg: "unsupported host: " + u.Host}
		}
		path = u.Path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2:
		return parts[0] + "/" + parts[1], 0, nil
	case len(parts) == 4 && parts[2] == "pull":
		n, err := strconv.Atoi(parts[3])
		if err != nil || n <= 0 {
			return "", 0, &config.UsageError{Msg: "bad pull request number: " + parts[3]}
		}
		return parts[0] + "/" + parts[1], n, nil
	}
	return "", 0, &config.UsageError{Msg: "expected org/repo or a github.com repository or pull request URL, got " + arg}
}
