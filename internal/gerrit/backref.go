// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lfit/github2gerrit/internal/shell"
)

// PostBackref adds a review comment linking a change revision back to
// the pull request it came from, using the SSH command interface as
// the pushing user. Failures are reported but the push has already
// happened, so callers treat them as warnings.
func (c *Client) PostBackref(ctx context.Context, exec shell.Executor, user string, port int, project, branch, sha, message string) error {
	if port == 0 {
		port = 29418
	}
	args := []string{
		"ssh", "-n",
		"-p", strconv.Itoa(port),
		user + "@" + c.host,
		"gerrit", "review",
		"-m", strconv.Quote(message),
		"--branch", branch,
		"--project", project,
		sha,
	}
	if _, err := exec.Run(ctx, shell.Cmd{Args: args}); err != nil {
		return fmt.Errorf("gerrit review comment on %s: %w", sha, err)
	}
	return nil
}
