// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// A PullRequest holds the fields of a GitHub pull request the
// submitter cares about.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"` // "open" or "closed"
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
	Head    Ref    `json:"head"`
	Base    Ref    `json:"base"`
}

// A User identifies a GitHub account.
type User struct {
	Login string `json:"login"`
}

// A Ref is one side of a pull request.
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// An IssueComment is a comment on a pull request's conversation thread.
type IssueComment struct {
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// PullRequest fetches one pull request of the project
// (a repository name of the form "org/repo").
func (c *Client) PullRequest(ctx context.Context, project string, number int) (*PullRequest, error) {
	data, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d", c.api, project, number))
	if err != nil {
		return nil, err
	}
	pr := new(PullRequest)
	if err := json.Unmarshal(data, pr); err != nil {
		return nil, fmt.Errorf("pull request %s#%d: %v", project, number, err)
	}
	return pr, nil
}

// commentPageSize is the REST page size used when listing comments.
const commentPageSize = 100

// IssueComments returns up to max of the most recent comments on the
// pull request's conversation thread, oldest first.
func (c *Client) IssueComments(ctx context.Context, project string, number, max int) ([]*IssueComment, error) {
	var all []*IssueComment
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=%d&page=%d",
			c.api, project, number, commentPageSize, page)
		data, err := c.get(ctx, u)
		if err != nil {
			return nil, err
		}
		var batch []*IssueComment
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("comments %s#%d: %v", project, number, err)
		}
		all = append(all, batch...)
		if len(batch) < commentPageSize {
			break
		}
	}
	if max > 0 && len(all) > max {
		all = all[len(all)-max:]
	}
	return all, nil
}

// PostIssueComment adds a comment to the pull request's conversation
// thread.
func (c *Client) PostIssueComment(ctx context.Context, project string, number int, body string) error {
	_, err := c.post(ctx, fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.api, project, number),
		map[string]string{"body": body})
	return err
}

// ClosePullRequest marks the pull request closed.
func (c *Client) ClosePullRequest(ctx context.Context, project string, number int) error {
	_, err := c.patch(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d", c.api, project, number),
		map[string]string{"state": "closed"})
	return err
}

// FileContent returns the content of a file in the repository at the
// given ref (branch, tag or sha). Ref may be empty for the default
// branch.
func (c *Client) FileContent(ctx context.Context, project, ref, path string) ([]byte, error) {
	u := fmt.Sprintf("%s/repos/%s/contents/%s", c.api, project, path)
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	data, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var file struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("contents %s:%s: %v", project, path, err)
	}
	if file.Encoding != "base64" {
		return nil, fmt.Errorf("contents %s:%s: unexpected encoding %q", project, path, file.Encoding)
	}
	return base64.StdEncoding.DecodeString(file.Content)
}

// DefaultBranch returns the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context, project string) (string, error) {
	data, err := c.get(ctx, fmt.Sprintf("%s/repos/%s", c.api, project))
	if err != nil {
		return "", err
	}
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.Unmarshal(data, &repo); err != nil {
		return "", fmt.Errorf("repo %s: %v", project, err)
	}
	return repo.DefaultBranch, nil
}
