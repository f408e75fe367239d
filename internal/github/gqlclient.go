// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package github

import (
	"context"
	"net/http"

	gql "github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/lfit/github2gerrit/internal/secret"
)

// AuthClient returns an HTTP client that authenticates GraphQL
// requests with the token from the secret database.
func AuthClient(ctx context.Context, sdb secret.DB) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: Token(sdb),
	}))
}

// listPageSize is the GraphQL page size used when listing open pull
// requests.
const listPageSize = 50

// OpenPullRequests returns the numbers of all open pull requests in
// owner/repo, in ascending order. The bulk submission mode walks this
// list one pull request at a time.
func OpenPullRequests(ctx context.Context, hc *http.Client, owner, repo string) ([]int, error) {
	c := gql.NewClient(hc)
	var q struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number gql.Int
				}
				PageInfo struct {
					HasNextPage gql.Boolean
					EndCursor   gql.String
				}
			} `graphql:"pullRequests(states: OPEN, orderBy: {field: CREATED_AT, direction: ASC}, first: $first, after: $after)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	vars := map[string]any{
		"owner": gql.String(owner),
		"repo":  gql.String(repo),
		"first": gql.Int(listPageSize),
		"after": (*gql.String)(nil),
	}
	var numbers []int
	for {
		if err := c.Query(ctx, &q, vars); err != nil {
			return nil, err
		}
		for _, n := range q.Repository.PullRequests.Nodes {
			numbers = append(numbers, int(n.Number))
		}
		if !q.Repository.PullRequests.PageInfo.HasNextPage {
			break
		}
		vars["after"] = gql.NewString(q.Repository.PullRequests.PageInfo.EndCursor)
	}
	return numbers, nil
}
