// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package github is a client for the subset of the GitHub API the
// submitter needs: reading pull requests and their comments, posting
// submission results back, and closing pull requests once they have
// been handed off to Gerrit.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lfit/github2gerrit/internal/secret"
)

// apiBase is the GitHub REST endpoint. Tests override it.
const apiBase = "https://api.github.com"

// A Client is a connection to the GitHub API.
type Client struct {
	slog   *slog.Logger
	secret secret.DB
	http   *http.Client
	api    string
}

// New returns a new client to the GitHub API.
// The secret database is expected to hold a secret named
// "api.github.com" of the form "user:pass", where pass is a personal
// access token or an Actions-provided token with an empty user.
func New(lg *slog.Logger, sdb secret.DB, hc *http.Client) *Client {
	return &Client{
		slog:   lg,
		secret: sdb,
		http:   hc,
		api:    apiBase,
	}
}

// NewTesting is like New but points the client at a fake API server.
// It is only for tests.
func NewTesting(lg *slog.Logger, sdb secret.DB, hc *http.Client, base string) *Client {
	c := New(lg, sdb, hc)
	c.api = base
	return c
}

// Token returns the GitHub token from the secret database, or "" when
// none is configured.
func Token(sdb secret.DB) string {
	auth, ok := sdb.Get("api.github.com")
	if !ok {
		return ""
	}
	if _, pass, ok := strings.Cut(auth, ":"); ok {
		return pass
	}
	return auth
}

// get makes a GET request, returning the response body on success.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, "GET", url, nil)
}

// patch is like get but makes a PATCH request with a JSON body.
func (c *Client) patch(ctx context.Context, url string, body any) ([]byte, error) {
	return c.json(ctx, "PATCH", url, body)
}

// post is like get but makes a POST request with a JSON body.
func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	return c.json(ctx, "POST", url, body)
}

func (c *Client) json(ctx context.Context, method, url string, body any) ([]byte, error) {
	js, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, url, js)
}

func (c *Client) do(ctx context.Context, method, url string, js []byte) ([]byte, error) {
	auth, ok := c.secret.Get("api.github.com")
	if !ok && !testing.Testing() {
		return nil, fmt.Errorf("no secret for api.github.com")
	}
	user, pass, _ := strings.Cut(auth, ":")

Redo:
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(js))
	if err != nil {
		return nil, err
	}
	if js != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if auth != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading body: %v", err)
	}
	if c.rateLimit(resp) {
		goto Redo
	}
	if resp.StatusCode/10 != 20 { // allow 200, 201, maybe others
		// Include body as part of error; don't return it separately.
		return nil, fmt.Errorf("%s\n%s", resp.Status, data)
	}
	return data, nil
}

// maxRateLimitWait bounds how long a single request will sleep waiting
// for a rate limit window to reset.
const maxRateLimitWait = 2 * time.Minute

// rateLimit reports whether the response failed due to rate limiting,
// sleeping through the reset window first so that the caller can retry
// the request.
func (c *Client) rateLimit(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	if resp.Header.Get("X-Ratelimit-Remaining") != "0" {
		return false
	}
	wait := 10 * time.Second
	if v := resp.Header.Get("X-Ratelimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(sec, 0)); d > 0 {
				wait = d
			}
		}
	}
	wait = min(wait, maxRateLimitWait)
	c.slog.Info("github rate limit", "wait", wait, "url", resp.Request.URL)
	time.Sleep(wait)
	return true
}
