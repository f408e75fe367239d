// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package gerrit queries a Gerrit server for the changes created by a
// push and posts back-references to them. The REST API is reached over
// HTTPS; review comments go over the SSH command interface, the same
// channel the push itself uses.
package gerrit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lfit/github2gerrit/internal/secret"
)

// A Client is a connection to one Gerrit instance.
type Client struct {
	slog   *slog.Logger
	host   string // instance host name, "gerrit.example.org"
	secret secret.DB
	http   *http.Client

	base   string // discovered URL base path, "" or "/r"
	scheme string // "https" outside of tests
}

// New returns a new client for the Gerrit instance described by a host
// name like "gerrit.example.org". The secret database may hold HTTP
// credentials for the host, named by the host, in "user:pass" form;
// anonymous queries work without them.
func New(lg *slog.Logger, host string, sdb secret.DB, hc *http.Client) *Client {
	return &Client{
		slog:   lg,
		host:   host,
		secret: sdb,
		http:   hc,
		scheme: "https",
	}
}

// NewTesting is like New but talks plain HTTP to a fake server named
// by host. It is only for tests.
func NewTesting(lg *slog.Logger, host string, sdb secret.DB, hc *http.Client) *Client {
	c := New(lg, host, sdb, hc)
	c.scheme = "http"
	return c
}

// basePaths are the URL prefixes a Gerrit instance may serve its REST
// API under. Most instances answer at the root; some sit behind a
// reverse proxy at /r.
var basePaths = []string{"", "/r"}

// maxTries bounds retries of a rate-limited request.
const maxTries = 20

// get fetches path (starting with "/changes/" or similar) and decodes
// the body as JSON into obj. The first request that 404s at the root
// base path is retried under /r; the base that answers is remembered.
func (c *Client) get(ctx context.Context, path string, obj any) error {
	bases := basePaths
	if c.base != "" {
		bases = []string{c.base}
	}
	var lastErr error
	for _, base := range bases {
		err := c.getBase(ctx, base, path, obj)
		if err == nil {
			c.base = base
			return nil
		}
		lastErr = err
		if !errors.Is(err, errNotFound) {
			break
		}
	}
	return lastErr
}

var errNotFound = errors.New("not found")

func (c *Client) getBase(ctx context.Context, base, path string, obj any) error {
	addr := c.scheme + "://" + c.host + base + path
	c.slog.Debug("gerrit GET", "addr", addr)

	tries := 0
	backoff := 1 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, "GET", addr, nil)
		if err != nil {
			return err
		}
		if auth, ok := c.secret.Get(c.host); ok {
			user, pass, _ := strings.Cut(auth, ":")
			req.SetBasicAuth(user, pass)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("reading body: %v", err)
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				tries++
				if tries > maxTries {
					return errors.New("too many requests")
				}
				c.slog.Info("gerrit too many requests",
					"try", tries,
					"sleep", backoff,
					"body", string(data))

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}

				backoff = min(backoff*2, 1*time.Minute)

				continue
			}

			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%s: %w", addr, errNotFound)
			}
			return fmt.Errorf("%s\n%s", resp.Status, data)
		}

		// Skip the XSRF header at the start of the response.
		buf := bufio.NewReader(resp.Body)
		defer resp.Body.Close()
		if _, err := buf.ReadSlice('\n'); err != nil {
			return err
		}

		return json.NewDecoder(buf).Decode(obj)
	}
}

// A ChangeInfo holds the fields of a Gerrit change the submitter reads
// back after a push.
type ChangeInfo struct {
	ID              string `json:"id"`
	Project         string `json:"project"`
	Branch          string `json:"branch"`
	ChangeID        string `json:"change_id"`
	Number          int    `json:"_number"`
	Status          string `json:"status"`
	CurrentRevision string `json:"current_revision"`
}

// QueryChange returns the single open change in project carrying the
// given Change-Id, or nil when no such change exists.
func (c *Client) QueryChange(ctx context.Context, project, changeID string) (*ChangeInfo, error) {
	q := fmt.Sprintf("limit:1 is:open project:%s %s", project, changeID)
	path := "/changes/?q=" + url.QueryEscape(q) + "&o=CURRENT_REVISION&n=1"
	var changes []*ChangeInfo
	if err := c.get(ctx, path, &changes); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return changes[0], nil
}

// ChangeURL returns the web URL of a change on the instance.
func ChangeURL(host, project string, number int) string {
	return fmt.Sprintf("https://%s/c/%s/+/%d", host, project, number)
}

// A Submission describes one Gerrit change resulting from a push.
type Submission struct {
	ChangeID string
	Number   int
	URL      string
	SHA      string // sha of the current revision
}

// Submissions looks up each pushed Change-Id and returns the changes
// found. A Change-Id that cannot be resolved is logged and skipped;
// the push already succeeded, so reporting is best-effort.
func (c *Client) Submissions(ctx context.Context, project string, changeIDs []string) []Submission {
	var subs []Submission
	for _, id := range changeIDs {
		ci, err := c.QueryChange(ctx, project, id)
		if err != nil {
			c.slog.Warn("gerrit change query failed", "changeid", id, "err", err)
			continue
		}
		if ci == nil {
			c.slog.Warn("gerrit change not found", "changeid", id, "project", project)
			continue
		}
		subs = append(subs, Submission{
			ChangeID: id,
			Number:   ci.Number,
			URL:      ChangeURL(c.host, project, ci.Number),
			SHA:      ci.CurrentRevision,
		})
	}
	return subs
}
