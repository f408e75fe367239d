// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// dialTimeout bounds each preflight connection attempt.
const dialTimeout = 10 * time.Second

// ProbeDNS checks that the instance host name resolves.
func (c *Client) ProbeDNS(ctx context.Context) error {
	var r net.Resolver
	addrs, err := r.LookupHost(ctx, c.host)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", c.host, err)
	}
	c.slog.Debug("gerrit dns ok", "host", c.host, "addrs", addrs)
	return nil
}

// ProbeSSHPort checks that the SSH port accepts TCP connections.
// Nothing is sent; the connection is closed as soon as it opens.
func (c *Client) ProbeSSHPort(ctx context.Context, port int) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("dialing %s port %d: %w", c.host, port, err)
	}
	conn.Close()
	return nil
}

// ProbeREST checks that the REST API answers. It tries the
// authenticated accounts endpoint first and falls back to the
// dashboard endpoint, under each known base path. A 401 or 403 still
// proves the API is there, so those count as success.
func (c *Client) ProbeREST(ctx context.Context) error {
	var lastErr error
	for _, base := range basePaths {
		for _, path := range []string{"/accounts/self", "/dashboard/self"} {
			err := c.probeOne(ctx, base+path)
			if err == nil {
				c.base = base
				return nil
			}
			lastErr = err
		}
	}
	return fmt.Errorf("gerrit REST API unreachable at %s: %w", c.host, lastErr)
}

func (c *Client) probeOne(ctx context.Context, path string) error {
	addr := c.scheme + "://" + c.host + path
	req, err := http.NewRequestWithContext(ctx, "GET", addr, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusForbidden:
		return nil
	}
	return errors.New(resp.Status)
}
