// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package sshsetup stages the SSH credentials a push to Gerrit needs:
// the private key of the push user, the server's host keys, and a
// client config entry binding them to the Gerrit host.
package sshsetup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// A Setup writes SSH client files under dir (normally ~/.ssh).
type Setup struct {
	slog *slog.Logger
	dir  string
}

// New returns a Setup writing under dir. An empty dir means ~/.ssh.
func New(lg *slog.Logger, dir string) (*Setup, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".ssh")
	}
	return &Setup{slog: lg, dir: dir}, nil
}

// KeyPath returns where the push key is written.
func (s *Setup) KeyPath() string { return filepath.Join(s.dir, "github2gerrit_key") }

// Install validates and writes the private key and known_hosts
// material and adds a config entry for the Gerrit host. Credential
// problems are reported before any network operation gets to fail on
// them.
func (s *Setup) Install(privKey, knownHosts, host string, port int, user string) error {
	if err := ValidateKey(privKey); err != nil {
		return fmt.Errorf("GERRIT_SSH_PRIVKEY_G2G: %w", err)
	}
	if err := ValidateKnownHosts(knownHosts); err != nil {
		return fmt.Errorf("GERRIT_KNOWN_HOSTS: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	if !strings.HasSuffix(privKey, "\n") {
		privKey += "\n"
	}
	if err := os.WriteFile(s.KeyPath(), []byte(privKey), 0o600); err != nil {
		return err
	}
	if err := appendUnique(filepath.Join(s.dir, "known_hosts"), knownHosts); err != nil {
		return err
	}

	entry := fmt.Sprintf("\nHost %s\n  Port %d\n  User %s\n  IdentityFile %s\n  IdentitiesOnly yes\n",
		host, port, user, s.KeyPath())
	if err := appendUnique(filepath.Join(s.dir, "config"), entry); err != nil {
		return err
	}
	s.slog.Info("ssh credentials installed", "host", host, "user", user, "dir", s.dir)
	return nil
}

// ValidateKey checks that data parses as an SSH private key.
func ValidateKey(data string) error {
	if strings.TrimSpace(data) == "" {
		return fmt.Errorf("empty private key")
	}
	if _, err := ssh.ParsePrivateKey([]byte(data)); err != nil {
		return fmt.Errorf("unparseable private key: %v", err)
	}
	return nil
}

// ValidateKnownHosts checks that every non-empty line of data parses
// as a known_hosts entry.
func ValidateKnownHosts(data string) error {
	if strings.TrimSpace(data) == "" {
		return fmt.Errorf("empty known_hosts")
	}
	for _, ln := range strings.Split(data, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}
		if _, _, _, _, _, err := ssh.ParseKnownHosts([]byte(ln + "\n")); err != nil {
			return fmt.Errorf("bad known_hosts line %q: %v", ln, err)
		}
	}
	return nil
}

// appendUnique appends content to file unless the file already
// contains it, creating the file with restrictive permissions.
func appendUnique(file, content string) error {
	old, err := os.ReadFile(file)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(old), strings.TrimSpace(content)) {
		return nil
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(old) > 0 && !strings.HasSuffix(string(old), "\n") {
		content = "\n" + content
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	_, err = f.WriteString(content)
	return err
}
