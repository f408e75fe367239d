// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package secret defines and implements storage of secrets, such as
// credentials for the GitHub API and the Gerrit SSH user key.
//
// Secrets are named by the server they authenticate to, like
// "api.github.com" or "gerrit.example.org", and hold "user:password"
// pairs (or an opaque token with an empty user).
package secret

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// A DB is a secret database, which is a persistent map from names to
// secret values.
type DB interface {
	// Get returns the named secret and reports whether it was found.
	Get(name string) (secret string, ok bool)

	// Set adds a secret with the given name and value,
	// replacing any previous secret with that name.
	Set(name, secret string)
}

// Empty returns a read-only, empty secret database.
func Empty() DB {
	return ReadOnlyMap(nil)
}

// A Map is a DB backed by an in-memory map. It is useful for tests and
// for secrets handed over in process environment variables.
type Map map[string]string

// Get returns the named secret.
func (m Map) Get(name string) (secret string, ok bool) {
	secret, ok = m[name]
	return
}

// Set adds a secret with the given name and value.
func (m Map) Set(name, secret string) {
	m[name] = secret
}

// A ReadOnlyMap is a DB backed by a map that refuses updates.
type ReadOnlyMap map[string]string

// Get returns the named secret.
func (m ReadOnlyMap) Get(name string) (secret string, ok bool) {
	secret, ok = m[name]
	return
}

// Set panics; the map is read-only.
func (m ReadOnlyMap) Set(name, secret string) {
	panic("Set called on read-only secret.Map")
}

// netrcDB is a DB using the content of $NETRC or else $HOME/.netrc.
type netrcDB struct {
	slog *slog.Logger
	once sync.Once
	m    map[string]string
}

// Netrc returns a read-only DB initialized by the content of $NETRC or
// else $HOME/.netrc, mapping each "machine" name to the corresponding
// "login:password" pair. The file is read at most once, on first use.
func Netrc(lg *slog.Logger) DB {
	return &netrcDB{slog: lg}
}

func (db *netrcDB) Get(name string) (secret string, ok bool) {
	db.once.Do(db.load)
	secret, ok = db.m[name]
	return
}

func (db *netrcDB) Set(name, secret string) {
	panic("Set called on netrc DB")
}

func (db *netrcDB) load() {
	db.m = make(map[string]string)
	file := os.Getenv("NETRC")
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			db.slog.Warn("netrc: no home directory", "err", err)
			return
		}
		file = filepath.Join(home, ".netrc")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			db.slog.Warn("netrc: read failed", "file", file, "err", err)
		}
		return
	}
	for machine, cred := range parseNetrc(string(data)) {
		db.m[machine] = cred
	}
}

// parseNetrc parses the data as a .netrc file, returning a map from
// machine names to "login:password" pairs. Only the machine, login and
// password directives are understood; "default" entries and macros are
// ignored.
func parseNetrc(data string) map[string]string {
	m := make(map[string]string)
	var machine, login, password string
	flush := func() {
		if machine != "" && password != "" {
			m[machine] = login + ":" + password
		}
		machine, login, password = "", "", ""
	}
	fields := strings.Fields(data)
	for i := 0; i < len(fields)-1; i++ {
		switch fields[i] {
		case "machine":
			flush()
			machine = fields[i+1]
			i++
		case "login":
			login = fields[i+1]
			i++
		case "password":
			password = fields[i+1]
			i++
		}
	}
	flush()
	return m
}
