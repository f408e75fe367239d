// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package trailer parses commit message trailers and synthesizes the
// squashed commit message submitted to Gerrit. Everything here is a pure
// function of its text input so that the heuristics stay independently
// testable.
package trailer

import (
	"regexp"
	"strings"
)

// A Map maps a trailer key ("Change-Id", "Signed-off-by") to its values
// in source order.
type Map map[string][]string

// Parse splits body into trailers. Any non-empty line containing a colon
// contributes its key and value; keys are case-sensitive and values keep
// source order. Parsing is a pure function of the text.
func Parse(body string) Map {
	m := make(Map)
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if key == "" || val == "" {
			continue
		}
		m[key] = append(m[key], val)
	}
	return m
}

// Filter returns the subset of m holding only the given keys.
func (m Map) Filter(keys ...string) Map {
	if len(keys) == 0 {
		return m
	}
	sub := make(Map)
	for _, k := range keys {
		if vs, ok := m[k]; ok {
			sub[k] = vs
		}
	}
	return sub
}

// First returns the first value for key, or "".
func (m Map) First(key string) string {
	if vs := m[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

var changeIDRE = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidChangeID reports whether s is usable as a Gerrit Change-Id.
// The token is opaque; only the character set is checked.
func ValidChangeID(s string) bool {
	return s != "" && changeIDRE.MatchString(s)
}

var changeIDScanRE = regexp.MustCompile(`Change-Id:\s*([A-Za-z0-9._-]+)`)

// FindChangeIDs scans free-form text (PR comment bodies) for Change-Id
// trailers and returns the values in order of appearance.
func FindChangeIDs(text string) []string {
	var ids []string
	for _, m := range changeIDScanRE.FindAllStringSubmatch(text, -1) {
		if id := strings.TrimSpace(m[1]); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Dedup removes duplicates from ids, preserving first-occurrence order.
func Dedup(ids []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
