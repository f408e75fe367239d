// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package main

import "testing"

func TestParseTarget(t *testing.T) {
	for _, tc := range []struct {
		arg     string
		repo    string
		pr      int
		wantErr bool
	}{
		{"https://github.com/org/repo", "org/repo", 0, false},
		{"https://github.com/org/repo/pull/42", "org/repo", 42, false},
		{"https://github.com/org/repo/pull/42/", "org/repo", 42, false},
		{"org/repo", "org/repo", 0, false},
		{"https://gitlab.com/org/repo", "", 0, true},
		{"https://github.com/org/repo/pull/zero", "", 0, true},
		{"https://github.com/org/repo/issues/42", "", 0, true},
		{"justonepart", "", 0, true},
	} {
		repo, pr, err := parseTarget(tc.arg)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseTarget(%q) err = %v, wantErr %v", tc.arg, err, tc.wantErr)
			continue
		}
		if repo != tc.repo || pr != tc.pr {
			t.Errorf("parseTarget(%q) = %q, %d, want %q, %d", tc.arg, repo, pr, tc.repo, tc.pr)
		}
	}
}
