// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lfit/github2gerrit/internal/testutil"
)

func TestMap(t *testing.T) {
	m := Map{}
	if _, ok := m.Get("name"); ok {
		t.Errorf("Get of missing name succeeded")
	}
	m.Set("name", "value")
	if v, ok := m.Get("name"); !ok || v != "value" {
		t.Errorf("Get(name) = %q, %v, want value, true", v, ok)
	}
}

func TestReadOnlyMap(t *testing.T) {
	m := ReadOnlyMap{"name": "value"}
	if v, ok := m.Get("name"); !ok || v != "value" {
		t.Errorf("Get(name) = %q, %v, want value, true", v, ok)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Set on read-only map did not panic")
		}
	}()
	m.Set("x", "y")
}

func TestParseNetrc(t *testing.T) {
	got := parseNetrc(`
machine api.github.com login g2g password token1
machine gerrit.example.org
  login submitter
  password hunter2
machine nopass login onlyuser
`)
	want := map[string]string{
		"api.github.com":     "g2g:token1",
		"gerrit.example.org": "submitter:hunter2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseNetrc mismatch (-want +got):\n%s", diff)
	}
}

func TestNetrc(t *testing.T) {
	file := filepath.Join(t.TempDir(), "netrc")
	if err := os.WriteFile(file, []byte("machine api.github.com login u password p\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NETRC", file)

	db := Netrc(testutil.Slogger(t))
	if v, ok := db.Get("api.github.com"); !ok || v != "u:p" {
		t.Errorf("Get(api.github.com) = %q, %v, want u:p, true", v, ok)
	}
	if _, ok := db.Get("unknown.example.org"); ok {
		t.Errorf("Get of unknown machine succeeded")
	}
}

func TestNetrcMissing(t *testing.T) {
	t.Setenv("NETRC", filepath.Join(t.TempDir(), "does-not-exist"))
	db := Netrc(testutil.Slogger(t))
	if _, ok := db.Get("api.github.com"); ok {
		t.Errorf("Get on missing netrc succeeded")
	}
}
