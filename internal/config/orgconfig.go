// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// An OrgConfig holds per-organization defaults, read from
// ~/.config/github2gerrit/<org>.yaml. File values fill in inputs the
// operator left empty; explicit inputs always win.
type OrgConfig struct {
	GerritServer       string `yaml:"gerrit_server"`
	GerritServerPort   int    `yaml:"gerrit_server_port"`
	GerritProject      string `yaml:"gerrit_project"`
	GerritSSHUser      string `yaml:"gerrit_ssh_user"`
	GerritSSHUserEmail string `yaml:"gerrit_ssh_user_email"`
	ReviewersEmail     string `yaml:"reviewers_email"`
	TopicPrefix        string `yaml:"topic_prefix"`
	PreserveGitHubPRs  *bool  `yaml:"preserve_github_prs"`
}

// orgConfigDir returns the directory org config files live in.
// Overridable through $G2G_CONFIG_DIR, mostly for tests.
func orgConfigDir() (string, error) {
	if dir := os.Getenv("G2G_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "github2gerrit"), nil
}

// LoadOrgConfig reads the configuration for org. A missing file is not
// an error; a malformed one is.
func LoadOrgConfig(org string) (*OrgConfig, error) {
	if org == "" {
		return &OrgConfig{}, nil
	}
	dir, err := orgConfigDir()
	if err != nil {
		return nil, err
	}
	file := filepath.Join(dir, org+".yaml")
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return &OrgConfig{}, nil
		}
		return nil, err
	}
	oc := new(OrgConfig)
	if err := yaml.Unmarshal(data, oc); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", file, err)
	}
	return oc, nil
}

// Merge fills empty inputs from the organization defaults.
func (in *Inputs) Merge(oc *OrgConfig) {
	if in.GerritServer == "" {
		in.GerritServer = oc.GerritServer
	}
	if in.GerritServerPort == 0 {
		in.GerritServerPort = oc.GerritServerPort
	}
	if in.GerritProject == "" {
		in.GerritProject = oc.GerritProject
	}
	if in.GerritSSHUser == "" {
		in.GerritSSHUser = oc.GerritSSHUser
	}
	if in.GerritSSHUserEmail == "" {
		in.GerritSSHUserEmail = oc.GerritSSHUserEmail
	}
	if in.ReviewersEmail == "" {
		in.ReviewersEmail = oc.ReviewersEmail
	}
	if in.TopicPrefix == "" {
		in.TopicPrefix = oc.TopicPrefix
	}
	if oc.PreserveGitHubPRs != nil && !in.PreserveGitHubPRs {
		in.PreserveGitHubPRs = *oc.PreserveGitHubPRs
	}
}
