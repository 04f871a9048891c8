// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/testsel/pkg/fingerprint"
)

// ProjectConfig is the on-disk shape of .testsel/project.yaml, the
// project-level defaults a host may supply instead of repeating flags on
// every invocation.
type ProjectConfig struct {
	ProjectRoot  string   `yaml:"project_root"`
	StorePath    string   `yaml:"store_path"`
	ScopePaths   []string `yaml:"scope_paths"`
	Extensions   []string `yaml:"extensions"`
	Language     string   `yaml:"language"`
	BatchSize    int      `yaml:"batch_size"`
	CacheMaxSize int      `yaml:"cache_max_size"`
	RemoteURL    string   `yaml:"remote_url"`
	RemoteKey    string   `yaml:"remote_key"`
}

// DefaultProjectConfig mirrors the EXTERNAL INTERFACES defaults: batch size
// 20, cache max size 100,000, remote key "baseline.db".
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		StorePath:    filepath.Join(".testsel", "baseline.db"),
		Extensions:   []string{".py"},
		Language:     string(fingerprint.LangPython),
		BatchSize:    20,
		CacheMaxSize: 100_000,
		RemoteKey:    "baseline.db",
	}
}

// LoadProjectConfig reads configPath if non-empty, otherwise looks for
// .testsel/project.yaml under the current directory. A missing file is not
// an error: defaults apply.
func LoadProjectConfig(configPath string) (ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	path := configPath
	if path == "" {
		path = filepath.Join(".testsel", "project.yaml")
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if cfg.ProjectRoot == "" {
			cfg.ProjectRoot, _ = os.Getwd()
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot, _ = os.Getwd()
	}
	return cfg, nil
}
