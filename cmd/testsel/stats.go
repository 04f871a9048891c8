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
	"encoding/json"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/testsel/internal/ui"
	"github.com/kraklabs/testsel/pkg/coordinate"
	"github.com/kraklabs/testsel/pkg/store"
)

type statsResult struct {
	BaselineCount  int    `json:"baseline_count"`
	TestCount      int    `json:"test_count"`
	FileCount      int    `json:"file_count"`
	BaselineCommit string `json:"baseline_commit,omitempty"`
	BaselineScope  string `json:"baseline_scope,omitempty"`
}

// runStats prints the store's row counts and baseline metadata (4.D's
// get_stats plus get_metadata).
func runStats(args []string, configPath string, globals GlobalFlags) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadProjectConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath, cfg.BatchSize, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		return err
	}
	commit, _, _ := st.GetMetadata(coordinate.MetaBaselineCommit)
	scope, _, _ := st.GetMetadata(coordinate.MetaBaselineScope)

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(statsResult{
			BaselineCount: stats.BaselineCount, TestCount: stats.TestCount, FileCount: stats.FileCount,
			BaselineCommit: commit, BaselineScope: scope,
		})
	}

	ui.Header("store statistics")
	ui.CountText(stats.BaselineCount, "baselines")
	ui.CountText(stats.TestCount, "test executions")
	ui.CountText(stats.FileCount, "tracked files")
	if commit != "" {
		ui.Label("baseline_commit", commit)
	}
	if scope != "" {
		ui.Label("baseline_scope", scope)
	}
	return nil
}
