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
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/testsel/internal/ui"
	"github.com/kraklabs/testsel/pkg/coordinate"
	"github.com/kraklabs/testsel/pkg/engine"
	"github.com/kraklabs/testsel/pkg/fingerprint"
)

// selectResult is the JSON shape emitted by `testsel select --json`.
type selectResult struct {
	Modified       []string `json:"modified"`
	AffectedNodeIDs []string `json:"affected_node_ids"`
}

// runSelect implements selection mode: E (change detection) then F
// (affected-test resolution), reporting the scope-mismatch check as a
// warning rather than aborting (4.I: warn for selection, force-run-all is
// baseline mode's response instead).
func runSelect(args []string, configPath string, globals GlobalFlags) error {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadProjectConfig(configPath)
	if err != nil {
		return err
	}
	scopePaths := cfg.ScopePaths
	if rest := fs.Args(); len(rest) > 0 {
		scopePaths = rest
	}

	e, err := engine.New(cfg.StorePath, cfg.ProjectRoot, engine.Config{
		BatchSize:       cfg.BatchSize,
		CacheMaxSize:    cfg.CacheMaxSize,
		DefaultLanguage: fingerprint.Language(cfg.Language),
		Extensions:      cfg.Extensions,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if scopeStr, ok, _ := e.Store.GetMetadata(coordinate.MetaBaselineScope); ok {
		baselineScope := strings.Split(scopeStr, ",")
		if coordinate.ScopeMismatch(scopePaths, baselineScope) {
			ui.Warning("current scope is not a subset of the baseline scope")
		}
	}

	cs, err := e.DetectChanges(scopePaths)
	if err != nil {
		return err
	}
	affected, err := e.ResolveAffectedTests(cs, nil)
	if err != nil {
		return err
	}

	nodeIDs := make([]string, 0, len(affected))
	for id := range affected {
		nodeIDs = append(nodeIDs, id)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(selectResult{Modified: cs.Modified, AffectedNodeIDs: nodeIDs})
	}

	ui.Header("change detection")
	ui.CountText(len(cs.Modified), "modified files")
	ui.CountText(len(nodeIDs), "affected tests")
	for _, id := range nodeIDs {
		fmt.Println("  " + id)
	}
	return nil
}
