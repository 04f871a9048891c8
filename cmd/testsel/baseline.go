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
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/testsel/internal/ui"
	"github.com/kraklabs/testsel/pkg/coordinate"
	"github.com/kraklabs/testsel/pkg/engine"
	"github.com/kraklabs/testsel/pkg/fingerprint"
)

// runBaseline implements the controller-only baseline-mode entry point: A→B→D
// for every in-scope file (§2 data flow), then records baseline_commit and
// baseline_scope metadata (§5's single-writer constraint for baseline
// finalization).
func runBaseline(args []string, configPath string, globals GlobalFlags) error {
	fs := flag.NewFlagSet("baseline", flag.ExitOnError)
	force := fs.Bool("force", false, "recompute every fingerprint, bypassing the cache")
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

	count, err := e.SaveBaseline(scopePaths, globals.Verbose, *force)
	if err != nil {
		return err
	}

	if commit, ok := currentRevision(cfg.ProjectRoot); ok {
		if err := e.Store.SetMetadata(coordinate.MetaBaselineCommit, commit); err != nil {
			return err
		}
	}
	if err := e.Store.SetMetadata(coordinate.MetaBaselineScope, strings.Join(scopePaths, ",")); err != nil {
		return err
	}

	if !globals.Quiet {
		ui.Header("baseline recorded")
		ui.CountText(count, "files fingerprinted")
	}
	return nil
}
