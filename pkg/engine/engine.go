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

// Package engine wires the fingerprint, cache, store, detect, and resolve
// packages behind the host integration contract of §6. Per the design
// notes, there is no process-wide singleton: callers construct one Engine
// value per process and pass it through call sites explicitly.
package engine

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/testsel/internal/slogx"
	"github.com/kraklabs/testsel/pkg/cache"
	"github.com/kraklabs/testsel/pkg/detect"
	"github.com/kraklabs/testsel/pkg/fingerprint"
	"github.com/kraklabs/testsel/pkg/resolve"
	"github.com/kraklabs/testsel/pkg/store"
)

// Config bundles the environment/configuration keys of §6 EXTERNAL
// INTERFACES, all supplied by the host rather than parsed by the core.
type Config struct {
	BatchSize       int
	CacheMaxSize    int
	DefaultLanguage fingerprint.Language
	Extensions      []string
	Logger          *slog.Logger
}

// Engine is the constructed, process-wide value a host holds for the
// lifetime of one baseline or selection run.
type Engine struct {
	ProjectRoot string
	Store       *store.Store
	Cache       *cache.Cache
	Extractor   *fingerprint.Extractor
	resolver    *resolve.Resolver
	log         *slog.Logger
	extensions  []string
}

// New opens storePath and constructs an Engine bound to projectRoot. The
// caller MUST call Close on both normal and error exit paths (scoped
// acquisition with guaranteed release, per the design notes).
func New(storePath, projectRoot string, cfg Config) (*Engine, error) {
	log := slogx.Default(cfg.Logger)
	st, err := store.Open(storePath, cfg.BatchSize, log)
	if err != nil {
		return nil, err
	}
	extractor := fingerprint.NewExtractor(cfg.DefaultLanguage)
	c := cache.New(extractor, projectRoot, cfg.CacheMaxSize)
	return &Engine{
		ProjectRoot: projectRoot,
		Store:       st,
		Cache:       c,
		Extractor:   extractor,
		resolver:    resolve.New(st),
		log:         log,
		extensions:  cfg.Extensions,
	}, nil
}

// Close flushes and closes the underlying store.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// SaveBaseline implements §6's `save_baseline(store_path, project_root,
// verbose, scope_paths, force) → file_count`. Every in-scope file is parsed
// and its unfiltered fingerprint upserted as the new baseline.
func (e *Engine) SaveBaseline(scopePaths []string, verbose, force bool) (int, error) {
	var bar *progressbar.ProgressBar
	if verbose {
		bar = progressbar.Default(-1, "baseline")
	}

	count := 0
	for _, scope := range scopePaths {
		abs := scope
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(e.ProjectRoot, scope)
		}
		walkErr := filepath.WalkDir(abs, func(path string, entry fs.DirEntry, err error) error {
			if err != nil || entry.IsDir() {
				return nil
			}
			if entry.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if !e.matchesExtension(path) {
				return nil
			}

			var fp *fingerprint.Fingerprint
			var buildErr error
			if force {
				fp, buildErr = fingerprint.Build(e.Extractor, path, e.ProjectRoot, nil)
			} else {
				fp, buildErr = e.Cache.GetOrCalculate(path)
			}
			if buildErr != nil {
				e.log.Warn("engine.save_baseline.skip_file", "path", path, "error", buildErr)
				return nil
			}
			if saveErr := e.Store.SaveBaselineFingerprint(fp); saveErr != nil {
				return saveErr
			}
			count++
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
		if walkErr != nil {
			return count, walkErr
		}
	}
	return count, nil
}

func (e *Engine) matchesExtension(path string) bool {
	if len(e.extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range e.extensions {
		if want == ext {
			return true
		}
	}
	return false
}

// DetectChanges implements §6's `detect_changes(store_path, project_root,
// scope_paths) → ChangeSet`.
func (e *Engine) DetectChanges(scopePaths []string) (*detect.ChangeSet, error) {
	d := detect.New(e.Store, e.Cache, e.ProjectRoot, e.extensions)
	return d.DetectChanges(scopePaths)
}

// ResolveAffectedTests implements 4.F given a ChangeSet and the host's
// current test collection.
func (e *Engine) ResolveAffectedTests(cs *detect.ChangeSet, current []resolve.CurrentTest) (map[string]bool, error) {
	return e.resolver.Resolve(cs, current)
}

// ProcessCoverageData implements §6's `process_coverage_data(coverage_map,
// project_root, test_file_path, verbose, scope_paths, cache) → [Fingerprint]`:
// for each (absolute_filename, executed_lines) pair, build a
// coverage-filtered fingerprint via the supplied cache's underlying
// extractor, and return the per-file fingerprints used to build it.
//
// saveExecution gates whether the resulting checksums are recorded against
// testNodeID in the store. A selection run (the host's --diff-equivalent
// mode) passes false: it must not overwrite the baseline's recorded
// coverage for a test that hasn't been re-baselined yet, or a changed test
// would stop being selected the moment it runs once against new code.
// Recording only happens on a baseline run, where saveExecution is true.
func (e *Engine) ProcessCoverageData(coverageMap map[string][]int, testNodeID string, duration float64, failed bool, envTag string, saveExecution bool) ([]*fingerprint.Fingerprint, error) {
	var fps []*fingerprint.Fingerprint
	var pairs []store.FileChecksumPair

	for absPath, lines := range coverageMap {
		lineSet := make(fingerprint.LineSet, len(lines))
		for _, ln := range lines {
			lineSet[ln] = true
		}
		fp, err := fingerprint.Build(e.Extractor, absPath, e.ProjectRoot, lineSet)
		if err != nil {
			e.log.Warn("engine.process_coverage.skip_file", "path", absPath, "error", err)
			continue
		}
		fps = append(fps, fp)
		for _, c := range fp.Checksums {
			pairs = append(pairs, store.FileChecksumPair{Filename: fp.Filename, Checksum: c})
		}
	}

	if !saveExecution {
		return fps, nil
	}
	if err := e.Store.SaveTestExecution(testNodeID, pairs, duration, failed, envTag); err != nil {
		return fps, err
	}
	return fps, nil
}

// CalculateFingerprint implements §6's
// `calculate_fingerprint(path, project_root) → Fingerprint`.
func (e *Engine) CalculateFingerprint(path string) (*fingerprint.Fingerprint, error) {
	return fingerprint.Calculate(e.Extractor, path, e.ProjectRoot)
}

// ParseModule implements §6's `parse_module(source_text) → [Block]`.
func (e *Engine) ParseModule(sourceText []byte) []fingerprint.Block {
	return e.Extractor.ParseModule(sourceText)
}
