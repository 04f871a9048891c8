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

// Package detect implements the change detector described in 4.E: walking
// scope paths, diffing current fingerprints against stored baselines, and
// emitting the ChangeSet the affected-test resolver consumes.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/testsel/internal/xerrors"
	"github.com/kraklabs/testsel/pkg/cache"
	"github.com/kraklabs/testsel/pkg/fingerprint"
	"github.com/kraklabs/testsel/pkg/store"
)

// ChangeSet is the output of change detection (data model §3).
type ChangeSet struct {
	Modified      []string
	ChangedBlocks map[string]map[fingerprint.BlockChecksum]bool
}

// HasChanges reports whether any file was modified.
func (c *ChangeSet) HasChanges() bool { return len(c.Modified) > 0 }

// Detector walks scope paths and diffs fingerprints against a Store.
type Detector struct {
	Store      *store.Store
	Cache      *cache.Cache
	ProjectRoot string
	// Extensions is the host-supplied extension filter (e.g. []string{".py"}).
	// A nil/empty filter matches every regular file.
	Extensions []string
}

// New constructs a Detector.
func New(st *store.Store, c *cache.Cache, projectRoot string, extensions []string) *Detector {
	return &Detector{Store: st, Cache: c, ProjectRoot: projectRoot, Extensions: extensions}
}

func (d *Detector) matchesExtension(path string) bool {
	if len(d.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range d.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// DetectChanges implements 4.E and the host integration contract's
// `detect_changes(store_path, project_root, scope_paths) → ChangeSet`.
func (d *Detector) DetectChanges(scopePaths []string) (*ChangeSet, error) {
	cs := &ChangeSet{ChangedBlocks: make(map[string]map[fingerprint.BlockChecksum]bool)}
	visited := make(map[string]bool)

	for _, scope := range scopePaths {
		abs := scope
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(d.ProjectRoot, scope)
		}
		err := filepath.WalkDir(abs, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				// A single unreadable entry does not abort the walk (§7 propagation policy).
				return nil
			}
			if entry.IsDir() {
				return nil
			}
			// Never follow symlinks (Open Question #4, resolved in DESIGN.md).
			if entry.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if !d.matchesExtension(path) {
				return nil
			}
			rel, relErr := fingerprint.RelativePath(d.ProjectRoot, path)
			if relErr != nil {
				return nil
			}
			visited[rel] = true
			return d.diffFile(path, rel, cs)
		})
		if err != nil {
			return nil, xerrors.Internal("walk scope "+scope, err)
		}
	}

	// Files present in the baseline but absent from the current walk are
	// deletions: every baseline checksum is orphaned (C = ∅, so B \ C = B).
	deleted, err := d.deletedFiles(visited)
	if err != nil {
		return nil, err
	}
	for _, filename := range deleted {
		baseline, ok, err := d.Store.GetBaselineFingerprint(filename)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cs.Modified = append(cs.Modified, filename)
		set := make(map[fingerprint.BlockChecksum]bool, len(baseline.Checksums))
		for _, c := range baseline.Checksums {
			set[c] = true
		}
		cs.ChangedBlocks[filename] = set
	}

	return cs, nil
}

// deletedFiles returns baseline filenames that did not appear in the
// current walk. It lists from the file table (a superset proxy for
// baseline_fp's keyspace, since both are written together).
func (d *Detector) deletedFiles(visited map[string]bool) ([]string, error) {
	all, err := d.Store.AllFilenames()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range all {
		if !visited[f] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *Detector) diffFile(absPath, rel string, cs *ChangeSet) error {
	fileHash, _, _, ok, err := d.Store.GetFileRecord(rel)
	if err != nil {
		return err
	}
	if !ok {
		// New file: never seen in baseline. B \ C is empty (no baseline
		// checksums to orphan), but the file is still "modified" so a test
		// added alongside it can be selected (4.F augmentation (a)).
		cs.Modified = append(cs.Modified, rel)
		return nil
	}

	currentHash, hashErr := quickHash(absPath)
	if hashErr != nil {
		// FileUnreadable: omit the file from the current walk; it remains
		// in the baseline, per §7's recovery policy.
		return nil
	}
	if currentHash == fileHash {
		// Revert equivalence: stat may have changed (mtime touched) but
		// content is byte-identical, so nothing changed.
		return nil
	}

	baseline, ok, err := d.Store.GetBaselineFingerprint(rel)
	if err != nil {
		return err
	}
	current, err := d.Cache.GetOrCalculate(absPath)
	if err != nil {
		return nil // FileUnreadable: isolate, keep walking.
	}

	baselineSet := map[fingerprint.BlockChecksum]bool{}
	if ok {
		for _, c := range baseline.Checksums {
			baselineSet[c] = true
		}
	}
	currentSet := map[fingerprint.BlockChecksum]bool{}
	for _, c := range current.Checksums {
		currentSet[c] = true
	}

	orphaned := map[fingerprint.BlockChecksum]bool{}
	for c := range baselineSet {
		if !currentSet[c] {
			orphaned[c] = true
		}
	}

	cs.Modified = append(cs.Modified, rel)
	if len(orphaned) > 0 {
		cs.ChangedBlocks[rel] = orphaned
	}
	return nil
}

func quickHash(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", xerrors.FileUnreadable(path, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
