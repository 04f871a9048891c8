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

// Package coordinate implements the single-writer/many-reader discipline of
// 4.I: one process in a parallel-worker host is the controller, responsible
// for opening the store and importing the remote baseline; the rest are
// workers that open the published path read-write and never touch metadata.
package coordinate

import (
	"context"
	"path/filepath"

	"github.com/kraklabs/testsel/internal/xerrors"
	"github.com/kraklabs/testsel/pkg/merge"
	"github.com/kraklabs/testsel/pkg/remote"
	"github.com/kraklabs/testsel/pkg/store"
)

// Role identifies a process's position under a parallel-worker host.
type Role int

const (
	// Controller opens/creates the store, downloads and imports the remote
	// baseline, and is the only role permitted to write baseline_commit and
	// baseline_scope metadata (§5's single-writer constraint).
	Controller Role = iota
	// Worker opens the controller-published store path read-write and
	// participates in test execution only.
	Worker
)

const (
	MetaBaselineCommit = "baseline_commit"
	MetaBaselineScope  = "baseline_scope"
)

// PrepareController performs the controller-only startup sequence: open the
// store, and if a remote backend is configured, download and merge the
// remote baseline. Workers never call this.
func PrepareController(storePath string, batchSize int, backend remote.Backend, remoteKey string) (*store.Store, error) {
	st, err := store.Open(storePath, batchSize, nil)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return st, nil
	}

	tmp := storePath + ".remote-download"
	fetched, dlErr := backend.Download(context.Background(), remoteKey, tmp)
	if dlErr != nil {
		// NotFound: no remote baseline yet, continue with an empty/local
		// store (§7). Any other error (notably AuthError) propagates: the
		// host is expected to abort rather than select nothing silently.
		return st, classifyDownloadErr(dlErr)
	}
	if !fetched {
		return st, nil
	}
	if _, err := merge.Run(st, []string{tmp}, nil); err != nil {
		return st, err
	}
	if err := adoptBaselineMetadata(st, tmp); err != nil {
		return st, err
	}
	return st, nil
}

// adoptBaselineMetadata copies baseline_commit/baseline_scope from the
// just-downloaded remote store, since MergeBaselineFrom only folds in
// baseline_fp/test_execution rows and deliberately leaves metadata to the
// controller (4.H's merge engine only reads metadata, it never writes it).
func adoptBaselineMetadata(dest *store.Store, remoteDBPath string) error {
	for _, key := range []string{MetaBaselineCommit, MetaBaselineScope} {
		value, ok, err := dest.GetExternalMetadata(remoteDBPath, key)
		if err != nil {
			return err
		}
		if ok {
			if err := dest.SetMetadata(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func classifyDownloadErr(err error) error {
	if err == nil {
		return nil
	}
	if xerrors.Is(err, xerrors.KindNotFound) {
		return nil
	}
	return err
}

// OpenWorker performs the worker-only startup sequence: open the
// controller-published store path read-write, skipping remote download
// entirely.
func OpenWorker(storePath string, batchSize int) (*store.Store, error) {
	return store.Open(storePath, batchSize, nil)
}

// ScopeMismatch reports whether currentScope is not a subset of
// baselineScope (4.I's scope-mismatch check). Paths are compared after
// cleaning and converting to forward slashes.
func ScopeMismatch(currentScope, baselineScope []string) bool {
	base := make(map[string]bool, len(baselineScope))
	for _, p := range baselineScope {
		base[filepath.ToSlash(filepath.Clean(p))] = true
	}
	for _, p := range currentScope {
		if !base[filepath.ToSlash(filepath.Clean(p))] {
			return true
		}
	}
	return false
}
