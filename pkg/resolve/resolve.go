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

// Package resolve implements the affected-test resolver described in 4.F:
// inverting changed-block coverage against the store, then applying the two
// host-driven augmentation rules.
package resolve

import (
	"github.com/kraklabs/testsel/pkg/detect"
	"github.com/kraklabs/testsel/pkg/store"
)

// Resolver queries a Store for the set of tests affected by a ChangeSet.
type Resolver struct {
	Store *store.Store
}

// New constructs a Resolver.
func New(st *store.Store) *Resolver {
	return &Resolver{Store: st}
}

// CurrentTest describes one test in the host's current collection pass,
// needed for the two augmentation rules in 4.F that the coverage_index
// alone cannot answer (the resolver has no notion of "test file" on its
// own — that mapping is supplied by the host's collection step).
type CurrentTest struct {
	NodeID   string
	FilePath string // relative path of the file defining this test
}

// Resolve implements 4.F: the coverage-index union over cs.ChangedBlocks,
// plus (a) every test whose defining file is itself in cs.Modified, and
// (b) every test present in current but absent from get_recorded_tests().
func (r *Resolver) Resolve(cs *detect.ChangeSet, current []CurrentTest) (map[string]bool, error) {
	affected, err := r.Store.GetAffectedTests(cs.ChangedBlocks)
	if err != nil {
		return nil, err
	}
	recorded, err := r.Store.GetRecordedTests()
	if err != nil {
		return nil, err
	}

	modified := make(map[string]bool, len(cs.Modified))
	for _, f := range cs.Modified {
		modified[f] = true
	}

	for _, t := range current {
		if modified[t.FilePath] {
			affected[t.NodeID] = true // (a) new/moved test files
		}
		if !recorded[t.NodeID] {
			affected[t.NodeID] = true // (b) never-recorded tests, including previous failures
		}
	}

	return affected, nil
}
