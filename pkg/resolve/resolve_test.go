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

package resolve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/testsel/pkg/detect"
	"github.com/kraklabs/testsel/pkg/fingerprint"
	"github.com/kraklabs/testsel/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.DefaultBatchSize, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestResolve_CoverageUnion(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.SaveTestExecution("test_add", []store.FileChecksumPair{{Filename: "calc.py", Checksum: 111}}, 0.1, false, ""))
	require.NoError(t, st.SaveTestExecution("test_sub", []store.FileChecksumPair{{Filename: "calc.py", Checksum: 222}}, 0.1, false, ""))
	require.NoError(t, st.FlushTestExecutions())

	r := New(st)
	cs := &detect.ChangeSet{
		Modified:      []string{"calc.py"},
		ChangedBlocks: map[string]map[fingerprint.BlockChecksum]bool{"calc.py": {111: true}},
	}

	affected, err := r.Resolve(cs, nil)
	require.NoError(t, err)
	assert.True(t, affected["test_add"])
	assert.False(t, affected["test_sub"])
}

func TestResolve_NewTestFileIsSelected(t *testing.T) {
	st := openTestStore(t)
	r := New(st)
	cs := &detect.ChangeSet{Modified: []string{"test_new.py"}}

	affected, err := r.Resolve(cs, []CurrentTest{{NodeID: "test_new.py::test_it", FilePath: "test_new.py"}})
	require.NoError(t, err)
	assert.True(t, affected["test_new.py::test_it"])
}

func TestResolve_NeverRecordedTestIsAlwaysSelected(t *testing.T) {
	st := openTestStore(t)
	r := New(st)
	cs := &detect.ChangeSet{}

	affected, err := r.Resolve(cs, []CurrentTest{{NodeID: "test_flaky.py::test_it", FilePath: "test_flaky.py"}})
	require.NoError(t, err)
	assert.True(t, affected["test_flaky.py::test_it"])
}

func TestResolve_RecordedUnaffectedTestIsNotSelected(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.SaveTestExecution("test_stable", []store.FileChecksumPair{{Filename: "other.py", Checksum: 1}}, 0.1, false, ""))
	require.NoError(t, st.FlushTestExecutions())

	r := New(st)
	cs := &detect.ChangeSet{}

	affected, err := r.Resolve(cs, []CurrentTest{{NodeID: "test_stable", FilePath: "other.py"}})
	require.NoError(t, err)
	assert.False(t, affected["test_stable"])
}
