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

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/testsel/pkg/fingerprint"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path, 2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleFP(filename string, checksums ...fingerprint.BlockChecksum) *fingerprint.Fingerprint {
	blocks := make([]fingerprint.Block, len(checksums))
	for i := range checksums {
		blocks[i] = fingerprint.Block{Name: filename}
	}
	return &fingerprint.Fingerprint{Filename: filename, FileHash: "h1", MTime: 1.0, Size: 10, Blocks: blocks, Checksums: checksums}
}

func TestSaveAndGetBaselineFingerprint(t *testing.T) {
	st := openTestStore(t)
	fp := sampleFP("a.py", 111, 222)

	require.NoError(t, st.SaveBaselineFingerprint(fp))

	got, ok, err := st.GetBaselineFingerprint("a.py")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fp.Checksums, got.Checksums)

	_, ok, err = st.GetBaselineFingerprint("missing.py")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveTestExecution_BatchFlushAndQuery(t *testing.T) {
	st := openTestStore(t) // batch size 2

	pairs := []FileChecksumPair{{Filename: "a.py", Checksum: 111}}
	require.NoError(t, st.SaveTestExecution("t1", pairs, 0.5, false, ""))

	recorded, err := st.GetRecordedTests()
	require.NoError(t, err)
	assert.False(t, recorded["t1"]) // still pending, under batch size

	require.NoError(t, st.SaveTestExecution("t2", pairs, 0.5, false, ""))
	// batch size reached -> auto flush
	recorded, err = st.GetRecordedTests()
	require.NoError(t, err)
	assert.True(t, recorded["t1"])
	assert.True(t, recorded["t2"])

	affected, err := st.GetAffectedTests(map[string]map[fingerprint.BlockChecksum]bool{
		"a.py": {111: true},
	})
	require.NoError(t, err)
	assert.True(t, affected["t1"])
	assert.True(t, affected["t2"])
}

func TestFlushTestExecutions_ExplicitFlush(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.SaveTestExecution("t1", nil, 0.1, true, "env-a"))
	require.NoError(t, st.FlushTestExecutions())

	recorded, err := st.GetRecordedTests()
	require.NoError(t, err)
	assert.True(t, recorded["t1"])
}

func TestMetadata_SetAndGet(t *testing.T) {
	st := openTestStore(t)
	_, ok, err := st.GetMetadata("baseline_commit")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetMetadata("baseline_commit", "abc123"))
	val, ok, err := st.GetMetadata("baseline_commit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", val)

	require.NoError(t, st.SetMetadata("baseline_commit", "def456"))
	val, ok, err = st.GetMetadata("baseline_commit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "def456", val)
}

func TestMergeBaselineFrom_AdditiveIncomingWins(t *testing.T) {
	dest := openTestStore(t)
	require.NoError(t, dest.SaveBaselineFingerprint(sampleFP("shared.py", 1)))
	require.NoError(t, dest.SaveTestExecution("shared_test", []FileChecksumPair{{Filename: "shared.py", Checksum: 1}}, 0.1, false, ""))
	require.NoError(t, dest.FlushTestExecutions())

	srcPath := filepath.Join(t.TempDir(), "src.db")
	src, err := Open(srcPath, DefaultBatchSize, nil)
	require.NoError(t, err)
	require.NoError(t, src.SaveBaselineFingerprint(sampleFP("shared.py", 2))) // incoming wins
	require.NoError(t, src.SaveBaselineFingerprint(sampleFP("unique.py", 3)))
	require.NoError(t, src.SetMetadata("baseline_commit", "feature-branch"))
	require.NoError(t, src.Close())

	result, err := dest.MergeBaselineFrom(srcPath)
	require.NoError(t, err)
	assert.Equal(t, 2, result.BaselineCount)

	got, ok, err := dest.GetBaselineFingerprint("shared.py")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []fingerprint.BlockChecksum{2}, got.Checksums)

	_, ok, err = dest.GetBaselineFingerprint("unique.py")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetExternalMetadata_DoesNotMutateEitherStore(t *testing.T) {
	dest := openTestStore(t)
	srcPath := filepath.Join(t.TempDir(), "src.db")
	src, err := Open(srcPath, DefaultBatchSize, nil)
	require.NoError(t, err)
	require.NoError(t, src.SetMetadata("baseline_commit", "xyz"))
	require.NoError(t, src.Close())

	value, ok, err := dest.GetExternalMetadata(srcPath, "baseline_commit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "xyz", value)

	_, ok, err = dest.GetMetadata("baseline_commit")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetStats(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.SaveBaselineFingerprint(sampleFP("a.py", 1)))
	require.NoError(t, st.SaveTestExecution("t1", nil, 0.1, false, ""))
	require.NoError(t, st.FlushTestExecutions())

	stats, err := st.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BaselineCount)
	assert.Equal(t, 1, stats.TestCount)
	assert.Equal(t, 1, stats.FileCount)
}
