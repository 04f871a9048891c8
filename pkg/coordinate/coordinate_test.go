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

package coordinate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/testsel/pkg/remote"
	"github.com/kraklabs/testsel/pkg/store"
)

func TestScopeMismatch(t *testing.T) {
	assert.False(t, ScopeMismatch([]string{"pkg/a"}, []string{"pkg/a", "pkg/b"}))
	assert.True(t, ScopeMismatch([]string{"pkg/c"}, []string{"pkg/a", "pkg/b"}))
	assert.False(t, ScopeMismatch(nil, []string{"pkg/a"}))
}

func TestPrepareController_NoBackendOpensLocalStoreOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := PrepareController(path, store.DefaultBatchSize, nil, "")
	require.NoError(t, err)
	defer st.Close()

	_, ok, err := st.GetMetadata(MetaBaselineCommit)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrepareController_RemoteNotFoundIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	backend := &remote.LocalFSBackend{BaseDir: t.TempDir()}

	st, err := PrepareController(path, store.DefaultBatchSize, backend, "baselines/main.db")
	require.NoError(t, err)
	defer st.Close()
}

func TestPrepareController_MergesDownloadedBaseline(t *testing.T) {
	remoteDir := t.TempDir()
	remoteStorePath := filepath.Join(remoteDir, "baselines", "main.db")
	remoteSt, err := store.Open(remoteStorePath, store.DefaultBatchSize, nil)
	require.NoError(t, err)
	require.NoError(t, remoteSt.SetMetadata(MetaBaselineCommit, "abc123"))
	require.NoError(t, remoteSt.Close())

	localPath := filepath.Join(t.TempDir(), "local.db")
	backend := &remote.LocalFSBackend{BaseDir: remoteDir}

	st, err := PrepareController(localPath, store.DefaultBatchSize, backend, "baselines/main.db")
	require.NoError(t, err)
	defer st.Close()

	commit, ok, err := st.GetMetadata(MetaBaselineCommit)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", commit)
}

func TestOpenWorker_SkipsRemoteEntirely(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.db")
	st, err := OpenWorker(path, store.DefaultBatchSize)
	require.NoError(t, err)
	defer st.Close()
}
