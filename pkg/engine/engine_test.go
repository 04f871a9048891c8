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

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/testsel/pkg/fingerprint"
	"github.com/kraklabs/testsel/pkg/remote"
	"github.com/kraklabs/testsel/pkg/resolve"
)

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "store.db")
	e, err := New(storePath, root, Config{
		DefaultLanguage: fingerprint.LangPython,
		Extensions:      []string{".py"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeSrc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// Scenario 1: Revert — a file edited then reverted byte-for-byte selects no
// tests on the next run.
func TestScenario_Revert(t *testing.T) {
	root := t.TempDir()
	original := "def add(a, b):\n    return a + b\n"
	writeSrc(t, root, "calc.py", original)
	writeSrc(t, root, "test_calc.py", "def test_add():\n    assert add(1, 2) == 3\n")

	e := newTestEngine(t, root)
	_, err := e.SaveBaseline([]string{"."}, false, false)
	require.NoError(t, err)
	_, err = e.ProcessCoverageData(map[string][]int{filepath.Join(root, "calc.py"): {1, 2}}, "test_calc.py::test_add", 0.1, false, "", true)
	require.NoError(t, err)

	writeSrc(t, root, "calc.py", "def add(a, b):\n    return a + b + 1\n")
	writeSrc(t, root, "calc.py", original) // reverted

	cs, err := e.DetectChanges([]string{"."})
	require.NoError(t, err)
	affected, err := e.ResolveAffectedTests(cs, nil)
	require.NoError(t, err)
	assert.Empty(t, affected)
}

// Scenario 2: Selective selection — only the test covering the changed block
// is selected.
func TestScenario_SelectiveSelection(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "math_ops.py", "def add(a, b):\n    return a + b\n\n\ndef sub(a, b):\n    return a - b\n")

	e := newTestEngine(t, root)
	_, err := e.SaveBaseline([]string{"."}, false, false)
	require.NoError(t, err)

	_, err = e.ProcessCoverageData(map[string][]int{filepath.Join(root, "math_ops.py"): {1, 2}}, "test_add", 0.1, false, "", true)
	require.NoError(t, err)
	_, err = e.ProcessCoverageData(map[string][]int{filepath.Join(root, "math_ops.py"): {5, 6}}, "test_sub", 0.1, false, "", true)
	require.NoError(t, err)

	writeSrc(t, root, "math_ops.py", "def add(a, b):\n    return a + b + 100\n\n\ndef sub(a, b):\n    return a - b\n")

	cs, err := e.DetectChanges([]string{"."})
	require.NoError(t, err)
	affected, err := e.ResolveAffectedTests(cs, nil)
	require.NoError(t, err)
	assert.True(t, affected["test_add"])
	assert.False(t, affected["test_sub"])
}

// A selection run (saveExecution=false) must never overwrite a test's
// recorded baseline coverage: otherwise a changed test would stop being
// selected the moment it runs once against the new code, before a new
// baseline is saved.
func TestProcessCoverageData_SelectionRunPreservesBaselineExecution(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "calc.py", "def add(a, b):\n    return a + b\n")

	e := newTestEngine(t, root)
	_, err := e.SaveBaseline([]string{"."}, false, false)
	require.NoError(t, err)
	_, err = e.ProcessCoverageData(map[string][]int{filepath.Join(root, "calc.py"): {1, 2}}, "test_add", 0.1, false, "", true)
	require.NoError(t, err)

	writeSrc(t, root, "calc.py", "def add(a, b):\n    return a + b + 1\n")

	// A selection run executes the (still old) baseline's recorded test
	// against the changed file, but must not persist new coverage for it.
	_, err = e.ProcessCoverageData(map[string][]int{filepath.Join(root, "calc.py"): {1, 2}}, "test_add", 0.05, false, "", false)
	require.NoError(t, err)

	cs, err := e.DetectChanges([]string{"."})
	require.NoError(t, err)
	affected, err := e.ResolveAffectedTests(cs, nil)
	require.NoError(t, err)
	assert.True(t, affected["test_add"]) // still selected: the save-skip didn't fold in the new checksum
}

// Scenario 3: New test file — a test file added after the baseline is listed
// as modified, and its test is selected even though it has no recorded
// coverage yet.
func TestScenario_NewTestFile(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "calc.py", "def add(a, b):\n    return a + b\n")

	e := newTestEngine(t, root)
	_, err := e.SaveBaseline([]string{"."}, false, false)
	require.NoError(t, err)

	writeSrc(t, root, "test_calc_new.py", "def test_add():\n    assert add(1, 2) == 3\n")

	cs, err := e.DetectChanges([]string{"."})
	require.NoError(t, err)
	affected, err := e.ResolveAffectedTests(cs, []resolve.CurrentTest{
		{NodeID: "test_calc_new.py::test_add", FilePath: "test_calc_new.py"},
	})
	require.NoError(t, err)
	assert.True(t, affected["test_calc_new.py::test_add"])
}

// Scenario 5: Remote cache hit — re-downloading an unchanged remote baseline
// is a no-op (byte transfer skipped) but still leaves the local store usable.
func TestScenario_RemoteCacheHit(t *testing.T) {
	remoteDir := t.TempDir()
	backend := &remote.LocalFSBackend{BaseDir: remoteDir}
	src := filepath.Join(t.TempDir(), "main.db")
	require.NoError(t, os.WriteFile(src, []byte("sqlite-bytes"), 0o644))
	require.NoError(t, backend.Upload(nil, src, "main.db"))

	dst := filepath.Join(t.TempDir(), "local.db")
	fetched, err := backend.Download(nil, "main.db", dst)
	require.NoError(t, err)
	assert.True(t, fetched)

	fetched, err = backend.Download(nil, "main.db", dst)
	require.NoError(t, err)
	assert.False(t, fetched)
}

// Scenario 6: Parse failure isolation — a syntactically broken file never
// aborts the run; it degrades to the whole-file module block.
func TestScenario_ParseFailureIsolation(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "good.py", "def ok():\n    return 1\n")
	writeSrc(t, root, "broken.py", "def broken(:\n   not valid +++\n")

	e := newTestEngine(t, root)
	count, err := e.SaveBaseline([]string{"."}, false, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	fp, err := e.CalculateFingerprint(filepath.Join(root, "broken.py"))
	require.NoError(t, err)
	assert.Equal(t, fingerprint.ModuleBlockName, fp.Blocks[0].Name)
}
