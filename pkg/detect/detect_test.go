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

package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/testsel/pkg/cache"
	"github.com/kraklabs/testsel/pkg/fingerprint"
	"github.com/kraklabs/testsel/pkg/store"
)

func newHarness(t *testing.T) (root string, st *store.Store, c *cache.Cache, d *Detector) {
	t.Helper()
	root = t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.DefaultBatchSize, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	e := fingerprint.NewExtractor(fingerprint.LangPython)
	c = cache.New(e, root, cache.DefaultMaxSize)
	d = New(st, c, root, []string{".py"})
	return
}

func seedBaseline(t *testing.T, root string, st *store.Store, c *cache.Cache, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	fp, err := c.GetOrCalculate(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveBaselineFingerprint(fp))
}

func TestDetectChanges_NoChangesWhenIdentical(t *testing.T) {
	root, st, c, d := newHarness(t)
	seedBaseline(t, root, st, c, "calc.py", "def add(a, b):\n    return a + b\n")

	cs, err := d.DetectChanges([]string{"."})
	require.NoError(t, err)
	assert.False(t, cs.HasChanges())
}

func TestDetectChanges_RevertEquivalence(t *testing.T) {
	root, st, c, d := newHarness(t)
	original := "def add(a, b):\n    return a + b\n"
	seedBaseline(t, root, st, c, "calc.py", original)

	path := filepath.Join(root, "calc.py")
	require.NoError(t, os.WriteFile(path, []byte("def add(a, b):\n    return a + b + 1\n"), 0o644))
	cs, err := d.DetectChanges([]string{"."})
	require.NoError(t, err)
	assert.True(t, cs.HasChanges())

	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	cs, err = d.DetectChanges([]string{"."})
	require.NoError(t, err)
	assert.False(t, cs.HasChanges())
}

func TestDetectChanges_DeletionOrphansAllBlocks(t *testing.T) {
	root, st, c, d := newHarness(t)
	seedBaseline(t, root, st, c, "calc.py", "def add(a, b):\n    return a + b\n")

	require.NoError(t, os.Remove(filepath.Join(root, "calc.py")))

	cs, err := d.DetectChanges([]string{"."})
	require.NoError(t, err)
	assert.Contains(t, cs.Modified, "calc.py")
	assert.NotEmpty(t, cs.ChangedBlocks["calc.py"])
}

func TestDetectChanges_NewFileIsModifiedWithNoOrphans(t *testing.T) {
	root, _, _, d := newHarness(t)
	path := filepath.Join(root, "new_module.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	cs, err := d.DetectChanges([]string{"."})
	require.NoError(t, err)
	assert.Contains(t, cs.Modified, "new_module.py")
	assert.Empty(t, cs.ChangedBlocks["new_module.py"])
}

func TestDetectChanges_SymlinksAreSkipped(t *testing.T) {
	root, st, c, d := newHarness(t)
	seedBaseline(t, root, st, c, "calc.py", "def add(a, b):\n    return a + b\n")

	target := filepath.Join(root, "target.py")
	require.NoError(t, os.WriteFile(target, []byte("y = 2\n"), 0o644))
	link := filepath.Join(root, "link.py")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	cs, err := d.DetectChanges([]string{"."})
	require.NoError(t, err)
	assert.NotContains(t, cs.Modified, "link.py")
}
