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

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/testsel/pkg/fingerprint"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetOrCalculate_HitsOnUnchangedStat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.py", "def f():\n    return 1\n")

	e := fingerprint.NewExtractor(fingerprint.LangPython)
	c := New(e, dir, DefaultMaxSize)

	fp1, err := c.GetOrCalculate(path)
	require.NoError(t, err)
	fp2, err := c.GetOrCalculate(path)
	require.NoError(t, err)

	assert.Same(t, fp1, fp2)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestGetOrCalculate_MissesOnStatChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.py", "def f():\n    return 1\n")

	e := fingerprint.NewExtractor(fingerprint.LangPython)
	c := New(e, dir, DefaultMaxSize)

	_, err := c.GetOrCalculate(path)
	require.NoError(t, err)

	// Rewrite with different content of the same size; the mtime changes.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("def f():\n    return 2\n"), 0o644))

	_, err = c.GetOrCalculate(path)
	require.NoError(t, err)
	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Misses)
}

func TestEviction_FIFOWhenOverCapacity(t *testing.T) {
	dir := t.TempDir()
	e := fingerprint.NewExtractor(fingerprint.LangPython)
	c := New(e, dir, 2)

	p1 := writeFile(t, dir, "one.py", "x = 1\n")
	p2 := writeFile(t, dir, "two.py", "x = 2\n")
	p3 := writeFile(t, dir, "three.py", "x = 3\n")

	_, err := c.GetOrCalculate(p1)
	require.NoError(t, err)
	_, err = c.GetOrCalculate(p2)
	require.NoError(t, err)
	_, err = c.GetOrCalculate(p3)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Size())
	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Misses)

	// one.py was inserted first, so it is the entry that was evicted.
	_, err = c.GetOrCalculate(p1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Stats().Misses)
}

func TestGetOrCalculate_MissingFileIsFileUnreadable(t *testing.T) {
	dir := t.TempDir()
	e := fingerprint.NewExtractor(fingerprint.LangPython)
	c := New(e, dir, DefaultMaxSize)

	_, err := c.GetOrCalculate(filepath.Join(dir, "missing.py"))
	assert.Error(t, err)
}
