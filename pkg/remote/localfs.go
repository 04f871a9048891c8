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

package remote

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/kraklabs/testsel/internal/xerrors"
)

// LocalFSBackend implements Backend over the local filesystem. Cache hits
// are judged by mtime: if the destination's mtime is at least the source's,
// the download is skipped without reading source bytes (4.G).
type LocalFSBackend struct {
	BaseDir string
}

var _ Backend = (*LocalFSBackend)(nil)

func (b *LocalFSBackend) resolve(key string) string {
	return filepath.Join(b.BaseDir, key)
}

// Upload copies localPath to BaseDir/remoteKey via a temp file + rename, so
// a crash mid-write never leaves a truncated object behind.
func (b *LocalFSBackend) Upload(_ context.Context, localPath, remoteKey string) error {
	dst := b.resolve(remoteKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return xerrors.Internal("mkdir for upload", err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return xerrors.FileUnreadable(localPath, err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return xerrors.Internal("write upload temp file", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return xerrors.Internal("rename upload temp file", err)
	}
	return nil
}

// Download copies BaseDir/remoteKey to localPath unless localPath already
// has an mtime at or after the source's.
func (b *LocalFSBackend) Download(_ context.Context, remoteKey, localPath string) (bool, error) {
	src := b.resolve(remoteKey)
	srcInfo, err := os.Stat(src)
	if os.IsNotExist(err) {
		return false, xerrors.NotFound(remoteKey)
	}
	if err != nil {
		return false, xerrors.Internal("stat remote object", err)
	}

	if dstInfo, err := os.Stat(localPath); err == nil {
		if !dstInfo.ModTime().Before(srcInfo.ModTime()) {
			return false, nil // cache hit
		}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, xerrors.Internal("mkdir for download", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return false, xerrors.Internal("open remote object", err)
	}
	defer in.Close()
	tmp := localPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return false, xerrors.Internal("create download temp file", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return false, xerrors.Internal("copy download bytes", err)
	}
	out.Close()
	if err := os.Rename(tmp, localPath); err != nil {
		return false, xerrors.Internal("rename download temp file", err)
	}
	return true, nil
}

// ListBaselines globs BaseDir/prefix/*.db, non-recursively (Open Question
// #2, resolved in DESIGN.md: the local backend does not descend into
// subdirectories, unlike the S3 backend's prefix scan).
func (b *LocalFSBackend) ListBaselines(_ context.Context, prefix string) ([]string, error) {
	pattern := filepath.Join(b.resolve(prefix), "*.db")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, xerrors.Internal("glob baselines", err)
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		rel, err := filepath.Rel(b.BaseDir, m)
		if err != nil {
			return nil, xerrors.Internal("relativize baseline path", err)
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out, nil
}

// DownloadAll downloads every *.db under prefix into localDir.
func (b *LocalFSBackend) DownloadAll(ctx context.Context, localDir, prefix string) ([]string, error) {
	keys, err := b.ListBaselines(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, key := range keys {
		dst := filepath.Join(localDir, filepath.Base(key))
		if _, err := b.Download(ctx, key, dst); err != nil {
			return out, err
		}
		out = append(out, dst)
	}
	return out, nil
}
