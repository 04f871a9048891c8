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

// Package remote implements the pluggable object-store abstraction of 4.G:
// a capability set {upload, download, list_baselines, download_all} with
// LocalFS and S3-style concrete backends.
package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/testsel/internal/xerrors"
)

// Backend is the duck-typed storage capability set from the design notes
// (§9), modeled as a Go interface rather than inheritance.
type Backend interface {
	// Upload writes localPath to remoteKey, bytes-faithful, replacing any
	// existing object.
	Upload(ctx context.Context, localPath, remoteKey string) error
	// Download fetches remoteKey to localPath. Returns true if bytes were
	// fetched, false on a cache hit. Returns a NotFound xerrors.Error if the
	// key is absent.
	Download(ctx context.Context, remoteKey, localPath string) (bool, error)
	// ListBaselines enumerates objects ending in ".db" under prefix.
	ListBaselines(ctx context.Context, prefix string) ([]string, error)
	// DownloadAll downloads every object ListBaselines would report into
	// localDir, returning the local paths written.
	DownloadAll(ctx context.Context, localDir, prefix string) ([]string, error)
}

// Location is a parsed backend URL, per 4.G's URL grammar: scheme file://
// or s3://; a trailing slash denotes a prefix, otherwise a single object
// whose parent path is the prefix.
type Location struct {
	Scheme   string // "file" or "s3"
	Bucket   string // s3 only
	Key      string // s3: object key or prefix (no leading slash); file: the path after "file://"
	IsPrefix bool
}

// ParseLocation parses a remote URL per 4.G's grammar.
func ParseLocation(raw string) (Location, error) {
	switch {
	case strings.HasPrefix(raw, "file://"):
		rest := strings.TrimPrefix(raw, "file://")
		return Location{Scheme: "file", Key: rest, IsPrefix: strings.HasSuffix(rest, "/")}, nil
	case strings.HasPrefix(raw, "s3://"):
		rest := strings.TrimPrefix(raw, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		bucket := parts[0]
		key := ""
		if len(parts) == 2 {
			key = parts[1]
		}
		return Location{Scheme: "s3", Bucket: bucket, Key: key, IsPrefix: strings.HasSuffix(key, "/") || key == ""}, nil
	default:
		return Location{}, xerrors.Internal("unknown URL scheme", fmt.Errorf("%q", raw))
	}
}
