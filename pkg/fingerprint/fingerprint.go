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

package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/kraklabs/testsel/internal/xerrors"
)

// Fingerprint is the unit of comparison for a file: a content hash plus an
// ordered list of blocks and their checksums. See the data model for the
// invariant that len(Blocks) == len(Checksums) for unfiltered fingerprints.
type Fingerprint struct {
	Filename  string // relative to project root, forward-slash, no leading slash
	FileHash  string // sha256 hex digest of the raw file bytes
	MTime     float64
	Size      int64
	Blocks    []Block
	Checksums []BlockChecksum
}

// LineSet is a set of 1-based executed line numbers, as supplied by the
// host's coverage instrumentation collaborator.
type LineSet map[int]bool

// RelativePath converts an absolute (or root-relative) path into the
// store's canonical relative-path form: forward slashes, no leading slash.
func RelativePath(projectRoot, path string) (string, error) {
	rel, err := filepath.Rel(projectRoot, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Build computes the Fingerprint for a file at path (absolute or relative
// to the working directory), relative to projectRoot. If executedLines is
// non-nil, Checksums is filtered to blocks whose line range intersects it
// (4.B step 5); otherwise all block checksums are retained.
func Build(e *Extractor, path, projectRoot string, executedLines LineSet) (*Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, xerrors.FileUnreadable(path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.FileUnreadable(path, err)
	}

	rel, err := RelativePath(projectRoot, path)
	if err != nil {
		return nil, xerrors.Internal("cannot relativize "+path, err)
	}

	sum := sha256.Sum256(raw)
	fileHash := hex.EncodeToString(sum[:])

	lang := DetectLanguage(path)
	blocks := e.ExtractBlocks(raw, lang)
	lines := splitLines(raw)
	owned := nestedLines(blocks)

	checksums := make([]BlockChecksum, 0, len(blocks))
	outBlocks := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if executedLines != nil && !intersects(b, owned, executedLines) {
			continue
		}
		text := blockText(lines, b, owned)
		checksums = append(checksums, ChecksumBlock(text))
		outBlocks = append(outBlocks, b)
	}
	if executedLines == nil {
		outBlocks = blocks
	}

	return &Fingerprint{
		Filename:  rel,
		FileHash:  fileHash,
		MTime:     float64(info.ModTime().UnixNano()) / 1e9,
		Size:      info.Size(),
		Blocks:    outBlocks,
		Checksums: checksums,
	}, nil
}

// nestedLines collects every line owned by a non-module block, so the
// <module> block's text and coverage membership can be restricted to
// top-level statements (spec §3: <module> covers only top-level
// statements, not the bodies of the functions/classes it contains).
func nestedLines(blocks []Block) LineSet {
	owned := LineSet{}
	for _, b := range blocks {
		if b.Name == ModuleBlockName {
			continue
		}
		for ln := b.FirstLine; ln <= b.LastLine; ln++ {
			owned[ln] = true
		}
	}
	return owned
}

// intersects reports whether any line in lines falls within b's range. For
// the <module> block, lines owned by a nested block are excluded first: a
// test that only executes a function body must not also register against
// <module>, or a function-body edit would never change which tests run.
func intersects(b Block, owned, lines LineSet) bool {
	for ln := b.FirstLine; ln <= b.LastLine; ln++ {
		if b.Name == ModuleBlockName && owned[ln] {
			continue
		}
		if lines[ln] {
			return true
		}
	}
	return false
}

// Calculate implements the host integration contract's
// `calculate_fingerprint(path, project_root) → Fingerprint`: an unfiltered
// build over the full block set.
func Calculate(e *Extractor, path, projectRoot string) (*Fingerprint, error) {
	return Build(e, path, projectRoot, nil)
}
