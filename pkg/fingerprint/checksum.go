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
	"bufio"
	"bytes"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BlockChecksum is a deterministic 64-bit hash of a block's normalized
// source text. Two blocks whose normalized text matches produce the same
// checksum, regardless of source position.
type BlockChecksum uint64

// NormalizationRule identifies the checksum normalization applied before
// hashing. The rule is not recorded in stored fingerprints: the store keeps
// only the checksums, so baselines written under another rule are compared
// as-is.
type NormalizationRule string

// NormalizationV1 is the only normalization rule defined so far: strip
// trailing whitespace per line, collapse runs of blank lines to one, and
// drop comment-only lines (lines whose trimmed text starts with a
// language's line-comment marker, checked against the common set below).
const NormalizationV1 NormalizationRule = "v1"

var lineCommentMarkers = []string{"#", "//"}

// normalize applies NormalizationV1 to raw source text.
func normalize(src []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	blank := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
			out.WriteByte('\n')
			continue
		}
		if isCommentOnly(trimmed) {
			continue
		}
		blank = false
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

func isCommentOnly(trimmed string) bool {
	for _, marker := range lineCommentMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// ChecksumBlock computes the BlockChecksum of a block's source text under
// NormalizationV1.
func ChecksumBlock(text []byte) BlockChecksum {
	return BlockChecksum(xxhash.Sum64(normalize(text)))
}

// extractBlockText returns the raw bytes of a block given the full file
// content and the block's line range (1-based, inclusive).
func extractBlockText(lines [][]byte, b Block) []byte {
	first := b.FirstLine - 1
	last := b.LastLine
	if first < 0 {
		first = 0
	}
	if last > len(lines) {
		last = len(lines)
	}
	if first >= last {
		return nil
	}
	return bytes.Join(lines[first:last], []byte("\n"))
}

// blockText returns a block's checksummed text. The <module> block is
// special: it covers only top-level statements, so any line owned by
// another extracted block (a nested function or class body) is dropped
// before hashing, even though <module>'s own FirstLine/LastLine still spans
// the whole file for identity purposes.
func blockText(lines [][]byte, b Block, owned LineSet) []byte {
	if b.Name != ModuleBlockName || len(owned) == 0 {
		return extractBlockText(lines, b)
	}
	first := b.FirstLine - 1
	last := b.LastLine
	if first < 0 {
		first = 0
	}
	if last > len(lines) {
		last = len(lines)
	}
	var kept [][]byte
	for i := first; i < last; i++ {
		if owned[i+1] {
			continue
		}
		kept = append(kept, lines[i])
	}
	return bytes.Join(kept, []byte("\n"))
}

func splitLines(src []byte) [][]byte {
	return bytes.Split(src, []byte("\n"))
}
