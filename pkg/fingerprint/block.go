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

// Package fingerprint implements the block extractor and fingerprint
// builder: decomposing a source file into named blocks and assembling a
// Fingerprint record from their checksums.
package fingerprint

import "strconv"

// Block is a contiguous, named region of a source file. FirstLine and
// LastLine are 1-based and inclusive.
type Block struct {
	Name      string
	FirstLine int
	LastLine  int
}

// ModuleBlockName is the synthetic block every file carries, spanning the
// whole file regardless of language or parse outcome.
const ModuleBlockName = "<module>"

// dedupeName disambiguates a name collision within the same scope by
// appending a positional suffix, mirroring how the teacher's Tree-sitter
// parser disambiguates overloaded same-name nested definitions.
func dedupeName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	return name + "#" + strconv.Itoa(n)
}
