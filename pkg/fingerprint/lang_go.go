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

import sitter "github.com/smacker/go-tree-sitter"

// extractGoBlocks walks a Go AST collecting function and method
// declarations. Methods are named Receiver.Name to disambiguate scopes, the
// same dotted-name convention the teacher's Tree-sitter parser uses for Go.
func extractGoBlocks(root *sitter.Node, src []byte, seen map[string]int) []Block {
	var blocks []Block
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "function_declaration":
				name := nameText(childByField(child, "name"), src)
				first, last := nodeLineRange(child)
				blocks = append(blocks, Block{Name: dedupeName(seen, name), FirstLine: first, LastLine: last})
			case "method_declaration":
				recv := receiverTypeName(childByField(child, "receiver"), src)
				name := nameText(childByField(child, "name"), src)
				qualified := name
				if recv != "" {
					qualified = recv + "." + name
				}
				first, last := nodeLineRange(child)
				blocks = append(blocks, Block{Name: dedupeName(seen, qualified), FirstLine: first, LastLine: last})
			default:
				walk(child)
			}
		}
	}
	walk(root)
	return blocks
}

// receiverTypeName extracts the base type name from a method receiver
// parameter list, stripping the pointer marker if present.
func receiverTypeName(recv *sitter.Node, src []byte) string {
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.ChildCount()); i++ {
		p := recv.Child(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		t := childByField(p, "type")
		if t == nil {
			continue
		}
		if t.Type() == "pointer_type" {
			t = t.Child(int(t.ChildCount()) - 1)
		}
		return nameText(t, src)
	}
	return ""
}
