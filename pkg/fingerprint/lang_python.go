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

// extractPythonBlocks walks a Python AST collecting class and function
// definitions, nesting dotted names for methods and closures (Class.method,
// outer.inner) as required by 4.A.
func extractPythonBlocks(root *sitter.Node, src []byte, seen map[string]int) []Block {
	var blocks []Block
	var walk func(n *sitter.Node, scope string)
	walk = func(n *sitter.Node, scope string) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "function_definition", "class_definition":
				name := nameText(childByField(child, "name"), src)
				qualified := name
				if scope != "" {
					qualified = scope + "." + name
				}
				first, last := nodeLineRange(child)
				blocks = append(blocks, Block{Name: dedupeName(seen, qualified), FirstLine: first, LastLine: last})
				if body := childByField(child, "body"); body != nil {
					walk(body, qualified)
				}
			default:
				walk(child, scope)
			}
		}
	}
	walk(root, "")
	return blocks
}
