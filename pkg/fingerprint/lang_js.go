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

// extractJSBlocks walks a JavaScript/TypeScript AST collecting function and
// class member declarations, covering the shapes shared by both grammars
// (method_definition, function_declaration, class_declaration, and named
// function expressions bound via a variable_declarator).
func extractJSBlocks(root *sitter.Node, src []byte, seen map[string]int) []Block {
	var blocks []Block
	var walk func(n *sitter.Node, scope string)
	walk = func(n *sitter.Node, scope string) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "class_declaration":
				name := nameText(childByField(child, "name"), src)
				qualified := qualify(scope, name)
				first, last := nodeLineRange(child)
				blocks = append(blocks, Block{Name: dedupeName(seen, qualified), FirstLine: first, LastLine: last})
				walk(child, qualified)
			case "method_definition":
				name := nameText(childByField(child, "name"), src)
				qualified := qualify(scope, name)
				first, last := nodeLineRange(child)
				blocks = append(blocks, Block{Name: dedupeName(seen, qualified), FirstLine: first, LastLine: last})
			case "function_declaration":
				name := nameText(childByField(child, "name"), src)
				qualified := qualify(scope, name)
				first, last := nodeLineRange(child)
				blocks = append(blocks, Block{Name: dedupeName(seen, qualified), FirstLine: first, LastLine: last})
			case "variable_declarator":
				value := childByField(child, "value")
				if value != nil && (value.Type() == "function" || value.Type() == "arrow_function" || value.Type() == "function_expression") {
					name := nameText(childByField(child, "name"), src)
					qualified := qualify(scope, name)
					first, last := nodeLineRange(value)
					blocks = append(blocks, Block{Name: dedupeName(seen, qualified), FirstLine: first, LastLine: last})
				}
			default:
				walk(child, scope)
			}
		}
	}
	walk(root, "")
	return blocks
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}
