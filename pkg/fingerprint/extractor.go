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
	"context"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language identifies the grammar used to extract blocks from a file.
// The block extractor's concrete parser is an external collaborator in
// the sense of the design: the Tree-sitter grammars below are the "black
// box producing a block AST" that this package's Extractor consumes and
// turns into the core's own Block records.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangUnknown    Language = ""
)

// DetectLanguage maps a file extension to a supported Language. Files with
// an unrecognized extension fall back to the single <module> block.
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LangGo
	case ".py":
		return LangPython
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript
	case ".ts", ".tsx":
		return LangTypeScript
	default:
		return LangUnknown
	}
}

// Extractor parses source text into an ordered Block list using a pool of
// Tree-sitter parsers per language, mirroring the teacher's
// parser_treesitter.go pooling discipline so concurrent fingerprinting
// across many files does not contend on a single parser instance.
type Extractor struct {
	initOnce sync.Once
	goPool   sync.Pool
	pyPool   sync.Pool
	jsPool   sync.Pool
	tsPool   sync.Pool

	// DefaultLanguage is used by ParseModule(source), the host-integration
	// surface's no-language-argument entry point, when the caller has a
	// single configured source language (the common case: one test runner,
	// one dynamic language).
	DefaultLanguage Language
}

// NewExtractor constructs an Extractor. defaultLang configures ParseModule's
// implicit language; ExtractBlocks always takes an explicit Language.
func NewExtractor(defaultLang Language) *Extractor {
	e := &Extractor{DefaultLanguage: defaultLang}
	e.init()
	return e
}

func (e *Extractor) init() {
	e.initOnce.Do(func() {
		e.goPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(golang.GetLanguage())
			return p
		}
		e.pyPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(python.GetLanguage())
			return p
		}
		e.jsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(javascript.GetLanguage())
			return p
		}
		e.tsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(typescript.GetLanguage())
			return p
		}
	})
}

func (e *Extractor) poolFor(lang Language) *sync.Pool {
	switch lang {
	case LangGo:
		return &e.goPool
	case LangPython:
		return &e.pyPool
	case LangJavaScript:
		return &e.jsPool
	case LangTypeScript:
		return &e.tsPool
	default:
		return nil
	}
}

// ParseModule implements the host integration contract's
// `parse_module(source_text) → [Block]` using the Extractor's configured
// DefaultLanguage. Parse failure is never returned as an error: per 4.A, a
// single <module> block covering the full file is substituted so the file
// still participates in coarse change detection by its file_hash.
func (e *Extractor) ParseModule(source []byte) []Block {
	return e.ExtractBlocks(source, e.DefaultLanguage)
}

// ExtractBlocks parses source into an ordered Block list for the given
// language. It never errors: an unsupported language or a syntax error
// both degrade to the synthetic whole-file <module> block, per 4.A.
func (e *Extractor) ExtractBlocks(source []byte, lang Language) []Block {
	e.init()
	lineCount := countLines(source)
	moduleFallback := []Block{{Name: ModuleBlockName, FirstLine: 1, LastLine: lineCount}}

	pool := e.poolFor(lang)
	if pool == nil {
		return moduleFallback
	}

	parser := pool.Get().(*sitter.Parser)
	defer pool.Put(parser)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return moduleFallback
	}
	root := tree.RootNode()
	if root == nil {
		return moduleFallback
	}

	var blocks []Block
	seen := map[string]int{}
	switch lang {
	case LangGo:
		blocks = extractGoBlocks(root, source, seen)
	case LangPython:
		blocks = extractPythonBlocks(root, source, seen)
	case LangJavaScript, LangTypeScript:
		blocks = extractJSBlocks(root, source, seen)
	}

	// A tree riddled with ERROR nodes is as good as a parse failure for our
	// purposes: fall back rather than trust a badly damaged AST.
	if countErrorNodes(root) > 0 {
		return moduleFallback
	}

	full := Block{Name: ModuleBlockName, FirstLine: 1, LastLine: lineCount}
	return append([]Block{full}, blocks...)
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := 1
	for _, b := range src {
		if b == '\n' {
			n++
		}
	}
	if len(src) > 0 && src[len(src)-1] == '\n' {
		n--
	}
	return n
}

// countErrorNodes recursively counts Tree-sitter ERROR nodes, the same
// damage signal the teacher's parser_treesitter.go uses to judge whether a
// parse is trustworthy.
func countErrorNodes(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.IsError() {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrorNodes(n.Child(i))
	}
	return count
}

func nodeLineRange(n *sitter.Node) (first, last int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

func childByField(n *sitter.Node, field string) *sitter.Node {
	return n.ChildByFieldName(field)
}

func nameText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}
