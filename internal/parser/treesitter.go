package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

// TreeSitterExtractor extracts imports, exports, functions and classes from
// TypeScript/JavaScript source using tree-sitter ASTs. Grounded on the
// teacher's TreeSitterParser walking conventions in
// pkg/ingestion/parser_typescript.go (recursive node-type switch, field-name
// child lookups, StartPoint/EndPoint-derived offsets), generalized from the
// teacher's (FunctionEntity, TypeEntity, CallsEdge) extraction targets to
// this spec's (Import, Export, Function, Class) model. The teacher's own
// grammar wiring (the statement that sets p.tsParser's language) was not
// present in the retrieved corpus, so it is authored fresh here following
// the go-tree-sitter ecosystem's standard per-language sub-package
// convention.
// mu guards ts/js: go-tree-sitter's *Parser is not documented safe for
// concurrent ParseCtx calls on one instance, and the parsing step's worker
// pool calls Extract from multiple goroutines.
type TreeSitterExtractor struct {
	logger *slog.Logger
	mu     sync.Mutex
	ts     *sitter.Parser
	js     *sitter.Parser
}

func newTreeSitterExtractor(logger *slog.Logger) (*TreeSitterExtractor, error) {
	ts := sitter.NewParser()
	ts.SetLanguage(typescript.GetLanguage())

	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())

	return &TreeSitterExtractor{logger: logger, ts: ts, js: js}, nil
}

// Extract parses content as language ("typescript" or "javascript") and
// walks the resulting AST once, collecting every import, export, function
// and class declaration.
func (e *TreeSitterExtractor) Extract(ctx context.Context, language, relPath string, content []byte) (*model.ParsedFile, error) {
	var p *sitter.Parser
	if language == "typescript" {
		p = e.ts
	} else {
		p = e.js
	}

	e.mu.Lock()
	tree, err := p.ParseCtx(ctx, nil, content)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		e.logger.Warn("parser.treesitter.syntax_errors", "path", relPath, "language", language)
	}

	pf := &model.ParsedFile{
		Path:     relPath,
		Language: language,
	}

	w := &tsWalker{content: content, pf: pf}
	w.walk(root)

	return pf, nil
}

// tsWalker carries the mutable accumulation state through one recursive AST
// walk, mirroring the teacher's walkTSFunctions/walkTSTypesAST shape
// collapsed into a single pass since this spec's extraction targets are
// independent of one another (no funcNameToID cross-reference needed).
type tsWalker struct {
	content []byte
	pf      *model.ParsedFile
}

func (w *tsWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *tsWalker) location(n *sitter.Node) model.Location {
	line := int(n.StartPoint().Row) + 1
	col := int(n.StartPoint().Column) + 1
	return model.Location{
		StartOffset: int(n.StartByte()),
		EndOffset:   int(n.EndByte()),
		Line:        &line,
		Column:      &col,
	}
}

func (w *tsWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "import_statement":
		w.extractImport(n)
	case "export_statement":
		w.extractExport(n)
	case "function_declaration":
		if fn := w.extractFunction(n); fn != nil {
			w.pf.Functions = append(w.pf.Functions, *fn)
		}
	case "class_declaration":
		if cls := w.extractClass(n); cls != nil {
			w.pf.Classes = append(w.pf.Classes, *cls)
		}
	case "variable_declarator":
		nameNode := n.ChildByFieldName("name")
		valueNode := n.ChildByFieldName("value")
		if nameNode != nil && valueNode != nil {
			switch valueNode.Type() {
			case "arrow_function", "function_expression", "function":
				fn := w.extractFunctionLike(valueNode, w.text(nameNode))
				w.pf.Functions = append(w.pf.Functions, *fn)
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

// extractImport handles default, namespace and named specifiers, and the
// type-only form ("import type { X } from ...").
func (w *tsWalker) extractImport(n *sitter.Node) {
	sourceNode := n.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	source := strings.Trim(w.text(sourceNode), `"'`)

	isTypeOnly := false
	var specs []model.Specifier

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "type":
			isTypeOnly = true
		case "import_clause":
			specs = append(specs, w.importClauseSpecifiers(child)...)
		}
	}

	w.pf.Imports = append(w.pf.Imports, model.Import{
		Source:     source,
		Specifiers: specs,
		IsTypeOnly: isTypeOnly,
	})
}

func (w *tsWalker) importClauseSpecifiers(clause *sitter.Node) []model.Specifier {
	var specs []model.Specifier
	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case "identifier":
			// default import
			specs = append(specs, model.Specifier{Name: w.text(child)})
		case "namespace_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				if child.Child(j).Type() == "identifier" {
					specs = append(specs, model.Specifier{Name: "*", Alias: w.text(child.Child(j))})
				}
			}
		case "named_imports":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				aliasNode := spec.ChildByFieldName("alias")
				s := model.Specifier{Name: w.text(nameNode)}
				if aliasNode != nil {
					s.Alias = w.text(aliasNode)
				}
				specs = append(specs, s)
			}
		}
	}
	return specs
}

// extractExport handles "export default", "export * from", and named /
// declaration-bound exports.
func (w *tsWalker) extractExport(n *sitter.Node) {
	childCount := int(n.ChildCount())
	for i := 0; i < childCount; i++ {
		child := n.Child(i)
		switch child.Type() {
		case "default":
			w.pf.Exports = append(w.pf.Exports, model.Export{Name: "default", Kind: model.ExportDefault})
		}
	}

	for i := 0; i < childCount; i++ {
		child := n.Child(i)
		switch child.Type() {
		case "function_declaration", "class_declaration":
			nameNode := child.ChildByFieldName("name")
			if nameNode != nil {
				w.pf.Exports = append(w.pf.Exports, model.Export{Name: w.text(nameNode), Kind: model.ExportNamed})
			}
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(child.ChildCount()); j++ {
				decl := child.Child(j)
				if decl.Type() != "variable_declarator" {
					continue
				}
				nameNode := decl.ChildByFieldName("name")
				if nameNode != nil {
					w.pf.Exports = append(w.pf.Exports, model.Export{Name: w.text(nameNode), Kind: model.ExportNamed})
				}
			}
		case "export_clause":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() != "export_specifier" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				aliasNode := spec.ChildByFieldName("alias")
				name := w.text(nameNode)
				if aliasNode != nil {
					name = w.text(aliasNode)
				}
				w.pf.Exports = append(w.pf.Exports, model.Export{Name: name, Kind: model.ExportNamed})
			}
		case "string":
			// `export * from "./x"` or `export { a } from "./x"`: the star
			// form has no export_clause child, only this source string.
			hasClause := false
			for j := 0; j < childCount; j++ {
				if n.Child(j).Type() == "export_clause" {
					hasClause = true
				}
			}
			if !hasClause {
				w.pf.Exports = append(w.pf.Exports, model.Export{
					Name:   "*",
					Kind:   model.ExportAll,
					Source: strings.Trim(w.text(child), `"'`),
				})
			}
		}
	}
}

func (w *tsWalker) extractFunction(n *sitter.Node) *model.Function {
	nameNode := n.ChildByFieldName("name")
	name := ""
	if nameNode != nil {
		name = w.text(nameNode)
	}
	return w.buildFunction(n, name)
}

func (w *tsWalker) extractFunctionLike(n *sitter.Node, name string) *model.Function {
	return w.buildFunction(n, name)
}

func (w *tsWalker) buildFunction(n *sitter.Node, name string) *model.Function {
	fn := &model.Function{
		Name:     name,
		Location: w.location(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "async" {
			fn.IsAsync = true
		}
	}
	if strings.Contains(w.text(n), "function*") {
		fn.IsGenerator = true
	}

	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Params = w.extractParams(params)
	}

	if ret := n.ChildByFieldName("return_type"); ret != nil {
		fn.ReturnType = w.renderType(ret)
	}

	return fn
}

func (w *tsWalker) extractParams(params *sitter.Node) []model.Param {
	var out []model.Param
	for i := 0; i < int(params.ChildCount()); i++ {
		p := params.Child(i)
		switch p.Type() {
		case "required_parameter", "optional_parameter":
			nameNode := p.ChildByFieldName("pattern")
			if nameNode == nil {
				continue
			}
			param := model.Param{Name: w.text(nameNode)}
			if typeNode := p.ChildByFieldName("type"); typeNode != nil {
				param.Type = w.renderType(typeNode)
			}
			out = append(out, param)
		case "identifier":
			out = append(out, model.Param{Name: w.text(p)})
		}
	}
	return out
}

// renderType returns a TypeScript type_annotation node's source text with
// the leading colon and surrounding whitespace removed. Types are kept as
// written: "Array<T>" is not rewritten to "T[]", union and intersection
// spacing follows the source, and no type is replaced by "any".
func (w *tsWalker) renderType(n *sitter.Node) string {
	raw := w.text(n)
	raw = strings.TrimPrefix(raw, ":")
	return strings.TrimSpace(raw)
}

func (w *tsWalker) extractClass(n *sitter.Node) *model.Class {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}

	cls := &model.Class{
		Name:     w.text(nameNode),
		Location: w.location(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if heritage := n.Child(i); heritage.Type() == "class_heritage" {
			cls.SuperClass = w.extractSuperClass(heritage)
		}
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return cls
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		switch member.Type() {
		case "method_definition":
			if fn := w.extractMethod(member); fn != nil {
				cls.Methods = append(cls.Methods, *fn)
			}
		case "public_field_definition", "property_declaration":
			if prop := w.extractProperty(member); prop != nil {
				cls.Properties = append(cls.Properties, *prop)
			}
		}
	}

	return cls
}

func (w *tsWalker) extractSuperClass(heritage *sitter.Node) string {
	for i := 0; i < int(heritage.ChildCount()); i++ {
		clause := heritage.Child(i)
		if clause.Type() == "extends_clause" {
			for j := 0; j < int(clause.ChildCount()); j++ {
				c := clause.Child(j)
				if c.Type() == "identifier" || c.Type() == "member_expression" {
					return w.text(c)
				}
			}
		}
	}
	return ""
}

func (w *tsWalker) extractMethod(n *sitter.Node) *model.Function {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	fn := w.buildFunction(n, w.text(nameNode))

	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.Child(i).Type() {
		case "static":
			fn.Modifiers = append(fn.Modifiers, "static")
		case "private", "#":
			fn.Modifiers = append(fn.Modifiers, "private")
		case "readonly":
			fn.Modifiers = append(fn.Modifiers, "readonly")
		case "get":
			fn.Modifiers = append(fn.Modifiers, "getter")
		case "set":
			fn.Modifiers = append(fn.Modifiers, "setter")
		}
	}

	return fn
}

func (w *tsWalker) extractProperty(n *sitter.Node) *model.Property {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = n.ChildByFieldName("property")
	}
	if nameNode == nil {
		return nil
	}
	prop := &model.Property{Name: w.text(nameNode)}
	if typeNode := n.ChildByFieldName("type"); typeNode != nil {
		prop.Type = w.renderType(typeNode)
	}
	return prop
}
