package parser

import (
	"regexp"
	"strings"

	"github.com/kraklabs/repoanalyzer/internal/model"
)

// Python has no tree-sitter grammar wired into this source parser; instead
// it is extracted with a line-oriented regex scan, mirroring the teacher's
// own sigparse.go approach to lightweight signature recovery without a full
// AST (pkg/ingestion/sigparse.go), adapted from Go signatures to Python's
// import/def/class surface.

var (
	pyImportRE     = regexp.MustCompile(`^import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
	pyFromImportRE = regexp.MustCompile(`^from\s+([\w.]+)\s+import\s+(.+)$`)
	pyDefRE        = regexp.MustCompile(`^(async\s+)?def\s+(\w+)\s*\((.*)\)\s*(->\s*([^:]+))?\s*:`)
	pyClassRE      = regexp.MustCompile(`^class\s+(\w+)\s*(\(([^)]*)\))?\s*:`)
	pyDecoratorRE  = regexp.MustCompile(`^@([\w.]+)`)
)

// ExtractPython scans content line by line for import, from-import, top
// level def/async def, and top-level class declarations, per the source
// parser's Python extraction rules.
func ExtractPython(relPath string, content []byte) (*model.ParsedFile, error) {
	pf := &model.ParsedFile{Path: relPath, Language: "python"}

	lines := strings.Split(string(content), "\n")
	pendingDecorators := []string{}

	i := 0
	for i < len(lines) {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)
		indent := leadingSpaces(raw)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			i++
			continue
		}

		if indent > 0 {
			// Not top-level; skip until indentation returns to zero, since
			// the grammar only extracts top-level definitions directly
			// (methods are collected as part of their owning class block).
			i++
			continue
		}

		if m := pyDecoratorRE.FindStringSubmatch(trimmed); m != nil {
			pendingDecorators = append(pendingDecorators, m[1])
			i++
			continue
		}

		if m := pyImportRE.FindStringSubmatch(trimmed); m != nil {
			spec := model.Specifier{Name: m[1]}
			if m[2] != "" {
				spec.Alias = m[2]
			}
			pf.Imports = append(pf.Imports, model.Import{Source: m[1], Specifiers: []model.Specifier{spec}})
			pendingDecorators = nil
			i++
			continue
		}

		if m := pyFromImportRE.FindStringSubmatch(trimmed); m != nil {
			names := strings.Trim(m[2], "()")
			var specs []model.Specifier
			for _, part := range strings.Split(names, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				fields := strings.Fields(part)
				spec := model.Specifier{Name: fields[0]}
				if len(fields) == 3 && fields[1] == "as" {
					spec.Alias = fields[2]
				}
				specs = append(specs, spec)
			}
			pf.Imports = append(pf.Imports, model.Import{Source: m[1], Specifiers: specs})
			pendingDecorators = nil
			i++
			continue
		}

		if m := pyDefRE.FindStringSubmatch(trimmed); m != nil {
			start := i
			docstring, end := extractDocstring(lines, i+1)
			fn := buildPyFunction(m, pendingDecorators, start, end, docstring)
			pf.Functions = append(pf.Functions, fn)
			if !isUnderscored(fn.Name) {
				pf.Exports = append(pf.Exports, model.Export{Name: fn.Name, Kind: model.ExportNamed})
			}
			pendingDecorators = nil
			i = end + 1
			continue
		}

		if m := pyClassRE.FindStringSubmatch(trimmed); m != nil {
			cls, next := collectPyClass(lines, i, m, pendingDecorators)
			pf.Classes = append(pf.Classes, cls)
			if !isUnderscored(cls.Name) {
				pf.Exports = append(pf.Exports, model.Export{Name: cls.Name, Kind: model.ExportNamed})
			}
			pendingDecorators = nil
			i = next
			continue
		}

		if trimmed != "" && indent == 0 {
			if name, ok := topLevelAssignmentName(trimmed); ok && !isUnderscored(name) {
				pf.Exports = append(pf.Exports, model.Export{Name: name, Kind: model.ExportNamed})
			}
		}

		pendingDecorators = nil
		i++
	}

	return pf, nil
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 4
		} else {
			break
		}
	}
	return n
}

func isUnderscored(name string) bool {
	return strings.HasPrefix(name, "_")
}

// topLevelAssignmentName recognizes "NAME = ..." and "NAME: Type = ..." at
// module scope, for the implicit-export rule over top-level names.
func topLevelAssignmentName(line string) (string, bool) {
	idx := strings.IndexAny(line, "=:")
	if idx <= 0 {
		return "", false
	}
	name := strings.TrimSpace(line[:idx])
	if !isIdentifier(name) {
		return "", false
	}
	return name, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// extractDocstring looks at the first non-blank line of a def/class body
// for a triple-quoted string and returns its contents plus the line index
// the docstring's closing delimiter occupies (or bodyStart-1 if none).
func extractDocstring(lines []string, bodyStart int) (string, int) {
	j := bodyStart
	for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
		j++
	}
	if j >= len(lines) {
		return "", bodyStart - 1
	}
	trimmed := strings.TrimSpace(lines[j])
	for _, quote := range []string{`"""`, `'''`} {
		if strings.HasPrefix(trimmed, quote) {
			rest := trimmed[len(quote):]
			if idx := strings.Index(rest, quote); idx >= 0 {
				return strings.TrimSpace(rest[:idx]), j
			}
			var b strings.Builder
			b.WriteString(rest)
			for k := j + 1; k < len(lines); k++ {
				if idx := strings.Index(lines[k], quote); idx >= 0 {
					b.WriteString("\n" + lines[k][:idx])
					return strings.TrimSpace(b.String()), k
				}
				b.WriteString("\n" + lines[k])
			}
			return strings.TrimSpace(b.String()), len(lines) - 1
		}
	}
	return "", bodyStart - 1
}

func buildPyFunction(m []string, decorators []string, startLine, endLine int, docstring string) model.Function {
	isAsync := strings.TrimSpace(m[1]) == "async"
	name := m[2]
	params := parsePyParams(m[3])
	returnType := ""
	if len(m) > 5 {
		returnType = strings.TrimSpace(m[5])
	}

	line := startLine + 1
	return model.Function{
		Name:       name,
		Params:     params,
		ReturnType: returnType,
		IsAsync:    isAsync,
		Docstring:  docstring,
		Modifiers:  append([]string{}, decorators...),
		Location: model.Location{
			StartOffset: startLine,
			EndOffset:   endLine,
			Line:        &line,
		},
	}
}

// parsePyParams splits a parameter list on top-level commas (respecting
// nested brackets/parens so default values containing commas don't split
// incorrectly) and recognizes "name", "name: Type", "name=default",
// "name: Type = default", "*args" and "**kwargs".
func parsePyParams(raw string) []model.Param {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := splitTopLevel(raw)
	var out []model.Param
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "self" || part == "cls" {
			continue
		}
		if part == "/" || part == "*" {
			continue
		}
		name := part
		typ := ""
		if eq := strings.Index(part, "="); eq >= 0 {
			name = strings.TrimSpace(part[:eq])
		}
		if colon := strings.Index(name, ":"); colon >= 0 {
			typ = strings.TrimSpace(name[colon+1:])
			name = strings.TrimSpace(name[:colon])
		}
		out = append(out, model.Param{Name: name, Type: typ})
	}
	return out
}

func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// collectPyClass collects a class's method list by scanning indented lines
// until the next top-level (zero-indent, non-blank) line.
func collectPyClass(lines []string, start int, m []string, decorators []string) (model.Class, int) {
	name := m[1]
	superClass := ""
	if m[3] != "" {
		bases := strings.Split(m[3], ",")
		superClass = strings.TrimSpace(bases[0])
	}

	docstring, _ := extractDocstring(lines, start+1)

	line := start + 1
	cls := model.Class{
		Name:       name,
		SuperClass: superClass,
		Docstring:  docstring,
		Decorators: append([]string{}, decorators...),
		Location:   model.Location{StartOffset: start, Line: &line},
	}

	i := start + 1
	var methodDecorators []string
	for i < len(lines) {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			i++
			continue
		}
		indent := leadingSpaces(raw)
		if indent == 0 {
			break
		}

		if md := pyDecoratorRE.FindStringSubmatch(trimmed); md != nil {
			methodDecorators = append(methodDecorators, md[1])
			i++
			continue
		}

		if md := pyDefRE.FindStringSubmatch(trimmed); md != nil {
			methodStart := i
			docstring, end := extractDocstring(lines, i+1)
			fn := buildPyFunction(md, methodDecorators, methodStart, end, docstring)
			fn.Modifiers = append(fn.Modifiers, modifiersFromName(fn.Name)...)
			cls.Methods = append(cls.Methods, fn)
			methodDecorators = nil
			i = end + 1
			continue
		}

		methodDecorators = nil
		i++
	}

	cls.Location.EndOffset = i - 1
	return cls, i
}

func modifiersFromName(name string) []string {
	switch {
	case strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
		return []string{"dunder"}
	case strings.HasPrefix(name, "__"):
		return []string{"private"}
	case strings.HasPrefix(name, "_"):
		return []string{"protected"}
	default:
		return nil
	}
}
