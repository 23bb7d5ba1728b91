package conflict

import (
	"regexp"
	"strings"

	"github.com/Iron-Ham/fanout/internal/task"
)

var (
	definitionPattern = regexp.MustCompile(
		`\b(?:export\s+(?:default\s+)?)?(?:func|function|type|class|interface|const|let|var|def|enum|struct)\s+([A-Za-z_][A-Za-z0-9_]*)`)

	// import { a, b as c } from 'x'
	namedImportPattern = regexp.MustCompile(`\bimport\s*(?:type\s*)?\{([^}]*)\}`)
	// import a from 'x'
	defaultImportPattern = regexp.MustCompile(`\bimport\s+([A-Za-z_][A-Za-z0-9_]*)\s+from\b`)
	// from x import a, b
	fromImportPattern = regexp.MustCompile(`(?m)^\s*from\s+\S+\s+import\s+([A-Za-z0-9_, ]+)$`)
)

// symbolsOf extracts the symbols a result defines and imports from the
// content of its changes. Deleted content is ignored.
func symbolsOf(r task.Result) (defs, uses []string) {
	seenDef := make(map[string]bool)
	seenUse := make(map[string]bool)
	for _, ch := range r.Changes {
		if ch.Kind == task.ChangeDelete || ch.Content == "" {
			continue
		}
		for _, m := range definitionPattern.FindAllStringSubmatch(ch.Content, -1) {
			if !seenDef[m[1]] {
				seenDef[m[1]] = true
				defs = append(defs, m[1])
			}
		}
		for _, name := range importedNames(ch.Content) {
			if !seenUse[name] {
				seenUse[name] = true
				uses = append(uses, name)
			}
		}
	}
	return defs, uses
}

func importedNames(content string) []string {
	var names []string
	for _, m := range namedImportPattern.FindAllStringSubmatch(content, -1) {
		names = append(names, splitImportList(m[1])...)
	}
	for _, m := range defaultImportPattern.FindAllStringSubmatch(content, -1) {
		names = append(names, m[1])
	}
	for _, m := range fromImportPattern.FindAllStringSubmatch(content, -1) {
		names = append(names, splitImportList(m[1])...)
	}
	return names
}

// splitImportList turns "a, b as c" into [a b]: the imported name, not the
// local alias.
func splitImportList(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 || fields[0] == "type" && len(fields) == 1 {
			continue
		}
		name := fields[0]
		if name == "type" && len(fields) > 1 {
			name = fields[1]
		}
		out = append(out, name)
	}
	return out
}
