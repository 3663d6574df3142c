package interp

import (
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
)

var (
	importLine = regexp.MustCompile(`^(\s*)import\s+(.+?)\s*(#.*)?$`)
	fromLine   = regexp.MustCompile(`^(\s*)from\s+([\w.]+)\s+import\s+(.+?)\s*(#.*)?$`)
	aliasPart  = regexp.MustCompile(`^([\w.]+)(?:\s+as\s+(\w+))?$`)
)

// ModuleNotFoundError reports an import of a package that is not loaded.
type ModuleNotFoundError struct {
	Name string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("ModuleNotFoundError: No module named '%s'", e.Name)
}

// rewriteImports turns Python import statements into bindings, so lesson
// code written as "import numpy as np" runs unchanged. Import lines become
// "pass" to keep line numbers and block structure intact. Lines inside a
// triple-quoted string are left alone.
func rewriteImports(code string, modules map[string]starlark.Value) (string, starlark.StringDict, error) {
	bindings := starlark.StringDict{}
	lines := strings.Split(code, "\n")

	var open string // delimiter of the triple-quoted string spanning lines, if any
	for i, line := range lines {
		inString := open != ""
		open = scanStrings(line, open)
		if inString {
			continue
		}

		if m := fromLine.FindStringSubmatch(line); m != nil {
			mod, err := lookupModule(m[2], modules)
			if err != nil {
				return "", nil, err
			}
			names := strings.Trim(m[3], "()")
			for _, part := range strings.Split(names, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				pm := aliasPart.FindStringSubmatch(part)
				if pm == nil || part == "*" {
					return "", nil, fmt.Errorf("line %d: unsupported import %q", i+1, part)
				}
				v, err := moduleAttr(mod, m[2], pm[1])
				if err != nil {
					return "", nil, err
				}
				bindings[bindName(pm)] = v
			}
			lines[i] = m[1] + "pass"
			continue
		}

		if m := importLine.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(m[2], ",") {
				pm := aliasPart.FindStringSubmatch(strings.TrimSpace(part))
				if pm == nil {
					return "", nil, fmt.Errorf("line %d: unsupported import %q", i+1, strings.TrimSpace(part))
				}
				if pm[2] == "" {
					// "import numpy.linalg" binds the top-level package.
					top, _, _ := strings.Cut(pm[1], ".")
					v, err := lookupModule(top, modules)
					if err != nil {
						return "", nil, err
					}
					if _, err := lookupModule(pm[1], modules); err != nil {
						return "", nil, err
					}
					bindings[top] = v
					continue
				}
				v, err := lookupModule(pm[1], modules)
				if err != nil {
					return "", nil, err
				}
				bindings[pm[2]] = v
			}
			lines[i] = m[1] + "pass"
		}
	}
	return strings.Join(lines, "\n"), bindings, nil
}

// scanStrings walks one line and returns the delimiter of a triple-quoted
// string still open at its end. open is the delimiter carried in from the
// previous line.
func scanStrings(line, open string) string {
	for i := 0; i < len(line); {
		if open != "" {
			switch {
			case line[i] == '\\':
				i += 2
			case strings.HasPrefix(line[i:], open):
				i += len(open)
				open = ""
			default:
				i++
			}
			continue
		}

		switch c := line[i]; {
		case c == '#':
			return ""
		case strings.HasPrefix(line[i:], `"""`), strings.HasPrefix(line[i:], "'''"):
			open = line[i : i+3]
			i += 3
		case c == '"' || c == '\'':
			// Single-line string: skip to the closing quote.
			i++
			for i < len(line) && line[i] != c {
				if line[i] == '\\' {
					i++
				}
				i++
			}
			i++
		default:
			i++
		}
	}
	return open
}

func bindName(m []string) string {
	if m[2] != "" {
		return m[2]
	}
	return m[1]
}

// lookupModule resolves a possibly dotted module path such as numpy.linalg.
func lookupModule(path string, modules map[string]starlark.Value) (starlark.Value, error) {
	top, rest, dotted := strings.Cut(path, ".")
	v, ok := modules[top]
	if !ok {
		return nil, &ModuleNotFoundError{Name: top}
	}
	if !dotted {
		return v, nil
	}
	for _, name := range strings.Split(rest, ".") {
		next, err := moduleAttr(v, path, name)
		if err != nil {
			return nil, &ModuleNotFoundError{Name: path}
		}
		v = next
	}
	return v, nil
}

func moduleAttr(mod starlark.Value, modName, attr string) (starlark.Value, error) {
	if ha, ok := mod.(starlark.HasAttrs); ok {
		if v, err := ha.Attr(attr); err == nil && v != nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("ImportError: cannot import name '%s' from '%s'", attr, modName)
}
