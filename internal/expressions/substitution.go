package expressions

import (
	"sort"
	"strings"

	"github.com/rendis/cmdkit/pkg/schema"
)

// Substitute resolves ${name} and $name placeholders in a command template.
//
// The template is scanned once from left to right, so a substituted value is
// never rescanned for further placeholders. A braced ${name} takes everything
// up to the closing brace and must match a key exactly. A bare $name is
// resolved against the longest key that prefixes its [A-Za-z0-9_] run; the
// rest of the run is kept literally, so $envX becomes "stagingX" when env is
// set. Placeholders with no matching key are copied through verbatim.
func Substitute(template string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(template, "$") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.IndexByte(template[i:], '$')
		if idx == -1 {
			b.WriteString(template[i:])
			break
		}
		b.WriteString(template[i : i+idx])
		start := i + idx

		name, end, braced := scanPlaceholder(template, start)
		if end == start {
			b.WriteByte('$')
			i = start + 1
			continue
		}
		key, ok := matchKey(name, braced, vars)
		if !ok {
			b.WriteString(template[start:end])
			i = end
			continue
		}
		b.WriteString(vars[key])
		b.WriteString(name[len(key):])
		i = end
	}
	return b.String()
}

// matchKey returns the key of vars a placeholder resolves to. Braced names
// match exactly; bare names match the longest key that is a prefix.
func matchKey(name string, braced bool, vars map[string]string) (string, bool) {
	if _, ok := vars[name]; ok {
		return name, true
	}
	if braced {
		return "", false
	}
	for n := len(name) - 1; n > 0; n-- {
		if _, ok := vars[name[:n]]; ok {
			return name[:n], true
		}
	}
	return "", false
}

// Unresolved returns the sorted, de-duplicated names of braced ${name}
// placeholders in template that have no entry in vars.
func Unresolved(template string, vars map[string]string) []string {
	seen := make(map[string]struct{})
	for i := 0; i < len(template); {
		idx := strings.IndexByte(template[i:], '$')
		if idx == -1 {
			break
		}
		start := i + idx
		name, end, braced := scanPlaceholder(template, start)
		if end == start {
			i = start + 1
			continue
		}
		if braced {
			if _, ok := vars[name]; !ok {
				seen[name] = struct{}{}
			}
		}
		i = end
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SubstituteStrict behaves like Substitute but fails when a braced
// placeholder has no value.
func SubstituteStrict(template string, vars map[string]string) (string, error) {
	if missing := Unresolved(template, vars); len(missing) > 0 {
		return "", schema.NewErrorf(schema.ErrCodeValidation,
			"unresolved variables: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing, "template": template})
	}
	return Substitute(template, vars), nil
}

// MergeVars returns a new map holding defaults overlaid by overrides.
// Neither input is modified.
func MergeVars(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// scanPlaceholder parses a placeholder starting at template[start] == '$'.
// It returns the variable name, the index just past the placeholder and
// whether the braced form was used. end == start means no placeholder.
func scanPlaceholder(template string, start int) (name string, end int, braced bool) {
	next := start + 1
	if next >= len(template) {
		return "", start, false
	}
	if template[next] == '{' {
		closing := strings.IndexByte(template[next+1:], '}')
		if closing <= 0 {
			return "", start, false
		}
		nameEnd := next + 1 + closing
		return template[next+1 : nameEnd], nameEnd + 1, true
	}
	j := next
	for j < len(template) && isNameByte(template[j]) {
		j++
	}
	if j == next {
		return "", start, false
	}
	return template[next:j], j, false
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// Used returns the sorted, de-duplicated keys of vars that Substitute would
// replace in template.
func Used(template string, vars map[string]string) []string {
	seen := make(map[string]struct{})
	for i := 0; i < len(template); {
		idx := strings.IndexByte(template[i:], '$')
		if idx == -1 {
			break
		}
		start := i + idx
		name, end, braced := scanPlaceholder(template, start)
		if end == start {
			i = start + 1
			continue
		}
		if key, ok := matchKey(name, braced, vars); ok {
			seen[key] = struct{}{}
		}
		i = end
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
