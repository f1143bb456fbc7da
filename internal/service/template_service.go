// internal/service/template_service.go
package service

import "strings"

// RenderTemplate replaces every {{key}} with vars[key] in one left-to-right
// pass. Unknown keys are left as written, and substituted values are never
// re-scanned, so the result does not depend on map order.
func RenderTemplate(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start + 2
		// innermost opener, so "{{ {{firstName}}" still substitutes firstName
		start = strings.LastIndex(rest[:end], "{{")
		key := rest[start+2 : end]
		b.WriteString(rest[:start])
		if v, ok := vars[key]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
	return b.String()
}
