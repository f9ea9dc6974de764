package frame

import (
	"fmt"
	"strings"
)

// ResolveTemplate substitutes {name} placeholders in a destination template
// with values from the vars map. It is a deliberately small substitution
// helper, not an expression evaluator; every placeholder must have a value.
//
// Example:
//
//	ResolveTemplate("/queue/session/{connectionId}/exception",
//	    map[string]string{"connectionId": "c1"})
func ResolveTemplate(template string, vars map[string]string) (string, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder in template %q", template)
		}
		closing += open

		name := rest[open+1 : closing]
		if name == "" {
			return "", fmt.Errorf("empty placeholder in template %q", template)
		}
		value, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("no value for placeholder %q in template %q", name, template)
		}

		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[closing+1:]
	}
}
