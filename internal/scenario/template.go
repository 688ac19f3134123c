package scenario

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stampede-load/stampede/internal/variables"
)

// ErrMissingCapture marks a template that references a variable no earlier
// step captured. The step fails; the virtual user keeps going.
var ErrMissingCapture = fmt.Errorf("missing capture variable")

// Placeholders look like {{key}} or {{key|default}}.
var placeholderRegex = regexp.MustCompile(`\{\{([^}|]+)(?:\|([^}]*))?\}\}`)

// render substitutes captured variables into a template. A placeholder
// without a default that resolves to no captured value fails the render.
func render(template string, store *variables.Store) (string, error) {
	var missing []string

	out := placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		parts := placeholderRegex.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		key := parts[1]

		if val, ok := store.Get(key); ok {
			return val
		}

		// {{key|default}} falls back to the default, including empty.
		// The key group cannot contain '|', so its presence means a
		// default was given.
		if strings.Contains(match, "|") {
			return parts[2]
		}

		missing = append(missing, key)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingCapture, missing[0])
	}
	return out, nil
}

// renderMap renders every value of a header map.
func renderMap(values map[string]string, store *variables.Store) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		rendered, err := render(value, store)
		if err != nil {
			return nil, err
		}
		out[key] = rendered
	}
	return out, nil
}
