// Package extractor pulls values out of response bodies for variable
// capture, via JSONPath expressions or regex patterns.
package extractor

import (
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
)

// Rule describes one capture: where to look in the body and the variable
// name the value is stored under. Exactly one of JSONPath or Regex is set;
// validated at config load, not here.
type Rule struct {
	// JSONPath is a JSON path expression ("$.user.id" or "user.id").
	JSONPath string

	// Regex is a pattern whose first capture group (or full match) is taken.
	Regex string

	// As is the variable name the extracted value is stored under.
	As string
}

// Extract applies the rule to the body and returns the captured value.
func Extract(body []byte, rule Rule) (string, error) {
	switch {
	case rule.JSONPath != "":
		return extractJSONPath(body, rule.JSONPath)
	case rule.Regex != "":
		return extractRegex(body, rule.Regex)
	default:
		return "", fmt.Errorf("capture %q: no JSONPath or regex configured", rule.As)
	}
}

// extractJSONPath resolves a value with gjson, accepting both $.field and
// bare field syntax. A bare "$" returns the whole document.
func extractJSONPath(body []byte, path string) (string, error) {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			path = "@this"
		}
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return "", fmt.Errorf("json path %q not found in response", path)
	}
	return result.String(), nil
}

// extractRegex returns the first capture group when the pattern has one,
// otherwise the full match.
func extractRegex(body []byte, pattern string) (string, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid capture pattern %q: %w", pattern, err)
	}

	match := regex.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("pattern %q not found in response", pattern)
	}
	if len(match) > 1 {
		return string(match[1]), nil
	}
	return string(match[0]), nil
}
