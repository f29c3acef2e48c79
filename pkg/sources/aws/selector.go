package aws

import (
	"fmt"
	"strings"
)

// Matchers are label equality constraints from a series selector
type Matchers map[string]string

// Matches reports whether every matcher is satisfied by labels
func (m Matchers) Matches(labels map[string]string) bool {
	for key, want := range m {
		if labels[key] != want {
			return false
		}
	}
	return true
}

// ParseSelector splits `name{key="value",...}` into a metric name and
// equality matchers. Only the equality operator is understood.
func ParseSelector(query string) (string, Matchers, error) {
	query = strings.TrimSpace(query)
	open := strings.IndexByte(query, '{')
	if open < 0 {
		if query == "" {
			return "", nil, fmt.Errorf("empty selector")
		}
		return query, Matchers{}, nil
	}

	if !strings.HasSuffix(query, "}") {
		return "", nil, fmt.Errorf("unterminated selector %q", query)
	}

	name := strings.TrimSpace(query[:open])
	body := strings.TrimSpace(query[open+1 : len(query)-1])
	matchers := Matchers{}
	if body == "" {
		return name, matchers, nil
	}

	for _, part := range strings.Split(body, ",") {
		key, value, found := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !found || key == "" || strings.HasSuffix(key, "!") || strings.HasPrefix(value, "~") {
			return "", nil, fmt.Errorf("unsupported matcher %q in %q", part, query)
		}
		if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
			return "", nil, fmt.Errorf("matcher value must be quoted in %q", part)
		}
		matchers[key] = value[1 : len(value)-1]
	}

	return name, matchers, nil
}
