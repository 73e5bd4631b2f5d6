package spec

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Placeholders use the form ${name}. Names are restricted to word
// characters so stray dollar signs in URLs pass through untouched.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// ResolveInline re-applies defaults and validation to a stored TASK spec.
// The stored spec is the result verbatim; this is a round-trip check, not
// a transformation.
func ResolveInline(s CrawlSpec) (CrawlSpec, error) {
	s = s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return CrawlSpec{}, err
	}
	return s, nil
}

// ResolveTemplate serializes a service's spec template, substitutes every
// ${name} placeholder with the caller-supplied value for that name
// (falling back to the declared default, or the empty string), then
// re-parses and validates the result. A substitution that leaves
// structurally invalid JSON surfaces as ErrInvalid rather than passing
// silently.
func ResolveTemplate(template CrawlSpec, declared []Param, values map[string]string) (CrawlSpec, error) {
	raw, err := json.Marshal(template)
	if err != nil {
		return CrawlSpec{}, fmt.Errorf("marshal spec template: %w", err)
	}

	defaults := make(map[string]string, len(declared))
	for _, p := range declared {
		defaults[p.Name] = p.Default
	}

	substituted := placeholderPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := string(placeholderPattern.FindSubmatch(match)[1])
		value, ok := values[name]
		if !ok {
			value = defaults[name]
		}
		return escapeForJSONString(value)
	})

	return Parse(substituted)
}

// escapeForJSONString encodes value for splicing into a JSON string
// literal: marshal it and strip the surrounding quotes.
func escapeForJSONString(value string) []byte {
	quoted, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return quoted[1 : len(quoted)-1]
}
