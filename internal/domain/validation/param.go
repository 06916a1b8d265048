package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// Param is one query parameter as received, in request order.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseQuery parses a raw query string ("name=smith&gender=female") into
// Params, keeping the order they were written in.
func ParseQuery(raw string) ([]Param, error) {
	var out []Param
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("query parameter %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("query value for %q: %w", name, err)
		}
		out = append(out, Param{Name: name, Value: value})
	}
	return out, nil
}

// BaseName strips a modifier (":exact", ":Patient") and a chain (".name")
// from a parameter name: "subject:Patient.name" becomes "subject".
func BaseName(name string) string {
	if i := strings.IndexAny(name, ":."); i >= 0 {
		return name[:i]
	}
	return name
}

// modifier returns the modifier of name, if any: "code:not" gives "not".
func modifier(name string) string {
	_, mod, ok := strings.Cut(name, ":")
	if !ok {
		return ""
	}
	if i := strings.Index(mod, "."); i >= 0 {
		mod = mod[:i]
	}
	return mod
}

// token is one code in a token search value.
type token struct {
	system    string
	hasSystem bool
	code      string
}

// splitTokens splits a token search value on commas, honoring the
// "system|code" form.
func splitTokens(value string) []token {
	var out []token
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if sys, code, ok := strings.Cut(part, "|"); ok {
			out = append(out, token{system: sys, hasSystem: sys != "", code: code})
			continue
		}
		out = append(out, token{code: part})
	}
	return out
}

// FormatQuery renders params one per line as "  name: value", the form
// echoed back in empty-result guidance.
func FormatQuery(params []Param) string {
	lines := make([]string, len(params))
	for i, p := range params {
		lines[i] = "  " + p.Name + ": " + p.Value
	}
	return strings.Join(lines, "\n")
}
