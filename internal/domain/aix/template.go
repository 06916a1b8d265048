package aix

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	tagStart = "{"
	tagEnd   = "}"
)

// Template is a parsed message with {name} placeholders.
type Template struct {
	raw          string
	tpl          *fasttemplate.Template
	placeholders []string
}

// ParseTemplate parses s. An unterminated tag is an error.
func ParseTemplate(s string) (*Template, error) {
	tpl, err := fasttemplate.NewTemplate(s, tagStart, tagEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, s, err)
	}

	seen := make(map[string]struct{})
	var names []string
	tpl.ExecuteFuncString(func(_ io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
		return 0, nil
	})
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: %q: empty placeholder", ErrInvalidTemplate, s)
		}
	}
	sort.Strings(names)

	return &Template{raw: s, tpl: tpl, placeholders: names}, nil
}

func mustParse(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the unparsed template.
func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.raw
}

// Empty reports whether the template renders nothing.
func (t *Template) Empty() bool { return t == nil || t.raw == "" }

// Placeholders returns the sorted distinct placeholder names.
func (t *Template) Placeholders() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.placeholders...)
}

// Execute substitutes every placeholder from fields. A placeholder with no
// field fails the whole call; no partial output is returned.
func (t *Template) Execute(fields map[string]string) (string, error) {
	if t.Empty() {
		return "", nil
	}
	return t.tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		v, ok := fields[name]
		if !ok {
			return 0, fmt.Errorf("placeholder %q has no value", name)
		}
		return w.Write([]byte(v))
	})
}
