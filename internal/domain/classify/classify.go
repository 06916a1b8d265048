// Package classify tells an ordinary search result from a soft empty one: a
// successful search whose Bundle matched nothing. Soft empty results keep
// their body and status; they only gain guidance for the caller.
package classify

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/validation"
)

// Kind of a classified search result.
type Kind int

const (
	Normal Kind = iota
	SoftEmpty
)

func (k Kind) String() string {
	if k == SoftEmpty {
		return "soft_empty"
	}
	return "normal"
}

// Guidance is attached to a soft empty result.
type Guidance struct {
	FriendlyMessage string             `json:"friendly_message"`
	NextSteps       string             `json:"next_steps"`
	Issues          []aix.Issue        `json:"issues"`
	SupportedParams []capability.Param `json:"supported_params"`
}

// Classification is the outcome of Classify. Guidance is set only for
// SoftEmpty.
type Classification struct {
	Kind     Kind
	Guidance *Guidance
}

// Classifier is bound to one capability index and renderer.
type Classifier struct {
	index    *capability.SearchIndex
	renderer *aix.Renderer
}

// New creates a Classifier.
func New(index *capability.SearchIndex, renderer *aix.Renderer) *Classifier {
	return &Classifier{index: index, renderer: renderer}
}

type bundlePeek struct {
	ResourceType string            `json:"resourceType"`
	Entry        []json.RawMessage `json:"entry"`
}

// IsEmptyBundle reports whether body is a Bundle with no entries.
func IsEmptyBundle(body []byte) bool {
	var b bundlePeek
	if err := json.Unmarshal(body, &b); err != nil {
		return false
	}
	return b.ResourceType == "Bundle" && len(b.Entry) == 0
}

// Classify inspects the body of a successful search. The body is never
// modified. An error means the guidance message could not be rendered.
func (c *Classifier) Classify(resourceType string, params []validation.Param, body []byte) (Classification, error) {
	if !IsEmptyBundle(body) {
		return Classification{Kind: Normal}, nil
	}

	issue := aix.NewIssue(aix.CodeEmptyResult, aix.SeverityWarning,
		fmt.Sprintf("The %s search completed but matched no resources.", resourceType))
	resp, err := c.renderer.Render(aix.CodeEmptyResult, 200,
		aix.EmptyResult{ResourceType: resourceType, Query: queryText(params)}, []aix.Issue{issue})
	if err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", resourceType, err)
	}

	supported := c.SupportedParams(resourceType)
	var next strings.Builder
	if resp.NextSteps != nil {
		next.WriteString(*resp.NextSteps)
		next.WriteString("\n\n")
	}
	fmt.Fprintf(&next, "Supported search parameters for '%s':\n\n%s", resourceType, MarkdownTable(supported))

	return Classification{
		Kind: SoftEmpty,
		Guidance: &Guidance{
			FriendlyMessage: resp.FriendlyMessage,
			NextSteps:       next.String(),
			Issues:          resp.Issues,
			SupportedParams: supported,
		},
	}, nil
}

// SupportedParams returns the parameters declared for resourceType, or the
// server-wide ones when the type declares none.
func (c *Classifier) SupportedParams(resourceType string) []capability.Param {
	if ps := c.index.SupportedParams(resourceType); len(ps) > 0 {
		return ps
	}
	return c.index.GlobalParams()
}

func queryText(params []validation.Param) string {
	if len(params) == 0 {
		return "  (no parameters)"
	}
	return validation.FormatQuery(params)
}

// MarkdownTable renders params as a markdown table with the columns name,
// type, documentation and example.
func MarkdownTable(params []capability.Param) string {
	var b strings.Builder
	b.WriteString("| name | type | documentation | example |\n")
	b.WriteString("| --- | --- | --- | --- |")
	for _, p := range params {
		fmt.Fprintf(&b, "\n| %s | %s | %s | %s |", cell(p.Name), cell(p.Type), cell(p.Documentation), cell(p.Example))
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// Merge returns body with the guidance fields added at the top level. The
// Bundle's own fields, entry and resourceType included, are kept as they
// are.
func (g *Guidance) Merge(body []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("merge guidance: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("merge guidance: body is not a JSON object")
	}

	add := func(key string, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("merge guidance %s: %w", key, err)
		}
		doc[key] = raw
		return nil
	}
	if err := add("friendly_message", g.FriendlyMessage); err != nil {
		return nil, err
	}
	if err := add("next_steps", g.NextSteps); err != nil {
		return nil, err
	}
	if err := add("issues", g.Issues); err != nil {
		return nil, err
	}
	if err := add("supported_params", g.SupportedParams); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
