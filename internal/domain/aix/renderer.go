package aix

import (
	"fmt"
)

// Renderer turns an error code, status, context and issues into an
// ErrorResponse. It is immutable and safe for concurrent use.
type Renderer struct {
	resolver Resolver
}

// NewRenderer creates a Renderer that consults reg before the built-in
// definitions. reg may be nil.
func NewRenderer(reg *Registry) *Renderer {
	return NewRendererWithResolver(Chain{RegistryResolver{Registry: reg}, DefinitionResolver{}})
}

// NewRendererWithResolver creates a Renderer over an explicit resolver.
func NewRendererWithResolver(r Resolver) *Renderer {
	return &Renderer{resolver: r}
}

// Render builds the response for code. Issues are passed through exactly
// as given. It fails with *MissingContextError when data lacks a field the
// selected message requires (an empty value counts as missing), with ErrNoIssues when status >= 400 and no
// issue is given, and with ErrUnknownCode when nothing resolves code.
func (r *Renderer) Render(code Code, status int, data ErrorData, issues []Issue) (*ErrorResponse, error) {
	if status >= 400 && len(issues) == 0 {
		return nil, fmt.Errorf("%w: %s (%d)", ErrNoIssues, code, status)
	}

	var fields map[string]string
	if data != nil {
		fields = data.Fields()
	}
	resourceType := optional(fields, FieldResourceType)

	res, ok := r.resolver.Resolve(code, resourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}

	needed := union(res.Required, union(res.Template.Placeholders(), res.NextSteps.Placeholders()))
	var missing []string
	for _, name := range needed {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingContextError{Code: code, Fields: missing}
	}

	msg, err := res.Template.Execute(fields)
	if err != nil {
		return nil, fmt.Errorf("aix: render %s: %w", code, err)
	}
	next, err := res.NextSteps.Execute(fields)
	if err != nil {
		return nil, fmt.Errorf("aix: render %s: %w", code, err)
	}

	resp := &ErrorResponse{
		Error:           code.Label(),
		FriendlyMessage: msg,
		ResourceType:    resourceType,
		ResourceID:      optional(fields, FieldResourceID),
		StatusCode:      status,
		Issues:          append(make([]Issue, 0, len(issues)), issues...),
	}
	if next != "" {
		resp.NextSteps = &next
	}
	return resp, nil
}

// optional returns a pointer to fields[key], or nil when absent or empty.
func optional(fields map[string]string, key string) *string {
	v, ok := fields[key]
	if !ok || v == "" {
		return nil
	}
	return &v
}
