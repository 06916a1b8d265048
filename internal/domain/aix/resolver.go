package aix

// Resolution is the message a resolver found for a code.
type Resolution struct {
	Template  *Template
	NextSteps *Template
	// Required are the fields the render call must supply.
	Required []string
	// Source names where the message came from, for logs.
	Source string
}

// Resolver finds the message for an error code.
type Resolver interface {
	Resolve(code Code, resourceType *string) (Resolution, bool)
}

// RegistryResolver resolves from template records, resource specific first.
type RegistryResolver struct {
	Registry *Registry
}

func (r RegistryResolver) Resolve(code Code, resourceType *string) (Resolution, bool) {
	c, ok := r.Registry.lookup(code, resourceType)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Template:  c.template,
		NextSteps: c.nextSteps,
		Required:  c.required,
		Source:    "registry:" + c.record.String(),
	}, true
}

// DefinitionResolver resolves from the built-in code definitions.
type DefinitionResolver struct{}

func (DefinitionResolver) Resolve(code Code, _ *string) (Resolution, bool) {
	d, ok := LookupDefinition(code)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Template:  d.Template,
		NextSteps: d.NextSteps,
		Required:  d.Required,
		Source:    "definition:" + string(code),
	}, true
}

// Chain tries each resolver in order; the first hit wins.
type Chain []Resolver

func (c Chain) Resolve(code Code, resourceType *string) (Resolution, bool) {
	for _, r := range c {
		if res, ok := r.Resolve(code, resourceType); ok {
			return res, true
		}
	}
	return Resolution{}, false
}
