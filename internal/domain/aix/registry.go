package aix

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// TemplateRecord is a registry-based message for an error code, optionally
// narrowed to one resource type. A nil ResourceType is the generic record.
//
// Placeholders declares the fields the record may use. When empty, the
// fields required by the code's built-in definition are assumed.
type TemplateRecord struct {
	ErrorCode    Code     `yaml:"error_code" json:"error_code"`
	ResourceType *string  `yaml:"resource_type,omitempty" json:"resource_type"`
	Template     string   `yaml:"template" json:"template"`
	NextSteps    string   `yaml:"next_steps,omitempty" json:"next_steps,omitempty"`
	Placeholders []string `yaml:"placeholders,omitempty" json:"placeholders,omitempty"`
}

func (r TemplateRecord) key() registryKey {
	k := registryKey{code: r.ErrorCode}
	if r.ResourceType != nil {
		k.resourceType = *r.ResourceType
		k.specific = true
	}
	return k
}

func (r TemplateRecord) String() string {
	if r.ResourceType == nil {
		return fmt.Sprintf("%s/*", r.ErrorCode)
	}
	return fmt.Sprintf("%s/%s", r.ErrorCode, *r.ResourceType)
}

type registryKey struct {
	code         Code
	resourceType string
	specific     bool
}

type compiledRecord struct {
	record    TemplateRecord
	template  *Template
	nextSteps *Template
	// required is every placeholder the two templates use.
	required []string
}

// Registry is the read-only table of template records. A nil *Registry is
// an empty registry.
type Registry struct {
	records map[registryKey]*compiledRecord
}

// NewRegistry validates and indexes records. It rejects the whole set if
// any record is malformed, uses an undeclared placeholder, or repeats a
// (code, resource type) key.
func NewRegistry(records []TemplateRecord) (*Registry, error) {
	reg := &Registry{records: make(map[registryKey]*compiledRecord, len(records))}
	for i, rec := range records {
		c, err := compileRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, rec, err)
		}
		k := rec.key()
		if _, dup := reg.records[k]; dup {
			return nil, fmt.Errorf("%w: duplicate record %s", ErrInvalidTemplate, rec)
		}
		reg.records[k] = c
	}
	return reg, nil
}

func compileRecord(rec TemplateRecord) (*compiledRecord, error) {
	if rec.ErrorCode == "" {
		return nil, fmt.Errorf("%w: error_code is required", ErrInvalidTemplate)
	}
	if rec.ResourceType != nil && *rec.ResourceType == "" {
		return nil, fmt.Errorf("%w: resource_type must be omitted or non-empty", ErrInvalidTemplate)
	}
	if rec.Template == "" {
		return nil, fmt.Errorf("%w: template is required", ErrInvalidTemplate)
	}

	declared := rec.Placeholders
	if len(declared) == 0 {
		def, ok := LookupDefinition(rec.ErrorCode)
		if !ok {
			return nil, fmt.Errorf("%w: code %s has no built-in fields; declare placeholders", ErrInvalidTemplate, rec.ErrorCode)
		}
		declared = def.Required
	}

	tpl, err := ParseTemplate(rec.Template)
	if err != nil {
		return nil, err
	}
	var next *Template
	if rec.NextSteps != "" {
		if next, err = ParseTemplate(rec.NextSteps); err != nil {
			return nil, err
		}
	}
	if err := checkDeclared(tpl, declared); err != nil {
		return nil, err
	}
	if err := checkDeclared(next, declared); err != nil {
		return nil, err
	}

	return &compiledRecord{
		record:    rec,
		template:  tpl,
		nextSteps: next,
		required:  union(tpl.Placeholders(), next.Placeholders()),
	}, nil
}

// Lookup returns the record for (code, resourceType), falling back to the
// generic record for code.
func (r *Registry) Lookup(code Code, resourceType *string) (TemplateRecord, bool) {
	c, ok := r.lookup(code, resourceType)
	if !ok {
		return TemplateRecord{}, false
	}
	return c.record, true
}

func (r *Registry) lookup(code Code, resourceType *string) (*compiledRecord, bool) {
	if r == nil {
		return nil, false
	}
	if resourceType != nil {
		if c, ok := r.records[registryKey{code: code, resourceType: *resourceType, specific: true}]; ok {
			return c, true
		}
	}
	c, ok := r.records[registryKey{code: code}]
	return c, ok
}

// Len returns the number of records.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.records)
}

// Records returns all records ordered by code, generic first, then by
// resource type.
func (r *Registry) Records() []TemplateRecord {
	if r == nil {
		return nil
	}
	out := make([]TemplateRecord, 0, len(r.records))
	for _, c := range r.records {
		out = append(out, c.record)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key(), out[j].key()
		if a.code != b.code {
			return a.code < b.code
		}
		if a.specific != b.specific {
			return !a.specific
		}
		return a.resourceType < b.resourceType
	})
	return out
}

func union(a, b []string) []string {
	set := mapset.NewThreadUnsafeSet[string](a...)
	set.Append(b...)
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
