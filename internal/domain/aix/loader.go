package aix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRecordsYAML reads template records from a YAML stream. Each document
// is either one record or a list of records.
//
//	error_code: not_found
//	resource_type: Patient
//	template: "No patient with ID '{resource_id}' exists."
//	next_steps: "Search with /searchResource/Patient?name=..."
func LoadRecordsYAML(r io.Reader) ([]TemplateRecord, error) {
	dec := yaml.NewDecoder(r)

	var out []TemplateRecord
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("templates document %d: %w", doc, err)
		}
		if len(node.Content) == 0 {
			continue
		}

		root := node.Content[0]
		switch root.Kind {
		case yaml.SequenceNode:
			var recs []TemplateRecord
			if err := root.Decode(&recs); err != nil {
				return nil, fmt.Errorf("templates document %d: %w", doc, err)
			}
			out = append(out, recs...)
		case yaml.MappingNode:
			var rec TemplateRecord
			if err := root.Decode(&rec); err != nil {
				return nil, fmt.Errorf("templates document %d: %w", doc, err)
			}
			out = append(out, rec)
		default:
			return nil, fmt.Errorf("templates document %d: expected a record or a list of records", doc)
		}
	}
	return out, nil
}

// LoadRecordsFile reads template records from a YAML file.
func LoadRecordsFile(path string) ([]TemplateRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates: %w", err)
	}
	defer f.Close()
	return LoadRecordsYAML(f)
}

// TemplateSource lists template records from a store.
type TemplateSource interface {
	ListTemplates(ctx context.Context) ([]TemplateRecord, error)
}

// BuildRegistry gathers records from every source, in order, and builds one
// Registry from them. Nil sources are skipped.
func BuildRegistry(ctx context.Context, sources ...TemplateSource) (*Registry, error) {
	var all []TemplateRecord
	for _, src := range sources {
		if src == nil {
			continue
		}
		recs, err := src.ListTemplates(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return NewRegistry(all)
}

// FileSource is a TemplateSource backed by a YAML file.
type FileSource string

func (f FileSource) ListTemplates(context.Context) ([]TemplateRecord, error) {
	return LoadRecordsFile(string(f))
}
