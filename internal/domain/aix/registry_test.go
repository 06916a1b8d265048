package aix

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupOrder(t *testing.T) {
	reg, err := NewRegistry([]TemplateRecord{
		{ErrorCode: CodeNotFound, Template: "generic {resource_id}"},
		{ErrorCode: CodeNotFound, ResourceType: strPtr("Patient"), Template: "patient {resource_id}"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	rec, ok := reg.Lookup(CodeNotFound, strPtr("Patient"))
	require.True(t, ok)
	assert.Equal(t, "patient {resource_id}", rec.Template)

	rec, ok = reg.Lookup(CodeNotFound, strPtr("Observation"))
	require.True(t, ok)
	assert.Equal(t, "generic {resource_id}", rec.Template)

	rec, ok = reg.Lookup(CodeNotFound, nil)
	require.True(t, ok)
	assert.Nil(t, rec.ResourceType)

	_, ok = reg.Lookup(CodeInvalidType, strPtr("Patient"))
	assert.False(t, ok)
}

func TestRegistry_SpecificOnly(t *testing.T) {
	reg, err := NewRegistry([]TemplateRecord{
		{ErrorCode: CodeNotFound, ResourceType: strPtr("Patient"), Template: "patient {resource_id}"},
	})
	require.NoError(t, err)

	_, ok := reg.Lookup(CodeNotFound, strPtr("Encounter"))
	assert.False(t, ok)
	_, ok = reg.Lookup(CodeNotFound, nil)
	assert.False(t, ok)
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var reg *Registry
	_, ok := reg.Lookup(CodeNotFound, nil)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Records())
}

func TestNewRegistry_Rejects(t *testing.T) {
	tests := []struct {
		name string
		recs []TemplateRecord
		want string
	}{
		{"no code", []TemplateRecord{{Template: "x"}}, "error_code"},
		{"no template", []TemplateRecord{{ErrorCode: CodeNotFound}}, "template is required"},
		{"empty resource type", []TemplateRecord{{ErrorCode: CodeNotFound, ResourceType: strPtr(""), Template: "x"}}, "resource_type"},
		{"undeclared placeholder", []TemplateRecord{{ErrorCode: CodeNotFound, Template: "{patient_name} not found"}}, "patient_name"},
		{"undeclared in next steps", []TemplateRecord{{ErrorCode: CodeNotFound, Template: "x", NextSteps: "see {docs_url}"}}, "docs_url"},
		{"explicit list too narrow", []TemplateRecord{{ErrorCode: CodeNotFound, Template: "{resource_id}", Placeholders: []string{FieldResourceType}}}, "resource_id"},
		{"unknown code without declaration", []TemplateRecord{{ErrorCode: "custom", Template: "{x}"}}, "declare placeholders"},
		{"unterminated tag", []TemplateRecord{{ErrorCode: CodeNotFound, Template: "ID {resource_id"}}, "invalid template"},
		{"duplicate key", []TemplateRecord{
			{ErrorCode: CodeNotFound, ResourceType: strPtr("Patient"), Template: "a"},
			{ErrorCode: CodeNotFound, ResourceType: strPtr("Patient"), Template: "b"},
		}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.recs)
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, ErrInvalidTemplate)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegistry_Records(t *testing.T) {
	reg, err := NewRegistry([]TemplateRecord{
		{ErrorCode: CodeNotFound, ResourceType: strPtr("Patient"), Template: "p"},
		{ErrorCode: CodeInvalidType, Template: "t"},
		{ErrorCode: CodeNotFound, Template: "g"},
		{ErrorCode: CodeNotFound, ResourceType: strPtr("Encounter"), Template: "e"},
	})
	require.NoError(t, err)

	var got []string
	for _, r := range reg.Records() {
		got = append(got, r.String())
	}
	assert.Equal(t, []string{"invalid_type/*", "not_found/*", "not_found/Encounter", "not_found/Patient"}, got)
}

const templatesYAML = `
error_code: not_found
resource_type: Patient
template: "No patient with ID '{resource_id}' exists."
next_steps: "Search with /searchResource/Patient?name=..."
---
- error_code: invalid_type
  template: "'{resource_type}' is not a resource type this server knows."
- error_code: consent_required
  template: "Consent is required to read {resource_type}."
  placeholders: [resource_type]
`

func TestLoadRecordsYAML(t *testing.T) {
	recs, err := LoadRecordsYAML(strings.NewReader(templatesYAML))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, CodeNotFound, recs[0].ErrorCode)
	require.NotNil(t, recs[0].ResourceType)
	assert.Equal(t, "Patient", *recs[0].ResourceType)
	assert.Equal(t, "Search with /searchResource/Patient?name=...", recs[0].NextSteps)

	assert.Nil(t, recs[1].ResourceType)
	assert.Equal(t, []string{"resource_type"}, recs[2].Placeholders)

	reg, err := NewRegistry(recs)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())
}

func TestLoadRecordsYAML_Errors(t *testing.T) {
	_, err := LoadRecordsYAML(strings.NewReader("just a string"))
	assert.Error(t, err)

	_, err = LoadRecordsYAML(strings.NewReader("error_code: [unclosed"))
	assert.Error(t, err)

	recs, err := LoadRecordsYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBuildRegistry_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(templatesYAML), 0o600))

	reg, err := BuildRegistry(t.Context(), FileSource(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	_, err = BuildRegistry(t.Context(), FileSource(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate("{b} and {a} and { b }")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tpl.Placeholders())

	out, err := tpl.Execute(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, "2 and 1 and 2", out)

	_, err = tpl.Execute(map[string]string{"a": "1"})
	assert.Error(t, err)

	_, err = ParseTemplate("empty {} tag")
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	var none *Template
	assert.True(t, none.Empty())
	out, err = none.Execute(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
