package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"name":                          "name",
		"name:exact":                    "name",
		"subject:Patient.name":          "subject",
		"patient.gender":                "patient",
		"_has:Observation:patient:code": "_has",
		"":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
}

func TestModifier(t *testing.T) {
	assert.Equal(t, "", modifier("code"))
	assert.Equal(t, "not", modifier("code:not"))
	assert.Equal(t, "Patient", modifier("subject:Patient.name"))
}

func TestSplitTokens(t *testing.T) {
	got := splitTokens("a, http://loinc.org|b,|c,,sys|")
	assert.Equal(t, []token{
		{code: "a"},
		{system: "http://loinc.org", hasSystem: true, code: "b"},
		{code: "c"},
		{system: "sys", hasSystem: true},
	}, got)
}

func TestParseQuery(t *testing.T) {
	got, err := ParseQuery("name=smith&code=http%3A%2F%2Floinc.org%7C8867-4&name=jones&flag")
	require.NoError(t, err)
	assert.Equal(t, []Param{
		{Name: "name", Value: "smith"},
		{Name: "code", Value: "http://loinc.org|8867-4"},
		{Name: "name", Value: "jones"},
		{Name: "flag", Value: ""},
	}, got)

	empty, err := ParseQuery("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseQuery("bad=%zz")
	assert.Error(t, err)
}

func TestFormatQuery(t *testing.T) {
	assert.Equal(t, "  name: smith\n  gender: female", FormatQuery(q("name", "smith", "gender", "female")))
	assert.Equal(t, "", FormatQuery(nil))
}
