package aix

import (
	"fmt"
	"sort"
)

// Definition is the built-in message of one error code. Required lists the
// fields a render call must supply; it covers every placeholder used.
type Definition struct {
	Template  *Template
	NextSteps *Template
	Required  []string
}

func define(template, nextSteps string, required ...string) Definition {
	d := Definition{Template: mustParse(template), Required: required}
	if nextSteps != "" {
		d.NextSteps = mustParse(nextSteps)
	}
	return d
}

var definitions = map[Code]Definition{
	CodeNotFound: define(
		"No {resource_type} resource was found with ID '{resource_id}'.",
		"Try searching for the {resource_type} using /searchResource.",
		FieldResourceType, FieldResourceID,
	),
	CodeInvalidIDFormat: define(
		"The ID '{resource_id}' is not valid for resource type '{resource_type}'.",
		"Check the format of '{resource_id}' and try again. Expected format: {expected_id_format}.",
		FieldResourceType, FieldResourceID, FieldExpectedFormat,
	),
	CodeInvalidType: define(
		"Resource type '{resource_type}' is not supported.",
		"Check the spelling or refer to the list of supported resource types.",
		FieldResourceType,
	),
	CodeInvalidSearchParam: define(
		"Parameter(s) {params} are not supported for resource '{resource_type}'.",
		"Supported search parameters for '{resource_type}': {supported_params}. Correct any typos or use one of these parameters.",
		FieldResourceType, FieldParams, FieldSupportedParams,
	),
	CodeInvalidCode: define(
		"Code(s) {codes} for parameter '{param}' are not recognized in {system}.",
		"Use a {system} code for '{param}' when searching {resource_type}. Close matches are listed in the issues.",
		FieldResourceType, FieldParam, FieldSystem, FieldCodes,
	),
	CodeDuplicateParam: define(
		"Parameter(s) {params} were provided more than once for resource '{resource_type}'.",
		"Provide each search parameter once. Alternative values can be combined with a comma, e.g. code=a,b.",
		FieldResourceType, FieldParams,
	),
	CodeMissingParam: define(
		"No query parameters were provided for resource '{resource_type}'. At least one search parameter is required.",
		"Specify at least one valid search parameter for '{resource_type}'. See /supportedParams/{resource_type} for the list.",
		FieldResourceType,
	),
	CodeEmptyResult: define(
		"No {resource_type} resources matched your search criteria.",
		"Double-check the search parameters you used:\n\n{query}\n\nIf this was not your intent, try adjusting the search parameters. See below for supported parameters.",
		FieldResourceType, FieldQuery,
	),
	CodeUpstreamUnreachable: define(
		"The FHIR server could not be reached while handling the {resource_type} request.",
		"Retry the request shortly. If the problem persists the FHIR server may be down ({reason}).",
		FieldResourceType, FieldReason,
	),
	CodeUpstreamUnexpected: define(
		"The FHIR server returned an unexpected HTTP {upstream_status} response for {resource_type}.",
		"See the issues for the server's diagnostics. Retry the request or contact the server administrator if it keeps failing.",
		FieldResourceType, FieldUpstreamStatus,
	),
	CodeUnknownError: define("An error occurred.", ""),
}

func init() {
	for code, def := range definitions {
		if err := checkDeclared(def.Template, def.Required); err != nil {
			panic(fmt.Sprintf("aix: definition %s: %v", code, err))
		}
		if err := checkDeclared(def.NextSteps, def.Required); err != nil {
			panic(fmt.Sprintf("aix: definition %s: %v", code, err))
		}
	}
}

// LookupDefinition returns the built-in definition of code.
func LookupDefinition(code Code) (Definition, bool) {
	d, ok := definitions[code]
	return d, ok
}

// Codes returns every code with a built-in definition, sorted.
func Codes() []Code {
	out := make([]Code, 0, len(definitions))
	for c := range definitions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// checkDeclared fails if t uses a placeholder outside declared.
func checkDeclared(t *Template, declared []string) error {
	allowed := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		allowed[d] = struct{}{}
	}
	var undeclared []string
	for _, p := range t.Placeholders() {
		if _, ok := allowed[p]; !ok {
			undeclared = append(undeclared, p)
		}
	}
	if len(undeclared) > 0 {
		return fmt.Errorf("%w: undeclared placeholder(s) %v in %q", ErrInvalidTemplate, undeclared, t.String())
	}
	return nil
}
