package aix

import (
	"strconv"
	"strings"
)

// Placeholder names shared by the payloads and the templates.
const (
	FieldResourceType    = "resource_type"
	FieldResourceID      = "resource_id"
	FieldExpectedFormat  = "expected_id_format"
	FieldSupportedTypes  = "supported_types"
	FieldParams          = "params"
	FieldSupportedParams = "supported_params"
	FieldParam           = "param"
	FieldSystem          = "system"
	FieldCodes           = "codes"
	FieldQuery           = "query"
	FieldReason          = "reason"
	FieldUpstreamStatus  = "upstream_status"
	FieldDiagnostics     = "diagnostics"
)

// ErrorData is the context of one render call. Each payload exposes
// exactly the fields its error kind needs; Fields is the open form used by
// registry-only codes.
type ErrorData interface {
	Fields() map[string]string
}

// Fields is a free-form payload.
type Fields map[string]string

func (f Fields) Fields() map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// NotFound is the payload of not_found.
type NotFound struct {
	ResourceType string
	ResourceID   string
}

func (d NotFound) Fields() map[string]string {
	return map[string]string{FieldResourceType: d.ResourceType, FieldResourceID: d.ResourceID}
}

// InvalidIDFormat is the payload of invalid_id_format.
type InvalidIDFormat struct {
	ResourceType   string
	ResourceID     string
	ExpectedFormat string
}

func (d InvalidIDFormat) Fields() map[string]string {
	return map[string]string{
		FieldResourceType:   d.ResourceType,
		FieldResourceID:     d.ResourceID,
		FieldExpectedFormat: d.ExpectedFormat,
	}
}

// InvalidType is the payload of invalid_type.
type InvalidType struct {
	ResourceType   string
	SupportedTypes []string
}

func (d InvalidType) Fields() map[string]string {
	return map[string]string{
		FieldResourceType:   d.ResourceType,
		FieldSupportedTypes: joinList(d.SupportedTypes),
	}
}

// InvalidSearchParam is the payload of invalid_searchparam.
type InvalidSearchParam struct {
	ResourceType    string
	Params          []string
	SupportedParams []string
}

func (d InvalidSearchParam) Fields() map[string]string {
	return map[string]string{
		FieldResourceType:    d.ResourceType,
		FieldParams:          quoteList(d.Params),
		FieldSupportedParams: joinList(d.SupportedParams),
	}
}

// InvalidCode is the payload of invalid_code.
type InvalidCode struct {
	ResourceType string
	Param        string
	System       string
	Codes        []string
}

func (d InvalidCode) Fields() map[string]string {
	return map[string]string{
		FieldResourceType: d.ResourceType,
		FieldParam:        d.Param,
		FieldSystem:       d.System,
		FieldCodes:        quoteList(d.Codes),
	}
}

// DuplicateParam is the payload of duplicate_param.
type DuplicateParam struct {
	ResourceType string
	Params       []string
}

func (d DuplicateParam) Fields() map[string]string {
	return map[string]string{FieldResourceType: d.ResourceType, FieldParams: quoteList(d.Params)}
}

// MissingParam is the payload of missing_param.
type MissingParam struct {
	ResourceType string
}

func (d MissingParam) Fields() map[string]string {
	return map[string]string{FieldResourceType: d.ResourceType}
}

// EmptyResult is the payload of empty_result. Query is the echoed search,
// one "name: value" line per parameter.
type EmptyResult struct {
	ResourceType string
	Query        string
}

func (d EmptyResult) Fields() map[string]string {
	return map[string]string{FieldResourceType: d.ResourceType, FieldQuery: d.Query}
}

// UpstreamUnreachable is the payload of upstream_unreachable.
type UpstreamUnreachable struct {
	ResourceType string
	Reason       string
}

func (d UpstreamUnreachable) Fields() map[string]string {
	return map[string]string{FieldResourceType: d.ResourceType, FieldReason: d.Reason}
}

// UpstreamUnexpected is the payload of upstream_unexpected. ResourceID is
// optional.
type UpstreamUnexpected struct {
	ResourceType string
	ResourceID   string
	Status       int
}

func (d UpstreamUnexpected) Fields() map[string]string {
	f := map[string]string{
		FieldResourceType:   d.ResourceType,
		FieldUpstreamStatus: strconv.Itoa(d.Status),
	}
	if d.ResourceID != "" {
		f[FieldResourceID] = d.ResourceID
	}
	return f
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return strings.Join(quoted, ", ")
}
