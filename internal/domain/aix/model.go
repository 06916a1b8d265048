// Package aix renders every failure the proxy reports into one canonical
// error object, the AIX error response. Messages come from a registry of
// template records first and fall back to the built-in code definitions.
package aix

import (
	"strings"
)

// Code identifies an error kind.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeInvalidIDFormat     Code = "invalid_id_format"
	CodeInvalidType         Code = "invalid_type"
	CodeInvalidSearchParam  Code = "invalid_searchparam"
	CodeInvalidCode         Code = "invalid_code"
	CodeDuplicateParam      Code = "duplicate_param"
	CodeMissingParam        Code = "missing_param"
	CodeEmptyResult         Code = "empty_result"
	CodeUpstreamUnreachable Code = "upstream_unreachable"
	CodeUpstreamUnexpected  Code = "upstream_unexpected"
	CodeUnknownError        Code = "unknown_error"

	// CodeInvalid only appears on issues, for requests refused before any
	// check ran.
	CodeInvalid Code = "invalid"

	// CodeMissingRequiredContext is never rendered. It names the internal
	// defect reported by MissingContextError.
	CodeMissingRequiredContext Code = "missing_required_context"
)

// Label returns the short human label used in the error field:
// "not_found" becomes "Not found".
func (c Code) Label() string {
	s := strings.ToLower(strings.ReplaceAll(string(c), "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Severity of an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one diagnostic entry of an ErrorResponse.
type Issue struct {
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Severity    Severity `json:"severity"`
	Details     *string  `json:"details"`

	// Suggestions are the ranked alternatives behind the diagnostics. They
	// are already folded into Details and do not appear on the wire.
	Suggestions []string `json:"-"`
}

// NewIssue creates an issue without details.
func NewIssue(code Code, severity Severity, diagnostics string) Issue {
	return Issue{Code: string(code), Diagnostics: diagnostics, Severity: severity}
}

// WithDetails returns a copy of i carrying details.
func (i Issue) WithDetails(details string) Issue {
	i.Details = &details
	return i
}

// WithSuggestions returns a copy of i carrying suggestions. Details are set
// to "suggestions: a, b" unless the list is empty.
func (i Issue) WithSuggestions(suggestions []string) Issue {
	i.Suggestions = append([]string(nil), suggestions...)
	if len(suggestions) == 0 {
		return i
	}
	return i.WithDetails("suggestions: " + strings.Join(suggestions, ", "))
}

// ErrorResponse is the AIX error wire object. Field order and nullability
// are part of the contract with clients.
type ErrorResponse struct {
	Error           string  `json:"error"`
	FriendlyMessage string  `json:"friendly_message"`
	NextSteps       *string `json:"next_steps"`
	ResourceType    *string `json:"resource_type"`
	ResourceID      *string `json:"resource_id"`
	StatusCode      int     `json:"status_code"`
	Issues          []Issue `json:"issues"`
}
