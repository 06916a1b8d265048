package aix

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingContext matches every *MissingContextError.
	ErrMissingContext = errors.New("aix: missing required context")
	// ErrNoIssues is returned when a failure status is rendered without
	// any issue.
	ErrNoIssues = errors.New("aix: status >= 400 requires at least one issue")
	// ErrUnknownCode is returned when neither the registry nor the code
	// definitions know the error code.
	ErrUnknownCode = errors.New("aix: unknown error code")
	// ErrInvalidTemplate is returned for records that fail load-time checks.
	ErrInvalidTemplate = errors.New("aix: invalid template record")
)

// MissingContextError reports a render call that did not supply a field
// the selected template requires. It is a programming error in the caller.
type MissingContextError struct {
	Code   Code
	Fields []string
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("%s: rendering %s: missing %s",
		CodeMissingRequiredContext, e.Code, strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrMissingContext.
func (e *MissingContextError) Is(target error) bool {
	return target == ErrMissingContext
}
