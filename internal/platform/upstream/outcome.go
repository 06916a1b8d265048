package upstream

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// OutcomeIssue is one OperationOutcome.issue.
type OutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
	Details     *struct {
		Text string `json:"text,omitempty"`
	} `json:"details,omitempty"`
}

// Text returns the diagnostics, else the details text.
func (i OutcomeIssue) Text() string {
	if i.Diagnostics != "" {
		return i.Diagnostics
	}
	if i.Details != nil {
		return i.Details.Text
	}
	return ""
}

// Outcome is the part of a FHIR OperationOutcome the proxy reads.
type Outcome struct {
	ResourceType string         `json:"resourceType"`
	Issue        []OutcomeIssue `json:"issue"`
}

// ParseOutcome decodes body as an OperationOutcome. It reports false for
// anything else, including an outcome without issues.
func ParseOutcome(body []byte) (*Outcome, bool) {
	var o Outcome
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, false
	}
	if o.ResourceType != "OperationOutcome" || len(o.Issue) == 0 {
		return nil, false
	}
	return &o, true
}

// HasCode reports whether any issue carries one of codes.
func (o *Outcome) HasCode(codes ...string) bool {
	for _, is := range o.Issue {
		for _, c := range codes {
			if is.Code == c {
				return true
			}
		}
	}
	return false
}

// Diagnostics joins the text of every issue.
func (o *Outcome) Diagnostics() string {
	var parts []string
	for _, is := range o.Issue {
		if t := is.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; ")
}

// hopByHop are the headers a proxy must not forward (RFC 7230 6.1), plus
// those recomputed for the rewritten body.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
	"Content-Encoding":    {},
}

// ForwardHeaders returns the end-to-end headers of h.
func ForwardHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if _, skip := hopByHop[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
