// Package proxy validates read and search requests, forwards the valid ones
// to the FHIR server and turns every failure into an AIX error response.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/classify"
	"github.com/fhirnudge/nudge/internal/domain/snapshot"
	"github.com/fhirnudge/nudge/internal/domain/validation"
	"github.com/fhirnudge/nudge/internal/platform/upstream"
)

// Upstream is the FHIR server as seen by the proxy.
type Upstream interface {
	Read(ctx context.Context, resourceType, id string) (*upstream.Response, error)
	Search(ctx context.Context, resourceType string, query url.Values) (*upstream.Response, error)
}

// OperationOutcome issue codes that mean the server rejected the query
// itself rather than failing.
var queryRejectedCodes = []string{"invalid", "value", "not-supported", "unknown", "processing"}

// Result is what the proxy answers with: either a forwarded body or an AIX
// error.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
	Error  *aix.ErrorResponse
	Code   aix.Code
	// Kind is set for successful searches.
	Kind classify.Kind
}

// Service holds no state of its own; every request works against the
// snapshot current when it started.
type Service struct {
	store           *snapshot.Store
	up              Upstream
	softEmptyStatus int
	logger          zerolog.Logger
}

// NewService creates a Service. softEmptyStatus is the status answered for
// searches that matched nothing; 0 means 200.
func NewService(store *snapshot.Store, up Upstream, softEmptyStatus int, logger zerolog.Logger) *Service {
	if softEmptyStatus == 0 {
		softEmptyStatus = http.StatusOK
	}
	return &Service{store: store, up: up, softEmptyStatus: softEmptyStatus, logger: logger}
}

func (s *Service) current() (*snapshot.Snapshot, error) {
	snap := s.store.Load()
	if snap == nil {
		return nil, snapshot.ErrNotReady
	}
	return snap, nil
}

// Read validates and forwards a read of resourceType/id.
func (s *Service) Read(ctx context.Context, resourceType, id string) (*Result, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if res := snap.Validator.ValidateRead(resourceType, id); !res.Valid() {
		return s.render(snap, res.Code, http.StatusBadRequest, res.Data, res.Issues)
	}

	resp, err := s.up.Read(ctx, resourceType, id)
	if err != nil {
		return s.unreachable(snap, resourceType, err)
	}
	if resp.OK() {
		return &Result{Status: resp.StatusCode, Header: upstream.ForwardHeaders(resp.Header), Body: resp.Body}, nil
	}
	return s.upstreamFailure(snap, resourceType, id, nil, resp)
}

// Search validates and forwards a search. Searches that match nothing keep
// their Bundle and gain guidance.
func (s *Service) Search(ctx context.Context, resourceType string, params []validation.Param) (*Result, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if res := snap.Validator.Validate(resourceType, params); !res.Valid() {
		return s.render(snap, res.Code, http.StatusBadRequest, res.Data, res.Issues)
	}

	query := make(url.Values, len(params))
	for _, p := range params {
		query.Add(p.Name, p.Value)
	}
	resp, err := s.up.Search(ctx, resourceType, query)
	if err != nil {
		return s.unreachable(snap, resourceType, err)
	}
	if !resp.OK() {
		return s.upstreamFailure(snap, resourceType, "", params, resp)
	}

	cls, err := snap.Classifier.Classify(resourceType, params, resp.Body)
	if err != nil {
		return nil, err
	}
	out := &Result{Status: resp.StatusCode, Header: upstream.ForwardHeaders(resp.Header), Body: resp.Body, Kind: cls.Kind}
	if cls.Kind == classify.SoftEmpty {
		merged, err := cls.Guidance.Merge(resp.Body)
		if err != nil {
			return nil, err
		}
		out.Body = merged
		out.Status = s.softEmptyStatus
		s.logger.Debug().Str("resource_type", resourceType).Msg("search matched nothing")
	}
	return out, nil
}

// Reject renders a request refused by the router or the query parser as
// unknown_error with one issue. resourceType may be empty.
func (s *Service) Reject(status int, issueCode aix.Code, resourceType, diagnostics string) (*Result, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	var data aix.ErrorData
	if resourceType != "" {
		data = aix.Fields{aix.FieldResourceType: resourceType}
	}
	return s.render(snap, aix.CodeUnknownError, status, data,
		[]aix.Issue{aix.NewIssue(issueCode, aix.SeverityError, diagnostics)})
}

// Check validates a search without forwarding it. A nil Result means the
// search would be forwarded unchanged.
func (s *Service) Check(resourceType string, params []validation.Param) (*Result, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	if res := snap.Validator.Validate(resourceType, params); !res.Valid() {
		return s.render(snap, res.Code, http.StatusBadRequest, res.Data, res.Issues)
	}
	return nil, nil
}

// SupportedParams describes the search parameters of one resource type.
type SupportedParams struct {
	ResourceType    string             `json:"resource_type"`
	SupportedParams []capability.Param `json:"supported_params"`
	GlobalParams    []capability.Param `json:"global_params"`
	Markdown        string             `json:"markdown"`
}

// SupportedParams returns the parameter reference for resourceType, or an
// AIX error when the type is unknown.
func (s *Service) SupportedParams(resourceType string) (*SupportedParams, *Result, error) {
	snap, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	if res := snap.Validator.ValidateType(resourceType); !res.Valid() {
		out, err := s.render(snap, res.Code, http.StatusBadRequest, res.Data, res.Issues)
		return nil, out, err
	}
	params := snap.Classifier.SupportedParams(resourceType)
	return &SupportedParams{
		ResourceType:    resourceType,
		SupportedParams: params,
		GlobalParams:    snap.Index.GlobalParams(),
		Markdown:        classify.MarkdownTable(params),
	}, nil, nil
}

func (s *Service) render(snap *snapshot.Snapshot, code aix.Code, status int, data aix.ErrorData, issues []aix.Issue) (*Result, error) {
	resp, err := snap.Renderer.Render(code, status, data, issues)
	if err != nil {
		return nil, err
	}
	return &Result{Status: status, Error: resp, Code: code}, nil
}

func (s *Service) unreachable(snap *snapshot.Snapshot, resourceType string, cause error) (*Result, error) {
	if !errors.Is(cause, upstream.ErrUnreachable) {
		return nil, cause
	}
	s.logger.Warn().Err(cause).Str("resource_type", resourceType).Msg("upstream unreachable")
	issue := aix.NewIssue(aix.CodeUpstreamUnreachable, aix.SeverityError, cause.Error())
	return s.render(snap, aix.CodeUpstreamUnreachable, http.StatusBadGateway,
		aix.UpstreamUnreachable{ResourceType: resourceType, Reason: reason(cause)}, []aix.Issue{issue})
}

// upstreamFailure reformats a non-2xx upstream response. id is empty for
// searches.
func (s *Service) upstreamFailure(snap *snapshot.Snapshot, resourceType, id string, params []validation.Param, resp *upstream.Response) (*Result, error) {
	outcome, hasOutcome := upstream.ParseOutcome(resp.Body)

	switch {
	case id != "" && resp.StatusCode == http.StatusNotFound:
		issues := outcomeIssues(aix.CodeNotFound, outcome,
			fmt.Sprintf("%s/%s was not found on the FHIR server.", resourceType, id))
		return s.render(snap, aix.CodeNotFound, http.StatusNotFound,
			aix.NotFound{ResourceType: resourceType, ResourceID: id}, issues)

	case id == "" && len(params) > 0 && hasOutcome && resp.StatusCode < 500 && outcome.HasCode(queryRejectedCodes...):
		issues := outcomeIssues(aix.CodeInvalidSearchParam, outcome, "")
		return s.render(snap, aix.CodeInvalidSearchParam, resp.StatusCode, aix.InvalidSearchParam{
			ResourceType:    resourceType,
			Params:          paramNames(params),
			SupportedParams: snap.Index.AllowedParams(resourceType),
		}, issues)
	}

	evt := s.logger.Warn().Str("resource_type", resourceType).Int("upstream_status", resp.StatusCode)
	if hasOutcome {
		evt = evt.Str("diagnostics", outcome.Diagnostics())
	}
	evt.Msg("unexpected upstream response")

	status := resp.StatusCode
	if status < 400 {
		status = http.StatusBadGateway
	}
	issues := outcomeIssues(aix.CodeUpstreamUnexpected, outcome,
		fmt.Sprintf("The FHIR server answered HTTP %d.", resp.StatusCode))
	return s.render(snap, aix.CodeUpstreamUnexpected, status,
		aix.UpstreamUnexpected{ResourceType: resourceType, ResourceID: id, Status: resp.StatusCode}, issues)
}

// outcomeIssues converts the upstream OperationOutcome issues, or returns a
// single issue with fallback when there is no outcome.
func outcomeIssues(code aix.Code, outcome *upstream.Outcome, fallback string) []aix.Issue {
	if outcome == nil {
		if fallback == "" {
			fallback = "The FHIR server rejected the request."
		}
		return []aix.Issue{aix.NewIssue(code, aix.SeverityError, fallback)}
	}
	issues := make([]aix.Issue, 0, len(outcome.Issue))
	for _, is := range outcome.Issue {
		sev := aix.SeverityError
		if is.Severity == "warning" || is.Severity == "information" {
			sev = aix.SeverityWarning
		}
		diag := is.Text()
		if diag == "" {
			diag = fallback
		}
		issues = append(issues, aix.NewIssue(code, sev, diag).WithDetails("upstream issue code: "+is.Code))
	}
	return issues
}

func paramNames(params []validation.Param) []string {
	seen := make(map[string]struct{}, len(params))
	var out []string
	for _, p := range params {
		n := validation.BaseName(p.Name)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func reason(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return "timeout"
		}
		return uerr.Op + " " + uerr.URL + " failed"
	}
	return "no response"
}
