// Package validation checks read and search requests against the server's
// declared capabilities and the loaded coding systems before they are
// forwarded.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/terminology"
	"github.com/fhirnudge/nudge/internal/platform/fuzzy"
)

// DefaultCacheSize bounds the suggestion cache of a Validator.
const DefaultCacheSize = 1024

// ExpectedIDFormat describes a valid resource id to callers.
const ExpectedIDFormat = "1-64 characters from A-Z, a-z, 0-9, '-' and '.'"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9\-\.]{1,64}$`)

// CodedParam marks a search parameter whose values are codes of System.
type CodedParam struct {
	ResourceType string `mapstructure:"resource_type" json:"resource_type"`
	Param        string `mapstructure:"param" json:"param"`
	System       string `mapstructure:"system" json:"system"`
}

func (c CodedParam) String() string {
	return c.ResourceType + "." + c.Param + "=" + c.System
}

// DefaultCodedParams checks Observation.code against LOINC.
func DefaultCodedParams() []CodedParam {
	return []CodedParam{{ResourceType: "Observation", Param: "code", System: terminology.SystemLOINC}}
}

// ParseCodedParams parses "Type.param=system" entries.
func ParseCodedParams(entries []string) ([]CodedParam, error) {
	var out []CodedParam
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		lhs, system, ok := strings.Cut(e, "=")
		rt, param, ok2 := strings.Cut(lhs, ".")
		if !ok || !ok2 || rt == "" || param == "" || system == "" {
			return nil, fmt.Errorf("coded param %q: want Type.param=system", e)
		}
		out = append(out, CodedParam{ResourceType: rt, Param: param, System: system})
	}
	return out, nil
}

// Options configures a Validator.
type Options struct {
	Matcher     fuzzy.Matcher
	CodedParams []CodedParam
	CacheSize   int
	// RejectDuplicates reports a parameter name given more than once.
	RejectDuplicates bool
	// RequireParams reports a search without any parameter.
	RequireParams bool
}

// Result is the outcome of a validation. It is Valid when it has no
// issues; otherwise Code and Data are ready to pass to the renderer.
type Result struct {
	Issues []aix.Issue
	Code   aix.Code
	Data   aix.ErrorData
}

// Valid reports whether no issue was found.
func (r Result) Valid() bool { return len(r.Issues) == 0 }

// Validator is bound to one capability index and one set of code system
// indices. It never mutates them and is safe for concurrent use.
type Validator struct {
	index   *capability.SearchIndex
	systems map[string]*terminology.Index
	coded   map[string]CodedParam
	opts    Options
	cache   *lru.Cache[string, []string]
}

// New creates a Validator. systems maps a system URI to its index; coded
// params whose system has no index are not checked.
func New(index *capability.SearchIndex, systems map[string]*terminology.Index, opts Options) (*Validator, error) {
	if index == nil {
		return nil, fmt.Errorf("validation: capability index is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Matcher.MaxResults() <= 0 {
		opts.Matcher = fuzzy.Default()
	}
	cache, err := lru.New[string, []string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("validation: suggestion cache: %w", err)
	}

	coded := make(map[string]CodedParam, len(opts.CodedParams))
	for _, c := range opts.CodedParams {
		coded[c.ResourceType+"."+c.Param] = c
	}

	return &Validator{index: index, systems: systems, coded: coded, opts: opts, cache: cache}, nil
}

// Index returns the capability index the validator checks against.
func (v *Validator) Index() *capability.SearchIndex { return v.index }

// ValidateType checks only that resourceType is supported.
func (v *Validator) ValidateType(resourceType string) Result {
	if v.index.HasType(resourceType) {
		return Result{}
	}
	suggestions := v.suggest("type", "", resourceType, func() []string {
		return v.opts.Matcher.Suggest(resourceType, v.index.ResourceTypes())
	})
	diag := fmt.Sprintf("Resource type '%s' is not supported.", resourceType)
	return Result{
		Issues: []aix.Issue{
			aix.NewIssue(aix.CodeInvalidType, aix.SeverityError, withHint(diag, suggestions)).WithSuggestions(suggestions),
		},
		Code: aix.CodeInvalidType,
		Data: aix.InvalidType{ResourceType: resourceType, SupportedTypes: v.index.ResourceTypes()},
	}
}

// ValidateRead checks a read of resourceType/id.
func (v *Validator) ValidateRead(resourceType, id string) Result {
	if res := v.ValidateType(resourceType); !res.Valid() {
		return res
	}
	if idPattern.MatchString(id) {
		return Result{}
	}
	diag := fmt.Sprintf("ID '%s' is not a valid %s id. Expected %s.", id, resourceType, ExpectedIDFormat)
	return Result{
		Issues: []aix.Issue{aix.NewIssue(aix.CodeInvalidIDFormat, aix.SeverityError, diag)},
		Code:   aix.CodeInvalidIDFormat,
		Data:   aix.InvalidIDFormat{ResourceType: resourceType, ResourceID: id, ExpectedFormat: ExpectedIDFormat},
	}
}

// Validate checks a search. The resource type is checked first and stops
// validation when unknown; parameter names and coded values are then all
// checked and every problem is reported.
func (v *Validator) Validate(resourceType string, params []Param) Result {
	if res := v.ValidateType(resourceType); !res.Valid() {
		return res
	}

	var issues []aix.Issue
	if v.opts.RequireParams && len(params) == 0 {
		issues = append(issues, aix.NewIssue(aix.CodeMissingParam, aix.SeverityError,
			"No search parameters were provided."))
	}

	unknown := v.checkNames(resourceType, params, &issues)
	if v.opts.RejectDuplicates {
		v.checkDuplicates(params, &issues)
	}
	badCodes := v.checkCodes(resourceType, params, &issues)

	if len(issues) == 0 {
		return Result{}
	}
	res := Result{Issues: issues, Code: aix.Code(issues[0].Code)}
	switch res.Code {
	case aix.CodeMissingParam:
		res.Data = aix.MissingParam{ResourceType: resourceType}
	case aix.CodeInvalidSearchParam:
		res.Data = aix.InvalidSearchParam{
			ResourceType:    resourceType,
			Params:          unknown,
			SupportedParams: v.index.AllowedParams(resourceType),
		}
	case aix.CodeDuplicateParam:
		res.Data = aix.DuplicateParam{ResourceType: resourceType, Params: duplicates(params)}
	case aix.CodeInvalidCode:
		res.Data = aix.InvalidCode{
			ResourceType: resourceType,
			Param:        badCodes.param,
			System:       badCodes.system,
			Codes:        badCodes.codes,
		}
	}
	return res
}

// checkNames adds one invalid_searchparam issue per distinct unknown name
// and returns those names in request order.
func (v *Validator) checkNames(resourceType string, params []Param, issues *[]aix.Issue) []string {
	var unknown []string
	seen := make(map[string]struct{})
	for _, p := range params {
		base := BaseName(p.Name)
		if v.index.IsGlobal(base) || v.index.Allowed(resourceType, base) {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		unknown = append(unknown, base)

		suggestions := v.suggest("param", resourceType, base, func() []string {
			return v.opts.Matcher.Suggest(base, v.index.AllowedParams(resourceType))
		})
		diag := fmt.Sprintf("Parameter '%s' is not supported for %s.", base, resourceType)
		*issues = append(*issues, aix.NewIssue(aix.CodeInvalidSearchParam, aix.SeverityError,
			withHint(diag, suggestions)).WithSuggestions(suggestions))
	}
	return unknown
}

func (v *Validator) checkDuplicates(params []Param, issues *[]aix.Issue) {
	counts := countNames(params)
	for _, name := range duplicates(params) {
		diag := fmt.Sprintf("Parameter '%s' was provided %d times.", name, counts[name])
		*issues = append(*issues, aix.NewIssue(aix.CodeDuplicateParam, aix.SeverityError, diag))
	}
}

type codeFailure struct {
	param  string
	system string
	codes  []string
}

// checkCodes adds one invalid_code issue per unknown code of a coded
// parameter and returns the failures of the first failing parameter.
func (v *Validator) checkCodes(resourceType string, params []Param, issues *[]aix.Issue) codeFailure {
	var first codeFailure
	for _, p := range params {
		cp, ok := v.coded[resourceType+"."+BaseName(p.Name)]
		if !ok {
			continue
		}
		if mod := modifier(p.Name); mod != "" && mod != "not" {
			continue
		}
		idx, ok := v.systems[cp.System]
		if !ok {
			continue
		}

		for _, tok := range splitTokens(p.Value) {
			if tok.code == "" || (tok.hasSystem && tok.system != cp.System) {
				continue
			}
			if _, known := idx.Lookup(tok.code); known {
				continue
			}

			code := tok.code
			suggestions := v.suggest("code", cp.System, code, func() []string {
				found := idx.Suggest(code, v.opts.Matcher)
				out := make([]string, len(found))
				for i, s := range found {
					out[i] = s.String()
				}
				return out
			})
			diag := fmt.Sprintf("Code '%s' is not a known %s code for %s.%s.", code, cp.System, resourceType, cp.Param)
			*issues = append(*issues, aix.NewIssue(aix.CodeInvalidCode, aix.SeverityError,
				withHint(diag, suggestions)).WithSuggestions(suggestions))

			if first.param == "" || first.param == cp.Param {
				first.param, first.system = cp.Param, cp.System
				first.codes = append(first.codes, code)
			}
		}
	}
	return first
}

// suggest memoizes compute per (kind, scope, value).
func (v *Validator) suggest(kind, scope, value string, compute func() []string) []string {
	key := kind + "\x00" + scope + "\x00" + value
	if s, ok := v.cache.Get(key); ok {
		return s
	}
	s := compute()
	v.cache.Add(key, s)
	return s
}

func withHint(diag string, suggestions []string) string {
	if len(suggestions) == 0 {
		return diag
	}
	return diag + " Did you mean: " + strings.Join(suggestions, ", ") + "?"
}

func countNames(params []Param) map[string]int {
	counts := make(map[string]int, len(params))
	for _, p := range params {
		counts[p.Name]++
	}
	return counts
}

// duplicates returns the names given more than once, in first-seen order.
func duplicates(params []Param) []string {
	counts := countNames(params)
	var out []string
	seen := make(map[string]struct{})
	for _, p := range params {
		if counts[p.Name] < 2 {
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p.Name)
	}
	return out
}
