// Package capability turns an upstream CapabilityStatement into the search
// index used to pre-validate resource types and search parameter names.
package capability

import (
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
)

// ErrMetadataUnavailable is returned when the capability document cannot be
// turned into a complete index.
var ErrMetadataUnavailable = errors.New("capability metadata unavailable")

// Builder builds SearchIndex values. GlobalParams are merged into every
// resource type in addition to any server-wide parameters the document
// declares.
type Builder struct {
	GlobalParams []Param
}

// NewBuilder returns a Builder seeded with DefaultGlobalParams.
func NewBuilder() *Builder {
	return &Builder{GlobalParams: append([]Param(nil), DefaultGlobalParams...)}
}

// Build parses a CapabilityStatement JSON document and builds the index.
func (b *Builder) Build(doc []byte) (*SearchIndex, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty capability document", ErrMetadataUnavailable)
	}
	var stmt Statement
	if err := json.Unmarshal(doc, &stmt); err != nil {
		return nil, fmt.Errorf("%w: decode capability document: %v", ErrMetadataUnavailable, err)
	}
	return b.BuildStatement(&stmt)
}

// BuildStatement builds the index from an already decoded statement. Either
// every resource type is indexed or an error is returned and nothing is.
func (b *Builder) BuildStatement(stmt *Statement) (*SearchIndex, error) {
	if stmt == nil {
		return nil, fmt.Errorf("%w: nil capability statement", ErrMetadataUnavailable)
	}
	if stmt.ResourceType != "CapabilityStatement" {
		return nil, fmt.Errorf("%w: unexpected resourceType %q", ErrMetadataUnavailable, stmt.ResourceType)
	}
	if len(stmt.Rest) == 0 {
		return nil, fmt.Errorf("%w: capability statement has no rest entries", ErrMetadataUnavailable)
	}

	global := mapset.NewSet[string]()
	var globalParams []Param
	addGlobal := func(p Param) {
		if global.Add(p.Name) {
			globalParams = append(globalParams, p)
		}
	}
	for _, p := range b.GlobalParams {
		addGlobal(p)
	}

	declared := make(map[string][]Param)
	var order []string
	for ri, rest := range stmt.Rest {
		for pi, sp := range rest.SearchParam {
			if sp.Name == "" {
				return nil, fmt.Errorf("%w: rest[%d].searchParam[%d] has no name", ErrMetadataUnavailable, ri, pi)
			}
			addGlobal(toParam(sp))
		}
		for resIdx, res := range rest.Resource {
			if res.Type == "" {
				return nil, fmt.Errorf("%w: rest[%d].resource[%d] has no type", ErrMetadataUnavailable, ri, resIdx)
			}
			if _, seen := declared[res.Type]; !seen {
				declared[res.Type] = []Param{}
				order = append(order, res.Type)
			}
			for pi, sp := range res.SearchParam {
				if sp.Name == "" {
					return nil, fmt.Errorf("%w: %s.searchParam[%d] has no name", ErrMetadataUnavailable, res.Type, pi)
				}
				declared[res.Type] = append(declared[res.Type], toParam(sp))
			}
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: capability statement declares no resource types", ErrMetadataUnavailable)
	}

	idx := &SearchIndex{
		types:  make(map[string]*resourceEntry, len(order)),
		global: global,
		params: globalParams,
	}
	for _, rt := range order {
		allowed := global.Clone()
		var params []Param
		for _, p := range declared[rt] {
			if containsParam(params, p.Name) {
				continue
			}
			allowed.Add(p.Name)
			params = append(params, p)
		}
		idx.types[rt] = &resourceEntry{
			allowed: allowed,
			names:   sortedMembers(allowed),
			params:  params,
		}
	}
	idx.names = make([]string, 0, len(order))
	for rt := range idx.types {
		idx.names = append(idx.names, rt)
	}
	sort.Strings(idx.names)

	return idx, nil
}

func toParam(sp SearchParamDef) Param {
	return Param{
		Name:          sp.Name,
		Type:          sp.Type,
		Documentation: sp.Documentation,
		Example:       sp.Example,
	}
}

func containsParam(params []Param, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}
