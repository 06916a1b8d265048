package capability

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

type resourceEntry struct {
	allowed mapset.Set[string]
	names   []string
	params  []Param
}

// SearchIndex maps each resource type the upstream server supports to its
// allowed search parameter names, with the server-wide parameters merged
// into every type. It is never modified after Build returns it; callers get
// copies of its slices.
type SearchIndex struct {
	types  map[string]*resourceEntry
	names  []string
	global mapset.Set[string]
	params []Param
}

// HasType reports whether resourceType is declared by the server.
func (x *SearchIndex) HasType(resourceType string) bool {
	_, ok := x.types[resourceType]
	return ok
}

// ResourceTypes returns every known resource type, sorted.
func (x *SearchIndex) ResourceTypes() []string {
	return append([]string(nil), x.names...)
}

// Len returns the number of resource types in the index.
func (x *SearchIndex) Len() int {
	return len(x.types)
}

// IsGlobal reports whether name is a server-wide parameter.
func (x *SearchIndex) IsGlobal(name string) bool {
	return x.global.Contains(name)
}

// Allowed reports whether name is accepted for resourceType. Unknown types
// accept nothing.
func (x *SearchIndex) Allowed(resourceType, name string) bool {
	e, ok := x.types[resourceType]
	if !ok {
		return false
	}
	return e.allowed.Contains(name)
}

// AllowedParams returns the sorted allowed parameter names for resourceType,
// global ones included.
func (x *SearchIndex) AllowedParams(resourceType string) []string {
	e, ok := x.types[resourceType]
	if !ok {
		return nil
	}
	return append([]string(nil), e.names...)
}

// SupportedParams returns the parameter descriptors the server declared for
// resourceType, in declaration order.
func (x *SearchIndex) SupportedParams(resourceType string) []Param {
	e, ok := x.types[resourceType]
	if !ok {
		return nil
	}
	return append([]Param(nil), e.params...)
}

// GlobalParams returns the server-wide parameter descriptors.
func (x *SearchIndex) GlobalParams() []Param {
	return append([]Param(nil), x.params...)
}

func sortedMembers(s mapset.Set[string]) []string {
	out := s.ToSlice()
	sort.Strings(out)
	return out
}
