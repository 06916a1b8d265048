package capability

// Statement is the subset of a FHIR CapabilityStatement the index builder
// reads: per resource type search parameters plus the server-wide list.
type Statement struct {
	ResourceType string `json:"resourceType"`
	FHIRVersion  string `json:"fhirVersion,omitempty"`
	Rest         []Rest `json:"rest"`
}

// Rest is one CapabilityStatement.rest entry.
type Rest struct {
	Mode        string           `json:"mode,omitempty"`
	Resource    []Resource       `json:"resource"`
	SearchParam []SearchParamDef `json:"searchParam,omitempty"`
}

// Resource is one CapabilityStatement.rest.resource entry.
type Resource struct {
	Type        string           `json:"type"`
	SearchParam []SearchParamDef `json:"searchParam,omitempty"`
}

// SearchParamDef describes a search parameter as declared by the server.
type SearchParamDef struct {
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	Definition    string `json:"definition,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Example       string `json:"example,omitempty"`
}

// Param is the descriptor kept in the index for the supported-parameter
// reference shown to callers.
type Param struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation"`
	Example       string `json:"example"`
}

// DefaultGlobalParams are the FHIR search result and common parameters
// accepted on every resource type regardless of the capability document.
var DefaultGlobalParams = []Param{
	{Name: "_id", Type: "token", Documentation: "Logical id of the resource"},
	{Name: "_lastUpdated", Type: "date", Documentation: "When the resource version last changed"},
	{Name: "_tag", Type: "token", Documentation: "Tags applied to the resource"},
	{Name: "_profile", Type: "uri", Documentation: "Profiles the resource claims to conform to"},
	{Name: "_security", Type: "token", Documentation: "Security labels applied to the resource"},
	{Name: "_text", Type: "string", Documentation: "Search on the narrative"},
	{Name: "_content", Type: "string", Documentation: "Search on the entire content"},
	{Name: "_list", Type: "string", Documentation: "All resources in the nominated list"},
	{Name: "_has", Type: "special", Documentation: "Reverse chaining"},
	{Name: "_type", Type: "special", Documentation: "Resource types to search"},
	{Name: "_sort", Type: "special", Documentation: "Order to sort results in"},
	{Name: "_count", Type: "number", Documentation: "Number of results per page"},
	{Name: "_include", Type: "special", Documentation: "Other resources to include"},
	{Name: "_revinclude", Type: "special", Documentation: "Other resources that reference these"},
	{Name: "_summary", Type: "token", Documentation: "Return only summary elements"},
	{Name: "_total", Type: "token", Documentation: "Request a total count"},
	{Name: "_elements", Type: "string", Documentation: "Return only the listed elements"},
	{Name: "_contained", Type: "token", Documentation: "Whether to return contained resources"},
	{Name: "_containedType", Type: "token", Documentation: "Container or contained resources"},
	{Name: "_format", Type: "string", Documentation: "Response format"},
	{Name: "_pretty", Type: "token", Documentation: "Pretty-print the response"},
}
