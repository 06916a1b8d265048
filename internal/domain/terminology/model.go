package terminology

// Well-known coding system URIs.
const (
	SystemLOINC  = "http://loinc.org"
	SystemICD10  = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemSNOMED = "http://snomed.info/sct"
	SystemRxNorm = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemCPT    = "http://www.ama-assn.org/go/cpt"
)

// Concept is one code/display pair of a coding system.
type Concept struct {
	Code    string `db:"code" json:"code"`
	Display string `db:"display" json:"display"`
}

// Suggestion is a near-miss code offered for an unknown value.
type Suggestion struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

// String renders the suggestion as "code (display)".
func (s Suggestion) String() string {
	if s.Display == "" {
		return s.Code
	}
	return s.Code + " (" + s.Display + ")"
}

// SystemSource says where the concepts of one coding system come from.
// ValueSetURL, when set, is expanded on the upstream server; otherwise the
// reference code tables are read.
type SystemSource struct {
	System      string `mapstructure:"system" json:"system"`
	ValueSetURL string `mapstructure:"valueset_url" json:"valueset_url,omitempty"`
}
