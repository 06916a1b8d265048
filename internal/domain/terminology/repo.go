package terminology

import "context"

// CodeRepository lists the concepts of a coding system from the reference
// code tables.
type CodeRepository interface {
	ListBySystem(ctx context.Context, system string) ([]Concept, error)
}

// ExpansionFetcher returns the raw ValueSet $expand result for a ValueSet
// canonical URL from the upstream server.
type ExpansionFetcher interface {
	ExpandValueSet(ctx context.Context, valueSetURL string) ([]byte, error)
}
