package terminology

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// referenceTable names the table and code column holding one system.
type referenceTable struct {
	table      string
	codeColumn string
}

// referenceTables maps a system URI to its dedicated reference table.
// Systems not listed here are read from reference_codes.
var referenceTables = map[string]referenceTable{
	SystemLOINC:  {table: "reference_loinc", codeColumn: "code"},
	SystemICD10:  {table: "reference_icd10", codeColumn: "code"},
	SystemSNOMED: {table: "reference_snomed", codeColumn: "code"},
	SystemRxNorm: {table: "reference_rxnorm", codeColumn: "rxnorm_code"},
	SystemCPT:    {table: "reference_cpt", codeColumn: "code"},
}

type codeRepoPG struct{ db queryable }

// NewCodeRepoPG creates a CodeRepository backed by the reference tables.
// Any *pgxpool.Pool, *pgxpool.Conn or pgx.Tx satisfies db.
func NewCodeRepoPG(db queryable) CodeRepository { return &codeRepoPG{db: db} }

func (r *codeRepoPG) ListBySystem(ctx context.Context, system string) ([]Concept, error) {
	query, args := listQuery(system)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reference codes %s: %w", system, err)
	}
	defer rows.Close()

	var concepts []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.Code, &c.Display); err != nil {
			return nil, fmt.Errorf("scan reference code: %w", err)
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

func listQuery(system string) (string, []interface{}) {
	if t, ok := referenceTables[system]; ok {
		return fmt.Sprintf(`SELECT %s, COALESCE(display,'') FROM %s ORDER BY %s`,
			t.codeColumn, t.table, t.codeColumn), nil
	}
	return `SELECT code, COALESCE(display,'') FROM reference_codes
		 WHERE system_uri = $1 ORDER BY code`, []interface{}{system}
}
