package aix

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// TemplateRepoPG reads template records from the aix_error_templates table.
type TemplateRepoPG struct {
	db queryable
}

// NewTemplateRepoPG creates a TemplateSource over db.
func NewTemplateRepoPG(db queryable) *TemplateRepoPG {
	return &TemplateRepoPG{db: db}
}

const listTemplatesSQL = `SELECT error_code, resource_type, template, COALESCE(next_steps,''),
	COALESCE(placeholders, '{}'::text[])
	FROM aix_error_templates WHERE active ORDER BY error_code, resource_type NULLS FIRST`

func (r *TemplateRepoPG) ListTemplates(ctx context.Context) ([]TemplateRecord, error) {
	rows, err := r.db.Query(ctx, listTemplatesSQL)
	if err != nil {
		return nil, fmt.Errorf("list error templates: %w", err)
	}
	defer rows.Close()

	var out []TemplateRecord
	for rows.Next() {
		var rec TemplateRecord
		var code string
		if err := rows.Scan(&code, &rec.ResourceType, &rec.Template, &rec.NextSteps, &rec.Placeholders); err != nil {
			return nil, fmt.Errorf("scan error template: %w", err)
		}
		rec.ErrorCode = Code(code)
		out = append(out, rec)
	}
	return out, rows.Err()
}
