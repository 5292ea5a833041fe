package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

type QueryAuditRepository struct {
	db *sql.DB
}

func NewQueryAuditRepository(db *sql.DB) *QueryAuditRepository {
	return &QueryAuditRepository{db: db}
}

func (r *QueryAuditRepository) Record(ctx context.Context, audit domain.QueryAudit) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_audit (
	id, user_id, role, question, rewrite_count, grounded, clarified, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		audit.ID, audit.UserID, audit.Role, audit.Question, audit.RewriteCount,
		string(audit.Grounded), audit.Clarified, audit.DurationMS, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query audit: %w", err)
	}
	return nil
}
