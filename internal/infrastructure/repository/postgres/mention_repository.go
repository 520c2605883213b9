package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

type MentionRepository struct {
	db *sql.DB
}

func NewMentionRepository(db *sql.DB) *MentionRepository {
	return &MentionRepository{db: db}
}

func (r *MentionRepository) CreateMentions(ctx context.Context, mentions []domain.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mention tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range mentions {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO mentions (id, document_id, kind, start_pos, end_pos, occurrence, validated)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
			m.ID, m.DocumentID, string(m.Kind), m.Start, m.End, m.Occurrence, m.Validated,
		); err != nil {
			return fmt.Errorf("insert mention: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mention tx: %w", err)
	}
	return nil
}

// DocumentIDsWithMention answers the aggregation lookups: fresh documents of
// the company carrying at least one mention of the given kind.
func (r *MentionRepository) DocumentIDsWithMention(ctx context.Context, companyID string, kind domain.MentionKind) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT d.id
FROM mentions m
JOIN documents d ON d.id = m.document_id
WHERE d.company_id = $1 AND m.kind = $2 AND d.fresh
`, companyID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query mention documents: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan mention document id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
