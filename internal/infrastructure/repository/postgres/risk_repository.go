package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

type RiskRepository struct {
	db *sql.DB
}

func NewRiskRepository(db *sql.DB) *RiskRepository {
	return &RiskRepository{db: db}
}

// ReplaceCompanyResults is the second phase of aggregation persistence: one
// transaction that re-checks freshness per aggregate, deletes every prior
// result for the company and inserts the fresh set. A failure anywhere rolls
// the whole replace back, leaving the previous results intact.
func (r *RiskRepository) ReplaceCompanyResults(
	ctx context.Context,
	companyID string,
	high, low []domain.RiskAggregate,
) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin risk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM risk_results WHERE company_id = $1
`, companyID); err != nil {
		return 0, fmt.Errorf("delete prior risk results: %w", err)
	}

	now := time.Now().UTC()
	persisted := 0
	for _, aggregates := range [][]domain.RiskAggregate{high, low} {
		for _, agg := range aggregates {
			fresh, err := documentFresh(ctx, tx, agg.DocumentID)
			if err != nil {
				return 0, err
			}
			if !fresh {
				// Superseded since the streams were read; dropping it
				// beats persisting inconsistent evidence.
				continue
			}
			data, err := json.Marshal(agg)
			if err != nil {
				return 0, fmt.Errorf("marshal risk aggregate: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO risk_results (company_id, document_id, tier, data, created_at)
VALUES ($1,$2,$3,$4,$5)
`,
				companyID, agg.DocumentID, string(agg.Tier), data, now,
			); err != nil {
				return 0, fmt.Errorf("insert risk result: %w", err)
			}
			persisted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit risk tx: %w", err)
	}
	return persisted, nil
}

func documentFresh(ctx context.Context, tx *sql.Tx, documentID string) (bool, error) {
	var fresh bool
	err := tx.QueryRowContext(ctx, `
SELECT fresh FROM documents WHERE id = $1
`, documentID).Scan(&fresh)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check document freshness: %w", err)
	}
	return fresh, nil
}
