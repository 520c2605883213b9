package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (r *ScanRepository) Create(ctx context.Context, scan *domain.Scan) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO scans (id, company_id, user_id, source_type, state, remaining, total, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		scan.ID, scan.CompanyID, scan.UserID, scan.SourceType,
		string(scan.State), scan.Remaining, scan.Total, scan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (r *ScanRepository) GetByID(ctx context.Context, id string) (*domain.Scan, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, company_id, user_id, source_type, state, remaining, total, created_at
FROM scans
WHERE id = $1
`, id)

	var (
		scan  domain.Scan
		state string
	)
	err := row.Scan(&scan.ID, &scan.CompanyID, &scan.UserID, &scan.SourceType, &state, &scan.Remaining, &scan.Total, &scan.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrScanNotFound, "get scan", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}
	scan.State = domain.ScanState(state)
	return &scan, nil
}

func (r *ScanRepository) AddDispatched(ctx context.Context, id string, n int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE scans SET remaining = remaining + $2 WHERE id = $1
`, id, n)
	if err != nil {
		return fmt.Errorf("add dispatched: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add dispatched rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrScanNotFound, "add dispatched", fmt.Errorf("id %s", id))
	}
	return nil
}

// FinishCounting closes the discovery phase, guarded on the started state so
// it can run at most once.
func (r *ScanRepository) FinishCounting(ctx context.Context, id string, total int) (int, error) {
	var remaining int
	err := r.db.QueryRowContext(ctx, `
UPDATE scans SET state = $2, total = $3
WHERE id = $1 AND state = $4
RETURNING remaining
`, id, string(domain.ScanCounting), total, string(domain.ScanStarted)).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("finish counting: %w", err)
	}

	scan, lookupErr := r.GetByID(ctx, id)
	if lookupErr != nil {
		return 0, lookupErr
	}
	if scan.State == domain.ScanDone {
		return 0, domain.WrapError(domain.ErrAlreadyCompleted, "finish counting", fmt.Errorf("scan %s", id))
	}
	return 0, fmt.Errorf("finish counting: scan %s in state %s", id, scan.State)
}

// DecrementRemaining is the single-statement decrement-and-read the whole
// completion signal depends on. The remaining > 0 guard keeps the counter
// non-negative under duplicate deliveries.
func (r *ScanRepository) DecrementRemaining(ctx context.Context, id string) (int, domain.ScanState, error) {
	var (
		remaining int
		state     string
	)
	err := r.db.QueryRowContext(ctx, `
UPDATE scans SET remaining = remaining - 1
WHERE id = $1 AND remaining > 0
RETURNING remaining, state
`, id).Scan(&remaining, &state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", fmt.Errorf("decrement remaining: scan %s has no outstanding documents", id)
		}
		return 0, "", fmt.Errorf("decrement remaining: %w", err)
	}
	return remaining, domain.ScanState(state), nil
}

// MarkDone transitions to done at most once; a repeat observes
// ErrAlreadyCompleted.
func (r *ScanRepository) MarkDone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE scans SET state = $2 WHERE id = $1 AND state <> $2
`, id, string(domain.ScanDone))
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark done rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrAlreadyCompleted, "mark done", fmt.Errorf("scan %s", id))
	}
	return nil
}

func (r *ScanRepository) PendingScans(ctx context.Context, companyID string) (int, error) {
	var pending int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM scans WHERE company_id = $1 AND state <> $2
`, companyID, string(domain.ScanDone)).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("count pending scans: %w", err)
	}
	return pending, nil
}
