package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateWithOwnership is the atomic ingestion unit. The insert resolves the
// (company, fingerprint, name) identity with an upsert, so two concurrent
// ingestions of the same new content race to exactly one row and the loser's
// ownership link still references the winner's document. Everything rolls
// back together on any error.
func (r *DocumentRepository) CreateWithOwnership(
	ctx context.Context,
	doc *domain.Document,
	link *domain.OwnershipLink,
) (bool, string, string, error) {
	groupsJSON, err := json.Marshal(doc.AccessGroups)
	if err != nil {
		return false, "", "", fmt.Errorf("marshal access groups: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, "", "", fmt.Errorf("begin ingest tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		documentID string
		existed    bool
	)
	err = tx.QueryRowContext(ctx, `
INSERT INTO documents (
	id, company_id, name, fingerprint, text_content, language, language_confidence,
	size, extension, last_modified, validated, fresh, access_groups, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (company_id, fingerprint, name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, (xmax <> 0) AS existed
`,
		doc.ID, doc.CompanyID, doc.Name, doc.Fingerprint, doc.Text, doc.Language,
		doc.LanguageConfidence, doc.Size, doc.Extension, doc.LastModified,
		doc.Validated, doc.Fresh, groupsJSON, doc.CreatedAt,
	).Scan(&documentID, &existed)
	if err != nil {
		return false, "", "", fmt.Errorf("upsert document: %w", err)
	}

	if !existed {
		// A changed extraction of the same logical name supersedes the
		// older rows; they are no longer fresh for aggregation.
		if _, err := tx.ExecContext(ctx, `
UPDATE documents SET fresh = FALSE
WHERE company_id = $1 AND name = $2 AND id <> $3
`, doc.CompanyID, doc.Name, documentID); err != nil {
			return false, "", "", fmt.Errorf("supersede stale documents: %w", err)
		}
	}

	var trackedFolder any
	if link.TrackedFolderID != "" {
		trackedFolder = link.TrackedFolderID
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO ownership_links (id, document_id, scan_id, path, timestamp, origin_tag, tracked_folder_id, private)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		link.ID, documentID, link.ScanID, link.Path, link.Timestamp,
		link.OriginTag, trackedFolder, link.Private,
	); err != nil {
		return false, "", "", fmt.Errorf("insert ownership link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, "", "", fmt.Errorf("commit ingest tx: %w", err)
	}
	return existed, documentID, link.ID, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, company_id, name, fingerprint, text_content, language, language_confidence,
	size, extension, last_modified, validated, fresh, access_groups, created_at
FROM documents
WHERE id = $1
`, id)

	var (
		doc          domain.Document
		groupsRaw    []byte
		lastModified sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.Name, &doc.Fingerprint, &doc.Text,
		&doc.Language, &doc.LanguageConfidence, &doc.Size, &doc.Extension,
		&lastModified, &doc.Validated, &doc.Fresh, &groupsRaw, &doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if lastModified.Valid {
		doc.LastModified = lastModified.Time
	}
	if err := json.Unmarshal(groupsRaw, &doc.AccessGroups); err != nil {
		return nil, fmt.Errorf("unmarshal access groups: %w", err)
	}
	return &doc, nil
}

// SaveClassifications replaces the automatic chain; human-validated edges are
// never touched.
func (r *DocumentRepository) SaveClassifications(ctx context.Context, documentID string, chain []domain.Classification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin classification tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM classifications WHERE document_id = $1 AND NOT validated
`, documentID); err != nil {
		return fmt.Errorf("clear automatic classifications: %w", err)
	}

	for _, cls := range chain {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO classifications (document_id, category, confidence, classifier_id, timestamp, validated)
VALUES ($1,$2,$3,$4,$5,$6)
`,
			documentID, cls.Category, cls.Confidence, cls.ClassifierID, cls.Timestamp, cls.Validated,
		); err != nil {
			return fmt.Errorf("insert classification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit classification tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ValidatedChain(ctx context.Context, documentID string) ([]domain.Classification, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT category, confidence, classifier_id, timestamp, validated
FROM classifications
WHERE document_id = $1 AND validated
ORDER BY id
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query validated chain: %w", err)
	}
	defer rows.Close()

	var chain []domain.Classification
	for rows.Next() {
		var cls domain.Classification
		if err := rows.Scan(&cls.Category, &cls.Confidence, &cls.ClassifierID, &cls.Timestamp, &cls.Validated); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		chain = append(chain, cls)
	}
	return chain, rows.Err()
}

func (r *DocumentRepository) AssignGroups(ctx context.Context, documentID string, groups []string) error {
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("marshal access groups: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
UPDATE documents SET access_groups = $2 WHERE id = $1
`, documentID, groupsJSON); err != nil {
		return fmt.Errorf("assign access groups: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetTrackedFolder(ctx context.Context, id string) (*domain.TrackedFolder, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, private, access_groups FROM tracked_folders WHERE id = $1
`, id)
	folder, err := scanTrackedFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tracked folder not found: %s", id)
		}
		return nil, err
	}
	return folder, nil
}

func (r *DocumentRepository) LatestTrackedFolder(ctx context.Context, ownershipID string) (*domain.TrackedFolder, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT t.id, t.name, t.private, t.access_groups
FROM ownership_links l
JOIN tracked_folders t ON t.id = l.tracked_folder_id
WHERE l.id = $1
`, ownershipID)
	folder, err := scanTrackedFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return folder, nil
}

func scanTrackedFolder(row *sql.Row) (*domain.TrackedFolder, error) {
	var (
		folder    domain.TrackedFolder
		groupsRaw []byte
	)
	if err := row.Scan(&folder.ID, &folder.Name, &folder.Private, &groupsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan tracked folder: %w", err)
	}
	if err := json.Unmarshal(groupsRaw, &folder.AccessGroups); err != nil {
		return nil, fmt.Errorf("unmarshal folder groups: %w", err)
	}
	return &folder, nil
}
