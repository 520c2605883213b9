package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/core/ports"
)

// IngestUseCase deduplicates incoming documents by content fingerprint within
// a company scope and links an ownership record per ingestion event.
type IngestUseCase struct {
	docs      ports.DocumentRepository
	extractor ports.TextExtractor
	detector  ports.LanguageDetector
	logger    *slog.Logger

	allowedLanguages []string
	minConfidence    float64
}

func NewIngestUseCase(
	docs ports.DocumentRepository,
	extractor ports.TextExtractor,
	detector ports.LanguageDetector,
	allowedLanguages []string,
	minConfidence float64,
	logger *slog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		docs:             docs,
		extractor:        extractor,
		detector:         detector,
		allowedLanguages: allowedLanguages,
		minConfidence:    minConfidence,
		logger:           logger,
	}
}

func (uc *IngestUseCase) defaultLanguage() string {
	if len(uc.allowedLanguages) == 0 {
		return ""
	}
	return uc.allowedLanguages[0]
}

func (uc *IngestUseCase) languageAllowed(code string) bool {
	for _, allowed := range uc.allowedLanguages {
		if allowed == code {
			return true
		}
	}
	return false
}

// Ingest computes the content fingerprint, extracts and gates the text, then
// runs the atomic lookup-or-create. Partial document/ownership state is never
// observable: the repository rolls the unit back as a whole.
func (uc *IngestUseCase) Ingest(
	ctx context.Context,
	companyID string,
	content []byte,
	job domain.DocumentJob,
) (ports.IngestResult, error) {
	sum := md5.Sum(content)
	fingerprint := hex.EncodeToString(sum[:])

	text, language, confidence, err := uc.extractText(ctx, content, job.Extension)
	if err != nil {
		return ports.IngestResult{}, err
	}

	doc := &domain.Document{
		ID:                 uuid.NewString(),
		CompanyID:          companyID,
		Name:               job.Name,
		Fingerprint:        fingerprint,
		Text:               text,
		Language:           language,
		LanguageConfidence: confidence,
		Size:               int64(len(content)),
		Extension:          job.Extension,
		LastModified:       job.LastModified,
		Fresh:              true,
		CreatedAt:          time.Now().UTC(),
	}

	link := &domain.OwnershipLink{
		ID:        uuid.NewString(),
		ScanID:    job.ScanID,
		Path:      job.OriginPath,
		Timestamp: job.Timestamp,
		OriginTag: job.OriginTag,
	}

	if job.TrackedFolderID != "" {
		folder, err := uc.docs.GetTrackedFolder(ctx, job.TrackedFolderID)
		if err != nil {
			return ports.IngestResult{}, fmt.Errorf("resolve tracked folder: %w", err)
		}
		link.TrackedFolderID = folder.ID
		link.Private = folder.Private
	}

	existed, documentID, ownershipID, err := uc.docs.CreateWithOwnership(ctx, doc, link)
	if err != nil {
		return ports.IngestResult{}, fmt.Errorf("create document with ownership: %w", err)
	}

	uc.logger.Info("document_ingested",
		"company_id", companyID,
		"document_id", documentID,
		"fingerprint", fingerprint,
		"existed", existed,
	)
	return ports.IngestResult{
		Existed:     existed,
		DocumentID:  documentID,
		OwnershipID: ownershipID,
	}, nil
}

// extractText applies the language gate: empty text, a language outside the
// allow-list or detection confidence below the threshold all fail ingestion.
// A non-default allowed language gets one language-specific re-extract.
func (uc *IngestUseCase) extractText(ctx context.Context, content []byte, extension string) (string, string, float64, error) {
	text, err := uc.extractor.Extract(ctx, content, extension, "")
	if err != nil {
		return "", "", 0, domain.WrapError(domain.ErrExtractionFailed, "extract text", err)
	}
	if text == "" {
		return "", "", 0, domain.WrapError(domain.ErrExtractionFailed, "extract text", fmt.Errorf("no text on this document"))
	}

	language, confidence := uc.detector.Detect(text)
	if !uc.languageAllowed(language) {
		return "", "", 0, domain.WrapError(domain.ErrExtractionFailed, "language gate", fmt.Errorf("language %q not allowed", language))
	}
	if confidence < uc.minConfidence {
		return "", "", 0, domain.WrapError(domain.ErrExtractionFailed, "language gate",
			fmt.Errorf("language confidence %.2f below %.2f", confidence, uc.minConfidence))
	}

	if language != uc.defaultLanguage() {
		text, err = uc.extractor.Extract(ctx, content, extension, language)
		if err != nil {
			return "", "", 0, domain.WrapError(domain.ErrExtractionFailed, "language-specific extract", err)
		}
		if text == "" {
			return "", "", 0, domain.WrapError(domain.ErrExtractionFailed, "language-specific extract", fmt.Errorf("no text on this document"))
		}
	}
	return text, language, confidence, nil
}
