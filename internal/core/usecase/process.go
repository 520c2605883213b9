package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/core/ports"
)

// ProcessUseCase coordinates the per-document jobs after ingestion: persist
// bytes to the archive, run the classification cascade, run entity
// extraction. The three jobs run concurrently behind a completion barrier;
// one job's failure never cancels its siblings, and the scan progress handler
// runs exactly once per document regardless of outcome.
type ProcessUseCase struct {
	source   ports.ObjectStorage
	archive  ports.ObjectStorage
	ingestor ports.DocumentIngestor
	cascade  ports.ClassificationCascade
	entities ports.EntityExtractor
	docs     ports.DocumentRepository
	mentions ports.MentionRepository
	scans    *ScanUseCase
	logger   *slog.Logger

	storageAttempts int
}

func NewProcessUseCase(
	source ports.ObjectStorage,
	archive ports.ObjectStorage,
	ingestor ports.DocumentIngestor,
	cascade ports.ClassificationCascade,
	entities ports.EntityExtractor,
	docs ports.DocumentRepository,
	mentions ports.MentionRepository,
	scans *ScanUseCase,
	storageAttempts int,
	logger *slog.Logger,
) *ProcessUseCase {
	if storageAttempts <= 0 {
		storageAttempts = 3
	}
	return &ProcessUseCase{
		source:          source,
		archive:         archive,
		ingestor:        ingestor,
		cascade:         cascade,
		entities:        entities,
		docs:            docs,
		mentions:        mentions,
		scans:           scans,
		storageAttempts: storageAttempts,
		logger:          logger,
	}
}

// Process is the queue handler for one document job. Delivery is
// at-least-once; the ingestion dedup and the freshness checks downstream keep
// redelivery effect-free.
func (uc *ProcessUseCase) Process(ctx context.Context, job domain.DocumentJob) error {
	content, err := uc.readSource(ctx, job.StorageKey)
	if err != nil {
		uc.finish(ctx, job, err)
		return err
	}

	result, err := uc.ingestor.Ingest(ctx, job.CompanyID, content, job)
	if err != nil {
		uc.finish(ctx, job, err)
		return err
	}

	if result.Existed {
		// Duplicate content under an existing ownership: no redundant
		// classification or extraction, the scan is notified directly.
		uc.logger.Info("document_already_processed",
			"document_id", result.DocumentID,
			"scan_id", job.ScanID,
		)
		uc.finish(ctx, job, nil)
		return nil
	}

	jobErr := uc.fanOut(ctx, content, result)
	uc.finish(ctx, job, jobErr)
	return jobErr
}

// fanOut dispatches the three per-document jobs and joins on all terminal
// outcomes. Errors are captured per job; siblings always run to completion.
func (uc *ProcessUseCase) fanOut(ctx context.Context, content []byte, result ports.IngestResult) error {
	names := [3]string{"store", "classify", "extract_entities"}
	errs := [3]error{}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		errs[0] = uc.storeBytes(ctx, content, result.DocumentID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = uc.cascade.Classify(ctx, result.DocumentID, result.OwnershipID)
	}()
	go func() {
		defer wg.Done()
		errs[2] = uc.extractEntities(ctx, result.DocumentID)
	}()
	wg.Wait()

	var jobErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		uc.logger.Error("document_job_failed",
			"job", names[i],
			"document_id", result.DocumentID,
			"error", err,
		)
		if jobErr == nil {
			jobErr = fmt.Errorf("%s job: %w", names[i], err)
		}
	}
	return jobErr
}

// storeBytes persists the raw bytes to the archive, retrying transient
// storage failures up to the configured bound. Exhausted retries surface
// through the normal failure path, not escalated specially.
func (uc *ProcessUseCase) storeBytes(ctx context.Context, content []byte, documentID string) error {
	var err error
	for attempt := 1; attempt <= uc.storageAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = uc.archive.Store(ctx, documentID, bytes.NewReader(content))
		if err == nil {
			return nil
		}
		if !domain.IsKind(err, domain.ErrStorageFailure) {
			return err
		}
		uc.logger.Warn("store_retry",
			"document_id", documentID,
			"attempt", attempt,
			"max_attempts", uc.storageAttempts,
			"error", err,
		)
	}
	return err
}

func (uc *ProcessUseCase) extractEntities(ctx context.Context, documentID string) error {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document for entity extraction: %w", err)
	}

	found := uc.entities.Extract(doc.Text)
	if len(found) == 0 {
		return nil
	}
	mentions := make([]domain.Mention, 0, len(found))
	for _, m := range found {
		m.ID = uuid.NewString()
		m.DocumentID = documentID
		mentions = append(mentions, m)
	}
	if err := uc.mentions.CreateMentions(ctx, mentions); err != nil {
		return fmt.Errorf("persist mentions: %w", err)
	}
	return nil
}

// finish is the always-run progress hook: it reports the terminal outcome to
// the scan exactly once per document.
func (uc *ProcessUseCase) finish(ctx context.Context, job domain.DocumentJob, jobErr error) {
	if err := uc.scans.DocumentCompleted(ctx, job.ScanID, jobErr == nil); err != nil {
		uc.logger.Error("scan_progress_failed",
			"scan_id", job.ScanID,
			"error", err,
		)
	}
}

func (uc *ProcessUseCase) readSource(ctx context.Context, key string) ([]byte, error) {
	reader, err := uc.source.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read source bytes: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source bytes: %w", err)
	}
	return content, nil
}
