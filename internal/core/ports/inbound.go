package ports

import (
	"context"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

// IngestResult reports the outcome of the atomic ingestion unit.
type IngestResult struct {
	Existed     bool
	DocumentID  string
	OwnershipID string
}

// DocumentIngestor is the inbound contract for content-addressed ingestion.
type DocumentIngestor interface {
	Ingest(ctx context.Context, companyID string, content []byte, job domain.DocumentJob) (IngestResult, error)
}

// DocumentProcessor drives one document through ingestion, the fanned-out
// jobs and scan progress accounting.
type DocumentProcessor interface {
	Process(ctx context.Context, job domain.DocumentJob) error
}

// ScanLifecycle is the inbound contract the crawler uses around dispatching.
type ScanLifecycle interface {
	StartScan(ctx context.Context, scan *domain.Scan) error
	DispatchDocument(ctx context.Context, job domain.DocumentJob) error
	FinishCounting(ctx context.Context, scanID string, total int) error
}

// ClassificationCascade walks the taxonomy tree for one document.
type ClassificationCascade interface {
	Classify(ctx context.Context, documentID, ownershipID string) ([]domain.Classification, error)
}

// RiskAggregator recomputes the company's risk report.
type RiskAggregator interface {
	Aggregate(ctx context.Context, companyID string) (high, low []domain.RiskAggregate, err error)
}
