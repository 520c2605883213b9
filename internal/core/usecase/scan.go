package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/core/ports"
)

const aggregationTimeout = 30 * time.Minute

// ScanUseCase drives the per-scan state machine: Started while the crawler is
// discovering files, Counting once the expected total is known, Done when the
// remaining counter hits zero. Completion fires the debounced company-wide
// risk aggregation.
type ScanUseCase struct {
	scans      ports.ScanRepository
	queue      ports.MessageQueue
	notifier   ports.Notifier
	aggregator ports.RiskAggregator
	debounce   *Debouncer
	delay      time.Duration
	logger     *slog.Logger
}

func NewScanUseCase(
	scans ports.ScanRepository,
	queue ports.MessageQueue,
	notifier ports.Notifier,
	aggregator ports.RiskAggregator,
	debounce *Debouncer,
	delay time.Duration,
	logger *slog.Logger,
) *ScanUseCase {
	return &ScanUseCase{
		scans:      scans,
		queue:      queue,
		notifier:   notifier,
		aggregator: aggregator,
		debounce:   debounce,
		delay:      delay,
		logger:     logger,
	}
}

func (uc *ScanUseCase) StartScan(ctx context.Context, scan *domain.Scan) error {
	scan.State = domain.ScanStarted
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}
	if err := uc.scans.Create(ctx, scan); err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	uc.notifier.Notify(ctx, "integration_started", map[string]any{
		"scan_id": scan.ID,
		"source":  scan.SourceType,
	}, scan.UserID)
	return nil
}

// DispatchDocument registers one discovered file with the scan counter and
// hands it to the pipeline queue. The counter bump precedes the publish so a
// fast worker can never decrement below zero.
func (uc *ScanUseCase) DispatchDocument(ctx context.Context, job domain.DocumentJob) error {
	if err := uc.scans.AddDispatched(ctx, job.ScanID, 1); err != nil {
		return fmt.Errorf("register dispatched document: %w", err)
	}
	if err := uc.queue.PublishDocumentJob(ctx, job); err != nil {
		return fmt.Errorf("publish document job: %w", err)
	}
	return nil
}

// FinishCounting closes the discovery phase. When every dispatched document
// already reported a terminal outcome the scan completes here, closing the
// race between "still discovering files" and "already finished processing".
func (uc *ScanUseCase) FinishCounting(ctx context.Context, scanID string, total int) error {
	remaining, err := uc.scans.FinishCounting(ctx, scanID, total)
	if err != nil {
		if domain.IsKind(err, domain.ErrAlreadyCompleted) {
			return nil
		}
		return fmt.Errorf("finish counting: %w", err)
	}
	if remaining == 0 {
		if err := uc.completeScan(ctx, scanID); err != nil && !domain.IsKind(err, domain.ErrAlreadyCompleted) {
			return err
		}
	}
	return nil
}

// DocumentCompleted runs exactly once per document, success or failure. The
// decrement is a single atomically-updated statement; two near-simultaneous
// completions can never both observe "not yet zero" for the last document.
func (uc *ScanUseCase) DocumentCompleted(ctx context.Context, scanID string, success bool) error {
	remaining, state, err := uc.scans.DecrementRemaining(ctx, scanID)
	if err != nil {
		return fmt.Errorf("decrement scan counter: %w", err)
	}
	uc.logger.Debug("scan_progress",
		"scan_id", scanID,
		"remaining", remaining,
		"success", success,
	)
	if remaining == 0 && state == domain.ScanCounting {
		if err := uc.completeScan(ctx, scanID); err != nil && !domain.IsKind(err, domain.ErrAlreadyCompleted) {
			return err
		}
	}
	return nil
}

// completeScan transitions the scan to done exactly once. A concurrent
// duplicate evaluation observes ErrAlreadyCompleted and takes no further
// action.
func (uc *ScanUseCase) completeScan(ctx context.Context, scanID string) error {
	if err := uc.scans.MarkDone(ctx, scanID); err != nil {
		return err
	}

	scan, err := uc.scans.GetByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load completed scan: %w", err)
	}
	uc.logger.Info("scan_done", "scan_id", scanID, "total", scan.Total)
	uc.notifier.Notify(ctx, "integration_done", map[string]any{
		"scan_id": scan.ID,
		"source":  scan.SourceType,
		"total":   scan.Total,
	}, scan.UserID)

	pending, err := uc.scans.PendingScans(ctx, scan.CompanyID)
	if err != nil {
		return fmt.Errorf("count pending scans: %w", err)
	}
	if pending > 0 {
		return nil
	}

	uc.notifier.Notify(ctx, "all_integrations_done", map[string]any{
		"company_id": scan.CompanyID,
	}, scan.UserID)
	uc.triggerAggregation(scan.CompanyID, scan.UserID)
	return nil
}

// triggerAggregation issues the debounced re-aggregation request with
/// revoke-then-send semantics: any queued, not-yet-started request for the
// same target is cancelled before the new one is enqueued.
func (uc *ScanUseCase) triggerAggregation(companyID, userID string) {
	uc.debounce.Cancel("gdpr:user:" + userID)
	uc.debounce.Schedule("gdpr:company:"+companyID, uc.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), aggregationTimeout)
		defer cancel()
		if _, _, err := uc.aggregator.Aggregate(ctx, companyID); err != nil {
			uc.logger.Error("aggregation_failed", "company_id", companyID, "error", err)
		}
	})
}
