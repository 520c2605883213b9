package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

// scanRepoFake mimics the repository's atomic counter semantics in memory.
type scanRepoFake struct {
	mu    sync.Mutex
	scans map[string]*domain.Scan
}

func newScanRepoFake() *scanRepoFake {
	return &scanRepoFake{scans: make(map[string]*domain.Scan)}
}

func (f *scanRepoFake) Create(_ context.Context, scan *domain.Scan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyScan := *scan
	f.scans[scan.ID] = &copyScan
	return nil
}

func (f *scanRepoFake) GetByID(_ context.Context, id string) (*domain.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrScanNotFound, "get scan", fmt.Errorf("id %s", id))
	}
	copyScan := *scan
	return &copyScan, nil
}

func (f *scanRepoFake) AddDispatched(_ context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return domain.WrapError(domain.ErrScanNotFound, "add dispatched", fmt.Errorf("id %s", id))
	}
	scan.Remaining += n
	return nil
}

func (f *scanRepoFake) FinishCounting(_ context.Context, id string, total int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return 0, domain.WrapError(domain.ErrScanNotFound, "finish counting", fmt.Errorf("id %s", id))
	}
	if scan.State == domain.ScanDone {
		return 0, domain.WrapError(domain.ErrAlreadyCompleted, "finish counting", fmt.Errorf("scan %s", id))
	}
	scan.State = domain.ScanCounting
	scan.Total = total
	return scan.Remaining, nil
}

func (f *scanRepoFake) DecrementRemaining(_ context.Context, id string) (int, domain.ScanState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok || scan.Remaining <= 0 {
		return 0, "", fmt.Errorf("decrement remaining: scan %s has no outstanding documents", id)
	}
	scan.Remaining--
	return scan.Remaining, scan.State, nil
}

func (f *scanRepoFake) MarkDone(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return domain.WrapError(domain.ErrScanNotFound, "mark done", fmt.Errorf("id %s", id))
	}
	if scan.State == domain.ScanDone {
		return domain.WrapError(domain.ErrAlreadyCompleted, "mark done", fmt.Errorf("scan %s", id))
	}
	scan.State = domain.ScanDone
	return nil
}

func (f *scanRepoFake) PendingScans(_ context.Context, companyID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := 0
	for _, scan := range f.scans {
		if scan.CompanyID == companyID && scan.State != domain.ScanDone {
			pending++
		}
	}
	return pending, nil
}

type queueFake struct {
	mu   sync.Mutex
	jobs []domain.DocumentJob
}

func (f *queueFake) PublishDocumentJob(_ context.Context, job domain.DocumentJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *queueFake) SubscribeDocumentJobs(context.Context, func(context.Context, domain.DocumentJob) error) error {
	return nil
}

type notifierFake struct {
	mu     sync.Mutex
	events []string
}

func (f *notifierFake) Notify(_ context.Context, event string, _ map[string]any, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *notifierFake) got(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type aggregatorFake struct {
	mu   sync.Mutex
	runs int
	done chan struct{}
}

func newAggregatorFake() *aggregatorFake {
	return &aggregatorFake{done: make(chan struct{}, 16)}
}

func (f *aggregatorFake) Aggregate(context.Context, string) ([]domain.RiskAggregate, []domain.RiskAggregate, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil, nil, nil
}

func (f *aggregatorFake) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func newScanFixture(delay time.Duration) (*ScanUseCase, *scanRepoFake, *notifierFake, *aggregatorFake) {
	repo := newScanRepoFake()
	notifier := &notifierFake{}
	aggregator := newAggregatorFake()
	uc := NewScanUseCase(repo, &queueFake{}, notifier, aggregator, NewDebouncer(), delay, testLogger())
	return uc, repo, notifier, aggregator
}

func startScan(t *testing.T, uc *ScanUseCase, id string) *domain.Scan {
	t.Helper()
	scan := &domain.Scan{ID: id, CompanyID: "c1", UserID: "u1", SourceType: "share"}
	if err := uc.StartScan(context.Background(), scan); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	return scan
}

func TestScanCompletesWhenLastDocumentReports(t *testing.T) {
	uc, repo, notifier, aggregator := newScanFixture(5 * time.Millisecond)
	ctx := context.Background()
	startScan(t, uc, "s1")

	for i := 0; i < 3; i++ {
		if err := uc.DispatchDocument(ctx, domain.DocumentJob{ScanID: "s1", Name: fmt.Sprintf("d%d.txt", i)}); err != nil {
			t.Fatalf("DispatchDocument() error = %v", err)
		}
	}
	if err := uc.FinishCounting(ctx, "s1", 3); err != nil {
		t.Fatalf("FinishCounting() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := uc.DocumentCompleted(ctx, "s1", i != 1); err != nil {
			t.Fatalf("DocumentCompleted() error = %v", err)
		}
	}

	scan, err := repo.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if scan.State != domain.ScanDone || scan.Remaining != 0 {
		t.Fatalf("expected done scan with zero remaining, got %+v", scan)
	}
	if !notifier.got("integration_done") || !notifier.got("all_integrations_done") {
		t.Fatalf("expected completion notifications, got %v", notifier.events)
	}

	select {
	case <-aggregator.done:
	case <-time.After(time.Second):
		t.Fatalf("expected aggregation to run after debounce")
	}
}

func TestScanDoesNotCompleteWhileCountingOpen(t *testing.T) {
	uc, repo, notifier, _ := newScanFixture(time.Millisecond)
	ctx := context.Background()
	startScan(t, uc, "s1")

	if err := uc.DispatchDocument(ctx, domain.DocumentJob{ScanID: "s1", Name: "d0.txt"}); err != nil {
		t.Fatalf("DispatchDocument() error = %v", err)
	}
	// Counter reaches zero while discovery is still open; completion must
	// wait for FinishCounting.
	if err := uc.DocumentCompleted(ctx, "s1", true); err != nil {
		t.Fatalf("DocumentCompleted() error = %v", err)
	}
	scan, _ := repo.GetByID(ctx, "s1")
	if scan.State == domain.ScanDone {
		t.Fatalf("scan completed before counting finished")
	}

	if err := uc.FinishCounting(ctx, "s1", 1); err != nil {
		t.Fatalf("FinishCounting() error = %v", err)
	}
	scan, _ = repo.GetByID(ctx, "s1")
	if scan.State != domain.ScanDone {
		t.Fatalf("expected done after FinishCounting on drained counter, got %s", scan.State)
	}
	if !notifier.got("integration_done") {
		t.Fatalf("expected integration_done, got %v", notifier.events)
	}
}

func TestFinishCountingIdempotentAfterDone(t *testing.T) {
	uc, _, _, _ := newScanFixture(time.Millisecond)
	ctx := context.Background()
	startScan(t, uc, "s1")

	if err := uc.DispatchDocument(ctx, domain.DocumentJob{ScanID: "s1", Name: "d0.txt"}); err != nil {
		t.Fatalf("DispatchDocument() error = %v", err)
	}
	if err := uc.DocumentCompleted(ctx, "s1", true); err != nil {
		t.Fatalf("DocumentCompleted() error = %v", err)
	}
	if err := uc.FinishCounting(ctx, "s1", 1); err != nil {
		t.Fatalf("first FinishCounting() error = %v", err)
	}
	// A redelivered close request observes the done state and is a no-op.
	if err := uc.FinishCounting(ctx, "s1", 1); err != nil {
		t.Fatalf("second FinishCounting() error = %v", err)
	}
}

func TestAggregationWaitsForAllCompanyScans(t *testing.T) {
	uc, _, notifier, aggregator := newScanFixture(5 * time.Millisecond)
	ctx := context.Background()
	startScan(t, uc, "s1")
	startScan(t, uc, "s2")

	if err := uc.DispatchDocument(ctx, domain.DocumentJob{ScanID: "s1", Name: "a.txt"}); err != nil {
		t.Fatalf("DispatchDocument() error = %v", err)
	}
	if err := uc.FinishCounting(ctx, "s1", 1); err != nil {
		t.Fatalf("FinishCounting() error = %v", err)
	}
	if err := uc.DocumentCompleted(ctx, "s1", true); err != nil {
		t.Fatalf("DocumentCompleted() error = %v", err)
	}

	if notifier.got("all_integrations_done") {
		t.Fatalf("company-wide completion fired with a scan still pending")
	}

	if err := uc.DispatchDocument(ctx, domain.DocumentJob{ScanID: "s2", Name: "b.txt"}); err != nil {
		t.Fatalf("DispatchDocument() error = %v", err)
	}
	if err := uc.FinishCounting(ctx, "s2", 1); err != nil {
		t.Fatalf("FinishCounting() error = %v", err)
	}
	if err := uc.DocumentCompleted(ctx, "s2", true); err != nil {
		t.Fatalf("DocumentCompleted() error = %v", err)
	}

	select {
	case <-aggregator.done:
	case <-time.After(time.Second):
		t.Fatalf("expected aggregation once all scans finished")
	}
	if !notifier.got("all_integrations_done") {
		t.Fatalf("expected all_integrations_done, got %v", notifier.events)
	}
}

func TestAggregationDebouncedAcrossCompletions(t *testing.T) {
	uc, _, _, aggregator := newScanFixture(50 * time.Millisecond)

	// Two completion bursts for the same company inside the debounce window
	// collapse into one aggregation run.
	uc.triggerAggregation("c1", "u1")
	uc.triggerAggregation("c1", "u1")

	select {
	case <-aggregator.done:
	case <-time.After(time.Second):
		t.Fatalf("expected aggregation to run")
	}

	select {
	case <-aggregator.done:
		t.Fatalf("expected a single aggregation run, got a second")
	case <-time.After(150 * time.Millisecond):
	}
	if aggregator.runCount() != 1 {
		t.Fatalf("expected 1 run, got %d", aggregator.runCount())
	}
}
