package ports

import (
	"context"
	"io"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

// DocumentRepository persists documents, ownership links and classifications.
type DocumentRepository interface {
	// CreateWithOwnership performs the atomic ingestion unit: look up an
	// existing document by (company, fingerprint, name), create it if absent,
	// and always create the ownership link. Rolls back as a whole on error.
	CreateWithOwnership(ctx context.Context, doc *domain.Document, link *domain.OwnershipLink) (existed bool, documentID, ownershipID string, err error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	SaveClassifications(ctx context.Context, documentID string, chain []domain.Classification) error
	ValidatedChain(ctx context.Context, documentID string) ([]domain.Classification, error)
	AssignGroups(ctx context.Context, documentID string, groups []string) error
	GetTrackedFolder(ctx context.Context, id string) (*domain.TrackedFolder, error)
	// LatestTrackedFolder returns the most recent tracked folder attached to
	// an ownership link, or nil when there is none.
	LatestTrackedFolder(ctx context.Context, ownershipID string) (*domain.TrackedFolder, error)
}

// ScanRepository tracks scan lifecycle and the remaining-document counter.
type ScanRepository interface {
	Create(ctx context.Context, scan *domain.Scan) error
	GetByID(ctx context.Context, id string) (*domain.Scan, error)
	// AddDispatched bumps the remaining counter as the crawler hands
	// documents to the pipeline.
	AddDispatched(ctx context.Context, id string, n int) error
	// FinishCounting closes the discovery phase, recording the expected
	// total. Returns the remaining count observed by the same statement.
	FinishCounting(ctx context.Context, id string, total int) (remaining int, err error)
	// DecrementRemaining atomically decrements the counter and reports the
	// value it reached together with the scan state. Must be safe under
	// concurrent decrements from many documents of the same scan.
	DecrementRemaining(ctx context.Context, id string) (remaining int, state domain.ScanState, err error)
	// MarkDone transitions the scan to done exactly once; a second call
	// returns domain.ErrAlreadyCompleted.
	MarkDone(ctx context.Context, id string) error
	PendingScans(ctx context.Context, companyID string) (int, error)
}

// MentionRepository persists entity mentions and answers the per-company
// mention lookups that feed risk aggregation.
type MentionRepository interface {
	CreateMentions(ctx context.Context, mentions []domain.Mention) error
	// DocumentIDsWithMention returns ids of fresh documents of the company
	// carrying at least one mention of the given kind.
	DocumentIDsWithMention(ctx context.Context, companyID string, kind domain.MentionKind) (map[string]struct{}, error)
}

// PersonRepository reads the company's GDPR persons of interest.
type PersonRepository interface {
	ListPersons(ctx context.Context, companyID string) ([]domain.GDPRPerson, error)
}

// RiskRepository persists aggregation results with the full-replace contract.
type RiskRepository interface {
	// ReplaceCompanyResults deletes all prior risk results for the company
	// and inserts the fresh set in one transaction, skipping aggregates whose
	// document is no longer fresh. Returns the number persisted.
	ReplaceCompanyResults(ctx context.Context, companyID string, high, low []domain.RiskAggregate) (int, error)
}

// ObjectStorage stores and retrieves raw document bytes.
type ObjectStorage interface {
	Store(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries per-document jobs with at-least-once delivery.
type MessageQueue interface {
	PublishDocumentJob(ctx context.Context, job domain.DocumentJob) error
	SubscribeDocumentJobs(ctx context.Context, handler func(context.Context, domain.DocumentJob) error) error
}

// SearchIndex runs the fixed GDPR query styles against the company's text
// index. No ordering is assumed from the index.
type SearchIndex interface {
	QueryStreams(ctx context.Context, companyID string, people []domain.GDPRPerson) ([]domain.ResultStream, error)
}

// TextExtractor turns raw bytes into plain text. The language hint is used on
// the one retry ingestion performs for non-default languages.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte, extension, languageHint string) (string, error)
}

// LanguageDetector reports the dominant language of a text with confidence.
type LanguageDetector interface {
	Detect(text string) (code string, confidence float64)
}

// EntityExtractor scans text for pattern-based entities. Pure function over
// text, no shared state.
type EntityExtractor interface {
	Extract(text string) []domain.Mention
}

// Prediction is one classifier verdict with per-class probabilities.
type Prediction struct {
	Label         string
	Probabilities map[string]float64
	ClassifierID  string
}

func (p Prediction) Confidence() float64 {
	return p.Probabilities[p.Label]
}

// Classifier applies an already-trained model. Training is out of scope.
type Classifier interface {
	Predict(text, title string) (Prediction, error)
	ID() string
}

// ModelStore loads trained classifier artifacts by language or category key.
type ModelStore interface {
	LoadRoot(ctx context.Context, language string) (Classifier, error)
	LoadCategory(ctx context.Context, category string) (Classifier, error)
	// HasCategory bounds the cascade walk to the taxonomy's depth.
	HasCategory(category string) bool
}

// Notifier is a fire-and-forget sink; delivery failures are logged, never
// returned.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any, userID string)
}
