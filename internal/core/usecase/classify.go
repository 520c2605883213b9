package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/core/ports"
)

// ModelCache is a process-lifetime, read-mostly cache of loaded classifiers
// keyed by language (root models) and category identity. It is an explicit
// object owned by the worker wiring, not ambient state, so tests can inject
// pre-populated models. A miss loads synchronously and stores before
// returning; load failures are not retried and propagate as fatal for the
// classification job.
type ModelCache struct {
	store ports.ModelStore

	mu       sync.Mutex
	root     map[string]ports.Classifier
	category map[string]ports.Classifier
}

func NewModelCache(store ports.ModelStore) *ModelCache {
	return &ModelCache{
		store:    store,
		root:     make(map[string]ports.Classifier),
		category: make(map[string]ports.Classifier),
	}
}

func (c *ModelCache) Root(ctx context.Context, language string) (ports.Classifier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if clf, ok := c.root[language]; ok {
		return clf, nil
	}
	clf, err := c.store.LoadRoot(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("load root classifier %q: %w", language, err)
	}
	c.root[language] = clf
	return clf, nil
}

func (c *ModelCache) Category(ctx context.Context, category string) (ports.Classifier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if clf, ok := c.category[category]; ok {
		return clf, nil
	}
	clf, err := c.store.LoadCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("load category classifier %q: %w", category, err)
	}
	c.category[category] = clf
	return clf, nil
}

// ClassifyUseCase walks the taxonomy: a root model for the document's
// language, then category-specific models while one exists for the current
// leaf. Human-validated documents short-circuit the walk entirely.
type ClassifyUseCase struct {
	docs            ports.DocumentRepository
	models          ports.ModelStore
	cache           *ModelCache
	defaultLanguage string
	logger          *slog.Logger
}

func NewClassifyUseCase(
	docs ports.DocumentRepository,
	models ports.ModelStore,
	cache *ModelCache,
	defaultLanguage string,
	logger *slog.Logger,
) *ClassifyUseCase {
	return &ClassifyUseCase{
		docs:            docs,
		models:          models,
		cache:           cache,
		defaultLanguage: defaultLanguage,
		logger:          logger,
	}
}

func (uc *ClassifyUseCase) Classify(ctx context.Context, documentID, ownershipID string) ([]domain.Classification, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.Text == "" {
		return nil, fmt.Errorf("no text on document %s", documentID)
	}

	// Validation is sticky: a human-confirmed chain is returned unchanged
	// and no model is invoked.
	if doc.Validated {
		chain, err := uc.docs.ValidatedChain(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("load validated chain: %w", err)
		}
		return chain, nil
	}

	language := doc.Language
	if language == "" {
		language = uc.defaultLanguage
	}

	chain, err := uc.walk(ctx, doc, language)
	if err != nil {
		return nil, err
	}
	if err := uc.docs.SaveClassifications(ctx, documentID, chain); err != nil {
		return nil, fmt.Errorf("save classification chain: %w", err)
	}

	if err := uc.assignGroups(ctx, doc, ownershipID); err != nil {
		return nil, err
	}

	uc.logger.Info("document_classified",
		"document_id", documentID,
		"depth", len(chain),
		"leaf", chain[len(chain)-1].Category,
	)
	return chain, nil
}

func (uc *ClassifyUseCase) walk(ctx context.Context, doc *domain.Document, language string) ([]domain.Classification, error) {
	root, err := uc.cache.Root(ctx, language)
	if err != nil {
		return nil, err
	}
	prediction, err := root.Predict(doc.Text, doc.Name)
	if err != nil {
		return nil, fmt.Errorf("root prediction: %w", err)
	}

	chain := []domain.Classification{makeClassification(prediction)}
	category := prediction.Label

	// Descend while a category-specific model exists for the current leaf;
	// this bounds the walk to the taxonomy's depth.
	for uc.models.HasCategory(category) {
		clf, err := uc.cache.Category(ctx, category)
		if err != nil {
			return nil, err
		}
		prediction, err = clf.Predict(doc.Text, doc.Name)
		if err != nil {
			return nil, fmt.Errorf("category prediction for %q: %w", category, err)
		}
		chain = append(chain, makeClassification(prediction))
		category = prediction.Label
	}
	return chain, nil
}

// assignGroups applies the owning context's access-group policy as a side
// effect when the document has none assigned yet.
func (uc *ClassifyUseCase) assignGroups(ctx context.Context, doc *domain.Document, ownershipID string) error {
	if len(doc.AccessGroups) > 0 || ownershipID == "" {
		return nil
	}
	folder, err := uc.docs.LatestTrackedFolder(ctx, ownershipID)
	if err != nil {
		return fmt.Errorf("resolve tracked folder policy: %w", err)
	}
	if folder == nil || len(folder.AccessGroups) == 0 {
		return nil
	}
	if err := uc.docs.AssignGroups(ctx, doc.ID, folder.AccessGroups); err != nil {
		return fmt.Errorf("assign access groups: %w", err)
	}
	return nil
}

func makeClassification(p ports.Prediction) domain.Classification {
	return domain.Classification{
		Category:     p.Label,
		Confidence:   p.Confidence(),
		ClassifierID: p.ClassifierID,
		Timestamp:    time.Now().UTC(),
		Validated:    false,
	}
}
