package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/core/ports"
)

// AggregateUseCase merges the independent search result streams plus the
// cached entity mentions into two risk tiers per document. ID-number evidence
// dominates: a document with a national-ID mention lands in the High bucket
// no matter which stream produced the evidence. Results are rebuilt from
// scratch every run and persisted as an atomic full replace behind a
// freshness gate.
type AggregateUseCase struct {
	persons  ports.PersonRepository
	mentions ports.MentionRepository
	risks    ports.RiskRepository
	search   ports.SearchIndex
	logger   *slog.Logger
}

func NewAggregateUseCase(
	persons ports.PersonRepository,
	mentions ports.MentionRepository,
	risks ports.RiskRepository,
	search ports.SearchIndex,
	logger *slog.Logger,
) *AggregateUseCase {
	return &AggregateUseCase{
		persons:  persons,
		mentions: mentions,
		risks:    risks,
		search:   search,
		logger:   logger,
	}
}

// merger holds the two buckets of one aggregation run. A document occupies
// exactly one bucket; High evidence migrates an existing Risk entry instead
// of duplicating it, so the tier is monotonic within the run.
type merger struct {
	companyID string
	cprDocs   map[string]struct{}
	high      map[string]*domain.RiskAggregate
	risk      map[string]*domain.RiskAggregate
}

func newMerger(companyID string, cprDocs map[string]struct{}) *merger {
	return &merger{
		companyID: companyID,
		cprDocs:   cprDocs,
		high:      make(map[string]*domain.RiskAggregate),
		risk:      make(map[string]*domain.RiskAggregate),
	}
}

func (m *merger) ensureHigh(documentID string) *domain.RiskAggregate {
	if agg, ok := m.high[documentID]; ok {
		return agg
	}
	// Promote instead of duplicating when the document already sits in the
	// lower tier.
	if agg, ok := m.risk[documentID]; ok {
		delete(m.risk, documentID)
		agg.Tier = domain.TierHigh
		m.high[documentID] = agg
		return agg
	}
	agg := &domain.RiskAggregate{DocumentID: documentID, CompanyID: m.companyID, Tier: domain.TierHigh}
	m.high[documentID] = agg
	return agg
}

func (m *merger) ensureRisk(documentID string) *domain.RiskAggregate {
	if _, ok := m.cprDocs[documentID]; ok {
		return m.ensureHigh(documentID)
	}
	if agg, ok := m.high[documentID]; ok {
		return agg
	}
	if agg, ok := m.risk[documentID]; ok {
		return agg
	}
	agg := &domain.RiskAggregate{DocumentID: documentID, CompanyID: m.companyID, Tier: domain.TierRisk}
	m.risk[documentID] = agg
	return agg
}

func (m *merger) mergePersonHigh(result domain.SearchMatch) {
	agg := m.ensureHigh(result.DocumentID)
	agg.AddPerson(domain.PersonEvidence{Name: result.Name, Relation: result.Relation, MatchRange: result.MatchRange})
	agg.AddKeyword(result.Keyword)
}

func (m *merger) mergePersonRisk(result domain.SearchMatch) {
	agg := m.ensureRisk(result.DocumentID)
	agg.AddPerson(domain.PersonEvidence{Name: result.Name, Relation: result.Relation, MatchRange: result.MatchRange})
	agg.AddKeyword(result.Keyword)
}

// Common-name evidence carries keywords only; a bare common first name is not
// person evidence.
func (m *merger) mergeCommonNameHigh(result domain.SearchMatch) {
	m.ensureHigh(result.DocumentID).AddKeyword(result.Keyword)
}

func (m *merger) mergeCommonNameRisk(result domain.SearchMatch) {
	m.ensureRisk(result.DocumentID).AddKeyword(result.Keyword)
}

// mergeStream is the closed dispatch over the fixed enumeration of stream
// kinds. Anything outside it is a programming or configuration error and
// aborts the run.
func (m *merger) mergeStream(stream domain.ResultStream) error {
	switch stream.Kind {
	case domain.StreamPersonExact, domain.StreamPersonPartial:
		for _, result := range stream.HighRisk {
			m.mergePersonHigh(result)
		}
		for _, result := range stream.Risk {
			m.mergePersonRisk(result)
		}
	case domain.StreamCommonName:
		for _, result := range stream.HighRisk {
			m.mergeCommonNameHigh(result)
		}
		for _, result := range stream.Risk {
			m.mergeCommonNameRisk(result)
		}
	default:
		return domain.WrapError(domain.ErrUnknownStream, "merge stream", fmt.Errorf("kind %d", stream.Kind))
	}
	return nil
}

func (uc *AggregateUseCase) Aggregate(ctx context.Context, companyID string) ([]domain.RiskAggregate, []domain.RiskAggregate, error) {
	people, err := uc.persons.ListPersons(ctx, companyID)
	if err != nil {
		return nil, nil, fmt.Errorf("list gdpr persons: %w", err)
	}

	// The query streams and the cached mention lookups are independent
	// reads; run them concurrently.
	var (
		streams   []domain.ResultStream
		cprDocs   map[string]struct{}
		phoneDocs map[string]struct{}
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		streams, err = uc.search.QueryStreams(groupCtx, companyID, people)
		if err != nil {
			return fmt.Errorf("query streams: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		cprDocs, err = uc.mentions.DocumentIDsWithMention(groupCtx, companyID, domain.MentionCPR)
		if err != nil {
			return fmt.Errorf("lookup id-number documents: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		phoneDocs, err = uc.mentions.DocumentIDsWithMention(groupCtx, companyID, domain.MentionPhone)
		if err != nil {
			return fmt.Errorf("lookup phone documents: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	m := newMerger(companyID, cprDocs)
	for _, stream := range streams {
		if err := m.mergeStream(stream); err != nil {
			return nil, nil, err
		}
	}

	// Every ID-number document is High even without any name match.
	for documentID := range cprDocs {
		m.ensureHigh(documentID).HasIDNumber = true
	}
	// Phone evidence is flagged in place; it never escalates by itself.
	for documentID := range phoneDocs {
		if agg, ok := m.high[documentID]; ok {
			agg.HasPhone = true
		}
		if agg, ok := m.risk[documentID]; ok {
			agg.HasPhone = true
		}
	}

	high := collect(m.high)
	low := collect(m.risk)

	persisted, err := uc.risks.ReplaceCompanyResults(ctx, companyID, high, low)
	if err != nil {
		return nil, nil, fmt.Errorf("persist risk results: %w", err)
	}
	uc.logger.Info("aggregation_done",
		"company_id", companyID,
		"high", len(high),
		"risk", len(low),
		"persisted", persisted,
	)
	return high, low, nil
}

// collect flattens a bucket deterministically so re-runs over identical
// evidence reproduce identical output.
func collect(bucket map[string]*domain.RiskAggregate) []domain.RiskAggregate {
	out := make([]domain.RiskAggregate, 0, len(bucket))
	for _, agg := range bucket {
		sort.Strings(agg.Keywords)
		sort.Slice(agg.Persons, func(i, j int) bool {
			if agg.Persons[i].Name != agg.Persons[j].Name {
				return agg.Persons[i].Name < agg.Persons[j].Name
			}
			return agg.Persons[i].Relation < agg.Persons[j].Relation
		})
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}
