package usecase

import (
	"context"
	"reflect"
	"testing"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

type personRepoFake struct {
	people []domain.GDPRPerson
}

func (f *personRepoFake) ListPersons(context.Context, string) ([]domain.GDPRPerson, error) {
	return f.people, nil
}

type riskRepoFake struct {
	high []domain.RiskAggregate
	low  []domain.RiskAggregate
}

func (f *riskRepoFake) ReplaceCompanyResults(_ context.Context, _ string, high, low []domain.RiskAggregate) (int, error) {
	f.high = high
	f.low = low
	return len(high) + len(low), nil
}

type searchIndexFake struct {
	streams []domain.ResultStream
	err     error
}

func (f *searchIndexFake) QueryStreams(context.Context, string, []domain.GDPRPerson) ([]domain.ResultStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.streams, nil
}

func newAggregateFixture(streams []domain.ResultStream) (*AggregateUseCase, *riskRepoFake, *mentionRepoFake) {
	risks := &riskRepoFake{}
	mentions := newMentionRepoFake()
	uc := NewAggregateUseCase(
		&personRepoFake{people: []domain.GDPRPerson{{Name: "Jens Hansen", Relation: domain.RelationEmployee}}},
		mentions,
		risks,
		&searchIndexFake{streams: streams},
		testLogger(),
	)
	return uc, risks, mentions
}

func markMention(mentions *mentionRepoFake, kind domain.MentionKind, documentIDs ...string) {
	if mentions.byKind[kind] == nil {
		mentions.byKind[kind] = make(map[string]struct{})
	}
	for _, id := range documentIDs {
		mentions.byKind[kind][id] = struct{}{}
	}
}

func emptyStreams() []domain.ResultStream {
	return []domain.ResultStream{
		{Kind: domain.StreamPersonExact},
		{Kind: domain.StreamPersonPartial},
		{Kind: domain.StreamCommonName},
	}
}

func TestAggregateExactKeywordMatchIsHigh(t *testing.T) {
	streams := emptyStreams()
	streams[0].HighRisk = []domain.SearchMatch{
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee, Keyword: "diagnose"},
	}
	uc, risks, _ := newAggregateFixture(streams)

	high, low, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(high) != 1 || len(low) != 0 {
		t.Fatalf("expected 1 high / 0 risk, got %d/%d", len(high), len(low))
	}
	agg := high[0]
	if agg.Tier != domain.TierHigh || agg.DocumentID != "d1" {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	if len(agg.Persons) != 1 || agg.Persons[0].Name != "Jens Hansen" {
		t.Fatalf("expected person evidence, got %+v", agg.Persons)
	}
	if len(agg.Keywords) != 1 || agg.Keywords[0] != "diagnose" {
		t.Fatalf("expected keyword evidence, got %v", agg.Keywords)
	}
	if len(risks.high) != 1 {
		t.Fatalf("expected persisted high results, got %d", len(risks.high))
	}
}

func TestAggregateIDNumberDominates(t *testing.T) {
	streams := emptyStreams()
	// Name-only partial evidence would normally land in the Risk tier.
	streams[1].Risk = []domain.SearchMatch{
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee},
	}
	uc, _, mentions := newAggregateFixture(streams)
	markMention(mentions, domain.MentionCPR, "d1", "d2")

	high, low, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(low) != 0 {
		t.Fatalf("id-number documents must never sit in the risk tier, got %d", len(low))
	}
	if len(high) != 2 {
		t.Fatalf("expected both id-number documents high, got %d", len(high))
	}
	for _, agg := range high {
		if !agg.HasIDNumber || agg.Tier != domain.TierHigh {
			t.Fatalf("expected id-number high aggregate, got %+v", agg)
		}
	}
}

func TestAggregatePartialOnlyIsRisk(t *testing.T) {
	streams := emptyStreams()
	streams[1].Risk = []domain.SearchMatch{
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee, MatchRange: &domain.Span{Start: 0, End: 4}},
	}
	uc, _, _ := newAggregateFixture(streams)

	high, low, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(high) != 0 || len(low) != 1 {
		t.Fatalf("expected 0 high / 1 risk, got %d/%d", len(high), len(low))
	}
	if low[0].Persons[0].MatchRange == nil {
		t.Fatalf("expected match range preserved on partial evidence")
	}
}

func TestAggregateUnionsEvidenceAcrossStreams(t *testing.T) {
	streams := emptyStreams()
	streams[0].HighRisk = []domain.SearchMatch{
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee, Keyword: "diagnose"},
	}
	streams[1].Risk = []domain.SearchMatch{
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee},
	}
	streams[2].Risk = []domain.SearchMatch{
		{DocumentID: "d1", Keyword: "jens"},
	}
	uc, _, _ := newAggregateFixture(streams)

	high, low, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(high) != 1 || len(low) != 0 {
		t.Fatalf("expected one merged high aggregate, got %d/%d", len(high), len(low))
	}
	agg := high[0]
	if len(agg.Persons) != 1 {
		t.Fatalf("expected deduplicated person evidence, got %+v", agg.Persons)
	}
	if !reflect.DeepEqual(agg.Keywords, []string{"diagnose", "jens"}) {
		t.Fatalf("expected unioned sorted keywords, got %v", agg.Keywords)
	}
}

func TestAggregatePhoneFlagsWithoutEscalating(t *testing.T) {
	streams := emptyStreams()
	streams[1].Risk = []domain.SearchMatch{
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee},
	}
	uc, _, mentions := newAggregateFixture(streams)
	// d1 has matched evidence; d2 has a phone number and nothing else.
	markMention(mentions, domain.MentionPhone, "d1", "d2")

	high, low, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(high) != 0 {
		t.Fatalf("phone evidence must not escalate, got %d high", len(high))
	}
	if len(low) != 1 {
		t.Fatalf("expected only the matched document, got %d", len(low))
	}
	if !low[0].HasPhone {
		t.Fatalf("expected phone flag on matched document")
	}
}

func TestAggregateUnknownStreamAborts(t *testing.T) {
	streams := []domain.ResultStream{{Kind: domain.StreamKind(99)}}
	uc, risks, _ := newAggregateFixture(streams)

	_, _, err := uc.Aggregate(context.Background(), "c1")
	if !domain.IsKind(err, domain.ErrUnknownStream) {
		t.Fatalf("expected ErrUnknownStream, got %v", err)
	}
	if risks.high != nil || risks.low != nil {
		t.Fatalf("aborted run must not persist results")
	}
}

func TestAggregateRerunIsDeterministic(t *testing.T) {
	streams := emptyStreams()
	streams[0].HighRisk = []domain.SearchMatch{
		{DocumentID: "d2", Name: "Jens Hansen", Relation: domain.RelationEmployee, Keyword: "opsigelse"},
		{DocumentID: "d1", Name: "Jens Hansen", Relation: domain.RelationEmployee, Keyword: "diagnose"},
	}
	uc, _, _ := newAggregateFixture(streams)

	firstHigh, _, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("first Aggregate() error = %v", err)
	}
	secondHigh, _, err := uc.Aggregate(context.Background(), "c1")
	if err != nil {
		t.Fatalf("second Aggregate() error = %v", err)
	}
	if !reflect.DeepEqual(firstHigh, secondHigh) {
		t.Fatalf("re-run over identical evidence diverged:\n%+v\n%+v", firstHigh, secondHigh)
	}
	if firstHigh[0].DocumentID != "d1" || firstHigh[1].DocumentID != "d2" {
		t.Fatalf("expected deterministic document order, got %+v", firstHigh)
	}
}
