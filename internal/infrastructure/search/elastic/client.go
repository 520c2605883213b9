package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/infrastructure/resilience"
)

const (
	scrollKeepAlive = "1m"
	scrollPageSize  = 500
)

// Client runs the fixed GDPR query styles against a per-company text index.
// The index guarantees no ordering; precedence is imposed by the aggregation
// engine, not here.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	logger     *slog.Logger

	languages        []string
	highRiskKeywords map[string][]string
	commonNames      []string
	maxMiddleNames   int
}

type Options struct {
	Languages        []string
	HighRiskKeywords map[string][]string
	CommonNames      []string
	MaxMiddleNames   int
	RequestsPerSec   float64
	Executor         *resilience.Executor
}

func New(baseURL string, options Options, logger *slog.Logger) *Client {
	rps := options.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		limiter:          rate.NewLimiter(rate.Limit(rps), 1),
		executor:         options.Executor,
		logger:           logger,
		languages:        options.Languages,
		highRiskKeywords: options.HighRiskKeywords,
		commonNames:      options.CommonNames,
		maxMiddleNames:   options.MaxMiddleNames,
	}
}

type hit struct {
	ID             string
	Text           string
	Name           string
	MatchedQueries []string
}

// QueryStreams produces the three result streams per company: exact person
// matches, partial person matches, and common-name keyword co-occurrence.
// Each stream splits into the variant co-occurring with high-risk keywords
// and the name-only variant.
func (c *Client) QueryStreams(ctx context.Context, companyID string, people []domain.GDPRPerson) ([]domain.ResultStream, error) {
	exact := domain.ResultStream{Kind: domain.StreamPersonExact}
	partial := domain.ResultStream{Kind: domain.StreamPersonPartial}
	common := domain.ResultStream{Kind: domain.StreamCommonName}

	for _, language := range c.languages {
		keywords := c.highRiskKeywords[language]

		for _, person := range people {
			if err := c.personQueries(ctx, companyID, language, keywords, person, &exact, &partial); err != nil {
				return nil, err
			}
		}

		if err := c.commonNameQueries(ctx, companyID, language, keywords, &common); err != nil {
			return nil, err
		}
	}

	return []domain.ResultStream{exact, partial, common}, nil
}

func (c *Client) personQueries(
	ctx context.Context,
	companyID, language string,
	keywords []string,
	person domain.GDPRPerson,
	exact, partial *domain.ResultStream,
) error {
	exactQuery := exactNameQuery(person.Name, c.maxMiddleNames)

	cleaned := cleanName(person.Name)
	var partialQuery map[string]any
	if cleaned != "" {
		partialQuery = partialNameQuery(cleaned)
	}

	runs := []struct {
		nameQuery    map[string]any
		withKeywords bool
		exactStyle   bool
	}{
		{exactQuery, true, true},
		{exactQuery, false, true},
		{partialQuery, true, false},
		{partialQuery, false, false},
	}

	for _, run := range runs {
		if run.nameQuery == nil {
			continue
		}
		filters := []map[string]any{languageQuery(language)}
		if run.withKeywords {
			if len(keywords) == 0 {
				continue
			}
			filters = append(filters, keywordQuery(keywords))
		}
		filters = append(filters, run.nameQuery)

		hits, err := c.scan(ctx, companyID, filteredQuery(filters...))
		if err != nil {
			return err
		}
		for _, h := range hits {
			matches := c.personMatches(person, h, run.exactStyle, run.withKeywords)
			switch {
			case run.exactStyle && run.withKeywords:
				exact.HighRisk = append(exact.HighRisk, matches...)
			case run.exactStyle:
				exact.Risk = append(exact.Risk, matches...)
			case run.withKeywords:
				partial.HighRisk = append(partial.HighRisk, matches...)
			default:
				partial.Risk = append(partial.Risk, matches...)
			}
		}
	}
	return nil
}

func (c *Client) personMatches(person domain.GDPRPerson, h hit, exactStyle, withKeywords bool) []domain.SearchMatch {
	var span *domain.Span
	if !exactStyle {
		located, err := matchRange(person.Name, h)
		if err != nil {
			c.logger.Warn("match_range_failed",
				"document_id", h.ID,
				"name", person.Name,
				"error", err,
			)
		} else {
			span = located
		}
	}

	base := domain.SearchMatch{
		DocumentID: h.ID,
		Name:       person.Name,
		Relation:   person.Relation,
		MatchRange: span,
	}
	if !withKeywords {
		return []domain.SearchMatch{base}
	}

	matches := make([]domain.SearchMatch, 0, len(h.MatchedQueries))
	for _, keyword := range h.MatchedQueries {
		match := base
		match.Keyword = keyword
		matches = append(matches, match)
	}
	return matches
}

func (c *Client) commonNameQueries(
	ctx context.Context,
	companyID, language string,
	keywords []string,
	common *domain.ResultStream,
) error {
	if len(c.commonNames) == 0 {
		return nil
	}
	nameQuery := commonNameQuery(c.commonNames)

	if len(keywords) > 0 {
		hits, err := c.scan(ctx, companyID, filteredQuery(languageQuery(language), keywordQuery(keywords), nameQuery))
		if err != nil {
			return err
		}
		for _, h := range hits {
			for _, keyword := range h.MatchedQueries {
				common.HighRisk = append(common.HighRisk, domain.SearchMatch{DocumentID: h.ID, Keyword: keyword})
			}
		}
	}

	hits, err := c.scan(ctx, companyID, filteredQuery(languageQuery(language), nameQuery))
	if err != nil {
		return err
	}
	for _, h := range hits {
		for _, name := range h.MatchedQueries {
			common.Risk = append(common.Risk, domain.SearchMatch{DocumentID: h.ID, Keyword: name})
		}
	}
	return nil
}

// scan reads all hits for a query through the scroll API as a lazy sequence.
func (c *Client) scan(ctx context.Context, index string, body map[string]any) ([]hit, error) {
	body["size"] = scrollPageSize

	url := fmt.Sprintf("%s/%s/_search?scroll=%s", c.baseURL, index, scrollKeepAlive)
	page, scrollID, err := c.search(ctx, url, body)
	if err != nil {
		return nil, err
	}

	hits := page
	for len(page) == scrollPageSize && scrollID != "" {
		scrollBody := map[string]any{"scroll": scrollKeepAlive, "scroll_id": scrollID}
		page, scrollID, err = c.search(ctx, c.baseURL+"/_search/scroll", scrollBody)
		if err != nil {
			return nil, err
		}
		hits = append(hits, page...)
	}
	return hits, nil
}

func (c *Client) search(ctx context.Context, url string, body map[string]any) ([]hit, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal search body: %w", err)
	}

	var response struct {
		ScrollID string `json:"_scroll_id"`
		Hits     struct {
			Hits []struct {
				ID     string `json:"_id"`
				Source struct {
					Text string `json:"text"`
					Name string `json:"name"`
				} `json:"_source"`
				MatchedQueries []string `json:"matched_queries"`
			} `json:"hits"`
		} `json:"hits"`
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("search status: %w", statusError(resp.Status))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("search status: %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "elastic.search", call, classifySearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, "", err
	}

	hits := make([]hit, 0, len(response.Hits.Hits))
	for _, h := range response.Hits.Hits {
		hits = append(hits, hit{
			ID:             h.ID,
			Text:           h.Source.Text,
			Name:           h.Source.Name,
			MatchedQueries: h.MatchedQueries,
		})
	}
	return hits, response.ScrollID, nil
}

type statusError string

func (e statusError) Error() string { return string(e) }

func classifySearchError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var status statusError
	if errors.As(err, &status) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
