package elastic

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

// initialsPattern removes initials (single letters surrounded by whitespace,
// optionally followed by a period) as well as lone periods.
var initialsPattern = regexp.MustCompile(`(\b[A-Za-z]\.? ?\b)|\.`)

func cleanName(name string) string {
	return strings.TrimSpace(initialsPattern.ReplaceAllString(name, ""))
}

func countMiddleNames(name string) int {
	parts := strings.Fields(name)
	if len(parts) > 1 {
		// With more than one name, assume one first and one last; the rest
		// are middle names.
		return len(parts) - 2
	}
	return 0
}

func removeMiddleNames(name string) string {
	parts := strings.Fields(name)
	if len(parts) > 1 {
		return parts[0] + " " + parts[len(parts)-1]
	}
	return name
}

// exactNameQuery matches the full name as a phrase in text or the name
// field. Names with few enough middle names are searched without them but
// with slop allowing up to maxMiddleNames interior tokens.
func exactNameQuery(name string, maxMiddleNames int) map[string]any {
	slop := 0
	if countMiddleNames(name) <= maxMiddleNames {
		name = removeMiddleNames(name)
		slop = maxMiddleNames
	}
	phrase := map[string]any{"query": name, "slop": slop}
	return boolShould(
		map[string]any{"match_phrase": map[string]any{"text": phrase}},
		map[string]any{"match_phrase": map[string]any{"name": phrase}},
	)
}

// partialNameQuery matches the cleaned name against free text or the name
// field with no phrase adjacency required.
func partialNameQuery(name string) map[string]any {
	return boolShould(
		map[string]any{"match": map[string]any{"text": name}},
		map[string]any{"match": map[string]any{"name": name}},
	)
}

// keywordQuery is the high-risk keyword co-occurrence filter. Each clause is
// named after its keyword so hits report which keywords matched.
func keywordQuery(keywords []string) map[string]any {
	clauses := make([]map[string]any, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		if _, ok := seen[keyword]; ok {
			continue
		}
		seen[keyword] = struct{}{}
		clauses = append(clauses, map[string]any{
			"match_phrase": map[string]any{
				"text": map[string]any{"_name": keyword, "query": keyword},
			},
		})
	}
	return boolShould(clauses...)
}

// commonNameQuery matches any of the configured common names, each clause
// named after the name it matches.
func commonNameQuery(names []string) map[string]any {
	clauses := make([]map[string]any, 0, len(names))
	for _, name := range names {
		clauses = append(clauses, map[string]any{
			"match": map[string]any{
				"text": map[string]any{"_name": name, "query": name},
			},
		})
	}
	return boolShould(clauses...)
}

func languageQuery(code string) map[string]any {
	return map[string]any{"match_phrase": map[string]any{"language": code}}
}

func boolShould(clauses ...map[string]any) map[string]any {
	return map[string]any{"bool": map[string]any{"should": clauses}}
}

func filteredQuery(filters ...map[string]any) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
	}
}

// matchRange locates the range in the person's name for which a match was
// found in the hit's text, falling back to its name field.
func matchRange(personName string, h hit) (*domain.Span, error) {
	cleaned := cleanName(personName)
	parts := regexp.MustCompile(`[ \-]`).Split(cleaned, -1)
	bounded := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		bounded = append(bounded, fmt.Sprintf(`\b(%s)\b`, regexp.QuoteMeta(part)))
	}
	if len(bounded) == 0 {
		return nil, fmt.Errorf("no searchable name parts in %q", personName)
	}
	pattern, err := regexp.Compile(`(?i)` + strings.Join(bounded, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile name pattern: %w", err)
	}

	matched := pattern.FindString(h.Text)
	if matched == "" {
		matched = pattern.FindString(h.Name)
	}
	if matched == "" {
		return nil, fmt.Errorf("no name part of %q found in hit %s", personName, h.ID)
	}

	start := strings.Index(strings.ToLower(personName), strings.ToLower(matched))
	if start < 0 {
		return nil, fmt.Errorf("matched part %q not in name %q", matched, personName)
	}
	return &domain.Span{Start: start, End: start + len(matched)}, nil
}
