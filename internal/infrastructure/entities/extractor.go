package entities

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

var (
	cprPattern   = regexp.MustCompile(`\b[0-3][0-9]{5} ?-? ?([0-9]{4}|[xX]{4})\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 \-]{5,14}[0-9]`)
)

// cprWeights is the modulus-11 weighting over the ten CPR digits.
var cprWeights = [10]int{4, 3, 2, 7, 6, 5, 4, 3, 2, 1}

// Extractor finds personal identifiers in document text: national ID numbers
// validated by the modulus-11 check and phone numbers validated against the
// configured region's numbering plan.
type Extractor struct {
	region    string
	maxLength int
	logger    *slog.Logger
}

func New(region string, maxLength int, logger *slog.Logger) *Extractor {
	return &Extractor{
		region:    region,
		maxLength: maxLength,
		logger:    logger,
	}
}

func (e *Extractor) Extract(text string) []domain.Mention {
	var mentions []domain.Mention
	mentions = append(mentions, e.findCPR(text)...)
	mentions = append(mentions, e.findPhones(text)...)
	return mentions
}

func (e *Extractor) findCPR(text string) []domain.Mention {
	var mentions []domain.Mention
	for _, loc := range cprPattern.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		if !validCPR(candidate) {
			continue
		}
		mention, ok := e.mention(domain.MentionCPR, candidate, loc)
		if ok {
			mentions = append(mentions, mention)
		}
	}
	return mentions
}

func (e *Extractor) findPhones(text string) []domain.Mention {
	var mentions []domain.Mention
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		number, err := phonenumbers.Parse(candidate, e.region)
		if err != nil || !phonenumbers.IsValidNumber(number) {
			continue
		}
		mention, ok := e.mention(domain.MentionPhone, candidate, loc)
		if ok {
			mentions = append(mentions, mention)
		}
	}
	return mentions
}

func (e *Extractor) mention(kind domain.MentionKind, value string, loc []int) (domain.Mention, bool) {
	if e.maxLength > 0 && loc[1]-loc[0] > e.maxLength {
		e.logger.Warn("entity_span_too_long",
			"kind", string(kind),
			"length", loc[1]-loc[0],
		)
		return domain.Mention{}, false
	}
	return domain.Mention{
		Kind:       kind,
		Occurrence: value,
		Start:      loc[0],
		End:        loc[1],
	}, true
}

// validCPR applies date sanity to the first six digits and the modulus-11
// check to full ten-digit numbers. Masked serials (xxxx) skip the checksum
// since the digits are not available.
func validCPR(candidate string) bool {
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, candidate)
	if len(compact) != 10 {
		return false
	}

	day := 10*int(compact[0]-'0') + int(compact[1]-'0')
	month := 10*int(compact[2]-'0') + int(compact[3]-'0')
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return false
	}

	if strings.EqualFold(compact[6:], "xxxx") {
		return true
	}

	sum := 0
	for i, weight := range cprWeights {
		digit := compact[i]
		if digit < '0' || digit > '9' {
			return false
		}
		sum += weight * int(digit-'0')
	}
	return sum%11 == 0
}
