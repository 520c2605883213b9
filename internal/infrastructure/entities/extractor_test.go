package entities

import (
	"io"
	"log/slog"
	"testing"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

func newTestExtractor(maxLength int) *Extractor {
	return New("DK", maxLength, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mentionsOfKind(mentions []domain.Mention, kind domain.MentionKind) []domain.Mention {
	var out []domain.Mention
	for _, m := range mentions {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestExtractFindsValidCPR(t *testing.T) {
	text := "medarbejder med cpr 070761-4285 ansat i 1990"
	mentions := mentionsOfKind(newTestExtractor(150).Extract(text), domain.MentionCPR)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 CPR mention, got %d", len(mentions))
	}
	m := mentions[0]
	if m.Occurrence != "070761-4285" {
		t.Fatalf("unexpected occurrence %q", m.Occurrence)
	}
	if text[m.Start:m.End] != m.Occurrence {
		t.Fatalf("span [%d:%d] does not cover the occurrence", m.Start, m.End)
	}
}

func TestExtractRejectsBadChecksum(t *testing.T) {
	mentions := newTestExtractor(150).Extract("cpr 070761-4286 her")
	if len(mentionsOfKind(mentions, domain.MentionCPR)) != 0 {
		t.Fatalf("checksum-invalid number must not match")
	}
}

func TestExtractRejectsImpossibleDate(t *testing.T) {
	mentions := newTestExtractor(150).Extract("nummer 321361-4285 her")
	if len(mentionsOfKind(mentions, domain.MentionCPR)) != 0 {
		t.Fatalf("day 32 must not match")
	}
}

func TestExtractAcceptsMaskedSerial(t *testing.T) {
	mentions := mentionsOfKind(newTestExtractor(150).Extract("cpr 070761-xxxx i udtræk"), domain.MentionCPR)
	if len(mentions) != 1 {
		t.Fatalf("expected masked CPR to match, got %d", len(mentions))
	}
}

func TestExtractFindsValidDanishPhone(t *testing.T) {
	mentions := mentionsOfKind(newTestExtractor(150).Extract("ring på 20 12 34 56 i morgen"), domain.MentionPhone)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 phone mention, got %d", len(mentions))
	}
	if mentions[0].Occurrence != "20 12 34 56" {
		t.Fatalf("unexpected occurrence %q", mentions[0].Occurrence)
	}
}

func TestExtractRejectsInvalidPhone(t *testing.T) {
	mentions := mentionsOfKind(newTestExtractor(150).Extract("koden er 11 22 33 44"), domain.MentionPhone)
	if len(mentions) != 0 {
		t.Fatalf("invalid number plan match leaked through: %+v", mentions)
	}
}

func TestExtractDropsOverlongSpans(t *testing.T) {
	mentions := newTestExtractor(5).Extract("cpr 070761-4285 her")
	if len(mentions) != 0 {
		t.Fatalf("span beyond the length bound must be dropped, got %+v", mentions)
	}
}
