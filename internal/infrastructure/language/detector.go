package language

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Detector identifies the language of extracted document text, restricted to
// the configured set so confidence values discriminate between real
// candidates instead of the whole catalogue.
type Detector struct {
	detector lingua.LanguageDetector
}

// NewDetector builds a detector over the given ISO 639-1 codes. At least two
// codes are required for confidence values to be meaningful.
func NewDetector(isoCodes []string) (*Detector, error) {
	if len(isoCodes) < 2 {
		return nil, fmt.Errorf("language detector needs at least two languages, got %d", len(isoCodes))
	}
	languages := make([]lingua.Language, 0, len(isoCodes))
	for _, code := range isoCodes {
		iso := lingua.GetIsoCode639_1FromValue(code)
		if iso == lingua.UnknownIsoCode639_1 {
			return nil, fmt.Errorf("unknown language code %q", code)
		}
		languages = append(languages, lingua.GetLanguageFromIsoCode639_1(iso))
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()
	return &Detector{detector: detector}, nil
}

// Detect returns the lowercase ISO 639-1 code of the most likely language
// and its confidence. Empty or undecidable text reports zero confidence.
func (d *Detector) Detect(text string) (string, float64) {
	values := d.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return "", 0
	}
	top := values[0]
	code := strings.ToLower(top.Language().IsoCode639_1().String())
	return code, top.Value()
}
