package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the scan-policy file: which languages are ingestible, how names
// and keywords are matched, and the bounds the pipeline enforces. The first
// allowed language is the default.
type Policy struct {
	AllowedLanguages      []string            `yaml:"allowedLanguages"`
	MinLanguageConfidence float64             `yaml:"minLanguageConfidence"`
	MaxMiddleNames        int                 `yaml:"maxMiddleNames"`
	MaxEntityLength       int                 `yaml:"maxEntityLength"`
	StorageRetryAttempts  int                 `yaml:"storageRetryAttempts"`
	PhoneRegion           string              `yaml:"phoneRegion"`
	HighRiskKeywords      map[string][]string `yaml:"highRiskKeywords"`
	CommonNames           []string            `yaml:"commonNames"`
}

func defaultPolicy() Policy {
	return Policy{
		AllowedLanguages:      []string{"da", "en"},
		MinLanguageConfidence: 0.5,
		MaxMiddleNames:        2,
		MaxEntityLength:       150,
		StorageRetryAttempts:  3,
		PhoneRegion:           "DK",
		HighRiskKeywords:      map[string][]string{},
	}
}

// LoadPolicy reads the YAML policy file and applies defaults for anything
// left unset. A missing file yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := defaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return policy, nil
		}
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	if len(policy.AllowedLanguages) == 0 {
		policy.AllowedLanguages = defaultPolicy().AllowedLanguages
	}
	if policy.MinLanguageConfidence <= 0 {
		policy.MinLanguageConfidence = defaultPolicy().MinLanguageConfidence
	}
	if policy.MaxEntityLength <= 0 {
		policy.MaxEntityLength = defaultPolicy().MaxEntityLength
	}
	if policy.StorageRetryAttempts <= 0 {
		policy.StorageRetryAttempts = defaultPolicy().StorageRetryAttempts
	}
	if policy.PhoneRegion == "" {
		policy.PhoneRegion = defaultPolicy().PhoneRegion
	}
	if policy.MaxMiddleNames < 0 {
		policy.MaxMiddleNames = 0
	}
	return policy, nil
}

// DefaultLanguage is the first entry of the allow-list.
func (p Policy) DefaultLanguage() string {
	if len(p.AllowedLanguages) == 0 {
		return ""
	}
	return p.AllowedLanguages[0]
}
