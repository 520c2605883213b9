package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPolicyMissingFileYieldsDefaults(t *testing.T) {
	policy, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.DefaultLanguage() != "da" {
		t.Fatalf("expected default language da, got %s", policy.DefaultLanguage())
	}
	if policy.MinLanguageConfidence != 0.5 || policy.StorageRetryAttempts != 3 {
		t.Fatalf("unexpected defaults %+v", policy)
	}
	if policy.PhoneRegion != "DK" {
		t.Fatalf("expected DK region, got %s", policy.PhoneRegion)
	}
}

func TestLoadPolicyOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := []byte(`
allowedLanguages: [en, da]
minLanguageConfidence: 0.7
maxMiddleNames: 1
highRiskKeywords:
  da: [diagnose, opsigelse]
  en: [diagnosis]
commonNames: [jens, peter]
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.DefaultLanguage() != "en" {
		t.Fatalf("expected first listed language as default, got %s", policy.DefaultLanguage())
	}
	if policy.MinLanguageConfidence != 0.7 || policy.MaxMiddleNames != 1 {
		t.Fatalf("unexpected overrides %+v", policy)
	}
	if len(policy.HighRiskKeywords["da"]) != 2 {
		t.Fatalf("expected danish keywords, got %v", policy.HighRiskKeywords)
	}
	if policy.StorageRetryAttempts != 3 {
		t.Fatalf("expected unset field to keep default, got %d", policy.StorageRetryAttempts)
	}
}

func TestLoadPolicyRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("allowedLanguages: [unclosed"), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
