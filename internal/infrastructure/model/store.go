package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/core/ports"
)

// Store loads trained linear classifier artifacts from disk. The layout is
// root/<language>.json for per-language root models and category/<name>.json
// for the descent levels.
type Store struct {
	basePath string
}

func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

// Artifact is a serialized linear model: per-class token weights plus bias.
type Artifact struct {
	ClassifierID string                        `json:"classifier_id"`
	Classes      []string                      `json:"classes"`
	Weights      map[string]map[string]float64 `json:"weights"`
	Bias         map[string]float64            `json:"bias"`
}

func (s *Store) LoadRoot(ctx context.Context, language string) (ports.Classifier, error) {
	return s.load(ctx, filepath.Join(s.basePath, "root", language+".json"))
}

func (s *Store) LoadCategory(ctx context.Context, category string) (ports.Classifier, error) {
	return s.load(ctx, s.categoryPath(category))
}

func (s *Store) HasCategory(category string) bool {
	_, err := os.Stat(s.categoryPath(category))
	return err == nil
}

func (s *Store) categoryPath(category string) string {
	return filepath.Join(s.basePath, "category", category+".json")
}

func (s *Store) load(_ context.Context, path string) (ports.Classifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrModelNotFound, "load model", fmt.Errorf("no artifact at %s", path))
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("decode model artifact %s: %w", path, err)
	}
	if len(artifact.Classes) == 0 {
		return nil, fmt.Errorf("model artifact %s has no classes", path)
	}
	return &linearClassifier{artifact: artifact}, nil
}

var tokenPattern = regexp.MustCompile(`\p{L}+`)

// linearClassifier scores tokenized text against per-class weights and
// softmaxes the scores into probabilities. Title tokens count double.
type linearClassifier struct {
	artifact Artifact
}

func (c *linearClassifier) ID() string {
	return c.artifact.ClassifierID
}

func (c *linearClassifier) Predict(text, title string) (ports.Prediction, error) {
	counts := tokenCounts(text)
	for token, n := range tokenCounts(title) {
		counts[token] += 2 * n
	}

	scores := make(map[string]float64, len(c.artifact.Classes))
	for _, class := range c.artifact.Classes {
		score := c.artifact.Bias[class]
		weights := c.artifact.Weights[class]
		for token, n := range counts {
			score += weights[token] * float64(n)
		}
		scores[class] = score
	}

	probabilities := softmax(scores)
	return ports.Prediction{
		Label:         argmax(probabilities, c.artifact.Classes),
		Probabilities: probabilities,
		ClassifierID:  c.artifact.ClassifierID,
	}, nil
}

func tokenCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		counts[token]++
	}
	return counts
}

func softmax(scores map[string]float64) map[string]float64 {
	max := math.Inf(-1)
	for _, score := range scores {
		if score > max {
			max = score
		}
	}
	total := 0.0
	exps := make(map[string]float64, len(scores))
	for class, score := range scores {
		exps[class] = math.Exp(score - max)
		total += exps[class]
	}
	for class := range exps {
		exps[class] /= total
	}
	return exps
}

// argmax breaks ties by class order so predictions are deterministic.
func argmax(probabilities map[string]float64, classes []string) string {
	ordered := append([]string(nil), classes...)
	sort.Strings(ordered)
	best, bestProb := "", math.Inf(-1)
	for _, class := range ordered {
		if probabilities[class] > bestProb {
			best, bestProb = class, probabilities[class]
		}
	}
	return best
}
