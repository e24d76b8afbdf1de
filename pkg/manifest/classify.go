package manifest

import (
	"path"
	"strings"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

// Classifier assigns a category tag to a tracked path.
type Classifier interface {
	Classify(rel string) string
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(rel string) string

// Classify calls f.
func (f ClassifierFunc) Classify(rel string) string { return f(rel) }

// KeywordClassifier matches ordered keywords against the lowercase file
// name. The first rule whose keyword occurs wins.
type KeywordClassifier struct {
	Rules   []config.CategoryRule
	Default string
}

// NewKeywordClassifier builds the classifier configured in cfg.
func NewKeywordClassifier(cfg config.ManifestConfig) KeywordClassifier {
	def := cfg.DefaultCategory
	if def == "" {
		def = "module"
	}
	return KeywordClassifier{Rules: cfg.Categories, Default: def}
}

// Classify implements Classifier.
func (c KeywordClassifier) Classify(rel string) string {
	name := strings.ToLower(path.Base(rel))
	for _, r := range c.Rules {
		if r.Keyword != "" && strings.Contains(name, strings.ToLower(r.Keyword)) {
			return r.Tag
		}
	}
	return c.Default
}

// ModuleName returns the file name without its extension.
func ModuleName(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
