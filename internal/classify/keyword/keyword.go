// Package keyword implements a deterministic rule-based classifier used when
// no model API key is configured. It keeps local development and the
// simulator fully offline.
package keyword

import (
	"context"
	"strings"

	"github.com/triagehub/triagehub/internal/classify"
	"github.com/triagehub/triagehub/internal/model"
)

// Classifier labels messages by keyword matching. Deterministic: the same
// text always produces the same classification.
type Classifier struct{}

// New returns a keyword classifier.
func New() *Classifier { return &Classifier{} }

func (c *Classifier) Classify(_ context.Context, text string) (model.Classification, error) {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "bug", "crash", "error", "broken", "fails", "failing"):
		return model.Classification{
			Label:      classify.LabelBugReport,
			Confidence: 0.9,
			IsRelevant: true,
			Summary:    "Bug: " + truncate(text, 40),
		}, nil
	case containsAny(lower, "help", "how do", "how can", "why", "can't", "cannot"):
		return model.Classification{
			Label:      classify.LabelSupportQuestion,
			Confidence: 0.8,
			IsRelevant: true,
			Summary:    "Support: " + truncate(text, 40),
		}, nil
	case containsAny(lower, "feature", "request", "add support", "would be nice", "dark mode"):
		return model.Classification{
			Label:      classify.LabelFeatureRequest,
			Confidence: 0.8,
			IsRelevant: true,
			Summary:    "Feature: " + truncate(text, 40),
		}, nil
	default:
		return model.Classification{Label: classify.LabelIrrelevant, Confidence: 0.0, IsRelevant: false}, nil
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
