// Package classify defines the relevance classifier boundary. A classifier
// labels one chat message and decides whether it deserves operator attention.
package classify

import (
	"context"

	"github.com/triagehub/triagehub/internal/model"
)

// Classifier produces a label, confidence and relevance flag for a text.
// Implementations may call remote models and must surface failures; a failed
// classification is never reported as "irrelevant".
type Classifier interface {
	Classify(ctx context.Context, text string) (model.Classification, error)
}

// Labels assigned by classifiers.
const (
	LabelBugReport       = "bug_report"
	LabelSupportQuestion = "support_question"
	LabelFeatureRequest  = "feature_request"
	LabelProductQuestion = "product_question"
	LabelIrrelevant      = "irrelevant"
)
