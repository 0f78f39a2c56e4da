package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/triagehub/triagehub/internal/classify"
)

func TestClassify_Labels(t *testing.T) {
	c := New()
	ctx := context.Background()

	cases := []struct {
		text     string
		label    string
		relevant bool
	}{
		{"Login is broken after the update", classify.LabelBugReport, true},
		{"The app crashes on startup", classify.LabelBugReport, true},
		{"How do I export my data?", classify.LabelSupportQuestion, true},
		{"Can we get dark mode?", classify.LabelFeatureRequest, true},
		{"anyone want lunch?", classify.LabelIrrelevant, false},
		{"thanks!", classify.LabelIrrelevant, false},
	}

	for _, tc := range cases {
		got, err := c.Classify(ctx, tc.text)
		require.NoError(t, err, tc.text)
		require.Equal(t, tc.label, got.Label, tc.text)
		require.Equal(t, tc.relevant, got.IsRelevant, tc.text)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New()
	ctx := context.Background()

	a, err := c.Classify(ctx, "Seeing an error in the billing page")
	require.NoError(t, err)
	b, err := c.Classify(ctx, "Seeing an error in the billing page")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
