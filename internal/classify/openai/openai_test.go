package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func verdictServer(t *testing.T, verdict string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable"}}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": verdict}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassify_ParsesVerdict(t *testing.T) {
	srv := verdictServer(t, `{"label":"bug_report","is_relevant":true,"confidence":0.92,"summary":"Login broken"}`, http.StatusOK)
	defer srv.Close()

	c := New(srv.URL, "test-key", "test-model")
	got, err := c.Classify(context.Background(), "Login is broken")
	require.NoError(t, err)
	require.Equal(t, "bug_report", got.Label)
	require.True(t, got.IsRelevant)
	require.InDelta(t, 0.92, got.Confidence, 1e-9)
	require.Equal(t, "Login broken", got.Summary)
}

func TestClassify_NonOKStatusIsError(t *testing.T) {
	srv := verdictServer(t, "", http.StatusBadGateway)
	defer srv.Close()

	c := New(srv.URL, "test-key", "test-model")
	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
}

func TestClassify_MalformedVerdictIsError(t *testing.T) {
	srv := verdictServer(t, `not json at all`, http.StatusOK)
	defer srv.Close()

	c := New(srv.URL, "test-key", "test-model")
	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
}

func TestClassify_ConfidenceOutOfRangeIsError(t *testing.T) {
	srv := verdictServer(t, `{"label":"bug_report","is_relevant":true,"confidence":1.4}`, http.StatusOK)
	defer srv.Close()

	c := New(srv.URL, "test-key", "test-model")
	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
}
