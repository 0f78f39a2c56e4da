// Package openai implements the classifier boundary over an OpenAI-compatible
// chat completions endpoint with JSON-object output.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/triagehub/triagehub/internal/model"
)

const systemPrompt = `You are a support triage assistant. Classify the following chat message.
Output JSON:
{
  "label": "bug_report" | "support_question" | "feature_request" | "product_question" | "irrelevant",
  "is_relevant": boolean,
  "confidence": float (0.0-1.0),
  "summary": "short summary of the issue"
}

Relevant messages: support questions, bug reports, feature requests, product questions.
Irrelevant: greetings, social chatter, acknowledgments (ok, thanks), logistics.`

// Classifier calls a chat completions API and parses the structured reply.
type Classifier struct {
	client *resty.Client
	model  string
}

// New creates a Classifier for the given base URL, API key and model.
func New(baseURL, apiKey, chatModel string) *Classifier {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey).
		SetTimeout(30 * time.Second)
	return &Classifier{client: c, model: chatModel}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify sends the text to the model and decodes its JSON verdict.
func (c *Classifier) Classify(ctx context.Context, text string) (model.Classification, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	}
	req.ResponseFormat.Type = "json_object"

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/v1/chat/completions")
	if err != nil {
		return model.Classification{}, fmt.Errorf("classifier request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return model.Classification{}, fmt.Errorf("classifier status %d: %s", resp.StatusCode(), resp.String())
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return model.Classification{}, fmt.Errorf("decode response: %w", err)
	}
	if cr.Error != nil {
		return model.Classification{}, fmt.Errorf("classifier error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return model.Classification{}, fmt.Errorf("classifier returned no choices")
	}

	var out model.Classification
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &out); err != nil {
		return model.Classification{}, fmt.Errorf("malformed classifier verdict: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return model.Classification{}, fmt.Errorf("classifier confidence out of range: %v", out.Confidence)
	}
	return out, nil
}
