package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/triagehub/triagehub/internal/api/respond"
	"github.com/triagehub/triagehub/internal/ingest"
)

// slackEnvelope is the outer shape shared by all Slack Events API payloads.
type slackEnvelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// slackMessageEvent is the inner message event we ingest.
type slackMessageEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	BotID   string `json:"bot_id,omitempty"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// SlackHandler terminates the Slack Events API webhook. Slack retries on
// non-200 and on slow responses, so the handler acknowledges immediately and
// runs the pipeline in the background; source_ref de-duplication absorbs the
// retries that still get through.
type SlackHandler struct {
	coord         *ingest.Coordinator
	signingSecret string
	log           zerolog.Logger

	// processTimeout bounds background pipeline work per event.
	processTimeout time.Duration
}

func NewSlackHandler(coord *ingest.Coordinator, signingSecret string, log zerolog.Logger) *SlackHandler {
	return &SlackHandler{
		coord:          coord,
		signingSecret:  signingSecret,
		log:            log,
		processTimeout: 30 * time.Second,
	}
}

// HandleEvent handles POST /slack/events.
func (h *SlackHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respond.WriteBadRequest(w, "Failed to read request body")
		return
	}

	if h.signingSecret != "" {
		if err := h.verifySignature(r.Header, body); err != nil {
			h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("slack signature rejected")
			respond.WriteUnauthorized(w, "Invalid request signature")
			return
		}
	}

	var env slackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON payload")
		return
	}

	switch env.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(env.Challenge))

	case "event_callback":
		h.handleEventCallback(w, env.Event)

	default:
		// Unknown envelope types are acknowledged so Slack stops retrying.
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *SlackHandler) handleEventCallback(w http.ResponseWriter, raw json.RawMessage) {
	var evt slackMessageEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		respond.WriteBadRequest(w, "Invalid event payload")
		return
	}

	if evt.Type != "message" || evt.BotID != "" || evt.Subtype != "" {
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if evt.Channel == "" || evt.TS == "" || strings.TrimSpace(evt.Text) == "" {
		respond.WriteBadRequest(w, "Missing channel, ts or text")
		return
	}

	in := ingest.Inbound{
		SourceRef: evt.Channel + ":" + evt.TS,
		ChannelID: evt.Channel,
		AuthorRef: evt.User,
		Text:      evt.Text,
		Timestamp: slackTimestamp(evt.TS),
	}

	// Ack before the pipeline runs. Classification and embedding call remote
	// models and would blow Slack's 3s response deadline.
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
		defer cancel()
		if _, err := h.coord.Ingest(ctx, in); err != nil {
			h.log.Error().Stack().Err(err).Str("source_ref", in.SourceRef).Msg("slack event processing failed")
		}
	}()
}

func (h *SlackHandler) verifySignature(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

// slackTimestamp converts a Slack "1700000000.000200" ts into a time. Falls
// back to now for malformed input; the ts still participates in source_ref.
func slackTimestamp(ts string) time.Time {
	sec, err := strconv.ParseFloat(ts, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}

// ingestBody is the direct ingestion request shape.
type ingestBody struct {
	SourceRef string `json:"sourceRef"`
	ChannelID string `json:"channelId"`
	AuthorRef string `json:"authorRef"`
	Text      string `json:"text"`
}

// HandleIngest handles POST /v0/messages: the platform-neutral ingestion
// surface. Unlike the webhook it processes synchronously and reports the
// pipeline outcome, which makes it the natural target for tests and tooling.
func (h *SlackHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON payload")
		return
	}
	if req.SourceRef == "" || strings.TrimSpace(req.Text) == "" {
		respond.WriteBadRequest(w, "sourceRef and text are required")
		return
	}

	out, err := h.coord.Ingest(r.Context(), ingest.Inbound{
		SourceRef: req.SourceRef,
		ChannelID: req.ChannelID,
		AuthorRef: req.AuthorRef,
		Text:      req.Text,
	})
	if err != nil {
		h.log.Error().Stack().Err(err).Str("source_ref", req.SourceRef).Msg("ingest failed")
		respond.WriteInternalError(w, "Failed to process message")
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	respond.WriteJSON(w, status, map[string]interface{}{
		"message":   out.Message,
		"issue":     out.Issue,
		"duplicate": out.Duplicate,
	})
}
