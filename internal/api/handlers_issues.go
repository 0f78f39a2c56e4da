package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/api/respond"
	"github.com/triagehub/triagehub/internal/ingest"
	"github.com/triagehub/triagehub/internal/model"
	"github.com/triagehub/triagehub/internal/store"
)

// IssueHandler serves the read-side REST surface over issues plus the resolve
// command.
type IssueHandler struct {
	store store.Store
	coord *ingest.Coordinator
	log   zerolog.Logger
}

func NewIssueHandler(st store.Store, coord *ingest.Coordinator, log zerolog.Logger) *IssueHandler {
	return &IssueHandler{store: st, coord: coord, log: log}
}

// ListIssues handles GET /v0/issues. The optional status query parameter
// filters to open issues.
func (h *IssueHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	var (
		issues []*model.Issue
		err    error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		issues, err = h.store.Issues().List(r.Context())
	case string(model.IssueOpen):
		issues, err = h.store.Issues().ListOpen(r.Context())
	default:
		respond.WriteBadRequest(w, "unknown status filter: "+status)
		return
	}
	if err != nil {
		h.log.Error().Stack().Err(err).Msg("Failed to list issues")
		respond.WriteInternalError(w, "Failed to list issues")
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"issues": issues,
		"count":  len(issues),
	})
}

// GetIssue handles GET /v0/issues/{issueId}.
func (h *IssueHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	issueID := mux.Vars(r)["issueId"]

	iss, err := h.store.Issues().Get(r.Context(), issueID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Issue not found")
			return
		}
		h.log.Error().Stack().Err(err).Str("issue", issueID).Msg("Failed to get issue")
		respond.WriteInternalError(w, "Failed to get issue")
		return
	}
	respond.WriteJSON(w, http.StatusOK, iss)
}

// ListIssueMessages handles GET /v0/issues/{issueId}/messages. Messages come
// back oldest first.
func (h *IssueHandler) ListIssueMessages(w http.ResponseWriter, r *http.Request) {
	issueID := mux.Vars(r)["issueId"]

	if _, err := h.store.Issues().Get(r.Context(), issueID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Issue not found")
			return
		}
		h.log.Error().Stack().Err(err).Str("issue", issueID).Msg("Failed to get issue")
		respond.WriteInternalError(w, "Failed to get issue")
		return
	}

	msgs, err := h.store.Messages().ListByIssue(r.Context(), issueID)
	if err != nil {
		h.log.Error().Stack().Err(err).Str("issue", issueID).Msg("Failed to list issue messages")
		respond.WriteInternalError(w, "Failed to list issue messages")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"issueId":  issueID,
		"messages": msgs,
		"count":    len(msgs),
	})
}

// ResolveIssue handles POST /v0/issues/{issueId}/resolve. Resolving twice is
// a no-op that still returns the issue.
func (h *IssueHandler) ResolveIssue(w http.ResponseWriter, r *http.Request) {
	issueID := mux.Vars(r)["issueId"]

	iss, err := h.coord.Resolve(r.Context(), issueID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "Issue not found")
			return
		}
		h.log.Error().Stack().Err(err).Str("issue", issueID).Msg("Failed to resolve issue")
		respond.WriteInternalError(w, "Failed to resolve issue")
		return
	}
	respond.WriteJSON(w, http.StatusOK, iss)
}

// GetStats handles GET /v0/stats.
func (h *IssueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.log.Error().Stack().Err(err).Msg("Failed to compute stats")
		respond.WriteInternalError(w, "Failed to compute stats")
		return
	}
	respond.WriteJSON(w, http.StatusOK, stats)
}
