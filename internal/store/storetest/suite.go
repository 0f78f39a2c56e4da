// Package storetest provides a compliance suite shared by store drivers.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/triagehub/triagehub/internal/model"
	"github.com/triagehub/triagehub/internal/store"
)

// Run exercises the store compliance suite against one driver.
// makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	newMessage := func(text string) *model.Message {
		return &model.Message{
			MessageID: uuid.New().String(),
			SourceRef: "C-test:" + uuid.New().String(),
			ChannelID: "C-test",
			AuthorRef: "U-test",
			Text:      text,
			CreatedAt: time.Now().UTC(),
		}
	}

	// Insert + duplicate source_ref
	m1 := newMessage("Login is broken")
	if ok, err := s.Messages().Insert(ctx, m1); err != nil || !ok {
		t.Fatalf("Insert m1: ok=%v err=%v", ok, err)
	}
	dup := newMessage("Login is broken")
	dup.SourceRef = m1.SourceRef
	if ok, err := s.Messages().Insert(ctx, dup); err != nil || ok {
		t.Fatalf("duplicate Insert should be a no-op: ok=%v err=%v", ok, err)
	}
	if got, err := s.Messages().GetBySourceRef(ctx, m1.SourceRef); err != nil || got.MessageID != m1.MessageID {
		t.Fatalf("GetBySourceRef: got=%v err=%v", got, err)
	}

	// Unclassified message is pending
	if pend, err := s.Messages().ListPending(ctx, 10); err != nil || len(pend) != 1 {
		t.Fatalf("ListPending before classify: n=%d err=%v", len(pend), err)
	}

	// Classification fill-in; a repeat is a no-op, not an error
	cls := model.Classification{Label: "bug_report", Confidence: 0.9, IsRelevant: true, Summary: "Login broken"}
	if err := s.Messages().SetClassification(ctx, m1.MessageID, cls); err != nil {
		t.Fatalf("SetClassification: %v", err)
	}
	if err := s.Messages().SetClassification(ctx, m1.MessageID, cls); err != nil {
		t.Fatalf("SetClassification repeat: %v", err)
	}
	got, err := s.Messages().Get(ctx, m1.MessageID)
	if err != nil || got.Classification == nil || *got.Classification != "bug_report" {
		t.Fatalf("Get after classify: got=%+v err=%v", got, err)
	}
	if got.IsRelevant == nil || !*got.IsRelevant {
		t.Fatalf("expected relevant after classify: %+v", got)
	}

	// Relevant-but-unattached is still pending
	if pend, err := s.Messages().ListPending(ctx, 10); err != nil || len(pend) != 1 {
		t.Fatalf("ListPending after classify: n=%d err=%v", len(pend), err)
	}

	// Create issue with seed member
	emb := []float32{1, 0, 0}
	iss := &model.Issue{
		IssueID:        uuid.New().String(),
		Title:          "Login broken",
		Summary:        "Login broken",
		Classification: "bug_report",
		Embedding:      emb,
	}
	created, err := s.Issues().CreateWithMember(ctx, iss, m1.MessageID, emb)
	if err != nil {
		t.Fatalf("CreateWithMember: %v", err)
	}
	if created.MemberCount != 1 || created.Status != model.IssueOpen {
		t.Fatalf("unexpected created issue: %+v", created)
	}
	if created.UpdatedAt.Before(created.CreatedAt) {
		t.Fatalf("updated_at < created_at: %+v", created)
	}

	// Member message carries its embedding and membership now, and is no
	// longer pending.
	got, err = s.Messages().Get(ctx, m1.MessageID)
	if err != nil || got.IssueID == nil || *got.IssueID != iss.IssueID || len(got.Embedding) != 3 {
		t.Fatalf("member message after create: got=%+v err=%v", got, err)
	}
	if pend, err := s.Messages().ListPending(ctx, 10); err != nil || len(pend) != 0 {
		t.Fatalf("ListPending after attach: n=%d err=%v", len(pend), err)
	}

	// Append second member with centroid update and summary refresh
	m2 := newMessage("Still seeing the login error")
	if ok, err := s.Messages().Insert(ctx, m2); err != nil || !ok {
		t.Fatalf("Insert m2: ok=%v err=%v", ok, err)
	}
	if err := s.Messages().SetClassification(ctx, m2.MessageID, cls); err != nil {
		t.Fatalf("SetClassification m2: %v", err)
	}
	refreshed := "Refreshed summary"
	updated, err := s.Issues().AppendMember(ctx, store.AppendMember{
		IssueID:        iss.IssueID,
		MessageID:      m2.MessageID,
		Embedding:      []float32{0.9, 0.1, 0},
		Representative: []float32{0.95, 0.05, 0},
		MemberCount:    2,
		Summary:        &refreshed,
	})
	if err != nil {
		t.Fatalf("AppendMember: %v", err)
	}
	if updated.MemberCount != 2 || updated.Summary != refreshed {
		t.Fatalf("unexpected updated issue: %+v", updated)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Fatalf("updated_at not monotone: %v < %v", updated.UpdatedAt, created.UpdatedAt)
	}

	// Double-attach violates single membership
	_, err = s.Issues().AppendMember(ctx, store.AppendMember{
		IssueID:        iss.IssueID,
		MessageID:      m2.MessageID,
		Embedding:      []float32{0, 1, 0},
		Representative: []float32{0, 1, 0},
		MemberCount:    3,
	})
	if !errors.Is(err, model.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity for double attach, got %v", err)
	}

	// Members listed in creation order
	members, err := s.Messages().ListByIssue(ctx, iss.IssueID)
	if err != nil || len(members) != 2 || members[0].MessageID != m1.MessageID {
		t.Fatalf("ListByIssue: n=%d err=%v", len(members), err)
	}

	// ListOpen excludes resolved issues
	if open, err := s.Issues().ListOpen(ctx); err != nil || len(open) != 1 {
		t.Fatalf("ListOpen: n=%d err=%v", len(open), err)
	}
	resolved, err := s.Issues().UpdateStatus(ctx, iss.IssueID, model.IssueResolved)
	if err != nil || resolved.Status != model.IssueResolved {
		t.Fatalf("UpdateStatus: got=%+v err=%v", resolved, err)
	}
	if open, err := s.Issues().ListOpen(ctx); err != nil || len(open) != 0 {
		t.Fatalf("ListOpen after resolve: n=%d err=%v", len(open), err)
	}
	if all, err := s.Issues().List(ctx); err != nil || len(all) != 1 {
		t.Fatalf("List: n=%d err=%v", len(all), err)
	}

	// Unknown ids surface ErrNotFound
	if _, err := s.Issues().Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get missing issue: %v", err)
	}
	if _, err := s.Issues().UpdateStatus(ctx, "missing", model.IssueResolved); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateStatus missing issue: %v", err)
	}
	if _, err := s.Messages().Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get missing message: %v", err)
	}

	// Stats
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalIssues != 1 || st.ResolvedIssues != 1 || st.OpenIssues != 0 {
		t.Fatalf("issue stats: %+v", st)
	}
	if st.TotalMessages != 2 || st.RelevantMessages != 2 || st.PendingMessages != 0 {
		t.Fatalf("message stats: %+v", st)
	}
	if st.ByClassification["bug_report"] != 2 {
		t.Fatalf("classification stats: %+v", st)
	}
}
