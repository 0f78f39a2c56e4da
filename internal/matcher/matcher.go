// Package matcher implements the clustering decision: whether a newly
// classified, relevant message continues an existing open issue or starts a
// new one.
package matcher

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/metrics"
	"github.com/triagehub/triagehub/internal/model"
	"github.com/triagehub/triagehub/internal/store"
)

// similarityEpsilon bounds float noise when comparing candidate scores; two
// candidates inside this band are treated as tied and the most recently
// updated issue wins.
const similarityEpsilon = 1e-6

// summaryRefreshEvery refreshes an issue's summary and classification from
// the newest member on every Nth attach.
const summaryRefreshEvery = 5

// titleLimit caps titles derived from raw message text.
const titleLimit = 50

// Publisher receives one event per committed decision.
type Publisher interface {
	Publish(evt model.Event)
}

// Matcher serializes the read-candidates / score / create-or-append sequence.
// Classification and embedding happen before entry, so the critical section
// only covers the fast compare-and-commit step.
type Matcher struct {
	store     store.Store
	pub       Publisher
	threshold float64
	log       zerolog.Logger

	mu sync.Mutex
}

// New creates a Matcher. threshold is the minimum cosine similarity for a
// message to join an existing open issue.
func New(st store.Store, pub Publisher, threshold float64, log zerolog.Logger) *Matcher {
	return &Matcher{store: st, pub: pub, threshold: threshold, log: log}
}

// Commit decides where the message belongs and commits that decision
// atomically. It returns the issue the message ended up in and whether the
// issue was newly created. The new_message event is published after the store
// write commits, still inside the critical section, so viewers observe events
// in commit order.
func (m *Matcher) Commit(ctx context.Context, msg *model.Message, cls model.Classification, embedding []float32) (*model.Issue, bool, error) {
	if len(embedding) == 0 {
		return nil, false, fmt.Errorf("empty embedding for message %s", msg.MessageID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Candidates must be read inside the critical section: a racing message
	// may have just created the issue this one belongs to.
	candidates, err := m.store.Issues().ListOpen(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list open issues: %w", err)
	}

	best, bestSim, err := chooseBest(candidates, embedding)
	if err != nil {
		return nil, false, err
	}

	if best == nil || bestSim < m.threshold {
		iss, err := m.create(ctx, msg, cls, embedding)
		if err != nil {
			return nil, false, err
		}
		m.log.Info().
			Str("issue", iss.IssueID).
			Str("message", msg.MessageID).
			Float64("best_similarity", bestSim).
			Msg("created new issue")
		metrics.IssuesCreated.Inc()
		m.publish(iss.IssueID, msg.MessageID)
		return iss, true, nil
	}

	iss, err := m.attach(ctx, best, msg, cls, embedding)
	if err != nil {
		return nil, false, err
	}
	m.log.Info().
		Str("issue", iss.IssueID).
		Str("message", msg.MessageID).
		Float64("similarity", bestSim).
		Msg("attached message to issue")
	metrics.MessagesAttached.Inc()
	m.publish(iss.IssueID, msg.MessageID)
	return iss, false, nil
}

func (m *Matcher) create(ctx context.Context, msg *model.Message, cls model.Classification, embedding []float32) (*model.Issue, error) {
	iss := &model.Issue{
		IssueID:        uuid.New().String(),
		Title:          deriveTitle(cls, msg.Text),
		Summary:        cls.Summary,
		Classification: cls.Label,
		Embedding:      embedding,
	}
	return m.store.Issues().CreateWithMember(ctx, iss, msg.MessageID, embedding)
}

func (m *Matcher) attach(ctx context.Context, iss *model.Issue, msg *model.Message, cls model.Classification, embedding []float32) (*model.Issue, error) {
	newCount := iss.MemberCount + 1
	req := store.AppendMember{
		IssueID:        iss.IssueID,
		MessageID:      msg.MessageID,
		Embedding:      embedding,
		Representative: centroid(iss.Embedding, embedding, iss.MemberCount),
		MemberCount:    newCount,
	}
	if newCount%summaryRefreshEvery == 0 && cls.Summary != "" {
		req.Summary = &cls.Summary
		req.Classification = &cls.Label
	}
	return m.store.Issues().AppendMember(ctx, req)
}

func (m *Matcher) publish(issueID, messageID string) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(model.Event{Type: model.EventNewMessage, IssueID: issueID, MessageID: messageID})
}

// chooseBest returns the open issue with maximal cosine similarity to the
// embedding. Ties within similarityEpsilon go to the most recently updated
// issue. A dimensionality mismatch among candidates is an integrity error:
// the embedder's output size is fixed for the lifetime of the store.
func chooseBest(candidates []*model.Issue, embedding []float32) (*model.Issue, float64, error) {
	var best *model.Issue
	bestSim := math.Inf(-1)
	for _, cand := range candidates {
		if len(cand.Embedding) != len(embedding) {
			return nil, 0, fmt.Errorf("%w: issue %s embedding has %d dims, message has %d",
				model.ErrIntegrity, cand.IssueID, len(cand.Embedding), len(embedding))
		}
		sim := cosine(cand.Embedding, embedding)
		switch {
		case sim > bestSim+similarityEpsilon:
			best, bestSim = cand, sim
		case math.Abs(sim-bestSim) <= similarityEpsilon && best != nil && cand.UpdatedAt.After(best.UpdatedAt):
			best = cand
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestSim, nil
}

// cosine computes cosine similarity in float64 for stable accumulation.
// Returns 0 when either vector has zero norm.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// centroid returns the incremental arithmetic mean after folding one more
// member embedding into a centroid covering n members. Accumulation happens
// in float64 so replaying the same ordered member set always reproduces the
// same representative embedding.
func centroid(rep, e []float32, n int) []float32 {
	out := make([]float32, len(rep))
	fn := float64(n)
	for i := range rep {
		out[i] = float32((float64(rep[i])*fn + float64(e[i])) / (fn + 1))
	}
	return out
}

// deriveTitle prefers the classifier summary and falls back to a prefix of
// the raw text.
func deriveTitle(cls model.Classification, text string) string {
	if cls.Summary != "" {
		return cls.Summary
	}
	r := []rune(text)
	if len(r) <= titleLimit {
		return text
	}
	return string(r[:titleLimit]) + "..."
}
