// Package ingest ties the pipeline stages together: store the raw message,
// classify it, embed it, and hand it to the matcher. Each stage fills in
// state the next stage reads; a failed stage leaves the message pending and
// retryable, never half-attached.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/classify"
	"github.com/triagehub/triagehub/internal/embeddings"
	"github.com/triagehub/triagehub/internal/matcher"
	"github.com/triagehub/triagehub/internal/metrics"
	"github.com/triagehub/triagehub/internal/model"
	"github.com/triagehub/triagehub/internal/store"
)

// reprocessBatch bounds how many pending messages one ReprocessPending pass
// pulls from the store.
const reprocessBatch = 100

// Inbound is one raw message as delivered by an ingestion surface.
type Inbound struct {
	SourceRef string
	ChannelID string
	AuthorRef string
	Text      string
	Timestamp time.Time
}

// Outcome reports what the pipeline did with one inbound message.
type Outcome struct {
	Message   *model.Message
	Issue     *model.Issue
	Created   bool
	Duplicate bool
}

// Relevant reports whether the message was attached to an issue.
func (o *Outcome) Relevant() bool { return o.Issue != nil }

// Coordinator runs the ingestion pipeline. It owns no state of its own;
// everything durable lives in the store and everything transient in the
// matcher's critical section.
type Coordinator struct {
	store      store.Store
	classifier classify.Classifier
	embedder   embeddings.Provider
	matcher    *matcher.Matcher
	pub        matcher.Publisher
	log        zerolog.Logger
}

// New wires a Coordinator.
func New(st store.Store, cls classify.Classifier, emb embeddings.Provider, m *matcher.Matcher, pub matcher.Publisher, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: st, classifier: cls, embedder: emb, matcher: m, pub: pub, log: log}
}

// Ingest runs one message through the full pipeline. Re-delivery of an
// already-stored source_ref is a successful no-op. Classifier or embedder
// failures return an error after the raw message is durably stored, so a
// later ReprocessPending pass can finish the work.
func (c *Coordinator) Ingest(ctx context.Context, in Inbound) (*Outcome, error) {
	if in.SourceRef == "" {
		return nil, errors.New("inbound message missing source ref")
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	msg := &model.Message{
		MessageID: uuid.New().String(),
		SourceRef: in.SourceRef,
		ChannelID: in.ChannelID,
		AuthorRef: in.AuthorRef,
		Text:      in.Text,
		CreatedAt: in.Timestamp.UTC(),
	}
	inserted, err := c.store.Messages().Insert(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, "store message")
	}
	if !inserted {
		metrics.MessagesDuplicate.Inc()
		existing, err := c.store.Messages().GetBySourceRef(ctx, in.SourceRef)
		if err != nil {
			return nil, errors.Wrap(err, "load duplicate message")
		}
		c.log.Debug().Str("source_ref", in.SourceRef).Msg("duplicate delivery ignored")
		return &Outcome{Message: existing, Duplicate: true}, nil
	}
	metrics.MessagesIngested.Inc()

	return c.process(ctx, msg)
}

// process advances an already-stored message through classify, embed and
// match. The message may come fresh from Ingest or from a pending sweep.
func (c *Coordinator) process(ctx context.Context, msg *model.Message) (*Outcome, error) {
	cls, err := c.classification(ctx, msg)
	if err != nil {
		metrics.MessagesPending.Inc()
		return nil, errors.Wrapf(err, "classify message %s", msg.MessageID)
	}
	if !cls.IsRelevant {
		metrics.MessagesIrrelevant.Inc()
		c.log.Debug().Str("message", msg.MessageID).Str("label", cls.Label).Msg("message not relevant")
		return &Outcome{Message: msg}, nil
	}

	embedding, err := c.embedder.Embed(ctx, msg.Text)
	if err != nil {
		metrics.MessagesPending.Inc()
		return nil, errors.Wrapf(err, "embed message %s", msg.MessageID)
	}

	iss, created, err := c.matcher.Commit(ctx, msg, cls, embedding)
	if err != nil {
		if errors.Is(err, model.ErrIntegrity) {
			// Not retryable: a store invariant has been violated.
			c.log.Error().Stack().Err(err).Str("message", msg.MessageID).Msg("integrity violation during commit")
			return nil, err
		}
		metrics.MessagesPending.Inc()
		return nil, errors.Wrapf(err, "commit message %s", msg.MessageID)
	}
	msg.Embedding = embedding
	msg.IssueID = &iss.IssueID
	return &Outcome{Message: msg, Issue: iss, Created: created}, nil
}

// classification returns the stored verdict when one exists, otherwise calls
// the classifier and records the result. Re-running a classified message is a
// read, not a second model call.
func (c *Coordinator) classification(ctx context.Context, msg *model.Message) (model.Classification, error) {
	if msg.IsRelevant != nil {
		cls := model.Classification{IsRelevant: *msg.IsRelevant}
		if msg.Classification != nil {
			cls.Label = *msg.Classification
		}
		if msg.Confidence != nil {
			cls.Confidence = *msg.Confidence
		}
		return cls, nil
	}

	cls, err := c.classifier.Classify(ctx, msg.Text)
	if err != nil {
		return model.Classification{}, err
	}
	if err := c.store.Messages().SetClassification(ctx, msg.MessageID, cls); err != nil {
		return model.Classification{}, errors.Wrap(err, "record classification")
	}
	msg.Classification = &cls.Label
	msg.Confidence = &cls.Confidence
	msg.IsRelevant = &cls.IsRelevant
	return cls, nil
}

// Resolve marks an issue resolved and notifies viewers. Resolving an already
// resolved issue is idempotent.
func (c *Coordinator) Resolve(ctx context.Context, issueID string) (*model.Issue, error) {
	iss, err := c.store.Issues().Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if iss.Status == model.IssueResolved {
		return iss, nil
	}
	iss, err = c.store.Issues().UpdateStatus(ctx, issueID, model.IssueResolved)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve issue %s", issueID)
	}
	metrics.IssuesResolved.Inc()
	c.log.Info().Str("issue", issueID).Msg("issue resolved")
	if c.pub != nil {
		c.pub.Publish(model.Event{Type: model.EventIssueResolved, IssueID: issueID})
	}
	return iss, nil
}

// ReprocessPending sweeps messages parked by earlier collaborator failures
// and runs the remaining stages. Individual failures are logged and skipped;
// the sweep reports how many messages it completed.
func (c *Coordinator) ReprocessPending(ctx context.Context) (int, error) {
	pending, err := c.store.Messages().ListPending(ctx, reprocessBatch)
	if err != nil {
		return 0, errors.Wrap(err, "list pending messages")
	}
	done := 0
	for _, msg := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := c.process(ctx, msg); err != nil {
			c.log.Warn().Err(err).Str("message", msg.MessageID).Msg("pending message still failing")
			continue
		}
		done++
	}
	if len(pending) > 0 {
		c.log.Info().Int("swept", len(pending)).Int("completed", done).Msg("reprocessed pending messages")
	}
	return done, nil
}
