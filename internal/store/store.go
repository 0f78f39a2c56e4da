package store

import (
	"context"

	"github.com/triagehub/triagehub/internal/model"
)

// Store exposes persistence operations required by the pipeline.
// Implementations live under internal/store/<driver>/ (sqlite, postgres).
type Store interface {
	Messages() Messages
	Issues() Issues
	Stats(ctx context.Context) (*model.Stats, error)
}

// Messages covers the message aggregate. Rows are created once and filled in
// monotonically: classification first, then embedding and issue membership.
type Messages interface {
	// Insert stores a new message. Returns false when a message with the
	// same source_ref already exists; the row is left untouched in that case.
	Insert(ctx context.Context, m *model.Message) (bool, error)
	Get(ctx context.Context, messageID string) (*model.Message, error)
	GetBySourceRef(ctx context.Context, sourceRef string) (*model.Message, error)
	// SetClassification records the classifier verdict exactly once.
	SetClassification(ctx context.Context, messageID string, c model.Classification) error
	// ListPending returns messages that still need pipeline work: never
	// classified, or relevant but not yet attached to an issue.
	ListPending(ctx context.Context, limit int) ([]*model.Message, error)
	ListByIssue(ctx context.Context, issueID string) ([]*model.Message, error)
}

// AppendMember carries one attach decision from the matcher. Representative
// and MemberCount are the recomputed centroid state for the issue row;
// Summary and Classification are non-nil only when the refresh policy fires.
type AppendMember struct {
	IssueID        string
	MessageID      string
	Embedding      []float32
	Representative []float32
	MemberCount    int
	Summary        *string
	Classification *string
}

// Issues covers the issue aggregate. CreateWithMember and AppendMember are
// transactional: the issue row and the member message row commit together or
// not at all.
type Issues interface {
	// CreateWithMember creates a new issue seeded from the given message and
	// attaches the message to it in the same transaction.
	CreateWithMember(ctx context.Context, iss *model.Issue, messageID string, embedding []float32) (*model.Issue, error)
	// AppendMember attaches a message to an existing issue and writes the
	// recomputed centroid. Returns model.ErrIntegrity if the message already
	// belongs to an issue.
	AppendMember(ctx context.Context, req AppendMember) (*model.Issue, error)
	Get(ctx context.Context, issueID string) (*model.Issue, error)
	List(ctx context.Context) ([]*model.Issue, error)
	// ListOpen returns open issues with their representative embeddings,
	// most recently updated first.
	ListOpen(ctx context.Context) ([]*model.Issue, error)
	UpdateStatus(ctx context.Context, issueID string, status model.IssueStatus) (*model.Issue, error)
}
