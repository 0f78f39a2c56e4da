package model

import "time"

// IssueStatus enumerates the lifecycle states of an issue.
type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
)

// Classification is the result of the relevance classifier for one message.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	IsRelevant bool    `json:"is_relevant"`
	Summary    string  `json:"summary,omitempty"`
}

// Message is one immutable unit of ingested chat text. Classification,
// embedding and issue membership are filled in exactly once as the message
// advances through the pipeline; they are never reverted.
type Message struct {
	MessageID      string    `json:"messageId"`
	SourceRef      string    `json:"sourceRef"`
	ChannelID      string    `json:"channelId"`
	AuthorRef      string    `json:"authorRef"`
	Text           string    `json:"text"`
	Classification *string   `json:"classification,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	IsRelevant     *bool     `json:"isRelevant,omitempty"`
	Embedding      []float32 `json:"-"`
	IssueID        *string   `json:"issueId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Pending reports whether the message still needs pipeline work: either it was
// never classified, or it was judged relevant but never attached to an issue.
func (m *Message) Pending() bool {
	if m.IsRelevant == nil {
		return true
	}
	return *m.IsRelevant && m.IssueID == nil
}

// Issue is a tracked conversation thread clustered from one or more relevant
// messages. Embedding is the representative centroid used for matching;
// MemberCount is the number of member messages folded into it.
type Issue struct {
	IssueID        string      `json:"issueId"`
	Title          string      `json:"title"`
	Summary        string      `json:"summary,omitempty"`
	Classification string      `json:"classification,omitempty"`
	Status         IssueStatus `json:"status"`
	Embedding      []float32   `json:"-"`
	MemberCount    int         `json:"memberCount"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// EventType identifies a push notification kind.
type EventType string

const (
	EventNewMessage    EventType = "new_message"
	EventIssueResolved EventType = "issue_resolved"
)

// Event is the minimal record pushed to viewers. Viewers re-fetch full state
// by id; the payload never carries issue or message bodies.
type Event struct {
	Type      EventType `json:"type"`
	IssueID   string    `json:"issue_id"`
	MessageID string    `json:"message_id,omitempty"`
}

// Stats summarizes store contents for the admin surface.
type Stats struct {
	TotalIssues      int            `json:"totalIssues"`
	OpenIssues       int            `json:"openIssues"`
	ResolvedIssues   int            `json:"resolvedIssues"`
	TotalMessages    int            `json:"totalMessages"`
	RelevantMessages int            `json:"relevantMessages"`
	PendingMessages  int            `json:"pendingMessages"`
	ByClassification map[string]int `json:"byClassification,omitempty"`
}
