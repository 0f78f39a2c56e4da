// Package metrics holds the service's Prometheus collectors. The registry is
// exposed on /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_messages_ingested_total",
		Help: "Messages accepted for processing.",
	})
	MessagesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_messages_duplicate_total",
		Help: "Re-delivered messages dropped by source_ref de-duplication.",
	})
	MessagesIrrelevant = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_messages_irrelevant_total",
		Help: "Messages classified as irrelevant.",
	})
	MessagesPending = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_messages_pending_total",
		Help: "Messages parked in a retryable state after a collaborator failure.",
	})
	IssuesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_issues_created_total",
		Help: "New issues created by the matcher.",
	})
	MessagesAttached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_messages_attached_total",
		Help: "Messages attached to an existing issue by the matcher.",
	})
	IssuesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_issues_resolved_total",
		Help: "Issues marked resolved.",
	})
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_events_published_total",
		Help: "Events published to the broadcast hub.",
	})
	ViewersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_viewers_dropped_total",
		Help: "Viewer connections torn down for falling behind.",
	})
)
