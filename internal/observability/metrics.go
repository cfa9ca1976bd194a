package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationsCreated counts invitations persisted by issuers.
	InvitationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "welcomemat_invitations_created_total",
		Help: "Total number of invitations created",
	})

	// InvitationDeliveries counts invitation emails by outcome ("sent" or "failed").
	InvitationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "welcomemat_invitation_deliveries_total",
		Help: "Invitation email delivery attempts by outcome",
	}, []string{"outcome"})

	// InvitationActivations counts activation attempts by outcome ("activated" or "invalid").
	InvitationActivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "welcomemat_invitation_activations_total",
		Help: "Invitation activation attempts by outcome",
	}, []string{"outcome"})

	// InvitationsExpired counts invitations moved to expired by the sweeper.
	InvitationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "welcomemat_invitations_expired_total",
		Help: "Total number of invitations expired by the background sweeper",
	})

	// MailSendLatency records how long outbound mail takes by provider.
	MailSendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "welcomemat_mail_send_latency_seconds",
		Help:    "Outbound mail latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// DatabaseQueryLatency records repository query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "welcomemat_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackMail returns a function that records mail latency for provider when called.
func TrackMail(provider string) func() {
	start := time.Now()
	return func() {
		MailSendLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}
