package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds service-level Prometheus metrics. Package-local metrics
// (cache hit ratios, retry backoff) live next to the code they observe.
type Metrics struct {
	IdentitiesCreated prometheus.Counter
	IdentitiesRenewed *prometheus.CounterVec
	SessionsRevoked   prometheus.Counter
	AbuseRejections   prometheus.Counter
	QuotaExceeded     prometheus.Counter
}

// New creates and registers all service-level Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vidgate_identities_created_total",
			Help: "Total number of anonymous identities issued",
		}),
		IdentitiesRenewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vidgate_identities_renewed_total",
			Help: "Total number of identity renewals by kind (explicit or auto)",
		}, []string{"kind"}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vidgate_sessions_revoked_total",
			Help: "Total number of sessions revoked via logout",
		}),
		AbuseRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vidgate_abuse_rejections_total",
			Help: "Total number of identity issuance refusals by the abuse guard",
		}),
		QuotaExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vidgate_quota_exceeded_total",
			Help: "Total number of requests stopped by quota exhaustion",
		}),
	}
}
