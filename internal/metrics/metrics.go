package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for the punch path.
type Metrics struct {
	PunchesAccepted *prometheus.CounterVec
	PunchesRejected *prometheus.CounterVec
	FaceMatches     *prometheus.CounterVec
}

// New creates and registers all counters on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the counters on a caller-provided registry, which keeps
// repeated construction in tests from colliding.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PunchesAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_punches_accepted_total",
			Help: "Accepted punches by direction",
		}, []string{"direction"}),
		PunchesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_punches_rejected_total",
			Help: "Rejected punches by failure domain",
		}, []string{"domain"}),
		FaceMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_face_match_total",
			Help: "Face match attempts by outcome",
		}, []string{"outcome"}),
	}
}
