package checkpoints

import (
	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	checkpoints *prometheus.CounterVec
	outOfOrderC *prometheus.CounterVec
	idleC       *prometheus.CounterVec
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	f := promauto.With(reg)
	return &engineMetrics{
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crewtrack",
			Name:      "checkpoints_total",
			Help:      "Checkpoints recorded by crews.",
		}, []string{"kind", "status"}),
		outOfOrderC: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crewtrack",
			Name:      "checkpoint_out_of_order_total",
			Help:      "Checkpoints that went backwards or skipped steps.",
		}, []string{"kind", "direction"}),
		idleC: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crewtrack",
			Name:      "idle_checkpoints_total",
			Help:      "Synthetic idle checkpoints.",
		}, []string{"kind"}),
	}
}

func (m *engineMetrics) checkpoint(kind models.JobKind, status string) {
	if m == nil {
		return
	}
	m.checkpoints.WithLabelValues(string(kind), status).Inc()
}

func (m *engineMetrics) outOfOrder(kind models.JobKind, direction string) {
	if m == nil {
		return
	}
	m.outOfOrderC.WithLabelValues(string(kind), direction).Inc()
}

func (m *engineMetrics) idle(kind models.JobKind) {
	if m == nil {
		return
	}
	m.idleC.WithLabelValues(string(kind)).Inc()
}
