package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the consensus engine's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	SubjectsTotal      prometheus.Counter
	ResultsTotal       *prometheus.CounterVec
	DroppedMarksTotal  *prometheus.CounterVec
	SubjectErrorsTotal prometheus.Counter
	EvaluateDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SubjectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "subjects_total",
			Help:      "Total number of subjects reduced",
		}),
		// Labels: kind, reached (true, false)
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "results_total",
			Help:      "Total number of consensus results by task kind and outcome",
		}, []string{"kind", "reached"}),
		DroppedMarksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "dropped_marks_total",
			Help:      "Total number of marks dropped for non-finite values",
		}, []string{"kind"}),
		SubjectErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "subject_errors_total",
			Help:      "Total number of subject reductions recorded with an error",
		}),
		EvaluateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consensus",
			Name:      "evaluate_duration_seconds",
			Help:      "Duration of full evaluation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.SubjectsTotal, m.ResultsTotal, m.DroppedMarksTotal, m.SubjectErrorsTotal, m.EvaluateDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveSubject records one reduced subject.
func (m *Metrics) ObserveSubject(failed bool) {
	if m == nil {
		return
	}
	m.SubjectsTotal.Inc()
	if failed {
		m.SubjectErrorsTotal.Inc()
	}
}

// ObserveResult records one result for kind.
func (m *Metrics) ObserveResult(kind string, reached bool, droppedMarks int) {
	if m == nil {
		return
	}
	m.ResultsTotal.WithLabelValues(kind, strconv.FormatBool(reached)).Inc()
	if droppedMarks > 0 {
		m.DroppedMarksTotal.WithLabelValues(kind).Add(float64(droppedMarks))
	}
}

// ObserveRun records how long an evaluation run took.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluateDuration.Observe(d.Seconds())
}
