package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the booking-service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations     *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	slotsGenerated *prometheus.HistogramVec
	opLatency      *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	published      *prometheus.CounterVec
	consumed       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Scheduling operations by outcome (ok, rejected, error).",
		}, []string{"operation", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "booking",
			Name:      "rejections_total",
			Help:      "Business rule rejections by reason.",
		}, []string{"operation", "reason"}),
		slotsGenerated: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentalbook",
			Subsystem: "booking",
			Name:      "slots_generated",
			Help:      "Slots produced per availability query.",
			Buckets:   []float64{0, 4, 8, 16, 32, 64},
		}, []string{"availability"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentalbook",
			Subsystem: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Latency of scheduling operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "catalog",
			Name:      "duration_cache_lookups_total",
			Help:      "Service duration cache lookups by result.",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events delivered to Kafka.",
		}, []string{"event_type"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Consumed Kafka messages by outcome.",
		}, []string{"topic", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.rejections, m.slotsGenerated, m.opLatency, m.cacheLookups, m.published, m.consumed)
	return m
}

func (m *Metrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.opLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) ObserveSlots(total, available int) {
	if m == nil {
		return
	}
	m.slotsGenerated.WithLabelValues("all").Observe(float64(total))
	m.slotsGenerated.WithLabelValues("available").Observe(float64(available))
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveConsumed(topic, outcome string) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(topic, outcome).Inc()
}
