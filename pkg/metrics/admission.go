package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMetrics tracks the RSVP admission pipeline.
type AdmissionMetrics struct {
	responses  *prometheus.CounterVec
	checkIns   *prometheus.CounterVec
	promotions *prometheus.CounterVec
	debited    prometheus.Counter
	refunded   prometheus.Counter
	txDuration *prometheus.HistogramVec
}

// NewAdmissionMetrics registers the admission metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	if reg == nil {
		return &AdmissionMetrics{}
	}
	m := &AdmissionMetrics{
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsvp_responses_total",
			Help: "RSVP submissions by requested status and outcome.",
		}, []string{"requested", "outcome"}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsvp_checkins_total",
			Help: "Door scans by result.",
		}, []string{"result"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsvp_waitlist_promotions_total",
			Help: "Waitlist candidates evaluated by result.",
		}, []string{"result"}),
		debited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_credit_debited_cents_total",
			Help: "Credit cents debited for admissions.",
		}),
		refunded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsvp_credit_refunded_cents_total",
			Help: "Credit cents refunded to attendees.",
		}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rsvp_admission_tx_duration_seconds",
			Help:    "Duration of admission transactions.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
	}
	reg.MustRegister(m.responses, m.checkIns, m.promotions, m.debited, m.refunded, m.txDuration)
	return m
}

// ObserveResponse counts a respond call; outcome is the resulting status or error code.
func (m *AdmissionMetrics) ObserveResponse(requested, outcome string) {
	if m == nil || m.responses == nil {
		return
	}
	m.responses.WithLabelValues(normalizeLabel(requested), normalizeLabel(outcome)).Inc()
}

func (m *AdmissionMetrics) ObserveCheckIn(result string) {
	if m == nil || m.checkIns == nil {
		return
	}
	m.checkIns.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *AdmissionMetrics) ObservePromotion(result string) {
	if m == nil || m.promotions == nil {
		return
	}
	m.promotions.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *AdmissionMetrics) AddDebited(cents int64) {
	if m == nil || m.debited == nil || cents <= 0 {
		return
	}
	m.debited.Add(float64(cents))
}

func (m *AdmissionMetrics) AddRefunded(cents int64) {
	if m == nil || m.refunded == nil || cents <= 0 {
		return
	}
	m.refunded.Add(float64(cents))
}

// ObserveTx records how long an admission transaction took.
func (m *AdmissionMetrics) ObserveTx(operation string, d time.Duration) {
	if m == nil || m.txDuration == nil {
		return
	}
	m.txDuration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}
