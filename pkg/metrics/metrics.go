// Package metrics holds the Prometheus collectors of the service. Every recording method is safe
// to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/astromechza/pixelwar/pkg/hub"
)

const namespace = "pixelwar"

type Metrics struct {
	edits          *prometheus.CounterVec
	deltaCells     *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	tokens         *prometheus.CounterVec
	streams        *prometheus.GaugeVec
	streamsPruned  *prometheus.CounterVec
	journalDropped prometheus.Counter
	journalWritten prometheus.Counter
	archiveUploads *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		edits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Edit requests by canvas and result (ok or a reason code)",
		}, []string{"canvas", "result"}),
		deltaCells: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_cells_total",
			Help:      "Cells returned by delta polls",
		}, []string{"canvas"}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "User sessions created",
		}, []string{"canvas"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued",
		}, []string{"canvas"}),
		streams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Registered push connections",
		}, []string{"canvas"}),
		streamsPruned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_pruned_total",
			Help:      "Push connections dropped because a send failed",
		}, []string{"canvas"}),
		journalDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_dropped_total",
			Help:      "Edits not journaled because the buffer was full",
		}),
		journalWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_written_total",
			Help:      "Edits written to the journal",
		}),
		archiveUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_uploads_total",
			Help:      "Snapshot uploads by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordEdit(canvas, result string) {
	if m == nil {
		return
	}
	m.edits.WithLabelValues(canvas, result).Inc()
}

func (m *Metrics) RecordDeltas(canvas string, cells int) {
	if m == nil {
		return
	}
	m.deltaCells.WithLabelValues(canvas).Add(float64(cells))
}

func (m *Metrics) RecordSession(canvas string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(canvas).Inc()
}

func (m *Metrics) RecordToken(canvas string) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(canvas).Inc()
}

func (m *Metrics) RecordJournal(written, dropped int) {
	if m == nil {
		return
	}
	m.journalWritten.Add(float64(written))
	m.journalDropped.Add(float64(dropped))
}

func (m *Metrics) RecordArchiveUpload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.archiveUploads.WithLabelValues(result).Inc()
}

type hubObserver struct {
	active prometheus.Gauge
	pruned prometheus.Counter
}

func (h hubObserver) Registered()   { h.active.Inc() }
func (h hubObserver) Unregistered() { h.active.Dec() }
func (h hubObserver) Pruned() {
	h.active.Dec()
	h.pruned.Inc()
}

// HubObserver returns an observer tracking the push connections of one canvas, or nil when m
// is nil.
func (m *Metrics) HubObserver(canvas string) hub.Observer {
	if m == nil {
		return nil
	}
	return hubObserver{
		active: m.streams.WithLabelValues(canvas),
		pruned: m.streamsPruned.WithLabelValues(canvas),
	}
}
