package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestRecording(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordEdit("0000", "ok")
	m.RecordEdit("0000", "ok")
	m.RecordEdit("0000", "rate_limited")
	m.RecordDeltas("0000", 7)
	m.RecordJournal(3, 1)
	m.RecordArchiveUpload(false)

	if v := counterValue(t, m.edits.WithLabelValues("0000", "ok")); v != 2 {
		t.Errorf("edits ok = %v", v)
	}
	if v := counterValue(t, m.edits.WithLabelValues("0000", "rate_limited")); v != 1 {
		t.Errorf("edits rate_limited = %v", v)
	}
	if v := counterValue(t, m.deltaCells.WithLabelValues("0000")); v != 7 {
		t.Errorf("delta cells = %v", v)
	}
	if v := counterValue(t, m.journalWritten); v != 3 {
		t.Errorf("journal written = %v", v)
	}
	if v := counterValue(t, m.journalDropped); v != 1 {
		t.Errorf("journal dropped = %v", v)
	}
	if v := counterValue(t, m.archiveUploads.WithLabelValues("error")); v != 1 {
		t.Errorf("archive errors = %v", v)
	}
}

func TestHubObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())
	o := m.HubObserver("c")
	o.Registered()
	o.Registered()
	o.Registered()
	o.Unregistered()
	o.Pruned()
	if v := gaugeValue(t, m.streams.WithLabelValues("c")); v != 1 {
		t.Errorf("active = %v", v)
	}
	if v := counterValue(t, m.streamsPruned.WithLabelValues("c")); v != 1 {
		t.Errorf("pruned = %v", v)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordEdit("a", "ok")
	m.RecordDeltas("a", 1)
	m.RecordSession("a")
	m.RecordToken("a")
	m.RecordJournal(1, 1)
	m.RecordArchiveUpload(true)
	if m.HubObserver("a") != nil {
		t.Fatal("expected nil observer")
	}
}
