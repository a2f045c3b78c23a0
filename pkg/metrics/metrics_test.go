package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorOnObservation(t *testing.T) {
	c := New()
	obs := []core.Observation{
		{Sequence: 1, Target: "example.com", Outcome: core.OutcomeSuccess, RoundTripMillis: 12},
		{Sequence: 2, Target: "example.com", Outcome: core.OutcomeTimedOut, RoundTripMillis: -1},
		{Sequence: 3, Target: "example.com", Outcome: core.OutcomeSuccess, RoundTripMillis: 30},
	}
	for i, o := range obs {
		c.OnObservation(o, core.ComputeStatistics(obs[:i+1]))
	}

	if got := testutil.ToFloat64(c.probes.WithLabelValues("example.com", "Success")); got != 2 {
		t.Errorf("Expected 2 successful probes, got %v", got)
	}
	if got := testutil.ToFloat64(c.probes.WithLabelValues("example.com", "TimedOut")); got != 1 {
		t.Errorf("Expected 1 timed out probe, got %v", got)
	}
	if got := testutil.ToFloat64(c.lastRTT.WithLabelValues("example.com")); got != 30 {
		t.Errorf("Expected last RTT 30, got %v", got)
	}
	if got := testutil.ToFloat64(c.ledgerSize); got != 3 {
		t.Errorf("Expected ledger size 3, got %v", got)
	}
	loss := testutil.ToFloat64(c.lossPercent.WithLabelValues("example.com"))
	if loss < 33.3 || loss > 33.4 {
		t.Errorf("Expected loss ~33.3, got %v", loss)
	}
}

func TestCollectorReset(t *testing.T) {
	c := New()
	c.OnObservation(core.Observation{Target: "a", Outcome: core.OutcomeSuccess, RoundTripMillis: 5}, core.Statistics{Sent: 1, Received: 1})
	c.OnLogLine("[10:00:00] Ping stopped by user.")
	c.Reset()

	if got := testutil.ToFloat64(c.ledgerSize); got != 0 {
		t.Errorf("Expected ledger size 0 after reset, got %v", got)
	}
	if n := testutil.CollectAndCount(c.lastRTT); n != 0 {
		t.Errorf("Expected no last RTT series after reset, got %d", n)
	}
	if got := testutil.ToFloat64(c.logLines); got != 1 {
		t.Errorf("Expected 1 log line, got %v", got)
	}
}

func TestCollectorHandler(t *testing.T) {
	c := New()
	c.OnObservation(core.Observation{Target: "example.com", Outcome: core.OutcomeSuccess, RoundTripMillis: 7}, core.Statistics{Sent: 1, Received: 1})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"pingwatch_probes_total", "pingwatch_rtt_milliseconds_bucket", "pingwatch_loss_percent"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in output", name)
		}
	}
}
