package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Upload("created")
	m.Upload("created")
	m.AnchorSettled("blockchain", "confirmed")
	m.Verification(false)
	m.ReceiptCache(true)
	m.ObserveHTTP("POST", "/upload", "201", 5*time.Millisecond)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"uploads", testutil.ToFloat64(m.uploads.WithLabelValues("created")), 2},
		{"settlements", testutil.ToFloat64(m.anchorSettlements.WithLabelValues("blockchain", "confirmed")), 1},
		{"verifications", testutil.ToFloat64(m.verifications.WithLabelValues("missing")), 1},
		{"receipt cache", testutil.ToFloat64(m.receiptCache.WithLabelValues("hit")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "credanchor_uploads_total") {
		t.Fatal("exposition is missing credanchor_uploads_total")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Upload("created")
	m.AnchorSettled("blockchain", "failed")
	m.Verification(true)
	m.ReceiptCache(false)
	m.ObserveHTTP("GET", "/health", "200", time.Millisecond)
	if m.Registry() != nil {
		t.Fatal("nil metrics returned a registry")
	}
}
