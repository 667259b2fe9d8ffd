package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bmitracker/internal/domain"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("bmi_test")

	c.ObserveEvaluation(domain.CategoryNormal)
	c.ObserveEvaluation(domain.CategoryNormal)
	c.ObserveEvaluation(domain.CategoryInvalidHeight)
	c.ObserveRecordAppended()
	c.RecordHTTPRequest("/api/bmi/records", "POST", 200, 15*time.Millisecond)

	if got := testutil.ToFloat64(c.EvaluationsTotal.WithLabelValues(string(domain.CategoryNormal))); got != 2 {
		t.Errorf("normal evaluations = %v; want 2", got)
	}
	if got := testutil.ToFloat64(c.EvaluationsTotal.WithLabelValues(string(domain.CategoryInvalidHeight))); got != 1 {
		t.Errorf("invalid evaluations = %v; want 1", got)
	}
	if got := testutil.ToFloat64(c.RecordsAppended); got != 1 {
		t.Errorf("records appended = %v; want 1", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequestsTotal.WithLabelValues("/api/bmi/records", "POST", "200")); got != 1 {
		t.Errorf("http requests = %v; want 1", got)
	}
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors with the same namespace must not collide.
	a := NewCollector("bmi_test")
	b := NewCollector("bmi_test")
	a.ObserveRecordAppended()
	if got := testutil.ToFloat64(b.RecordsAppended); got != 0 {
		t.Errorf("collector b saw %v appends", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("bmi_test")
	c.ObserveRecordAppended()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "bmi_test_bmi_records_appended_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
