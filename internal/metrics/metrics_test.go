package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
)

func TestHelpersAreNilSafeWithoutGlobal(t *testing.T) {
	SetGlobal(nil)
	// must not panic
	IncCallOriginated("progressive")
	IncCallFailed("manual")
	IncCallRefused("Agent not found or inactive")
	IncDncBlocked()
	ObserveTick(0.01, 3, 1)
}

func TestCallCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncCallOriginated("progressive")
	IncCallOriginated("progressive")
	IncCallOriginated("manual")
	IncCallFailed("progressive")

	c, err := m.CallsOriginatedTotal.GetMetricWithLabelValues("progressive")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 2 {
		t.Fatalf("originated{progressive} = %v, want 2", got)
	}
}

func TestObserveTickSetsGauges(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	ObserveTick(0.2, 7, 3)

	var pb dto.Metric
	if err := m.ActiveCalls.Write(&pb); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := pb.GetGauge().GetValue(); got != 7 {
		t.Fatalf("active_calls = %v, want 7", got)
	}
	if err := m.RunningCampaigns.Write(&pb); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := pb.GetGauge().GetValue(); got != 3 {
		t.Fatalf("running_campaigns = %v, want 3", got)
	}
}

func TestMiddlewareAndScrapeEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/v1/campaigns/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	scrape := httptest.NewRecorder()
	r.ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if scrape.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", scrape.Code)
	}
	body := scrape.Body.String()
	// the route template, not the raw path, is the label
	if !strings.Contains(body, `path="/api/v1/campaigns/:id"`) {
		t.Fatalf("scrape output missing templated path label:\n%s", body)
	}
}
