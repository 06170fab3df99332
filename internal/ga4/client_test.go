package ga4

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func reportServer(t *testing.T, resp ReportResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/properties/123456:runReport" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestRunReportSendsBody(t *testing.T) {
	var body runReportBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(ReportResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	_, err := c.RunReport(context.Background(), "tok", ReportRequest{
		PropertyID: "123456",
		StartDate:  "2025-05-01",
		EndDate:    "2025-05-31",
		Metrics:    []string{"sessions"},
		Dimensions: []string{"deviceCategory"},
	})
	if err != nil {
		t.Fatalf("RunReport() error = %v", err)
	}

	if len(body.DateRanges) != 1 || body.DateRanges[0].StartDate != "2025-05-01" {
		t.Errorf("dateRanges = %+v", body.DateRanges)
	}
	if len(body.Metrics) != 1 || body.Metrics[0].Name != "sessions" {
		t.Errorf("metrics = %+v", body.Metrics)
	}
	if len(body.Dimensions) != 1 || body.Dimensions[0].Name != "deviceCategory" {
		t.Errorf("dimensions = %+v", body.Dimensions)
	}
}

func TestRunReportUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"PERMISSION_DENIED"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	if _, err := c.RunReport(context.Background(), "tok", ReportRequest{PropertyID: "123456"}); err == nil {
		t.Fatal("RunReport() = nil error on 403")
	}
}

func TestGetBasicMetrics(t *testing.T) {
	srv := reportServer(t, ReportResponse{Rows: []Row{{
		MetricValues: []Value{{"500"}, {"200"}, {"100"}, {"55.0"}, {"130.5"}},
	}}})
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	m, err := c.GetBasicMetrics(context.Background(), "tok", "123456", "2025-05-01", "2025-05-31")
	if err != nil {
		t.Fatalf("GetBasicMetrics() error = %v", err)
	}
	if m.PageViews != 500 || m.Users != 200 || m.Sessions != 100 {
		t.Errorf("counters = %+v", m)
	}
	if m.BounceRate != 55.0 || m.AvgSessionDuration != 130.5 {
		t.Errorf("rates = %+v", m)
	}
}

func TestGetBasicMetricsEmptyReport(t *testing.T) {
	srv := reportServer(t, ReportResponse{})
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	m, err := c.GetBasicMetrics(context.Background(), "tok", "123456", "2025-05-01", "2025-05-31")
	if err != nil {
		t.Fatalf("GetBasicMetrics() error = %v", err)
	}
	if m.PageViews != 0 || m.BounceRate != 0 {
		t.Errorf("metrics for empty report = %+v", m)
	}
}

func TestGetSourceRowsDirectFallback(t *testing.T) {
	srv := reportServer(t, ReportResponse{Rows: []Row{
		{DimensionValues: []Value{{"google"}}, MetricValues: []Value{{"60"}, {"40"}}},
		{DimensionValues: []Value{{""}}, MetricValues: []Value{{"25"}, {"20"}}},
	}})
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	rows, err := c.GetSourceRows(context.Background(), "tok", "123456", "2025-05-01", "2025-05-31")
	if err != nil {
		t.Fatalf("GetSourceRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	if rows[1].Source != "(direct)" {
		t.Errorf("empty source = %q, want (direct)", rows[1].Source)
	}
}

func TestGetPageRows(t *testing.T) {
	srv := reportServer(t, ReportResponse{Rows: []Row{
		{DimensionValues: []Value{{"/blog"}, {"技術ブログ"}}, MetricValues: []Value{{"120"}, {"95.5"}}},
	}})
	defer srv.Close()

	c := NewClient(srv.URL, 4)
	rows, err := c.GetPageRows(context.Background(), "tok", "123456", "2025-05-01", "2025-05-31")
	if err != nil {
		t.Fatalf("GetPageRows() error = %v", err)
	}
	want := PageRow{Path: "/blog", Title: "技術ブログ", Views: 120, AvgTime: 95.5}
	if rows[0] != want {
		t.Errorf("rows[0] = %+v, want %+v", rows[0], want)
	}
}
