// Package ga4 is a thin client for the Google Analytics Data API v1beta.
// https://developers.google.com/analytics/devguides/reporting/data/v1
package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sitepulse/insight-gateway/internal/httputil"
)

const defaultBaseURL = "https://analyticsdata.googleapis.com/v1beta"

// Client calls the GA4 Data API with a caller-supplied OAuth access token.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a GA4 client with a pooled transport. baseURL overrides
// the production endpoint when non-empty (used by tests).
func NewClient(baseURL string, poolSize int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  httputil.NewPooledClient(poolSize, 30*time.Second),
	}
}

// ReportRequest describes one runReport call.
type ReportRequest struct {
	PropertyID string
	StartDate  string
	EndDate    string
	Metrics    []string
	Dimensions []string
}

// Value is a single dimension or metric cell. GA4 returns all values as strings.
type Value struct {
	Value string `json:"value"`
}

// Row is one result row of a report.
type Row struct {
	DimensionValues []Value `json:"dimensionValues,omitempty"`
	MetricValues    []Value `json:"metricValues"`
}

// ReportResponse is the subset of the runReport response the gateway uses.
type ReportResponse struct {
	Rows     []Row `json:"rows,omitempty"`
	RowCount int   `json:"rowCount,omitempty"`
}

type runReportBody struct {
	DateRanges []dateRange  `json:"dateRanges"`
	Metrics    []namedField `json:"metrics"`
	Dimensions []namedField `json:"dimensions"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type namedField struct {
	Name string `json:"name"`
}

// RunReport executes a runReport call for the given property and date range.
func (c *Client) RunReport(ctx context.Context, accessToken string, req ReportRequest) (*ReportResponse, error) {
	dims := make([]namedField, 0, len(req.Dimensions))
	for _, d := range req.Dimensions {
		dims = append(dims, namedField{Name: d})
	}
	mets := make([]namedField, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		mets = append(mets, namedField{Name: m})
	}

	body, err := json.Marshal(runReportBody{
		DateRanges: []dateRange{{StartDate: req.StartDate, EndDate: req.EndDate}},
		Metrics:    mets,
		Dimensions: dims,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal report request: %w", err)
	}

	url := fmt.Sprintf("%s/properties/%s:runReport", c.baseURL, req.PropertyID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create report request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ga4 request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ga4 status %d: %s", resp.StatusCode, errBody)
	}

	var report ReportResponse
	if err = json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("ga4 decode: %w", err)
	}
	return &report, nil
}

// BasicMetrics holds the headline counters for one property and date range.
type BasicMetrics struct {
	PageViews          int
	Users              int
	Sessions           int
	BounceRate         float64
	AvgSessionDuration float64
}

// GetBasicMetrics fetches page views, users, sessions, bounce rate and
// average session duration in a single report.
func (c *Client) GetBasicMetrics(ctx context.Context, accessToken, propertyID, startDate, endDate string) (*BasicMetrics, error) {
	report, err := c.RunReport(ctx, accessToken, ReportRequest{
		PropertyID: propertyID,
		StartDate:  startDate,
		EndDate:    endDate,
		Metrics: []string{
			"screenPageViews",
			"totalUsers",
			"sessions",
			"bounceRate",
			"averageSessionDuration",
		},
	})
	if err != nil {
		return nil, err
	}

	var values []Value
	if len(report.Rows) > 0 {
		values = report.Rows[0].MetricValues
	}

	return &BasicMetrics{
		PageViews:          metricInt(values, 0),
		Users:              metricInt(values, 1),
		Sessions:           metricInt(values, 2),
		BounceRate:         metricFloat(values, 3),
		AvgSessionDuration: metricFloat(values, 4),
	}, nil
}

// PageRow is one raw (path, title) report row before same-path merging.
type PageRow struct {
	Path    string
	Title   string
	Views   int
	AvgTime float64
}

// GetPageRows fetches per-page view counts keyed by path and title. The same
// path appears multiple times when GA4 recorded differing titles for it.
func (c *Client) GetPageRows(ctx context.Context, accessToken, propertyID, startDate, endDate string) ([]PageRow, error) {
	report, err := c.RunReport(ctx, accessToken, ReportRequest{
		PropertyID: propertyID,
		StartDate:  startDate,
		EndDate:    endDate,
		Metrics:    []string{"screenPageViews", "averageSessionDuration"},
		Dimensions: []string{"pagePath", "pageTitle"},
	})
	if err != nil {
		return nil, err
	}

	rows := make([]PageRow, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, PageRow{
			Path:    dimension(row, 0),
			Title:   dimension(row, 1),
			Views:   metricInt(row.MetricValues, 0),
			AvgTime: metricFloat(row.MetricValues, 1),
		})
	}
	return rows, nil
}

// SourceRow is one traffic source with its session count.
type SourceRow struct {
	Source   string
	Sessions int
	Users    int
}

// GetSourceRows fetches sessions per traffic source.
func (c *Client) GetSourceRows(ctx context.Context, accessToken, propertyID, startDate, endDate string) ([]SourceRow, error) {
	report, err := c.RunReport(ctx, accessToken, ReportRequest{
		PropertyID: propertyID,
		StartDate:  startDate,
		EndDate:    endDate,
		Metrics:    []string{"sessions", "totalUsers"},
		Dimensions: []string{"sessionSource"},
	})
	if err != nil {
		return nil, err
	}

	rows := make([]SourceRow, 0, len(report.Rows))
	for _, row := range report.Rows {
		source := dimension(row, 0)
		if source == "" {
			source = "(direct)"
		}
		rows = append(rows, SourceRow{
			Source:   source,
			Sessions: metricInt(row.MetricValues, 0),
			Users:    metricInt(row.MetricValues, 1),
		})
	}
	return rows, nil
}

// DeviceRow is one device category with its session count.
type DeviceRow struct {
	Device   string
	Sessions int
}

// GetDeviceRows fetches sessions per device category.
func (c *Client) GetDeviceRows(ctx context.Context, accessToken, propertyID, startDate, endDate string) ([]DeviceRow, error) {
	report, err := c.RunReport(ctx, accessToken, ReportRequest{
		PropertyID: propertyID,
		StartDate:  startDate,
		EndDate:    endDate,
		Metrics:    []string{"sessions"},
		Dimensions: []string{"deviceCategory"},
	})
	if err != nil {
		return nil, err
	}

	rows := make([]DeviceRow, 0, len(report.Rows))
	for _, row := range report.Rows {
		device := dimension(row, 0)
		if device == "" {
			device = "unknown"
		}
		rows = append(rows, DeviceRow{
			Device:   device,
			Sessions: metricInt(row.MetricValues, 0),
		})
	}
	return rows, nil
}

func dimension(row Row, i int) string {
	if i >= len(row.DimensionValues) {
		return ""
	}
	return row.DimensionValues[i].Value
}

func metricInt(values []Value, i int) int {
	if i >= len(values) {
		return 0
	}
	n, err := strconv.Atoi(values[i].Value)
	if err != nil {
		return 0
	}
	return n
}

func metricFloat(values []Value, i int) float64 {
	if i >= len(values) {
		return 0
	}
	f, err := strconv.ParseFloat(values[i].Value, 64)
	if err != nil {
		return 0
	}
	return f
}
