// Package snapshot assembles a normalized analytics snapshot from raw GA4
// report rows: same-path pages merged with a title preference heuristic,
// ranked traffic sources, and device shares as percentages.
package snapshot

import (
	"context"
	"fmt"
	"sort"

	"github.com/sitepulse/insight-gateway/internal/ga4"
)

// Truncation limits applied before the snapshot reaches the prompt compiler.
const (
	MaxTopPages       = 10
	MaxTrafficSources = 10
)

// Page is one ranked page with its merged view count.
type Page struct {
	Path  string `json:"pagePath"`
	Title string `json:"pageTitle"`
	Views int    `json:"pageViews"`
}

// Source is one traffic source with its session count.
type Source struct {
	Source   string `json:"source"`
	Sessions int    `json:"sessions"`
}

// Device is one device category's share of sessions.
type Device struct {
	Device     string  `json:"device"`
	Percentage float64 `json:"percentage"`
}

// Snapshot is a point-in-time aggregate of analytics metrics for one
// property and date range. It is the input to the prompt compiler.
type Snapshot struct {
	PageViews          int      `json:"pageViews"`
	Users              int      `json:"users"`
	Sessions           int      `json:"sessions"`
	BounceRate         float64  `json:"bounceRate"`
	AvgSessionDuration float64  `json:"avgSessionDuration"`
	TopPages           []Page   `json:"topPages"`
	TrafficSources     []Source `json:"trafficSources"`
	DeviceBreakdown    []Device `json:"deviceBreakdown"`
	Industry           string   `json:"industry"`
}

// Validate checks the numeric invariants of an externally supplied snapshot.
func (s *Snapshot) Validate() error {
	if s.PageViews < 0 || s.Users < 0 || s.Sessions < 0 {
		return fmt.Errorf("negative counter in snapshot")
	}
	if s.BounceRate < 0 || s.BounceRate > 100 {
		return fmt.Errorf("bounce rate %.1f out of range", s.BounceRate)
	}
	if s.AvgSessionDuration < 0 {
		return fmt.Errorf("negative session duration")
	}
	for _, p := range s.TopPages {
		if p.Views < 0 {
			return fmt.Errorf("negative page views for %q", p.Path)
		}
	}
	return nil
}

// MergePages aggregates raw rows by path, preferring readable titles when
// the same path was reported under several titles, then ranks by views and
// truncates to limit.
func MergePages(rows []ga4.PageRow, limit int) []Page {
	type agg struct {
		title string
		views int
	}
	byPath := make(map[string]*agg)
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		existing, ok := byPath[row.Path]
		if !ok {
			byPath[row.Path] = &agg{title: row.Title, views: row.Views}
			order = append(order, row.Path)
			continue
		}
		existing.views += row.Views
		existing.title = preferTitle(existing.title, row.Title)
	}

	pages := make([]Page, 0, len(order))
	for _, path := range order {
		a := byPath[path]
		pages = append(pages, Page{Path: path, Title: a.title, Views: a.views})
	}

	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Views > pages[j].Views })
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages
}

// TopSources ranks sources by sessions descending and truncates to limit.
func TopSources(rows []ga4.SourceRow, limit int) []Source {
	sources := make([]Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, Source{Source: row.Source, Sessions: row.Sessions})
	}
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Sessions > sources[j].Sessions })
	if limit > 0 && len(sources) > limit {
		sources = sources[:limit]
	}
	return sources
}

// DeviceShares converts per-device session counts into percentages of the
// total. Percentages are zero when no sessions were recorded.
func DeviceShares(rows []ga4.DeviceRow) []Device {
	total := 0
	for _, row := range rows {
		total += row.Sessions
	}

	devices := make([]Device, 0, len(rows))
	for _, row := range rows {
		pct := 0.0
		if total > 0 {
			pct = float64(row.Sessions) / float64(total) * 100
		}
		devices = append(devices, Device{Device: row.Device, Percentage: pct})
	}
	return devices
}

// Builder fetches GA4 reports and assembles snapshots.
type Builder struct {
	GA4              *ga4.Client
	FallbackIndustry string
}

// Build assembles a snapshot for one property and date range. industry may
// be empty; the builder substitutes its fallback label.
func (b *Builder) Build(ctx context.Context, accessToken, propertyID string, rng Range, industry string) (*Snapshot, error) {
	start, end := rng.Dates()

	basic, err := b.GA4.GetBasicMetrics(ctx, accessToken, propertyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("basic metrics: %w", err)
	}
	pageRows, err := b.GA4.GetPageRows(ctx, accessToken, propertyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}
	sourceRows, err := b.GA4.GetSourceRows(ctx, accessToken, propertyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("traffic sources: %w", err)
	}
	deviceRows, err := b.GA4.GetDeviceRows(ctx, accessToken, propertyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("device breakdown: %w", err)
	}

	if industry == "" {
		industry = b.FallbackIndustry
	}

	return &Snapshot{
		PageViews:          basic.PageViews,
		Users:              basic.Users,
		Sessions:           basic.Sessions,
		BounceRate:         basic.BounceRate,
		AvgSessionDuration: basic.AvgSessionDuration,
		TopPages:           MergePages(pageRows, MaxTopPages),
		TrafficSources:     TopSources(sourceRows, MaxTrafficSources),
		DeviceBreakdown:    DeviceShares(deviceRows),
		Industry:           industry,
	}, nil
}
