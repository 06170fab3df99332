// Package analysis defines the structured site analysis produced by the
// model and validates raw model output at the boundary before any field is
// trusted.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidSchema means the model returned JSON that does not match the
// expected analysis shape.
var ErrInvalidSchema = errors.New("analysis schema mismatch")

// Priority levels for improvement suggestions.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Benchmark statuses for industry comparison metrics.
const (
	StatusGood      = "good"
	StatusAverage   = "average"
	StatusNeedsWork = "needsWork"
)

// SiteOverview describes what kind of site this is, inferred from page
// titles, URL paths and traffic sources.
type SiteOverview struct {
	SiteType               string `json:"siteType"`
	Description            string `json:"description"`
	TargetAudience         string `json:"targetAudience"`
	ContentFocus           string `json:"contentFocus"`
	TrafficCharacteristics string `json:"trafficCharacteristics"`
}

// Improvement is one actionable suggestion with a data-backed reason.
type Improvement struct {
	Title    string `json:"title"`
	Reason   string `json:"reason"`
	Action   string `json:"action"`
	Priority string `json:"priority"`
	Icon     string `json:"icon"`
}

// MetricComparison compares one site metric against its industry average.
type MetricComparison struct {
	Value       float64 `json:"value"`
	IndustryAvg float64 `json:"industryAvg"`
	Status      string  `json:"status"`
}

// IndustryComparison benchmarks the three headline metrics.
type IndustryComparison struct {
	BounceRate         MetricComparison `json:"bounceRate"`
	AvgSessionDuration MetricComparison `json:"avgSessionDuration"`
	PagesPerSession    MetricComparison `json:"pagesPerSession"`
}

// PriorityAction is the single highest-leverage next step.
type PriorityAction struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Effort      string `json:"effort"`
}

// ChangeAlert flags a notable movement in one metric.
type ChangeAlert struct {
	Type    string `json:"type"`
	Metric  string `json:"metric"`
	Message string `json:"message"`
}

// Result is the complete structured analysis for one snapshot.
type Result struct {
	SiteOverview       *SiteOverview      `json:"siteOverview,omitempty"`
	Improvements       []Improvement      `json:"improvements"`
	IndustryComparison IndustryComparison `json:"industryComparison"`
	PriorityAction     PriorityAction     `json:"priorityAction"`
	ChangeAlerts       []ChangeAlert      `json:"changeAlerts"`
	Summary            string             `json:"summary"`
}

// requiredFields must exist at the top level of every model response.
// siteOverview stays optional for responses from older prompt revisions.
var requiredFields = []string{"improvements", "industryComparison", "priorityAction", "summary"}

// Validate checks raw model output against the expected shape without
// decoding it, turning structural assumptions into explicit errors.
func Validate(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: not valid JSON", ErrInvalidSchema)
	}
	doc := gjson.ParseBytes(data)
	for _, field := range requiredFields {
		if !doc.Get(field).Exists() {
			return fmt.Errorf("%w: missing %q", ErrInvalidSchema, field)
		}
	}
	if !doc.Get("improvements").IsArray() {
		return fmt.Errorf("%w: improvements is not an array", ErrInvalidSchema)
	}
	if !doc.Get("industryComparison").IsObject() {
		return fmt.Errorf("%w: industryComparison is not an object", ErrInvalidSchema)
	}
	return nil
}

// Decode validates and unmarshals raw model output into a Result.
func Decode(data []byte) (*Result, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &res, nil
}
