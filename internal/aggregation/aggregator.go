// Package aggregation collects run-wide counters reported by artifact
// processors and exposes them as a read-only dashboard snapshot.
//
// An Aggregator is an explicit value: create one per run (or call Reset at the
// start of a run) and pass it to whatever reports into it.
package aggregation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DefaultTopLimit is the number of apps returned when no limit is given.
const DefaultTopLimit = 10

// ProcessingError is one recoverable failure surfaced on the dashboard.
type ProcessingError struct {
	Artifact string `json:"artifact"`
	Error    string `json:"error"`
}

// NamedCount is one row of a ranked list.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary holds the headline totals.
type Summary struct {
	TotalMessages           int `json:"total_messages"`
	TotalSocialActivities   int `json:"total_social_activities"`
	TotalLocationPoints     int `json:"total_location_points"`
	TotalArtifactsProcessed int `json:"total_artifacts_processed"`
	ProcessingErrors        int `json:"processing_errors"`
}

// RankedCounts is a descending list plus its total.
type RankedCounts struct {
	Items []NamedCount `json:"items"`
	Total int          `json:"total"`
}

// DashboardData is a point-in-time copy of everything collected.
// Mutating it does not affect the Aggregator.
type DashboardData struct {
	DeviceInfo      map[string]any    `json:"device_info"`
	ArtifactCounts  map[string]int    `json:"artifact_counts"`
	CategoryCounts  map[string]int    `json:"category_counts"`
	MessagingApps   RankedCounts      `json:"messaging_apps"`
	SocialMediaApps RankedCounts      `json:"social_media_apps"`
	LocationSources RankedCounts      `json:"location_sources"`
	Errors          []ProcessingError `json:"errors"`
	Summary         Summary           `json:"summary"`
}

// ChartData is messaging data shaped for a bar chart.
type ChartData struct {
	Labels    []string `json:"labels"`
	Data      []int    `json:"data"`
	Total     int      `json:"total"`
	AppsCount int      `json:"apps_count"`
}

// Aggregator accumulates counters for one run. It is safe for concurrent use.
type Aggregator struct {
	messaging      map[string]int
	social         map[string]int
	location       map[string]int
	deviceInfo     map[string]any
	artifactCounts map[string]int
	categoryCounts map[string]int
	errors         []ProcessingError
	mu             sync.RWMutex
}

// New returns an empty Aggregator.
func New() *Aggregator {
	a := &Aggregator{}
	a.Reset()
	return a
}

// Reset clears all counters. Call at the start of every run.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messaging = make(map[string]int)
	a.social = make(map[string]int)
	a.location = make(map[string]int)
	a.deviceInfo = make(map[string]any)
	a.artifactCounts = make(map[string]int)
	a.categoryCounts = make(map[string]int)
	a.errors = nil
}

// ReportMessagingCount adds count messages for app.
func (a *Aggregator) ReportMessagingCount(app string, count int) {
	a.mu.Lock()
	a.messaging[app] += count
	a.mu.Unlock()
}

// ReportSocialMediaCount adds count activities for app.
func (a *Aggregator) ReportSocialMediaCount(app string, count int) {
	a.mu.Lock()
	a.social[app] += count
	a.mu.Unlock()
}

// ReportLocationData adds count location points for source.
func (a *Aggregator) ReportLocationData(source string, count int) {
	a.mu.Lock()
	a.location[source] += count
	a.mu.Unlock()
}

// ReportArtifactProcessed records the record count of an artifact.
// A later report for the same artifact replaces the earlier one.
func (a *Aggregator) ReportArtifactProcessed(artifact string, records int) {
	a.mu.Lock()
	a.artifactCounts[artifact] = records
	a.mu.Unlock()
}

// ReportCategoryCount adds count records for a functional category.
func (a *Aggregator) ReportCategoryCount(category string, count int) {
	a.mu.Lock()
	a.categoryCounts[category] += count
	a.mu.Unlock()
}

// ReportDeviceInfo sets a device attribute.
func (a *Aggregator) ReportDeviceInfo(key string, value any) {
	a.mu.Lock()
	a.deviceInfo[key] = value
	a.mu.Unlock()
}

// ReportProcessingError appends a recoverable failure.
func (a *Aggregator) ReportProcessingError(artifact, msg string) {
	a.mu.Lock()
	a.errors = append(a.errors, ProcessingError{Artifact: artifact, Error: msg})
	a.mu.Unlock()
}

// TopMessagingApps returns up to limit apps by descending message count.
// A non-positive limit uses DefaultTopLimit.
func (a *Aggregator) TopMessagingApps(limit int) []NamedCount {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	a.mu.RLock()
	ranked := rank(a.messaging)
	a.mu.RUnlock()

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Snapshot returns a copy of all counters with totals and ranked lists.
func (a *Aggregator) Snapshot() DashboardData {
	a.mu.RLock()
	defer a.mu.RUnlock()

	processed := 0
	for _, n := range a.artifactCounts {
		if n > 0 {
			processed++
		}
	}

	data := DashboardData{
		MessagingApps:   RankedCounts{Items: rank(a.messaging), Total: sum(a.messaging)},
		SocialMediaApps: RankedCounts{Items: rank(a.social), Total: sum(a.social)},
		LocationSources: RankedCounts{Items: rank(a.location), Total: sum(a.location)},
		DeviceInfo:      make(map[string]any, len(a.deviceInfo)),
		ArtifactCounts:  copyCounts(a.artifactCounts),
		CategoryCounts:  copyCounts(a.categoryCounts),
		Errors:          append([]ProcessingError{}, a.errors...),
	}
	for k, v := range a.deviceInfo {
		data.DeviceInfo[k] = v
	}
	data.Summary = Summary{
		TotalMessages:           data.MessagingApps.Total,
		TotalSocialActivities:   data.SocialMediaApps.Total,
		TotalLocationPoints:     data.LocationSources.Total,
		TotalArtifactsProcessed: processed,
		ProcessingErrors:        len(a.errors),
	}
	return data
}

// MessagingChartData returns the top messaging apps shaped for charting.
func (a *Aggregator) MessagingChartData() ChartData {
	a.mu.RLock()
	ranked := rank(a.messaging)
	total := sum(a.messaging)
	apps := len(a.messaging)
	a.mu.RUnlock()

	chart := ChartData{Labels: []string{}, Data: []int{}, Total: total, AppsCount: apps}
	if len(ranked) > DefaultTopLimit {
		ranked = ranked[:DefaultTopLimit]
	}
	for _, r := range ranked {
		chart.Labels = append(chart.Labels, r.Name)
		chart.Data = append(chart.Data, r.Count)
	}
	return chart
}

// HasData reports whether any counter or device attribute has been reported.
// Processing errors alone do not count.
func (a *Aggregator) HasData() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.messaging) > 0 ||
		len(a.social) > 0 ||
		len(a.location) > 0 ||
		len(a.deviceInfo) > 0 ||
		len(a.artifactCounts) > 0 ||
		len(a.categoryCounts) > 0
}

// ExportJSON writes the snapshot to path as indented JSON.
func (a *Aggregator) ExportJSON(path string) error {
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dashboard data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create dashboard directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write dashboard data: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move dashboard data into place: %w", err)
	}
	return nil
}

// rank sorts counts descending, breaking ties by name.
func rank(counts map[string]int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, NamedCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func sum(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
