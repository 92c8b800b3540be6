// Package equitychart turns a raw, possibly unordered series of
// equity snapshots into a fixed chart-ready sequence whose resolution
// adapts to the span of the input: one point per sample inside a
// single day, one representative point per day across several days.
package equitychart

import (
	"sort"
	"time"
)

// EquityPoint is one observed net-asset-value sample.
type EquityPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// ChartPoint is a derived, disposable display point. Regenerated on
// every Resample call, never persisted.
type ChartPoint struct {
	Label     string    `json:"label"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"ts"`
}

const (
	dayKeyLayout  = "2006-01-02"
	intradayLabel = "15:04"
	dailyLabel    = "01/02"
)

// Resample buckets points by UTC calendar date. UTC keeps bucket
// boundaries identical for every viewer; use ResampleIn for a
// different display zone.
func Resample(points []EquityPoint) []ChartPoint {
	return ResampleIn(points, time.UTC)
}

// ResampleIn partitions points into day-buckets in loc and emits the
// chart sequence:
//
//   - all points on one calendar day: one ChartPoint per input point,
//     hh:mm labels, chronological order;
//   - several days: one ChartPoint per day, the first day represented
//     by its opening sample, every later day by its closing sample,
//     mm/dd labels.
//
// Values are carried over raw; there is no averaging or
// interpolation. The input slice is never mutated.
func ResampleIn(points []EquityPoint, loc *time.Location) []ChartPoint {
	if len(points) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	sorted := make([]EquityPoint, len(points))
	copy(sorted, points)
	// stable: identical timestamps keep their original relative order
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	type bucket struct {
		first EquityPoint
		last  EquityPoint
	}
	var days []string
	byDay := make(map[string]*bucket)
	for _, p := range sorted {
		day := p.Timestamp.In(loc).Format(dayKeyLayout)
		b, ok := byDay[day]
		if !ok {
			byDay[day] = &bucket{first: p, last: p}
			days = append(days, day)
			continue
		}
		b.last = p
	}

	if len(days) == 1 {
		out := make([]ChartPoint, 0, len(sorted))
		for _, p := range sorted {
			out = append(out, ChartPoint{
				Label:     p.Timestamp.In(loc).Format(intradayLabel),
				Value:     p.Value,
				Timestamp: p.Timestamp,
			})
		}
		return out
	}

	// sorted input means days were appended in chronological order
	out := make([]ChartPoint, 0, len(days))
	for i, day := range days {
		p := byDay[day].last
		if i == 0 {
			p = byDay[day].first
		}
		out = append(out, ChartPoint{
			Label:     p.Timestamp.In(loc).Format(dailyLabel),
			Value:     p.Value,
			Timestamp: p.Timestamp,
		})
	}
	return out
}
