// Package fitness contains the fitness metrics snapshot that feeds matching:
// weekly volume, pace and favorite activity types derived from synced
// activity records.
package fitness

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DefaultWindowDays is the trailing window a snapshot is computed over.
const DefaultWindowDays = 90

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// Activity is one synced workout record.
type Activity struct {
	// ID is the provider's identifier.
	ID string

	// Type is the activity label, e.g. "Run", "Ride", "Swim".
	Type string

	// Distance in meters.
	Distance float64

	// MovingTime is the time spent moving.
	MovingTime time.Duration

	// StartDate is when the activity started.
	StartDate time.Time
}

// paceBearing lists the activity types a per-kilometer pace makes sense for.
var paceBearing = map[string]struct{}{
	"Run":        {},
	"TrailRun":   {},
	"Walk":       {},
	"Hike":       {},
	"VirtualRun": {},
}

// IsPaceBearing reports whether pace is meaningful for the activity type.
func IsPaceBearing(activityType string) bool {
	_, ok := paceBearing[activityType]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Metrics is the fitness snapshot of one user.
// It is recomputed wholesale on every sync and never patched incrementally.
type Metrics struct {
	// WeeklyDistance in meters.
	WeeklyDistance float64 `json:"weeklyDistance"`

	// WeeklyActivities is the average number of activities per week.
	WeeklyActivities int `json:"weeklyActivities"`

	// AveragePace in minutes per kilometer; nil without pace-bearing activities.
	AveragePace *float64 `json:"averagePace"`

	// FavoriteActivities ordered by frequency, most frequent first.
	FavoriteActivities []string `json:"favoriteActivities"`

	// TotalDistance in meters over every supplied activity.
	TotalDistance float64 `json:"totalDistance"`

	// ComputedAt is when the snapshot was built.
	ComputedAt time.Time `json:"computedAt"`
}

// Compute builds a snapshot from activities. Weekly figures and favorites use
// the trailing windowDays before now; TotalDistance uses everything supplied.
func Compute(activities []Activity, now time.Time, windowDays int) Metrics {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	cutoff := now.AddDate(0, 0, -windowDays)
	weeks := float64(windowDays) / 7.0

	var (
		total         float64
		windowDist    float64
		windowCount   int
		paceMinutes   float64
		paceKm        float64
		typeFrequency = make(map[string]int)
	)

	for _, a := range activities {
		if a.Distance > 0 {
			total += a.Distance
		}
		if a.StartDate.Before(cutoff) || a.StartDate.After(now) {
			continue
		}

		windowCount++
		if a.Distance > 0 {
			windowDist += a.Distance
		}
		if label := strings.TrimSpace(a.Type); label != "" {
			typeFrequency[label]++
		}
		if IsPaceBearing(a.Type) && a.Distance > 0 && a.MovingTime > 0 {
			paceMinutes += a.MovingTime.Minutes()
			paceKm += a.Distance / 1000
		}
	}

	m := Metrics{
		WeeklyDistance:     roundTo(windowDist/weeks, 1),
		WeeklyActivities:   int(math.Round(float64(windowCount) / weeks)),
		FavoriteActivities: rankByFrequency(typeFrequency),
		TotalDistance:      total,
		ComputedAt:         now,
	}
	if paceKm > 0 {
		pace := roundTo(paceMinutes/paceKm, 2)
		m.AveragePace = &pace
	}
	return m
}

// rankByFrequency orders labels by count descending, then label ascending.
func rankByFrequency(freq map[string]int) []string {
	labels := make([]string, 0, len(freq))
	for label := range freq {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if freq[labels[i]] != freq[labels[j]] {
			return freq[labels[i]] > freq[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION THRESHOLD
// ══════════════════════════════════════════════════════════════════════════════

// Threshold is the minimum activity level required to register.
type Threshold struct {
	MinWeeklyActivities int
	// MinWeeklyDistance in meters.
	MinWeeklyDistance float64
}

// Eligible reports whether m meets the threshold. A missing snapshot never does.
func (t Threshold) Eligible(m *Metrics) bool {
	if m == nil {
		return false
	}
	return m.WeeklyActivities >= t.MinWeeklyActivities && m.WeeklyDistance >= t.MinWeeklyDistance
}
