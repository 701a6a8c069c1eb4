package fitness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_WeeklyFiguresUseWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	activities := []Activity{
		{ID: "1", Type: "Run", Distance: 10000, MovingTime: 50 * time.Minute, StartDate: now.AddDate(0, 0, -1)},
		{ID: "2", Type: "Run", Distance: 5000, MovingTime: 25 * time.Minute, StartDate: now.AddDate(0, 0, -3)},
		{ID: "3", Type: "Ride", Distance: 40000, MovingTime: 90 * time.Minute, StartDate: now.AddDate(0, 0, -5)},
		// outside the window: counts toward total only
		{ID: "4", Type: "Swim", Distance: 2000, MovingTime: 40 * time.Minute, StartDate: now.AddDate(0, 0, -120)},
	}

	m := Compute(activities, now, 7)

	assert.InDelta(t, 55000, m.WeeklyDistance, 0.01)
	assert.Equal(t, 3, m.WeeklyActivities)
	assert.InDelta(t, 57000, m.TotalDistance, 0.01)
	require.NotNil(t, m.AveragePace)
	assert.InDelta(t, 5.0, *m.AveragePace, 0.001)
	assert.Equal(t, []string{"Run", "Ride"}, m.FavoriteActivities)
	assert.Equal(t, now, m.ComputedAt)
}

func TestCompute_NinetyDayDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var activities []Activity
	// one 9 km ride per week for 90 days
	for d := 0; d < 90; d += 7 {
		activities = append(activities, Activity{
			Type: "Ride", Distance: 9000, MovingTime: 30 * time.Minute, StartDate: now.AddDate(0, 0, -d),
		})
	}

	m := Compute(activities, now, 0)

	weeks := 90.0 / 7.0
	assert.InDelta(t, float64(len(activities))*9000/weeks, m.WeeklyDistance, 0.1)
	assert.Equal(t, 1, m.WeeklyActivities)
	assert.Nil(t, m.AveragePace, "rides carry no pace")
	assert.Equal(t, []string{"Ride"}, m.FavoriteActivities)
}

func TestCompute_FavoritesTieBreakByLabel(t *testing.T) {
	now := time.Now()
	activities := []Activity{
		{Type: "Swim", StartDate: now.Add(-time.Hour)},
		{Type: "Hike", StartDate: now.Add(-2 * time.Hour)},
		{Type: "Swim", StartDate: now.Add(-3 * time.Hour)},
		{Type: "Hike", StartDate: now.Add(-4 * time.Hour)},
		{Type: "Yoga", StartDate: now.Add(-5 * time.Hour)},
	}

	m := Compute(activities, now, 90)

	assert.Equal(t, []string{"Hike", "Swim", "Yoga"}, m.FavoriteActivities)
}

func TestCompute_Empty(t *testing.T) {
	m := Compute(nil, time.Now(), 90)

	assert.Zero(t, m.WeeklyDistance)
	assert.Zero(t, m.WeeklyActivities)
	assert.Zero(t, m.TotalDistance)
	assert.Nil(t, m.AveragePace)
	assert.Empty(t, m.FavoriteActivities)
}

func TestThreshold_Eligible(t *testing.T) {
	th := Threshold{MinWeeklyActivities: 2, MinWeeklyDistance: 10000}

	tests := []struct {
		name    string
		metrics *Metrics
		want    bool
	}{
		{"nil snapshot", nil, false},
		{"meets both", &Metrics{WeeklyActivities: 3, WeeklyDistance: 12000}, true},
		{"exactly at threshold", &Metrics{WeeklyActivities: 2, WeeklyDistance: 10000}, true},
		{"too few activities", &Metrics{WeeklyActivities: 1, WeeklyDistance: 50000}, false},
		{"too little distance", &Metrics{WeeklyActivities: 5, WeeklyDistance: 9999}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.Eligible(tt.metrics))
		})
	}
}
