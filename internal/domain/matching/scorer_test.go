package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

func pace(v float64) *float64 { return &v }

func profile(id string, age int, lat, lon, weekly float64, favorites ...string) Profile {
	return Profile{
		ID:       id,
		Age:      age,
		Location: &shared.GeoPoint{Lat: lat, Lon: lon},
		Metrics: &fitness.Metrics{
			WeeklyDistance:     weekly,
			FavoriteActivities: favorites,
		},
	}
}

func TestScore_ScenarioRunnersNearby(t *testing.T) {
	// B is ~3 km north of A.
	a := profile("a", 30, 40.7128, -74.0060, 50000, "Run", "Ride")
	b := profile("b", 28, 40.7398, -74.0060, 45000, "Run", "Swim")

	got := NewScorer().Score(a, b, DefaultMaxDistanceKm)

	assert.Equal(t, "b", got.UserID)
	assert.Equal(t, 33, got.Factors.ActivityOverlap)
	assert.Equal(t, 90, got.Factors.PerformanceSimilarity)
	assert.Equal(t, 90, got.Factors.AgeCompatibility)
	assert.InDelta(t, 94, got.Factors.LocationProximity, 1)
	assert.InDelta(t, 74, got.Score, 1)
	assert.GreaterOrEqual(t, got.Score, 70)
	assert.Less(t, got.Score, 90)
}

func TestScore_SelfIsPerfect(t *testing.T) {
	a := profile("a", 33, 51.5, -0.12, 30000, "Run", "Swim")
	a.Metrics.AveragePace = pace(5.2)

	got := NewScorer().Score(a, a, 25)

	assert.Equal(t, 100, got.Score)
	assert.Equal(t, Factors{100, 100, 100, 100}, got.Factors)
}

func TestScore_SymmetricWithSameRadius(t *testing.T) {
	a := profile("a", 25, 48.85, 2.35, 20000, "Run", "Yoga")
	a.Metrics.AveragePace = pace(5.5)
	b := profile("b", 37, 48.90, 2.30, 60000, "Yoga", "Ride", "Hike")
	b.Metrics.AveragePace = pace(6.1)
	s := NewScorer()

	ab := s.Score(a, b, 40)
	ba := s.Score(b, a, 40)

	assert.Equal(t, ab.Score, ba.Score)
	assert.Equal(t, ab.Factors, ba.Factors)
}

func TestScore_AsymmetryComesOnlyFromRequesterRadius(t *testing.T) {
	a := profile("a", 30, 40.7128, -74.0060, 50000, "Run")
	b := profile("b", 30, 40.7398, -74.0060, 50000, "Run")
	s := NewScorer()

	// a searches within 50 km, b within 10 km.
	ab := s.Score(a, b, 50)
	ba := s.Score(b, a, 10)

	assert.Equal(t, ab.Factors.ActivityOverlap, ba.Factors.ActivityOverlap)
	assert.Equal(t, ab.Factors.PerformanceSimilarity, ba.Factors.PerformanceSimilarity)
	assert.Equal(t, ab.Factors.AgeCompatibility, ba.Factors.AgeCompatibility)
	assert.InDelta(t, 94, ab.Factors.LocationProximity, 1)
	assert.InDelta(t, 70, ba.Factors.LocationProximity, 1)
	assert.Greater(t, ab.Score, ba.Score)
}

func TestScore_ActivityOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"identical", []string{"Run", "Swim"}, []string{"Swim", "Run"}, 100},
		{"disjoint", []string{"Run"}, []string{"Swim", "Ride"}, 0},
		{"half", []string{"Run", "Ride"}, []string{"Run", "Ride", "Swim", "Hike"}, 50},
		{"one empty", nil, []string{"Run"}, 0},
		{"both empty", nil, nil, 0},
	}
	s := NewScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := profile("a", 30, 0, 0, 1000, tt.a...)
			b := profile("b", 30, 0, 0, 1000, tt.b...)
			assert.Equal(t, tt.want, s.Score(a, b, 50).Factors.ActivityOverlap)
		})
	}
}

func TestScore_PerformanceUsesPaceWhenBothKnown(t *testing.T) {
	a := profile("a", 30, 0, 0, 40000, "Run")
	b := profile("b", 30, 0, 0, 40000, "Run")
	a.Metrics.AveragePace = pace(5)
	b.Metrics.AveragePace = pace(4)
	s := NewScorer()

	// distance term 100, pace term 100 - 1/5*100 = 80
	assert.Equal(t, 90, s.Score(a, b, 50).Factors.PerformanceSimilarity)

	b.Metrics.AveragePace = nil
	assert.Equal(t, 100, s.Score(a, b, 50).Factors.PerformanceSimilarity)
}

func TestScore_AgeCompatibility(t *testing.T) {
	s := NewScorer()
	tests := []struct {
		ageA, ageB, want int
	}{
		{30, 30, 100},
		{30, 28, 90},
		{28, 30, 90},
		{20, 39, 5},
		{20, 40, 0},
		{18, 70, 0},
	}
	for _, tt := range tests {
		a := profile("a", tt.ageA, 0, 0, 0)
		b := profile("b", tt.ageB, 0, 0, 0)
		assert.Equal(t, tt.want, s.Score(a, b, 50).Factors.AgeCompatibility, "ages %d/%d", tt.ageA, tt.ageB)
	}
}

func TestScore_DegradesWithoutData(t *testing.T) {
	a := Profile{ID: "a", Age: 30}
	b := Profile{ID: "b", Age: 30}

	got := NewScorer().Score(a, b, 0)

	assert.Equal(t, 0, got.Factors.ActivityOverlap)
	assert.Equal(t, 0, got.Factors.LocationProximity)
	// both weekly volumes count as zero
	assert.Equal(t, 100, got.Factors.PerformanceSimilarity)
	assert.Equal(t, 100, got.Factors.AgeCompatibility)
	assert.Equal(t, 45, got.Score)
}

func TestScore_ProximityFallsBackToDefaultRadius(t *testing.T) {
	a := profile("a", 30, 40.7128, -74.0060, 0)
	b := profile("b", 30, 40.7398, -74.0060, 0)
	s := NewScorer()

	assert.Equal(t,
		s.Score(a, b, DefaultMaxDistanceKm).Factors.LocationProximity,
		s.Score(a, b, 0).Factors.LocationProximity)

	far := profile("c", 30, 41.7128, -74.0060, 0)
	assert.Equal(t, 0, s.Score(a, far, 50).Factors.LocationProximity)
}
