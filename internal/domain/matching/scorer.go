package matching

import (
	"math"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPATIBILITY SCORER
//
// Four factors, each 0-100, combined by fixed weights:
//
//   activityOverlap        0.30  Jaccard index of favorite activity labels
//   performanceSimilarity  0.25  closeness of weekly distance (and pace)
//   locationProximity      0.25  distance relative to the requester's radius
//   ageCompatibility       0.20  5 points lost per year of age gap
//
// locationProximity depends on the requester's maxDistanceKm, so the score is
// symmetric only when both sides use the same radius.
// ══════════════════════════════════════════════════════════════════════════════

// Factor weights.
const (
	WeightActivityOverlap       = 0.30
	WeightPerformanceSimilarity = 0.25
	WeightLocationProximity     = 0.25
	WeightAgeCompatibility      = 0.20
)

// DefaultMaxDistanceKm is used when the requester has no usable radius.
const DefaultMaxDistanceKm = 50

// agePenaltyPerYear is subtracted from 100 for each year of age gap.
const agePenaltyPerYear = 5

// Factors is the per-factor breakdown of a score.
type Factors struct {
	ActivityOverlap       int `json:"activityOverlap"`
	PerformanceSimilarity int `json:"performanceSimilarity"`
	LocationProximity     int `json:"locationProximity"`
	AgeCompatibility      int `json:"ageCompatibility"`
}

// CompatibilityScore is the ephemeral result of scoring one candidate.
type CompatibilityScore struct {
	UserID  string  `json:"userId"`
	Score   int     `json:"score"`
	Factors Factors `json:"factors"`
}

// Scorer computes compatibility scores. It holds no state and performs no I/O.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score rates candidate for requester using the requester's radius.
// It never fails: missing metrics count as zero volume and no favorites,
// missing coordinates give zero proximity.
func (s *Scorer) Score(requester, candidate Profile, maxDistanceKm int) CompatibilityScore {
	overlap := activityOverlap(requester.Favorites(), candidate.Favorites())
	performance := performanceSimilarity(requester, candidate)
	proximity := locationProximity(requester, candidate, maxDistanceKm)
	age := ageCompatibility(requester.Age, candidate.Age)

	total := WeightActivityOverlap*overlap +
		WeightPerformanceSimilarity*performance +
		WeightLocationProximity*proximity +
		WeightAgeCompatibility*age

	return CompatibilityScore{
		UserID: candidate.ID,
		Score:  clampScore(total),
		Factors: Factors{
			ActivityOverlap:       clampScore(overlap),
			PerformanceSimilarity: clampScore(performance),
			LocationProximity:     clampScore(proximity),
			AgeCompatibility:      clampScore(age),
		},
	}
}

// activityOverlap is |A∩B| / |A∪B| scaled to 0-100; zero when either set is empty.
func activityOverlap(a, b []string) float64 {
	setA := labelSet(a)
	setB := labelSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for label := range setA {
		if _, ok := setB[label]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union) * 100
}

func labelSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}

// performanceSimilarity averages the distance term with the pace term when
// both paces are known, otherwise it is the distance term alone.
func performanceSimilarity(a, b Profile) float64 {
	var distA, distB float64
	var paceA, paceB *float64
	if a.Metrics != nil {
		distA, paceA = a.Metrics.WeeklyDistance, a.Metrics.AveragePace
	}
	if b.Metrics != nil {
		distB, paceB = b.Metrics.WeeklyDistance, b.Metrics.AveragePace
	}

	distance := closeness(distA, distB)
	if paceA == nil || paceB == nil {
		return distance
	}
	return (distance + closeness(*paceA, *paceB)) / 2
}

// closeness is 100 - min(100, |x-y| / max(x, y, 1) * 100).
func closeness(x, y float64) float64 {
	denom := math.Max(math.Max(x, y), 1)
	return 100 - math.Min(100, math.Abs(x-y)/denom*100)
}

func locationProximity(a, b Profile, maxDistanceKm int) float64 {
	if !a.HasLocation() || !b.HasLocation() {
		return 0
	}
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}
	d := a.Location.DistanceKm(*b.Location)
	return math.Max(0, 100-d/float64(maxDistanceKm)*100)
}

func ageCompatibility(ageA, ageB int) float64 {
	gap := ageA - ageB
	if gap < 0 {
		gap = -gap
	}
	return math.Max(0, float64(100-gap*agePenaltyPerYear))
}

func clampScore(v float64) int {
	r := int(math.Round(v))
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return r
	}
}
