package matching

import (
	"strings"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// Preference bounds.
const (
	MinAllowedAge      = 18
	MaxAllowedAge      = 100
	MinAllowedDistance = 1
	MaxAllowedDistance = 1000
	MinAllowedScore    = 0
	MaxAllowedScore    = 100
)

// Default preference values.
const (
	DefaultMinAge                = 18
	DefaultMaxAge                = 100
	DefaultMinCompatibilityScore = 50
)

// Preferences are one user's candidate filters.
type Preferences struct {
	UserID                string    `json:"userId"`
	MinAge                int       `json:"minAge"`
	MaxAge                int       `json:"maxAge"`
	MaxDistanceKm         int       `json:"maxDistanceKm"`
	PreferredActivities   []string  `json:"preferredActivities"`
	MinCompatibilityScore int       `json:"minCompatibilityScore"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// DefaultPreferences returns the materialized defaults for userID.
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:                userID,
		MinAge:                DefaultMinAge,
		MaxAge:                DefaultMaxAge,
		MaxDistanceKm:         DefaultMaxDistanceKm,
		PreferredActivities:   []string{},
		MinCompatibilityScore: DefaultMinCompatibilityScore,
	}
}

// Validate checks every range and reports all violated fields at once.
func (p *Preferences) Validate() error {
	var fields, problems []string
	add := func(field, problem string) {
		fields = append(fields, field)
		problems = append(problems, problem)
	}

	if p.MinAge < MinAllowedAge || p.MinAge > MaxAllowedAge {
		add("minAge", "minAge must be between 18 and 100")
	}
	if p.MaxAge < MinAllowedAge || p.MaxAge > MaxAllowedAge {
		add("maxAge", "maxAge must be between 18 and 100")
	}
	if p.MinAge > p.MaxAge {
		add("minAge", "minAge must not exceed maxAge")
	}
	if p.MaxDistanceKm < MinAllowedDistance || p.MaxDistanceKm > MaxAllowedDistance {
		add("maxDistanceKm", "maxDistanceKm must be between 1 and 1000")
	}
	if p.MinCompatibilityScore < MinAllowedScore || p.MinCompatibilityScore > MaxAllowedScore {
		add("minCompatibilityScore", "minCompatibilityScore must be between 0 and 100")
	}

	if len(fields) == 0 {
		return nil
	}
	return shared.NewValidationError("matching", "Preferences.Validate",
		strings.Join(dedupe(fields), ","), strings.Join(problems, "; "))
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// AllowsAge reports whether age falls within [MinAge, MaxAge].
func (p *Preferences) AllowsAge(age int) bool {
	return age >= p.MinAge && age <= p.MaxAge
}

// AllowsActivities reports whether favorites satisfy the activity filter.
// An empty filter accepts everyone; otherwise one shared label is required.
func (p *Preferences) AllowsActivities(favorites []string) bool {
	if len(p.PreferredActivities) == 0 {
		return true
	}
	wanted := labelSet(p.PreferredActivities)
	for _, f := range favorites {
		if _, ok := wanted[strings.TrimSpace(f)]; ok {
			return true
		}
	}
	return false
}

// PreferencesUpdate is a partial update; nil fields are left unchanged.
type PreferencesUpdate struct {
	MinAge                *int      `json:"minAge,omitempty"`
	MaxAge                *int      `json:"maxAge,omitempty"`
	MaxDistanceKm         *int      `json:"maxDistanceKm,omitempty"`
	PreferredActivities   *[]string `json:"preferredActivities,omitempty"`
	MinCompatibilityScore *int      `json:"minCompatibilityScore,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u PreferencesUpdate) IsEmpty() bool {
	return u.MinAge == nil && u.MaxAge == nil && u.MaxDistanceKm == nil &&
		u.PreferredActivities == nil && u.MinCompatibilityScore == nil
}

// ApplyTo returns a copy of current with the update merged in. current is not modified.
func (u PreferencesUpdate) ApplyTo(current *Preferences, now time.Time) *Preferences {
	next := *current
	next.PreferredActivities = append([]string(nil), current.PreferredActivities...)

	if u.MinAge != nil {
		next.MinAge = *u.MinAge
	}
	if u.MaxAge != nil {
		next.MaxAge = *u.MaxAge
	}
	if u.MaxDistanceKm != nil {
		next.MaxDistanceKm = *u.MaxDistanceKm
	}
	if u.PreferredActivities != nil {
		next.PreferredActivities = shared.NormalizeLabels(*u.PreferredActivities)
	}
	if u.MinCompatibilityScore != nil {
		next.MinCompatibilityScore = *u.MinCompatibilityScore
	}

	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	return &next
}
