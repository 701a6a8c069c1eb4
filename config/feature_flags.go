package config

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// FeatureFlags manages feature toggles with percentage rollout.
// Users land in a stable bucket derived from a hash of the feature name and
// their id, so raising the percentage only ever adds users.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides pin a feature on or off for one user (testing/debugging).
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent is 0-100.
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// Predefined feature flag names.
const (
	// FeatureRegistrationGate makes the fitness threshold binding at sync time.
	FeatureRegistrationGate = "fitness.registration_gate"

	// FeatureTypingIndicators relays typing events to match rooms.
	FeatureTypingIndicators = "messaging.typing_indicators"

	// FeatureEncryption seals message content at rest when a key is configured.
	FeatureEncryption = "messaging.encryption"
)

// NewFeatureFlags returns the flags with their defaults.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

// LoadFeatureFlags loads defaults and applies overrides from v.
func LoadFeatureFlags(v *viper.Viper) *FeatureFlags {
	ff := NewFeatureFlags()
	if v != nil {
		ff.loadFrom(v)
	}
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureRegistrationGate] = &Feature{
		Name:           FeatureRegistrationGate,
		Description:    "Require the fitness threshold before matching",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureTypingIndicators] = &Feature{
		Name:           FeatureTypingIndicators,
		Description:    "Relay typing indicators over the push channel",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureEncryption] = &Feature{
		Name:           FeatureEncryption,
		Description:    "Seal message content at rest",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFrom reads overrides under the features key.
// Format: features.<name>=true|false|<percent>
// Env example: FEATURES_MESSAGING_TYPING_INDICATORS=25
func (ff *FeatureFlags) loadFrom(v *viper.Viper) {
	for name, feature := range ff.features {
		key := "features." + strings.ReplaceAll(name, ".", "_")
		val := strings.TrimSpace(v.GetString(key))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// IsEnabledFor checks whether featureName is on for userID.
// An empty userID only sees fully rolled out features.
func (ff *FeatureFlags) IsEnabledFor(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if userID == "" {
		return false
	}
	return isInRollout(userID, featureName, feature.RolloutPercent)
}

// IsEnabled reports whether the feature is on for everyone.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	return ff.IsEnabledFor(featureName, "")
}

// isInRollout maps user+feature onto a stable 0-99 bucket.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride pins a feature for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// Names lists the known features in order.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
