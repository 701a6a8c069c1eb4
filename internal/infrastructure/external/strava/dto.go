// Package strava implements the fitness provider client: it pulls an
// athlete's activity history and maps it onto fitness.Activity.
package strava

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ActivityDTO is one SummaryActivity from GET /athlete/activities.
// Only the fields the metrics need are decoded.
type ActivityDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	SportType   string    `json:"sport_type"`
	Distance    float64   `json:"distance"`
	MovingTime  int       `json:"moving_time"`
	ElapsedTime int       `json:"elapsed_time"`
	StartDate   time.Time `json:"start_date"`
	Manual      bool      `json:"manual"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR DTOs
// ══════════════════════════════════════════════════════════════════════════════

// FaultDTO is the provider error body.
type FaultDTO struct {
	Message string        `json:"message"`
	Errors  []FaultDetail `json:"errors"`
}

// FaultDetail is one entry of FaultDTO.Errors.
type FaultDetail struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("strava: status %d", e.StatusCode)
	}
	return fmt.Sprintf("strava: status %d: %s", e.StatusCode, e.Message)
}

// IsServerSide reports errors that say nothing about the caller's request.
func (e *APIError) IsServerSide() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
