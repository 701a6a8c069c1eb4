package strava

import (
	"strconv"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
)

// sportTypeAliases folds provider sport types onto the labels the metrics
// understand. Anything else passes through unchanged.
var sportTypeAliases = map[string]string{
	"TrailRun":         "TrailRun",
	"VirtualRun":       "VirtualRun",
	"MountainBikeRide": "Ride",
	"GravelRide":       "Ride",
	"EBikeRide":        "Ride",
	"VirtualRide":      "Ride",
}

// ActivityFromDTO maps one provider activity. Manual entries keep their
// distance; there is no way to tell them apart downstream.
func ActivityFromDTO(dto ActivityDTO) fitness.Activity {
	return fitness.Activity{
		ID:         strconv.FormatInt(dto.ID, 10),
		Type:       activityType(dto),
		Distance:   dto.Distance,
		MovingTime: time.Duration(dto.MovingTime) * time.Second,
		StartDate:  dto.StartDate.UTC(),
	}
}

// ActivitiesFromDTOs maps a page, dropping entries without a start date.
func ActivitiesFromDTOs(dtos []ActivityDTO) []fitness.Activity {
	out := make([]fitness.Activity, 0, len(dtos))
	for _, d := range dtos {
		if d.StartDate.IsZero() {
			continue
		}
		out = append(out, ActivityFromDTO(d))
	}
	return out
}

func activityType(dto ActivityDTO) string {
	if dto.SportType != "" {
		if alias, ok := sportTypeAliases[dto.SportType]; ok {
			return alias
		}
		return dto.SportType
	}
	return dto.Type
}
