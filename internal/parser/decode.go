package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
)

// ErrParseFailed wraps every failure to turn free text into a workout entry.
var ErrParseFailed = errors.New("parser: failed to parse workout")

var codeFenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// rawDocument accepts the loosely typed JSON a model may return.
type rawDocument struct {
	Date            *string       `json:"date"`
	DurationMinutes *float64      `json:"duration_minutes"`
	WorkoutType     *string       `json:"workout_type"`
	Exercises       []rawExercise `json:"exercises"`
	Notes           *string       `json:"notes"`
}

type rawExercise struct {
	Name string   `json:"name"`
	Sets []rawSet `json:"sets"`
}

type rawSet struct {
	SetNumber *float64 `json:"set_number"`
	Reps      *float64 `json:"reps"`
	WeightLbs *float64 `json:"weight_lbs"`
}

// Decode converts model output into a normalized entry. Markdown code fences are ignored,
// a missing or malformed date falls back to today and missing numbers default to zero.
// Reps, weights or durations beyond the storable range fail with ErrParseFailed.
func Decode(raw string, today string) (workouts.Entry, error) {
	cleaned := strings.TrimSpace(codeFenceReplacer.Replace(raw))
	if cleaned == "" {
		return workouts.Entry{}, fmt.Errorf("%w: empty response", ErrParseFailed)
	}

	var document rawDocument
	if err := json.Unmarshal([]byte(cleaned), &document); err != nil {
		return workouts.Entry{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	entry := workouts.Entry{
		Date:      today,
		Exercises: make([]workouts.ExerciseEntry, 0, len(document.Exercises)),
	}
	if document.Date != nil {
		if date := strings.TrimSpace(*document.Date); workouts.ValidateDate(date) == nil {
			entry.Date = date
		}
	}
	if document.WorkoutType != nil {
		entry.WorkoutType = workouts.WorkoutType(*document.WorkoutType)
	}
	if document.DurationMinutes != nil {
		if *document.DurationMinutes > workouts.MaxDurationMinutes {
			return workouts.Entry{}, fmt.Errorf("%w: %w: duration %v", ErrParseFailed, workouts.ErrValueOutOfRange, *document.DurationMinutes)
		}
		if minutes := int(math.Round(*document.DurationMinutes)); minutes > 0 {
			entry.DurationMinutes = &minutes
		}
	}
	if document.Notes != nil {
		entry.Notes = *document.Notes
	}

	for _, exercise := range document.Exercises {
		sets := make([]workouts.SetEntry, 0, len(exercise.Sets))
		for _, set := range exercise.Sets {
			reps := max(valueOrZero(set.Reps), 0)
			if reps > workouts.MaxReps {
				return workouts.Entry{}, fmt.Errorf("%w: %w: reps %v", ErrParseFailed, workouts.ErrValueOutOfRange, reps)
			}
			sets = append(sets, workouts.SetEntry{
				Reps:      int(math.Round(reps)),
				WeightLbs: valueOrZero(set.WeightLbs),
			})
		}
		entry.Exercises = append(entry.Exercises, workouts.ExerciseEntry{Name: exercise.Name, Sets: sets})
	}

	normalized, err := entry.Normalize()
	if err != nil {
		return workouts.Entry{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return normalized, nil
}

func valueOrZero(value *float64) float64 {
	if value == nil || math.IsNaN(*value) {
		return 0
	}
	return *value
}
