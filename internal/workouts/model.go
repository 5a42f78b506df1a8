package workouts

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the calendar date format used as the workout merge key.
const DateLayout = "2006-01-02"

const maxExerciseNameLength = 190

const (
	// MaxReps bounds the repetitions stored for a single set.
	MaxReps = 10000
	// MaxWeightLbs bounds the weight stored for a single set.
	MaxWeightLbs = 10000.0
	// MaxDurationMinutes bounds a workout's duration to one day.
	MaxDurationMinutes = 24 * 60
)

// WorkoutType enumerates the supported workout classifications.
type WorkoutType string

const (
	WorkoutTypeStrength WorkoutType = "strength"
	WorkoutTypePush     WorkoutType = "push"
	WorkoutTypePull     WorkoutType = "pull"
	WorkoutTypeLegs     WorkoutType = "legs"
	WorkoutTypeFullBody WorkoutType = "full body"
	WorkoutTypeRecovery WorkoutType = "recovery"
)

var knownWorkoutTypes = []WorkoutType{
	WorkoutTypeStrength,
	WorkoutTypePush,
	WorkoutTypePull,
	WorkoutTypeLegs,
	WorkoutTypeFullBody,
	WorkoutTypeRecovery,
}

var (
	// ErrInvalidDate indicates that a workout date is not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("workouts: invalid date")
	// ErrExerciseNotFound indicates that no exercise exists for the requested identifier.
	ErrExerciseNotFound = errors.New("workouts: exercise not found")
	// ErrValueOutOfRange indicates that a set carries reps or weight outside the storable range.
	ErrValueOutOfRange = errors.New("workouts: value out of range")
)

// ParseWorkoutType matches raw input against the known workout types, ignoring case,
// surrounding whitespace and "-"/"_" separators.
func ParseWorkoutType(raw string) (WorkoutType, bool) {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	candidate = strings.NewReplacer("-", " ", "_", " ").Replace(candidate)
	candidate = strings.Join(strings.Fields(candidate), " ")
	for _, known := range knownWorkoutTypes {
		if candidate == string(known) {
			return known, true
		}
	}
	return "", false
}

// NormalizeExerciseName trims, collapses whitespace and converts the name to title case.
func NormalizeExerciseName(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	name := titleCase(strings.Join(fields, " "))
	if runes := []rune(name); len(runes) > maxExerciseNameLength {
		name = string(runes[:maxExerciseNameLength])
	}
	return name
}

// titleCase upper-cases the first letter of every word and lower-cases the rest.
// A letter starts a word when it follows anything other than a letter or apostrophe.
func titleCase(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	previousIsWordRune := false
	for _, r := range value {
		if unicode.IsLetter(r) {
			if previousIsWordRune {
				builder.WriteRune(unicode.ToLower(r))
			} else {
				builder.WriteRune(unicode.ToUpper(r))
			}
			previousIsWordRune = true
			continue
		}
		builder.WriteRune(r)
		previousIsWordRune = r == '\'' && previousIsWordRune
	}
	return builder.String()
}

// ValidateDate checks that the value is a YYYY-MM-DD calendar date.
func ValidateDate(value string) error {
	if _, err := time.Parse(DateLayout, value); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return nil
}

// Workout is the per-date logging session.
type Workout struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Date            string    `gorm:"column:date;size:10;not null;uniqueIndex:idx_workouts_date"`
	DurationMinutes *int      `gorm:"column:duration_minutes"`
	WorkoutType     string    `gorm:"column:workout_type;size:32;not null;default:strength"`
	Notes           string    `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Workout) TableName() string {
	return "workouts"
}

// Exercise is a named movement performed within a workout.
type Exercise struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	WorkoutID    int64  `gorm:"column:workout_id;not null;index:idx_exercises_workout_order,priority:1"`
	ExerciseName string `gorm:"column:exercise_name;size:190;not null;index:idx_exercises_name"`
	OrderIndex   int    `gorm:"column:order_index;not null;default:0;index:idx_exercises_workout_order,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Exercise) TableName() string {
	return "exercises"
}

// Set is one repetition group of an exercise.
type Set struct {
	ID         int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ExerciseID int64   `gorm:"column:exercise_id;not null;uniqueIndex:idx_sets_exercise_number,priority:1"`
	SetNumber  int     `gorm:"column:set_number;not null;uniqueIndex:idx_sets_exercise_number,priority:2"`
	Reps       int     `gorm:"column:reps;not null;default:0"`
	WeightLbs  float64 `gorm:"column:weight_lbs;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Set) TableName() string {
	return "sets"
}

// Entry is the structured workout document produced from free text.
type Entry struct {
	Date            string          `json:"date"`
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	WorkoutType     WorkoutType     `json:"workout_type"`
	Exercises       []ExerciseEntry `json:"exercises"`
	Notes           string          `json:"notes"`
}

// ExerciseEntry is one exercise of an Entry.
type ExerciseEntry struct {
	Name string     `json:"name"`
	Sets []SetEntry `json:"sets"`
}

// SetEntry is one set of an ExerciseEntry.
type SetEntry struct {
	SetNumber int     `json:"set_number"`
	Reps      int     `json:"reps"`
	WeightLbs float64 `json:"weight_lbs"`
}

// Normalize returns a copy of the entry that satisfies the storage invariants:
// a valid date, a known workout type, title-cased exercise names and sequential set numbers.
// Negative reps and weights become zero. Values above MaxReps, MaxWeightLbs or
// MaxDurationMinutes are rejected with ErrValueOutOfRange.
func (e Entry) Normalize() (Entry, error) {
	date := strings.TrimSpace(e.Date)
	if err := ValidateDate(date); err != nil {
		return Entry{}, err
	}

	workoutType, ok := ParseWorkoutType(string(e.WorkoutType))
	if !ok {
		workoutType = WorkoutTypeStrength
	}

	var duration *int
	if e.DurationMinutes != nil && *e.DurationMinutes > MaxDurationMinutes {
		return Entry{}, fmt.Errorf("%w: duration %d exceeds %d minutes", ErrValueOutOfRange, *e.DurationMinutes, MaxDurationMinutes)
	}
	if e.DurationMinutes != nil && *e.DurationMinutes > 0 {
		value := *e.DurationMinutes
		duration = &value
	}

	normalized := Entry{
		Date:            date,
		DurationMinutes: duration,
		WorkoutType:     workoutType,
		Exercises:       make([]ExerciseEntry, 0, len(e.Exercises)),
		Notes:           strings.TrimSpace(e.Notes),
	}
	for _, exercise := range e.Exercises {
		name := NormalizeExerciseName(exercise.Name)
		if name == "" {
			continue
		}
		sets := make([]SetEntry, 0, len(exercise.Sets))
		for index, set := range exercise.Sets {
			if err := ValidateSet(set); err != nil {
				return Entry{}, fmt.Errorf("%w: exercise %q set %d", err, name, index+1)
			}
			sets = append(sets, SetEntry{
				SetNumber: index + 1,
				Reps:      max(set.Reps, 0),
				WeightLbs: max(set.WeightLbs, 0),
			})
		}
		normalized.Exercises = append(normalized.Exercises, ExerciseEntry{Name: name, Sets: sets})
	}
	return normalized, nil
}

// ValidateSet rejects reps and weights that cannot be stored and aggregated safely.
func ValidateSet(set SetEntry) error {
	if set.Reps > MaxReps {
		return fmt.Errorf("%w: reps %d exceeds %d", ErrValueOutOfRange, set.Reps, MaxReps)
	}
	if math.IsNaN(set.WeightLbs) || math.IsInf(set.WeightLbs, 0) || set.WeightLbs > MaxWeightLbs {
		return fmt.Errorf("%w: weight %v exceeds %v lbs", ErrValueOutOfRange, set.WeightLbs, MaxWeightLbs)
	}
	return nil
}
