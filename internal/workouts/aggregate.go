package workouts

import (
	"math"
	"sort"
	"time"
)

// SetView is a single set as presented by the read endpoints.
type SetView struct {
	SetNumber int     `json:"set_number"`
	Reps      int     `json:"reps"`
	Weight    float64 `json:"weight"`
}

type ExerciseView struct {
	ID   int64     `json:"id"`
	Name string    `json:"name"`
	Sets []SetView `json:"sets"`
}

type WorkoutView struct {
	ID              int64          `json:"id"`
	Date            string         `json:"date"`
	CreatedAt       time.Time      `json:"created_at"`
	DurationMinutes *int           `json:"duration_minutes"`
	WorkoutType     string         `json:"workout_type"`
	Notes           string         `json:"notes"`
	Exercises       []ExerciseView `json:"exercises"`
	TotalVolume     float64        `json:"total_volume"`
}

type HistorySetView struct {
	ID         int64   `json:"id"`
	ExerciseID int64   `json:"exercise_id"`
	SetNumber  int     `json:"set_number"`
	Reps       int     `json:"reps"`
	WeightLbs  float64 `json:"weight_lbs"`
}

// HistoryEntry summarizes one logged instance of an exercise.
type HistoryEntry struct {
	ExerciseID      int64            `json:"exercise_id"`
	WorkoutID       int64            `json:"workout_id"`
	Date            string           `json:"date"`
	WorkoutType     string           `json:"workout_type"`
	DurationMinutes *int             `json:"duration_minutes"`
	Notes           string           `json:"notes"`
	Sets            []HistorySetView `json:"sets"`
	TotalSets       int              `json:"total_sets"`
	TotalReps       int              `json:"total_reps"`
	TotalVolume     float64          `json:"total_volume"`
	MaxWeight       float64          `json:"max_weight"`
	MaxReps         int              `json:"max_reps"`
}

type ExerciseStatistics struct {
	TotalWorkouts int     `json:"total_workouts"`
	TotalSets     int     `json:"total_sets"`
	TotalReps     int     `json:"total_reps"`
	TotalVolume   float64 `json:"total_volume"`
	MaxWeightEver float64 `json:"max_weight_ever"`
	MaxRepsEver   int     `json:"max_reps_ever"`
}

type ExerciseHistoryView struct {
	ExerciseID   int64              `json:"exercise_id"`
	ExerciseName string             `json:"exercise_name"`
	History      []HistoryEntry     `json:"history"`
	Statistics   ExerciseStatistics `json:"statistics"`
}

// SessionView rolls up every set of one exercise name on one date.
type SessionView struct {
	Date       string    `json:"date"`
	TotalSets  int       `json:"total_sets"`
	Weight     float64   `json:"weight"`
	Reps       int       `json:"reps"`
	Volume     float64   `json:"volume"`
	SetDetails []SetView `json:"set_details"`
}

type ExerciseSummaryView struct {
	Name          string        `json:"name"`
	PRWeight      float64       `json:"pr_weight"`
	PRDate        *string       `json:"pr_date"`
	TotalSessions int           `json:"total_sessions"`
	History       []SessionView `json:"history"`
}

// BuildWorkoutViews joins the rows into workouts ordered by date descending, each with
// exercises in insertion order and sets in set order.
func BuildWorkoutViews(workouts []Workout, exercises []Exercise, sets []Set) []WorkoutView {
	setsByExercise := groupSets(sets)
	exercisesByWorkout := make(map[int64][]Exercise, len(workouts))
	for _, exercise := range exercises {
		exercisesByWorkout[exercise.WorkoutID] = append(exercisesByWorkout[exercise.WorkoutID], exercise)
	}

	orderedWorkouts := append([]Workout(nil), workouts...)
	sort.SliceStable(orderedWorkouts, func(i, j int) bool {
		if orderedWorkouts[i].Date != orderedWorkouts[j].Date {
			return orderedWorkouts[i].Date > orderedWorkouts[j].Date
		}
		return orderedWorkouts[i].ID > orderedWorkouts[j].ID
	})

	views := make([]WorkoutView, 0, len(orderedWorkouts))
	for _, workout := range orderedWorkouts {
		workoutExercises := exercisesByWorkout[workout.ID]
		sort.SliceStable(workoutExercises, func(i, j int) bool {
			if workoutExercises[i].OrderIndex != workoutExercises[j].OrderIndex {
				return workoutExercises[i].OrderIndex < workoutExercises[j].OrderIndex
			}
			return workoutExercises[i].ID < workoutExercises[j].ID
		})

		exerciseViews := make([]ExerciseView, 0, len(workoutExercises))
		totalVolume := 0.0
		for _, exercise := range workoutExercises {
			exerciseSets := setsByExercise[exercise.ID]
			setViews := make([]SetView, 0, len(exerciseSets))
			for _, set := range exerciseSets {
				setViews = append(setViews, toSetView(set))
			}
			totalVolume += volume(exerciseSets)
			exerciseViews = append(exerciseViews, ExerciseView{
				ID:   exercise.ID,
				Name: exercise.ExerciseName,
				Sets: setViews,
			})
		}

		views = append(views, WorkoutView{
			ID:              workout.ID,
			Date:            workout.Date,
			CreatedAt:       workout.CreatedAt,
			DurationMinutes: workout.DurationMinutes,
			WorkoutType:     workoutTypeOrDefault(workout.WorkoutType),
			Notes:           workout.Notes,
			Exercises:       exerciseViews,
			TotalVolume:     round2(totalVolume),
		})
	}
	return views
}

// BuildExerciseHistory produces one history entry per exercise row, newest first,
// plus statistics over every set.
func BuildExerciseHistory(exerciseID int64, exerciseName string, workouts []Workout, exercises []Exercise, sets []Set) ExerciseHistoryView {
	workoutsByID := indexWorkouts(workouts)
	setsByExercise := groupSets(sets)

	history := make([]HistoryEntry, 0, len(exercises))
	statistics := ExerciseStatistics{}
	for _, exercise := range exercises {
		workout := workoutsByID[exercise.WorkoutID]
		exerciseSets := setsByExercise[exercise.ID]

		entry := HistoryEntry{
			ExerciseID:      exercise.ID,
			WorkoutID:       exercise.WorkoutID,
			Date:            workout.Date,
			WorkoutType:     workout.WorkoutType,
			DurationMinutes: workout.DurationMinutes,
			Notes:           workout.Notes,
			Sets:            make([]HistorySetView, 0, len(exerciseSets)),
			TotalSets:       len(exerciseSets),
			TotalVolume:     round2(volume(exerciseSets)),
		}
		for _, set := range exerciseSets {
			entry.Sets = append(entry.Sets, HistorySetView{
				ID:         set.ID,
				ExerciseID: set.ExerciseID,
				SetNumber:  set.SetNumber,
				Reps:       set.Reps,
				WeightLbs:  set.WeightLbs,
			})
			entry.TotalReps += set.Reps
			entry.MaxWeight = math.Max(entry.MaxWeight, set.WeightLbs)
			entry.MaxReps = max(entry.MaxReps, set.Reps)
		}
		history = append(history, entry)

		statistics.TotalSets += entry.TotalSets
		statistics.TotalReps += entry.TotalReps
		statistics.TotalVolume += volume(exerciseSets)
		statistics.MaxWeightEver = math.Max(statistics.MaxWeightEver, entry.MaxWeight)
		statistics.MaxRepsEver = max(statistics.MaxRepsEver, entry.MaxReps)
	}
	statistics.TotalWorkouts = len(history)
	statistics.TotalVolume = round2(statistics.TotalVolume)

	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Date != history[j].Date {
			return history[i].Date > history[j].Date
		}
		return history[i].ExerciseID > history[j].ExerciseID
	})

	return ExerciseHistoryView{
		ExerciseID:   exerciseID,
		ExerciseName: exerciseName,
		History:      history,
		Statistics:   statistics,
	}
}

// BuildExerciseSummaries groups exercise rows by name. Rows are visited in date order so the
// personal record date is the first date the heaviest weight was lifted. Rows logged on the
// same date collapse into one session. Exercises whose workout is missing are skipped.
func BuildExerciseSummaries(workouts []Workout, exercises []Exercise, sets []Set) []ExerciseSummaryView {
	workoutsByID := indexWorkouts(workouts)
	setsByExercise := groupSets(sets)

	ordered := make([]Exercise, 0, len(exercises))
	for _, exercise := range exercises {
		if _, ok := workoutsByID[exercise.WorkoutID]; ok {
			ordered = append(ordered, exercise)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		left, right := workoutsByID[ordered[i].WorkoutID].Date, workoutsByID[ordered[j].WorkoutID].Date
		if left != right {
			return left < right
		}
		return ordered[i].ID < ordered[j].ID
	})

	type sessionAccumulator struct {
		view     SessionView
		volume   float64
		topFound bool
	}
	type summaryAccumulator struct {
		view     ExerciseSummaryView
		sessions map[string]*sessionAccumulator
		dates    []string
	}

	summaries := make(map[string]*summaryAccumulator)
	for _, exercise := range ordered {
		date := workoutsByID[exercise.WorkoutID].Date
		summary, ok := summaries[exercise.ExerciseName]
		if !ok {
			summary = &summaryAccumulator{
				view:     ExerciseSummaryView{Name: exercise.ExerciseName},
				sessions: make(map[string]*sessionAccumulator),
			}
			summaries[exercise.ExerciseName] = summary
		}

		session, ok := summary.sessions[date]
		if !ok {
			session = &sessionAccumulator{view: SessionView{Date: date, SetDetails: []SetView{}}}
			summary.sessions[date] = session
			summary.dates = append(summary.dates, date)
		}

		for _, set := range setsByExercise[exercise.ID] {
			if set.WeightLbs > summary.view.PRWeight {
				summary.view.PRWeight = set.WeightLbs
				prDate := date
				summary.view.PRDate = &prDate
			}

			session.view.TotalSets++
			session.volume += set.WeightLbs * float64(set.Reps)
			session.view.SetDetails = append(session.view.SetDetails, toSetView(set))
			if !session.topFound || set.WeightLbs > session.view.Weight {
				session.view.Weight = set.WeightLbs
				session.view.Reps = set.Reps
				session.topFound = true
			}
		}
	}

	views := make([]ExerciseSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		history := make([]SessionView, 0, len(summary.dates))
		for _, date := range summary.dates {
			session := summary.sessions[date]
			session.view.Volume = round2(session.volume)
			history = append(history, session.view)
		}
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].Date > history[j].Date
		})
		summary.view.History = history
		summary.view.TotalSessions = len(history)
		views = append(views, summary.view)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].Name < views[j].Name
	})
	return views
}

func groupSets(sets []Set) map[int64][]Set {
	grouped := make(map[int64][]Set)
	for _, set := range sets {
		grouped[set.ExerciseID] = append(grouped[set.ExerciseID], set)
	}
	for exerciseID := range grouped {
		exerciseSets := grouped[exerciseID]
		sort.SliceStable(exerciseSets, func(i, j int) bool {
			return exerciseSets[i].SetNumber < exerciseSets[j].SetNumber
		})
	}
	return grouped
}

func indexWorkouts(workouts []Workout) map[int64]Workout {
	indexed := make(map[int64]Workout, len(workouts))
	for _, workout := range workouts {
		indexed[workout.ID] = workout
	}
	return indexed
}

func volume(sets []Set) float64 {
	total := 0.0
	for _, set := range sets {
		total += set.WeightLbs * float64(set.Reps)
	}
	return total
}

func toSetView(set Set) SetView {
	return SetView{SetNumber: set.SetNumber, Reps: set.Reps, Weight: set.WeightLbs}
}

func workoutTypeOrDefault(value string) string {
	if value == "" {
		return string(WorkoutTypeStrength)
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
