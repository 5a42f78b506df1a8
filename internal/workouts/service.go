package workouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// queryBatchSize caps the identifiers bound into one IN clause, well below PostgreSQL's
// 65535 bind-parameter limit.
var queryBatchSize = 1000

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew          = "workouts.service.new"
	opLogWorkout          = "workouts.log_workout"
	opListWorkouts        = "workouts.list_workouts"
	opExerciseHistory     = "workouts.exercise_history"
	opListExerciseSummary = "workouts.list_exercise_summaries"
	opPing                = "workouts.ping"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service stores parsed workouts and derives history statistics from them.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// LogResult reports where a logged entry was stored.
type LogResult struct {
	WorkoutID int64
	Created   bool
	Entry     Entry
}

// LogWorkout merges the entry into the workout for its date, creating the workout
// when none exists yet. Exercises are appended after any already stored for that date.
func (s *Service) LogWorkout(ctx context.Context, entry Entry) (LogResult, error) {
	if s.db == nil {
		s.logError(opLogWorkout, "missing_database", errMissingDatabase)
		return LogResult{}, newServiceError(opLogWorkout, "missing_database", errMissingDatabase)
	}

	normalized, err := entry.Normalize()
	if err != nil {
		s.logError(opLogWorkout, "invalid_entry", err, zap.String("date", entry.Date))
		return LogResult{}, newServiceError(opLogWorkout, "invalid_entry", err)
	}

	result := LogResult{Entry: normalized}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workout, created, err := s.findOrCreateWorkout(tx, normalized)
		if err != nil {
			return err
		}
		result.WorkoutID = workout.ID
		result.Created = created

		nextOrderIndex := 0
		if !created {
			var maxOrderIndex int
			row := tx.Model(&Exercise{}).
				Select("COALESCE(MAX(order_index), -1)").
				Where("workout_id = ?", workout.ID).
				Row()
			if err := row.Scan(&maxOrderIndex); err != nil {
				s.logError(opLogWorkout, "order_index_select_failed", err, zap.Int64("workout_id", workout.ID))
				return newServiceError(opLogWorkout, "order_index_select_failed", err)
			}
			nextOrderIndex = maxOrderIndex + 1
		}

		for index, exerciseEntry := range normalized.Exercises {
			exercise := Exercise{
				WorkoutID:    workout.ID,
				ExerciseName: exerciseEntry.Name,
				OrderIndex:   nextOrderIndex + index,
			}
			if err := tx.Create(&exercise).Error; err != nil {
				s.logError(opLogWorkout, "exercise_insert_failed", err,
					zap.Int64("workout_id", workout.ID),
					zap.String("exercise_name", exerciseEntry.Name))
				return newServiceError(opLogWorkout, "exercise_insert_failed", err)
			}

			if len(exerciseEntry.Sets) == 0 {
				continue
			}
			sets := make([]Set, 0, len(exerciseEntry.Sets))
			for _, setEntry := range exerciseEntry.Sets {
				sets = append(sets, Set{
					ExerciseID: exercise.ID,
					SetNumber:  setEntry.SetNumber,
					Reps:       setEntry.Reps,
					WeightLbs:  setEntry.WeightLbs,
				})
			}
			if err := tx.Create(&sets).Error; err != nil {
				s.logError(opLogWorkout, "set_insert_failed", err,
					zap.Int64("workout_id", workout.ID),
					zap.Int64("exercise_id", exercise.ID))
				return newServiceError(opLogWorkout, "set_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return LogResult{}, txErr
	}

	s.loggerOrDefault().Info("workout logged",
		zap.Int64("workout_id", result.WorkoutID),
		zap.String("date", normalized.Date),
		zap.Bool("created", result.Created),
		zap.Int("exercises", len(normalized.Exercises)))
	return result, nil
}

// findOrCreateWorkout resolves the workout for the entry date. A concurrent insert for the
// same date loses on the unique date index and falls back to the stored row.
func (s *Service) findOrCreateWorkout(tx *gorm.DB, entry Entry) (Workout, bool, error) {
	var existing Workout
	err := tx.Where("date = ?", entry.Date).Take(&existing).Error
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opLogWorkout, "workout_select_failed", err, zap.String("date", entry.Date))
		return Workout{}, false, newServiceError(opLogWorkout, "workout_select_failed", err)
	}
	return s.insertWorkout(tx, entry)
}

// insertWorkout creates the workout row for the entry date. When another writer already
// holds the date the insert is skipped and the stored row is returned with created=false.
func (s *Service) insertWorkout(tx *gorm.DB, entry Entry) (Workout, bool, error) {
	workout := Workout{
		Date:            entry.Date,
		DurationMinutes: entry.DurationMinutes,
		WorkoutType:     string(entry.WorkoutType),
		Notes:           entry.Notes,
		CreatedAt:       s.clock().UTC(),
	}
	insert := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoNothing: true,
	}).Create(&workout)
	if insert.Error != nil {
		s.logError(opLogWorkout, "workout_insert_failed", insert.Error, zap.String("date", entry.Date))
		return Workout{}, false, newServiceError(opLogWorkout, "workout_insert_failed", insert.Error)
	}
	if insert.RowsAffected > 0 {
		return workout, true, nil
	}

	var winner Workout
	if err := tx.Where("date = ?", entry.Date).Take(&winner).Error; err != nil {
		s.logError(opLogWorkout, "workout_select_failed", err, zap.String("date", entry.Date))
		return Workout{}, false, newServiceError(opLogWorkout, "workout_select_failed", err)
	}
	return winner, false, nil
}

// ListWorkouts returns every workout, newest first, with nested exercises and sets.
func (s *Service) ListWorkouts(ctx context.Context) ([]WorkoutView, error) {
	if s.db == nil {
		s.logError(opListWorkouts, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListWorkouts, "missing_database", errMissingDatabase)
	}
	db := s.db.WithContext(ctx)

	var workouts []Workout
	if err := db.Order("date DESC").Order("id DESC").Find(&workouts).Error; err != nil {
		s.logError(opListWorkouts, "workout_query_failed", err)
		return nil, newServiceError(opListWorkouts, "workout_query_failed", err)
	}
	if len(workouts) == 0 {
		return []WorkoutView{}, nil
	}

	workoutIDs := make([]int64, 0, len(workouts))
	for _, workout := range workouts {
		workoutIDs = append(workoutIDs, workout.ID)
	}
	exercises, err := findByIDs[Exercise](db, "workout_id", workoutIDs)
	if err != nil {
		s.logError(opListWorkouts, "exercise_query_failed", err)
		return nil, newServiceError(opListWorkouts, "exercise_query_failed", err)
	}

	sets, err := s.loadSets(db, exercises)
	if err != nil {
		s.logError(opListWorkouts, "set_query_failed", err)
		return nil, newServiceError(opListWorkouts, "set_query_failed", err)
	}

	return BuildWorkoutViews(workouts, exercises, sets), nil
}

// ExerciseHistory returns every logged instance of the named exercise behind exerciseID.
func (s *Service) ExerciseHistory(ctx context.Context, exerciseID int64) (ExerciseHistoryView, error) {
	if s.db == nil {
		s.logError(opExerciseHistory, "missing_database", errMissingDatabase)
		return ExerciseHistoryView{}, newServiceError(opExerciseHistory, "missing_database", errMissingDatabase)
	}
	db := s.db.WithContext(ctx)

	var anchor Exercise
	err := db.Where("id = ?", exerciseID).Take(&anchor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ExerciseHistoryView{}, newServiceError(opExerciseHistory, "exercise_not_found", ErrExerciseNotFound)
	}
	if err != nil {
		s.logError(opExerciseHistory, "exercise_select_failed", err, zap.Int64("exercise_id", exerciseID))
		return ExerciseHistoryView{}, newServiceError(opExerciseHistory, "exercise_select_failed", err)
	}

	var exercises []Exercise
	if err := db.Where("exercise_name = ?", anchor.ExerciseName).Find(&exercises).Error; err != nil {
		s.logError(opExerciseHistory, "exercise_query_failed", err, zap.String("exercise_name", anchor.ExerciseName))
		return ExerciseHistoryView{}, newServiceError(opExerciseHistory, "exercise_query_failed", err)
	}

	workouts, err := s.loadWorkouts(db, exercises)
	if err != nil {
		s.logError(opExerciseHistory, "workout_query_failed", err, zap.String("exercise_name", anchor.ExerciseName))
		return ExerciseHistoryView{}, newServiceError(opExerciseHistory, "workout_query_failed", err)
	}

	sets, err := s.loadSets(db, exercises)
	if err != nil {
		s.logError(opExerciseHistory, "set_query_failed", err, zap.String("exercise_name", anchor.ExerciseName))
		return ExerciseHistoryView{}, newServiceError(opExerciseHistory, "set_query_failed", err)
	}

	return BuildExerciseHistory(exerciseID, anchor.ExerciseName, workouts, exercises, sets), nil
}

// ListExerciseSummaries returns personal records and per-session history for every exercise name.
func (s *Service) ListExerciseSummaries(ctx context.Context) ([]ExerciseSummaryView, error) {
	if s.db == nil {
		s.logError(opListExerciseSummary, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListExerciseSummary, "missing_database", errMissingDatabase)
	}
	db := s.db.WithContext(ctx)

	var exercises []Exercise
	if err := db.Find(&exercises).Error; err != nil {
		s.logError(opListExerciseSummary, "exercise_query_failed", err)
		return nil, newServiceError(opListExerciseSummary, "exercise_query_failed", err)
	}
	if len(exercises) == 0 {
		return []ExerciseSummaryView{}, nil
	}

	workouts, err := s.loadWorkouts(db, exercises)
	if err != nil {
		s.logError(opListExerciseSummary, "workout_query_failed", err)
		return nil, newServiceError(opListExerciseSummary, "workout_query_failed", err)
	}

	sets, err := s.loadSets(db, exercises)
	if err != nil {
		s.logError(opListExerciseSummary, "set_query_failed", err)
		return nil, newServiceError(opListExerciseSummary, "set_query_failed", err)
	}

	return BuildExerciseSummaries(workouts, exercises, sets), nil
}

// Ping verifies that the underlying database connection is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return newServiceError(opPing, "missing_database", errMissingDatabase)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return newServiceError(opPing, "connection_unavailable", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return newServiceError(opPing, "ping_failed", err)
	}
	return nil
}

func (s *Service) loadWorkouts(db *gorm.DB, exercises []Exercise) ([]Workout, error) {
	if len(exercises) == 0 {
		return nil, nil
	}
	seen := make(map[int64]struct{}, len(exercises))
	workoutIDs := make([]int64, 0, len(exercises))
	for _, exercise := range exercises {
		if _, ok := seen[exercise.WorkoutID]; ok {
			continue
		}
		seen[exercise.WorkoutID] = struct{}{}
		workoutIDs = append(workoutIDs, exercise.WorkoutID)
	}
	return findByIDs[Workout](db, "id", workoutIDs)
}

func (s *Service) loadSets(db *gorm.DB, exercises []Exercise) ([]Set, error) {
	if len(exercises) == 0 {
		return nil, nil
	}
	exerciseIDs := make([]int64, 0, len(exercises))
	for _, exercise := range exercises {
		exerciseIDs = append(exerciseIDs, exercise.ID)
	}
	return findByIDs[Set](db, "exercise_id", exerciseIDs)
}

// findByIDs loads the rows whose column matches one of ids, queryBatchSize identifiers at a time.
func findByIDs[T any](db *gorm.DB, column string, ids []int64) ([]T, error) {
	rows := make([]T, 0, len(ids))
	for start := 0; start < len(ids); start += queryBatchSize {
		end := min(start+queryBatchSize, len(ids))
		var batch []T
		if err := db.Where(column+" IN ?", ids[start:end]).Find(&batch).Error; err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("workouts service error", attrs...)
}
