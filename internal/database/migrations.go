package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationTitleCaseExerciseNames = "2026-03-01_title_case_exercise_names"
	migrationDefaultWorkoutType     = "2026-03-01_default_workout_type"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationTitleCaseExerciseNames, apply: titleCaseExerciseNames},
		{name: migrationDefaultWorkoutType, apply: defaultWorkoutType},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// titleCaseExerciseNames rewrites names stored before normalization so history groups them together.
func titleCaseExerciseNames(db *gorm.DB) error {
	var names []string
	if err := db.Model(&workouts.Exercise{}).Distinct().Pluck("exercise_name", &names).Error; err != nil {
		return err
	}
	for _, name := range names {
		normalized := workouts.NormalizeExerciseName(name)
		if normalized == "" || normalized == name {
			continue
		}
		if err := db.Model(&workouts.Exercise{}).
			Where("exercise_name = ?", name).
			Update("exercise_name", normalized).Error; err != nil {
			return err
		}
	}
	return nil
}

func defaultWorkoutType(db *gorm.DB) error {
	return db.Model(&workouts.Workout{}).
		Where("workout_type = ? OR workout_type IS NULL", "").
		Update("workout_type", string(workouts.WorkoutTypeStrength)).Error
}
