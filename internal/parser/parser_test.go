package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
)

const testToday = "2026-03-14"

func TestDecodeAppliesDefaults(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		check func(t *testing.T, entry workouts.Entry)
	}{
		{
			name: "missing date uses today",
			raw:  `{"workout_type":"push","exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Equal(t, testToday, entry.Date)
			},
		},
		{
			name: "malformed date uses today",
			raw:  `{"date":"last tuesday","exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Equal(t, testToday, entry.Date)
			},
		},
		{
			name: "explicit date kept",
			raw:  `{"date":"2026-03-01","exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Equal(t, "2026-03-01", entry.Date)
			},
		},
		{
			name: "unknown workout type becomes strength",
			raw:  `{"date":"2026-03-01","workout_type":"cardio","exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Equal(t, workouts.WorkoutTypeStrength, entry.WorkoutType)
			},
		},
		{
			name: "workout type matched case-insensitively",
			raw:  `{"date":"2026-03-01","workout_type":"Full Body","exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Equal(t, workouts.WorkoutTypeFullBody, entry.WorkoutType)
			},
		},
		{
			name: "null duration stays absent",
			raw:  `{"date":"2026-03-01","duration_minutes":null,"exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Nil(t, entry.DurationMinutes)
			},
		},
		{
			name: "zero duration stays absent",
			raw:  `{"date":"2026-03-01","duration_minutes":0,"exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Nil(t, entry.DurationMinutes)
			},
		},
		{
			name: "duration kept",
			raw:  `{"date":"2026-03-01","duration_minutes":45,"exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				require.NotNil(t, entry.DurationMinutes)
				assert.Equal(t, 45, *entry.DurationMinutes)
			},
		},
		{
			name: "null notes become empty",
			raw:  `{"date":"2026-03-01","notes":null,"exercises":[]}`,
			check: func(t *testing.T, entry workouts.Entry) {
				assert.Empty(t, entry.Notes)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry, err := Decode(tc.raw, testToday)
			require.NoError(t, err)
			tc.check(t, entry)
		})
	}
}

func TestDecodeNormalizesExercisesAndSets(t *testing.T) {
	raw := "```json\n" + `{
  "date": "2026-03-10",
  "workout_type": "legs",
  "exercises": [
    {"name": "back squat", "sets": [
      {"set_number": 1, "reps": 5, "weight_lbs": 315},
      {"set_number": 1, "reps": 5, "weight_lbs": 315},
      {"set_number": 3, "reps": 4.6}
    ]},
    {"name": "   ", "sets": [{"set_number": 1, "reps": 10, "weight_lbs": 50}]},
    {"name": "walking lunges", "sets": [{"reps": -3, "weight_lbs": -20}]}
  ],
  "notes": "  knees felt good  "
}` + "\n```"

	entry, err := Decode(raw, testToday)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", entry.Date)
	assert.Equal(t, workouts.WorkoutTypeLegs, entry.WorkoutType)
	assert.Equal(t, "knees felt good", entry.Notes)
	require.Len(t, entry.Exercises, 2)

	squat := entry.Exercises[0]
	assert.Equal(t, "Back Squat", squat.Name)
	assert.Equal(t, []workouts.SetEntry{
		{SetNumber: 1, Reps: 5, WeightLbs: 315},
		{SetNumber: 2, Reps: 5, WeightLbs: 315},
		{SetNumber: 3, Reps: 5, WeightLbs: 0},
	}, squat.Sets)

	lunges := entry.Exercises[1]
	assert.Equal(t, "Walking Lunges", lunges.Name)
	assert.Equal(t, []workouts.SetEntry{{SetNumber: 1, Reps: 0, WeightLbs: 0}}, lunges.Sets)
}

func TestDecodeRejectsInvalidOutput(t *testing.T) {
	for _, raw := range []string{"", "```json\n```", "not json", `{"exercises": "bench"}`, `[1, 2, 3]`} {
		_, err := Decode(raw, testToday)
		assert.True(t, errors.Is(err, ErrParseFailed), "raw %q produced %v", raw, err)
	}
}

func TestDecodeRejectsOutOfRangeNumbers(t *testing.T) {
	for _, raw := range []string{
		`{"exercises":[{"name":"bench","sets":[{"reps":10,"weight_lbs":1e307}]}]}`,
		`{"exercises":[{"name":"bench","sets":[{"reps":10,"weight_lbs":10000.5}]}]}`,
		`{"exercises":[{"name":"bench","sets":[{"reps":1e300,"weight_lbs":135}]}]}`,
		`{"duration_minutes":1e200,"exercises":[]}`,
	} {
		_, err := Decode(raw, testToday)
		assert.ErrorIs(t, err, ErrParseFailed, "raw %q", raw)
		assert.ErrorIs(t, err, workouts.ErrValueOutOfRange, "raw %q", raw)
	}
}

func TestDecodeClampsHugeNegativeReps(t *testing.T) {
	entry, err := Decode(`{"exercises":[{"name":"bench","sets":[{"reps":-1e300,"weight_lbs":135}]}]}`, testToday)
	require.NoError(t, err)
	assert.Equal(t, []workouts.SetEntry{{SetNumber: 1, Reps: 0, WeightLbs: 135}}, entry.Exercises[0].Sets)
}

type stubGenerator struct {
	response *genai.GenerateContentResponse
	err      error
	model    string
	prompt   string
	config   *genai.GenerateContentConfig
}

func (s *stubGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model = model
	s.config = config
	if len(contents) > 0 && contents[0] != nil && len(contents[0].Parts) > 0 {
		s.prompt = contents[0].Parts[0].Text
	}
	return s.response, s.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func newTestParser(t *testing.T, generator Generator, logger *zap.Logger) *GeminiParser {
	t.Helper()
	parser, err := NewGeminiParser(GeminiConfig{
		Generator: generator,
		Clock:     func() time.Time { return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC) },
		Logger:    logger,
	})
	require.NoError(t, err)
	return parser
}

func TestGeminiParserParse(t *testing.T) {
	generator := &stubGenerator{response: textResponse(`{"workout_type":"push","exercises":[{"name":"bench press","sets":[{"set_number":1,"reps":5,"weight_lbs":225}]}]}`)}
	parser := newTestParser(t, generator, zap.NewNop())

	entry, err := parser.Parse(context.Background(), "bench 225 for 5")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, generator.model)
	assert.Contains(t, generator.prompt, `Workout data: "bench 225 for 5"`)
	assert.Contains(t, generator.prompt, "Use today's date (2026-03-14)")
	require.NotNil(t, generator.config)
	assert.Equal(t, "application/json", generator.config.ResponseMIMEType)
	require.NotNil(t, generator.config.ResponseSchema)
	assert.ElementsMatch(t, []string{"date", "workout_type", "exercises"}, generator.config.ResponseSchema.Required)

	assert.Equal(t, testToday, entry.Date)
	assert.Equal(t, workouts.WorkoutTypePush, entry.WorkoutType)
	require.Len(t, entry.Exercises, 1)
	assert.Equal(t, "Bench Press", entry.Exercises[0].Name)
}

func TestGeminiParserPromptKeepsPercentSigns(t *testing.T) {
	generator := &stubGenerator{response: textResponse(`{"exercises":[]}`)}
	parser := newTestParser(t, generator, nil)

	_, err := parser.Parse(context.Background(), "rows at 80% effort")
	require.NoError(t, err)
	assert.True(t, strings.Contains(generator.prompt, "rows at 80% effort"))
}

func TestGeminiParserRequestFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	generator := &stubGenerator{err: errors.New("quota exceeded")}
	parser := newTestParser(t, generator, zap.New(core))

	_, err := parser.Parse(context.Background(), "squat 5x5")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 1, logs.FilterMessage("gemini request failed").Len())
}

func TestGeminiParserRejectsUndecodableReply(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	generator := &stubGenerator{response: textResponse("I could not understand that workout.")}
	parser := newTestParser(t, generator, zap.New(core))

	_, err := parser.Parse(context.Background(), "???")
	assert.ErrorIs(t, err, ErrParseFailed)
	assert.Equal(t, 1, logs.FilterMessage("gemini response rejected").Len())
}

func TestNewGeminiParserRequiresGenerator(t *testing.T) {
	_, err := NewGeminiParser(GeminiConfig{})
	assert.Error(t, err)
}

func TestNewGeminiGeneratorRequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), "  ")
	assert.Error(t, err)
}
