package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/irontrack/internal/database"
	"github.com/MarcoPoloResearchLab/irontrack/internal/metrics"
	"github.com/MarcoPoloResearchLab/irontrack/internal/parser"
	"github.com/MarcoPoloResearchLab/irontrack/internal/server"
	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	integrationAPIKey = "integration-key"
	jsonContentType   = "application/json"
)

// replayGenerator answers each prompt with the next canned Gemini reply.
type replayGenerator struct {
	replies []string
}

func (g *replayGenerator) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if len(g.replies) == 0 {
		return nil, fmt.Errorf("no reply queued")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: reply}}}},
		},
	}, nil
}

func TestLogAndReadWorkoutFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "integration.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	defer database.Close(db) //nolint:errcheck

	workoutService, err := workouts.NewService(workouts.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build workout service: %v", err)
	}

	generator := &replayGenerator{replies: []string{
		"```json\n{\"date\":\"2026-03-14\",\"duration_minutes\":60,\"workout_type\":\"push\",\"exercises\":[{\"name\":\"bench press\",\"sets\":[{\"set_number\":1,\"reps\":5,\"weight_lbs\":315},{\"set_number\":2,\"reps\":5,\"weight_lbs\":315},{\"set_number\":3,\"reps\":5,\"weight_lbs\":315}]}],\"notes\":\"felt heavy\"}\n```",
		`{"date":"2026-03-14","workout_type":"push","exercises":[{"name":"Dips","sets":[{"set_number":1,"reps":12}]}]}`,
		`{"date":"2026-03-16","workout_type":"push","exercises":[{"name":"Bench Press","sets":[{"set_number":1,"reps":3,"weight_lbs":325}]}]}`,
	}}
	workoutParser, err := parser.NewGeminiParser(parser.GeminiConfig{
		Generator: generator,
		Clock:     func() time.Time { return time.Date(2026, time.March, 14, 8, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		testContext.Fatalf("failed to build parser: %v", err)
	}

	manager, registry := metrics.NewTestManagerAndRegistry()
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Parser:         workoutParser,
		WorkoutService: workoutService,
		APIKey:         integrationAPIKey,
		AllowedOrigins: []string{"http://localhost:3000"},
		Metrics:        manager,
		Gatherer:       registry,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	texts := []string{
		"Bench press 3x5 @ 315lbs, took an hour, felt heavy",
		"Finished with dips, 12 reps",
		"Monday bench triple at 325",
	}
	var firstWorkoutID int64
	for index, text := range texts {
		body, err := json.Marshal(map[string]string{"text": text, "api_key": integrationAPIKey})
		if err != nil {
			testContext.Fatalf("failed to encode request: %v", err)
		}
		response, err := http.Post(testServer.URL+"/webhook/log-workout", jsonContentType, bytes.NewReader(body))
		if err != nil {
			testContext.Fatalf("webhook request failed: %v", err)
		}
		var payload struct {
			Success   bool  `json:"success"`
			WorkoutID int64 `json:"workout_id"`
			Created   bool  `json:"created"`
		}
		decodeErr := json.NewDecoder(response.Body).Decode(&payload)
		response.Body.Close()
		if decodeErr != nil {
			testContext.Fatalf("failed to decode webhook response: %v", decodeErr)
		}
		if response.StatusCode != http.StatusOK || !payload.Success {
			testContext.Fatalf("webhook %d failed with status %d", index, response.StatusCode)
		}
		switch index {
		case 0:
			firstWorkoutID = payload.WorkoutID
			if !payload.Created {
				testContext.Fatalf("expected first log to create a workout")
			}
		case 1:
			if payload.Created || payload.WorkoutID != firstWorkoutID {
				testContext.Fatalf("expected second log to merge into workout %d, got %+v", firstWorkoutID, payload)
			}
		case 2:
			if !payload.Created || payload.WorkoutID == firstWorkoutID {
				testContext.Fatalf("expected third log to create a new workout, got %+v", payload)
			}
		}
	}

	var allWorkouts []workouts.WorkoutView
	getJSON(testContext, testServer.URL+"/api/get_all_workouts", &allWorkouts)
	if len(allWorkouts) != 2 {
		testContext.Fatalf("expected two workouts, got %d", len(allWorkouts))
	}
	merged := allWorkouts[1]
	if merged.Date != "2026-03-14" || len(merged.Exercises) != 2 || merged.TotalVolume != 4725 {
		testContext.Fatalf("unexpected merged workout: %+v", merged)
	}
	if merged.DurationMinutes == nil || *merged.DurationMinutes != 60 || merged.Notes != "felt heavy" {
		testContext.Fatalf("expected first log attributes to be kept: %+v", merged)
	}

	benchID := merged.Exercises[0].ID
	var history workouts.ExerciseHistoryView
	getJSON(testContext, fmt.Sprintf("%s/api/get_exercise_history/%d", testServer.URL, benchID), &history)
	if history.Statistics.TotalWorkouts != 2 || history.Statistics.TotalSets != 4 || history.Statistics.MaxWeightEver != 325 {
		testContext.Fatalf("unexpected bench statistics: %+v", history.Statistics)
	}

	var summaries []workouts.ExerciseSummaryView
	getJSON(testContext, testServer.URL+"/api/get_all_exercises", &summaries)
	if len(summaries) != 2 || summaries[0].Name != "Bench Press" || summaries[1].Name != "Dips" {
		testContext.Fatalf("unexpected exercise summaries: %+v", summaries)
	}
	if summaries[0].PRDate == nil || *summaries[0].PRDate != "2026-03-16" || summaries[0].TotalSessions != 2 {
		testContext.Fatalf("unexpected bench summary: %+v", summaries[0])
	}
}

func getJSON(testContext *testing.T, target string, destination any) {
	testContext.Helper()
	parsed, err := url.Parse(target)
	if err != nil {
		testContext.Fatalf("invalid url %q: %v", target, err)
	}
	query := parsed.Query()
	query.Set("api_key", integrationAPIKey)
	parsed.RawQuery = query.Encode()

	response, err := http.Get(parsed.String())
	if err != nil {
		testContext.Fatalf("request to %s failed: %v", target, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected status %d for %s", response.StatusCode, target)
	}
	if err := json.NewDecoder(response.Body).Decode(destination); err != nil {
		testContext.Fatalf("failed to decode %s: %v", target, err)
	}
}
