package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/irontrack/internal/metrics"
	"github.com/MarcoPoloResearchLab/irontrack/internal/parser"
	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName        = "Iron Track Workout Logger"
	serviceDisplayName = "Iron Track - Workout Logging API"
	serviceVersion     = "1.0"

	logWorkoutSuccessMessage = "Workout logged successfully! 💪"

	healthCheckTimeout = 2 * time.Second
)

var (
	errMissingParser         = errors.New("parser dependency required")
	errMissingWorkoutService = errors.New("workout service dependency required")
	errMissingAPIKey         = errors.New("api key required")
)

// WorkoutService is the persistence and aggregation surface the handlers depend on.
type WorkoutService interface {
	LogWorkout(ctx context.Context, entry workouts.Entry) (workouts.LogResult, error)
	ListWorkouts(ctx context.Context) ([]workouts.WorkoutView, error)
	ExerciseHistory(ctx context.Context, exerciseID int64) (workouts.ExerciseHistoryView, error)
	ListExerciseSummaries(ctx context.Context) ([]workouts.ExerciseSummaryView, error)
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Parser         parser.Parser
	WorkoutService WorkoutService
	APIKey         string
	AllowedOrigins []string
	Metrics        *metrics.Manager
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	Clock          func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Parser == nil {
		return nil, errMissingParser
	}
	if deps.WorkoutService == nil {
		return nil, errMissingWorkoutService
	}
	if strings.TrimSpace(deps.APIKey) == "" {
		return nil, errMissingAPIKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(logger))
	router.Use(metrics.RequestMetrics(deps.Metrics))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		parser:   deps.Parser,
		workouts: deps.WorkoutService,
		apiKey:   deps.APIKey,
		metrics:  deps.Metrics,
		logger:   logger,
		clock:    clock,
	}

	router.GET("/", handler.handleServiceInfo)
	router.GET("/health", handler.handleHealth)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/webhook/log-workout", handler.handleLogWorkout)
	router.POST("/webhook/log_workout", handler.handleLogWorkout)

	api := router.Group("/api")
	api.Use(handler.authorizeQueryKey)
	api.GET("/get_all_workouts", handler.handleListWorkouts)
	api.GET("/get_exercise_history/:exercise_id", handler.handleExerciseHistory)
	api.GET("/get_all_exercises", handler.handleListExercises)

	return router, nil
}

type httpHandler struct {
	parser   parser.Parser
	workouts WorkoutService
	apiKey   string
	metrics  *metrics.Manager
	logger   *zap.Logger
	clock    func() time.Time
}

type logWorkoutRequestPayload struct {
	Text   string `json:"text"`
	APIKey string `json:"api_key"`
}

func (p logWorkoutRequestPayload) empty() bool {
	return strings.TrimSpace(p.Text) == "" && p.APIKey == ""
}

type logWorkoutResponsePayload struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	WorkoutID   int64          `json:"workout_id"`
	Created     bool           `json:"created"`
	WorkoutData workouts.Entry `json:"workout_data"`
}

func (h *httpHandler) handleLogWorkout(c *gin.Context) {
	var request logWorkoutRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No JSON data provided"})
		return
	}
	if !h.validKey(request.APIKey) {
		h.logger.Warn("webhook rejected invalid api key", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}
	text := strings.TrimSpace(request.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No workout text provided"})
		return
	}

	ctx := c.Request.Context()
	parseStarted := time.Now()
	entry, err := h.parser.Parse(ctx, text)
	if h.metrics != nil {
		h.metrics.HistParseDuration.Observe(time.Since(parseStarted).Seconds())
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.CounterParseFailures.Inc()
		}
		h.logger.Error("failed to parse workout text", zap.Int("text_length", len(text)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failurePayload(err))
		return
	}

	result, err := h.workouts.LogWorkout(ctx, entry)
	if err != nil {
		if h.metrics != nil {
			h.metrics.CounterStoreFailures.Inc()
		}
		h.logger.Error("failed to store workout", zap.String("date", entry.Date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failurePayload(err))
		return
	}
	if h.metrics != nil {
		h.metrics.CounterWorkoutsLogged.WithLabelValues(strconv.FormatBool(result.Created)).Inc()
	}

	c.JSON(http.StatusOK, logWorkoutResponsePayload{
		Success:     true,
		Message:     logWorkoutSuccessMessage,
		WorkoutID:   result.WorkoutID,
		Created:     result.Created,
		WorkoutData: result.Entry,
	})
}

func (h *httpHandler) handleListWorkouts(c *gin.Context) {
	views, err := h.workouts.ListWorkouts(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list workouts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err))
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleExerciseHistory(c *gin.Context) {
	rawID := c.Param("exercise_id")
	exerciseID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || exerciseID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid exercise ID %q", rawID)})
		return
	}

	view, err := h.workouts.ExerciseHistory(c.Request.Context(), exerciseID)
	if errors.Is(err, workouts.ErrExerciseNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Exercise with ID %d not found", exerciseID)})
		return
	}
	if err != nil {
		h.logger.Error("failed to load exercise history", zap.Int64("exercise_id", exerciseID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleListExercises(c *gin.Context) {
	summaries, err := h.workouts.ListExerciseSummaries(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list exercises", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload(err))
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status, database, code := "healthy", "ok", http.StatusOK
	if err := h.workouts.Ping(ctx); err != nil {
		h.logger.Warn("health check database ping failed", zap.Error(err))
		status, database, code = "unhealthy", "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"service":   serviceName,
		"timestamp": h.clock().UTC().Format(time.RFC3339),
		"database":  database,
	})
}

func (h *httpHandler) handleServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceDisplayName,
		"version": serviceVersion,
		"endpoints": gin.H{
			"/webhook/log-workout":                    "POST - Log a workout (requires api_key and text)",
			"/api/get_all_workouts":                   "GET - Get all workouts (requires api_key query parameter)",
			"/api/get_exercise_history/<exercise_id>": "GET - Get exercise history by exercise ID (requires api_key query parameter)",
			"/api/get_all_exercises":                  "GET - Get personal records and session history per exercise (requires api_key query parameter)",
			"/health":                                 "GET - Health check",
			"/metrics":                                "GET - Prometheus metrics",
		},
		"usage": gin.H{
			"method": http.MethodPost,
			"url":    "/webhook/log-workout",
			"body": gin.H{
				"text":    "Did bench press 3 sets of 10 reps at 185 pounds...",
				"api_key": "your-api-key",
			},
		},
	})
}

// authorizeQueryKey guards the read endpoints with the api_key query parameter.
func (h *httpHandler) authorizeQueryKey(c *gin.Context) {
	key := c.Query("api_key")
	if key == "" {
		key = c.GetHeader(apiKeyHeader)
	}
	if !h.validKey(key) {
		h.logger.Warn("api request rejected invalid api key", zap.String("path", c.FullPath()), zap.String("client_ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}
	c.Next()
}

func (h *httpHandler) validKey(candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(h.apiKey)) == 1
}

func errorPayload(err error) gin.H {
	payload := gin.H{"error": err.Error()}
	var serviceErr *workouts.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	return payload
}

func failurePayload(err error) gin.H {
	payload := errorPayload(err)
	payload["success"] = false
	return payload
}
