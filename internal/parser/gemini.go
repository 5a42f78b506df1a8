package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/MarcoPoloResearchLab/irontrack/internal/workouts"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

const promptTemplate = `Extract workout data and return structured JSON.

Workout data: "%s"

Rules:
- Use today's date (%s) if no date mentioned
- Normalize exercise names to Title Case (e.g., "bench press" -> "Bench Press")
- If weight not mentioned, set weight_lbs to 0
- If duration not mentioned, omit duration_minutes field
- Extract any additional context as notes
- For "3x5 @ 315lbs" format: create 3 sets, each with 5 reps at 315lbs
- For workout type assign "push", "pull", "legs", "full body" or "recovery" based on exercises or notes, default to "strength" if unclear
`

var (
	errMissingGenerator = errors.New("content generator is required")
	noOpLogger          = zap.NewNop()
)

// Parser turns free workout text into a structured entry.
type Parser interface {
	Parse(ctx context.Context, text string) (workouts.Entry, error)
}

// Generator is the subset of the Gemini models API used by GeminiParser.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiGenerator connects to the Gemini API with the provided key.
func NewGeminiGenerator(ctx context.Context, apiKey string) (Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client.Models, nil
}

type GeminiConfig struct {
	Generator Generator
	Model     string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// GeminiParser asks Gemini for a JSON document matching the workout schema.
type GeminiParser struct {
	generator Generator
	model     string
	clock     func() time.Time
	logger    *zap.Logger
}

func NewGeminiParser(cfg GeminiConfig) (*GeminiParser, error) {
	if cfg.Generator == nil {
		return nil, errMissingGenerator
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &GeminiParser{
		generator: cfg.Generator,
		model:     model,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Parse sends the text to Gemini once and decodes the reply. Failures are not retried.
func (p *GeminiParser) Parse(ctx context.Context, text string) (workouts.Entry, error) {
	today := p.clock().Format(workouts.DateLayout)
	prompt := fmt.Sprintf(promptTemplate, text, today)

	response, err := p.generator.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   entrySchema(),
	})
	if err != nil {
		p.logger.Error("gemini request failed", zap.String("model", p.model), zap.Error(err))
		return workouts.Entry{}, fmt.Errorf("%w: gemini request: %v", ErrParseFailed, err)
	}
	if response == nil {
		p.logger.Error("gemini returned no response", zap.String("model", p.model))
		return workouts.Entry{}, fmt.Errorf("%w: empty response", ErrParseFailed)
	}

	raw := response.Text()
	entry, err := Decode(raw, today)
	if err != nil {
		p.logger.Error("gemini response rejected", zap.String("model", p.model), zap.Int("response_bytes", len(raw)), zap.Error(err))
		return workouts.Entry{}, err
	}
	p.logger.Debug("workout text parsed",
		zap.String("date", entry.Date),
		zap.String("workout_type", string(entry.WorkoutType)),
		zap.Int("exercises", len(entry.Exercises)))
	return entry, nil
}

func entrySchema() *genai.Schema {
	setSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"set_number": {Type: genai.TypeInteger},
			"reps":       {Type: genai.TypeInteger},
			"weight_lbs": {Type: genai.TypeNumber},
		},
		Required: []string{"set_number", "reps", "weight_lbs"},
	}
	exerciseSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {Type: genai.TypeString},
			"sets": {Type: genai.TypeArray, Items: setSchema},
		},
		Required: []string{"name", "sets"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"date":             {Type: genai.TypeString},
			"duration_minutes": {Type: genai.TypeInteger, Nullable: genai.Ptr(true)},
			"workout_type":     {Type: genai.TypeString},
			"exercises":        {Type: genai.TypeArray, Items: exerciseSchema},
			"notes":            {Type: genai.TypeString, Nullable: genai.Ptr(true)},
		},
		Required: []string{"date", "workout_type", "exercises"},
	}
}
