// Package services provides business logic services for the trivia application.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"triviaapp/internal/config"
	"triviaapp/internal/models"
	"triviaapp/internal/observability"
	contextutils "triviaapp/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TriviaQuestionSchema validates a single generated question object. The
// provider is asked for the wrapper format, but items are validated one at a
// time so a single malformed question does not discard the whole batch.
const TriviaQuestionSchema = `{
	"type": "object",
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"choices": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4},
		"answer": {"type": "string", "enum": ["A", "B", "C", "D"]},
		"difficulty": {"type": "integer", "minimum": 1, "maximum": 10},
		"category": {"type": "string", "minLength": 1}
	},
	"required": ["question", "choices", "answer", "difficulty", "category"]
}`

// GenerationServiceInterface defines the interface for AI-powered trivia generation
type GenerationServiceInterface interface {
	GenerateQuestions(ctx context.Context, req *models.GenerationRequest) ([]models.TriviaCandidate, error)
	TestConnection(ctx context.Context) error
}

// GenerationService generates trivia questions using an OpenAI-compatible API
type GenerationService struct {
	httpClient *http.Client
	cfg        *config.Config
	debug      bool
	logger     *observability.Logger
}

// OpenAIRequest represents a chat completions request body
type OpenAIRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Message represents a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output from providers that support it
type ResponseFormat struct {
	Type string `json:"type"`
}

// OpenAIResponse represents a chat completions response body
type OpenAIResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Message Message `json:"message"`
}

// APIError represents an error returned by the provider
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// triviaResponse is the wrapper object the provider is instructed to return
type triviaResponse struct {
	TriviaQuestions []map[string]interface{} `json:"triviaQuestions"`
}

// NewGenerationService creates a new generation service instance
func NewGenerationService(cfg *config.Config, logger *observability.Logger) *GenerationService {
	// Use a timeout slightly less than AIRequestTimeout to allow context cancellation
	httpClient := &http.Client{
		Timeout: config.AIRequestTimeout - 5*time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &GenerationService{
		httpClient: httpClient,
		cfg:        cfg,
		debug:      cfg.Server.Debug,
		logger:     logger,
	}
}

// GenerateQuestions asks the provider for a batch of trivia questions matching
// the request's categories and difficulty range, and returns the candidates
// that survive schema validation. Invalid items are dropped, not fatal.
func (s *GenerationService) GenerateQuestions(ctx context.Context, req *models.GenerationRequest) (result0 []models.TriviaCandidate, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "generate_questions",
		attribute.Int("difficulty.min", req.MinDifficulty),
		attribute.Int("difficulty.max", req.MaxDifficulty),
		observability.AttributeBatchSize(s.cfg.GetQuestionBatchSize()),
	)
	defer observability.FinishSpan(span, &err)

	if req.MinDifficulty < config.MinDifficulty || req.MaxDifficulty > config.MaxDifficulty || req.MinDifficulty > req.MaxDifficulty {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "difficulty range %d-%d is out of bounds", req.MinDifficulty, req.MaxDifficulty)
	}

	prompt := s.buildPrompt(req)

	content, err := s.callChatCompletions(ctx, prompt)
	if err != nil {
		return nil, err
	}

	candidates, err := s.parseCandidates(ctx, content)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("candidates.count", len(candidates)))
	return candidates, nil
}

// buildPrompt constructs the user prompt from the generation request
func (s *GenerationService) buildPrompt(req *models.GenerationRequest) string {
	var categoryPrompt string
	if len(req.Categories) > 0 {
		categoryPrompt = fmt.Sprintf("Use only the following categories: %s.", strings.Join(req.Categories, ", "))
	} else {
		categoryPrompt = fmt.Sprintf("Use one of the following categories:\n\n%s", strings.Join(s.cfg.GetCategories(), ", "))
	}

	return fmt.Sprintf(`Generate %d trivia questions and format the response as JSON.

%s

Use a difficulty level between %d and %d (inclusive). Ensure the difficulty level is reflected in the complexity of the question and answer choices.

Each trivia question should be returned as an object with the following structure:
- "question": a string containing the question
- "choices": an array of 4 strings labeled "A:" through "D:", randomly ordered
- "answer": a single capital letter string ("A", "B", "C", or "D") representing the correct answer
- "difficulty": an integer between %d and %d
- "category": a string from the provided list

Return the trivia questions in the following JSON format:
{
  "triviaQuestions": [
    {
      "question": "What was the first video ever uploaded to YouTube?",
      "choices": ["A: Me at the zoo", "B: Charlie bit my finger", "C: The Evolution of Dance", "D: Gangnam Style"],
      "answer": "A",
      "difficulty": 4,
      "category": "Internet History"
    },
    {
      "question": "Which mythical creature is said to live beneath Loch Ness in Scotland?",
      "choices": ["A: Kraken", "B: Nessie", "C: Basilisk", "D: Hydra"],
      "answer": "B",
      "difficulty": 7,
      "category": "Legendary Creatures"
    },
    {
      "question": "Which planet in our solar system has the most moons?",
      "choices": ["A: Saturn", "B: Jupiter", "C: Uranus", "D: Neptune"],
      "answer": "A",
      "difficulty": 3,
      "category": "Space Oddities"
    }
  ]
}`, s.cfg.GetQuestionBatchSize(), categoryPrompt, req.MinDifficulty, req.MaxDifficulty, req.MinDifficulty, req.MaxDifficulty)
}

// callChatCompletions makes a request to the OpenAI-compatible API
func (s *GenerationService) callChatCompletions(ctx context.Context, prompt string) (result0 string, err error) {
	_, span := observability.TraceAIFunction(ctx, "call_chat_completions",
		attribute.String("ai.provider", s.cfg.Provider.Code),
		attribute.String("ai.model", s.cfg.Provider.Model),
		attribute.Int("prompt.length", len(prompt)),
	)
	defer observability.FinishSpan(span, &err)

	provider := s.cfg.Provider
	if provider.URL == "" {
		span.SetAttributes(attribute.String("call.result", "no_url_configured"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no base URL configured for provider")
	}
	if provider.Model == "" {
		span.SetAttributes(attribute.String("call.result", "empty_model"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "model is required")
	}
	if prompt == "" {
		span.SetAttributes(attribute.String("call.result", "empty_prompt"))
		return "", contextutils.WrapError(contextutils.ErrAIConfigInvalid, "prompt cannot be empty")
	}

	messages := []Message{
		{Role: "system", Content: "You are a helpful assistant that generates trivia questions. Respond with valid JSON."},
		{Role: "user", Content: prompt},
	}

	reqBody := OpenAIRequest{
		Model:       provider.Model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   provider.MaxTokens,
	}
	if provider.SupportsJSONMode {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "marshal_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	s.logger.Debug(ctx, "Making AI HTTP request", map[string]interface{}{
		"url":   provider.URL + "/chat/completions",
		"model": provider.Model,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", provider.URL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "request_creation_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "triviaapp/1.0")
	if provider.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error(ctx, "AI HTTP request failed", err, map[string]interface{}{
			"duration": duration.String(),
		})
		span.SetAttributes(attribute.String("call.result", "http_request_failed"), attribute.String("error", err.Error()), attribute.String("duration", duration.String()))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "HTTP request failed after %v: %v", duration, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	s.logger.Info(ctx, "AI HTTP request completed", map[string]interface{}{
		"duration":    duration.String(),
		"status_code": resp.StatusCode,
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "body_read_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.String("call.result", "http_error"), attribute.Int("status_code", resp.StatusCode))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		span.SetAttributes(attribute.String("call.result", "json_unmarshal_failed"), attribute.String("error", err.Error()))
		return "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse AI response as JSON: %v", err)
	}

	if openAIResp.Error != nil {
		span.SetAttributes(attribute.String("call.result", "api_error"), attribute.String("error_message", openAIResp.Error.Message), attribute.String("error_type", openAIResp.Error.Type))
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "provider API error: %s", openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		span.SetAttributes(attribute.String("call.result", "no_choices"))
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "no response from provider")
	}

	content := openAIResp.Choices[0].Message.Content
	if content == "" {
		span.SetAttributes(attribute.String("call.result", "empty_content"))
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "provider returned empty content")
	}

	span.SetAttributes(attribute.String("call.result", "success"), attribute.Int("content_length", len(content)), attribute.String("duration", duration.String()))
	return content, nil
}

// cleanJSONResponse strips markdown code fences for providers without JSON mode
func (s *GenerationService) cleanJSONResponse(response string) string {
	if s.cfg.Provider.SupportsJSONMode {
		return response
	}

	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}

	return strings.TrimSpace(response)
}

// parseCandidates parses the provider response and validates each item against
// the question schema. Items that fail validation are skipped.
func (s *GenerationService) parseCandidates(ctx context.Context, response string) (result0 []models.TriviaCandidate, err error) {
	_, span := observability.TraceAIFunction(ctx, "parse_candidates",
		attribute.Int("response.length", len(response)),
	)
	defer observability.FinishSpan(span, &err)

	cleaned := s.cleanJSONResponse(response)
	if cleaned == "" {
		span.SetAttributes(attribute.String("parse.result", "empty_response"))
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, "provider returned empty response")
	}

	var wrapper triviaResponse
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
		span.SetAttributes(attribute.String("parse.result", "json_unmarshal_failed"), attribute.String("error", err.Error()))
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse provider response as JSON: %v", err)
	}

	if len(wrapper.TriviaQuestions) == 0 {
		span.SetAttributes(attribute.String("parse.result", "no_questions_in_response"))
		return []models.TriviaCandidate{}, nil
	}

	var candidates []models.TriviaCandidate
	var skippedCount int

	for i, item := range wrapper.TriviaQuestions {
		if item == nil {
			skippedCount++
			continue
		}

		// Difficulty arrives as float64 from generic JSON decoding. Coerce
		// whole numbers to int so schema validation sees an integer.
		if v, ok := item["difficulty"].(float64); ok && v == float64(int(v)) {
			item["difficulty"] = int(v)
		}

		valid, validationErr := s.validateCandidate(item)
		if !valid {
			skippedCount++
			s.logger.Warn(ctx, "Dropping invalid generated question", map[string]interface{}{
				"question_index": i,
				"error":          fmt.Sprintf("%v", validationErr),
			})
			span.SetAttributes(attribute.String("parse.result", "schema_validation_failed"), attribute.Int("question_index", i))
			continue
		}

		itemBytes, marshalErr := json.Marshal(item)
		if marshalErr != nil {
			skippedCount++
			continue
		}
		var candidate models.TriviaCandidate
		if unmarshalErr := json.Unmarshal(itemBytes, &candidate); unmarshalErr != nil {
			skippedCount++
			continue
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		span.SetAttributes(attribute.String("parse.result", "no_valid_questions"), attribute.Int("total_questions", len(wrapper.TriviaQuestions)), attribute.Int("skipped_count", skippedCount))
		s.logger.Warn(ctx, "Every generated question failed validation", map[string]interface{}{
			"total_questions": len(wrapper.TriviaQuestions),
			"skipped_count":   skippedCount,
		})
		return []models.TriviaCandidate{}, nil
	}

	span.SetAttributes(attribute.String("parse.result", "success"), attribute.Int("valid_questions", len(candidates)), attribute.Int("skipped_count", skippedCount))
	return candidates, nil
}

// validateCandidate validates a single parsed question against the schema
func (s *GenerationService) validateCandidate(item map[string]interface{}) (bool, error) {
	itemBytes, err := json.Marshal(item)
	if err != nil {
		return false, contextutils.WrapErrorf(err, "failed to marshal question for validation")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(TriviaQuestionSchema),
		gojsonschema.NewBytesLoader(itemBytes),
	)
	if err != nil {
		return false, contextutils.WrapErrorf(err, "schema validation failed")
	}

	if !result.Valid() {
		var errorMessages []string
		for _, e := range result.Errors() {
			errorMessages = append(errorMessages, e.String())
		}
		return false, contextutils.ErrorWithContextf("question failed schema validation: %s", strings.Join(errorMessages, "; "))
	}

	return true, nil
}

// TestConnection verifies the provider is reachable with the configured credentials
func (s *GenerationService) TestConnection(ctx context.Context) (err error) {
	ctx, span := observability.TraceAIFunction(ctx, "test_connection",
		attribute.String("ai.provider", s.cfg.Provider.Code),
		attribute.String("ai.model", s.cfg.Provider.Model),
	)
	defer observability.FinishSpan(span, &err)

	if s.cfg.Provider.URL == "" {
		return contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no base URL configured for provider")
	}

	ctx, cancel := context.WithTimeout(ctx, config.AITestTimeout)
	defer cancel()

	reqBody := OpenAIRequest{
		Model:     s.cfg.Provider.Model,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
		MaxTokens: 1,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.Provider.URL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Provider.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Provider.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrAIProviderUnavailable, "provider is not reachable")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return contextutils.WrapErrorf(contextutils.ErrAIConfigInvalid, "provider rejected credentials with status %d", resp.StatusCode)
	}
	return nil
}
