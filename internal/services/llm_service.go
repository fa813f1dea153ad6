package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"yusrai/internal/config"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// systemPrompt instructs the model to answer with the structured
// automation sections the parser understands, while leaving it free to
// reply in prose when the user is just conversing.
const systemPrompt = `You are YusrAI, an automation architect. When the user describes an
automation to build, reply with a single JSON object containing:
summary, steps, platforms (name + credentials with field/why_needed/where_to_get),
clarification_questions, agents (name, role, rule, goal, why_needed),
test_payloads (per platform: method, endpoint, headers, expected_response, error_patterns),
and execution_blueprint (trigger + ordered steps with action.integration,
action.method, action.parameters). When the user is only chatting, reply in plain text.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// LLMService calls the configured OpenAI-compatible endpoint and returns
// the raw reply text. Whether that text contains a structured automation
// is the parser's problem, not this service's.
type LLMService struct {
	cfg    config.LLMConfig
	client *http.Client
	logger *logrus.Logger
}

func NewLLMService(cfg config.LLMConfig, logger *logrus.Logger) *LLMService {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMService{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GenerateAutomation sends the user's message and returns the model's
// raw reply text.
func (s *LLMService) GenerateAutomation(ctx context.Context, userMessage string) (string, error) {
	tracer := otel.Tracer("yusrai/llm")
	ctx, span := tracer.Start(ctx, "LLMService.GenerateAutomation")
	span.SetAttributes(attribute.String("model", s.cfg.Model))
	defer span.End()

	reqBody := chatRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if parsed.Error != nil {
		span.SetStatus(codes.Error, parsed.Error.Message)
		return "", fmt.Errorf("llm error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
