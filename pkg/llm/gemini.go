// Package llm proposes infrastructure code for optimization opportunities
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-2.5-flash"
	// DefaultTimeout bounds a single generation request
	DefaultTimeout = 60 * time.Second

	jsonMimeType = "application/json"
)

// Common client errors
var (
	// ErrEmptyResponse is returned when the model produced no usable text
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrMissingAPIKey is returned when the client is created without credentials
	ErrMissingAPIKey = errors.New("gemini API key is not configured")
)

const solutionInstructions = `You are a cloud cost optimization and Terraform expert. Analyze the
infrastructure problem below and write a complete, valid Terraform file that resolves it.
Reply with a single JSON object with the keys "impact_assessment" (a short analysis of the
impact of the change) and "suggested_iac_file" (an object with the keys "filename" and
"content" holding the Terraform file). Do not add any text outside the JSON.`

const generateInstructions = `You are a senior Terraform expert. Write a complete, valid Terraform
HCL file for the user's request. Reply with a single JSON object with the keys "filename" and
"content". Do not add any text outside the JSON.`

// Options configures the Gemini client
type Options struct {
	APIKey string
	Model  string
	// Endpoint overrides the Gemini API base URL
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiClient generates IaC through the Gemini API
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewGeminiClient creates a client; an API key is required
func NewGeminiClient(ctx context.Context, opts Options, logger *logrus.Logger) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.Endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   opts.Model,
		timeout: opts.Timeout,
		logger:  logger,
	}, nil
}

// Propose asks the model for a complete IaC file that resolves the opportunity
func (c *GeminiClient) Propose(ctx context.Context, opportunity models.OptimizationOpportunity) (models.SuggestedChange, error) {
	prompt := fmt.Sprintf("Problem context:\nDetected problem: %s\nDescription: %s\nAffected resource: %s\nGenerate the solution as JSON.",
		opportunity.Title, opportunity.Description, opportunity.ResourceAddress)

	text, err := c.generate(ctx, solutionInstructions, prompt)
	if err != nil {
		return models.SuggestedChange{}, fmt.Errorf("failed to propose a change for %q: %w", opportunity.Title, err)
	}

	var change models.SuggestedChange
	if err := json.Unmarshal([]byte(text), &change); err != nil {
		return models.SuggestedChange{}, fmt.Errorf("failed to decode suggested change: %w", err)
	}
	if err := validateFile(&change.SuggestedIaCFile); err != nil {
		return models.SuggestedChange{}, err
	}

	c.logger.Debugf("Model proposed %s for %s", change.SuggestedIaCFile.Filename, opportunity.ResourceAddress)
	return change, nil
}

// GenerateIaC asks the model for an IaC file matching a free-form request
func (c *GeminiClient) GenerateIaC(ctx context.Context, request string) (models.IaCFile, error) {
	if strings.TrimSpace(request) == "" {
		return models.IaCFile{}, fmt.Errorf("generation request cannot be empty")
	}

	text, err := c.generate(ctx, generateInstructions, "User request: "+request)
	if err != nil {
		return models.IaCFile{}, fmt.Errorf("failed to generate IaC: %w", err)
	}

	var file models.IaCFile
	if err := json.Unmarshal([]byte(text), &file); err != nil {
		return models.IaCFile{}, fmt.Errorf("failed to decode generated file: %w", err)
	}
	if err := validateFile(&file); err != nil {
		return models.IaCFile{}, err
	}

	return file, nil
}

func validateFile(file *models.IaCFile) error {
	if strings.TrimSpace(file.Filename) == "" || strings.TrimSpace(file.Content) == "" {
		return fmt.Errorf("%w: suggested file is missing a filename or content", ErrEmptyResponse)
	}
	if file.Provider == "" {
		file.Provider = models.DefaultIaCProvider
	}
	return nil
}

// generate sends a single-turn prompt and returns the text of the first candidate
func (c *GeminiClient) generate(ctx context.Context, instructions, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instructions, genai.RoleUser),
		ResponseMIMEType:  jsonMimeType,
	})
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", c.model, err)
	}
	c.logger.Debugf("Model %s answered in %s", c.model, time.Since(start).Round(time.Millisecond))

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
	}

	result := stripCodeFence(resp.Text())
	if result == "" {
		return "", ErrEmptyResponse
	}
	return result, nil
}

// stripCodeFence removes a surrounding ``` block some models add despite the JSON mime type
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
