package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func candidate(t *testing.T, text string) string {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []interface{}{map[string]interface{}{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
	})
	require.NoError(t, err)
	return string(data)
}

func newTestClient(t *testing.T, fn roundTripFunc) *GeminiClient {
	t.Helper()
	logger, _ := test.NewNullLogger()
	client, err := NewGeminiClient(context.Background(), Options{
		APIKey:     "test-key",
		Endpoint:   "https://gemini.test/",
		HTTPClient: &http.Client{Transport: fn},
	}, logger)
	require.NoError(t, err)
	return client
}

// generateRequest is the subset of the generateContent body the client must send
type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

func TestProposeSendsJSONRequest(t *testing.T) {
	var captured generateRequest
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "gemini.test", req.URL.Host)
		assert.True(t, strings.HasSuffix(req.URL.Path, "/models/gemini-2.5-flash:generateContent"), req.URL.Path)
		assert.Equal(t, "test-key", req.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))

		return respond(http.StatusOK, candidate(t, `{
			"impact_assessment": "Cheaper storage",
			"suggested_iac_file": {"filename": "main.tf", "content": "resource \"aws_ebs_volume\" \"v\" {}"}
		}`)), nil
	})

	opportunity := models.NewOpportunity("Upgrade EBS volume", "gp2 is slower", "vol-123")
	change, err := client.Propose(context.Background(), opportunity)
	require.NoError(t, err)

	assert.Equal(t, "Cheaper storage", change.ImpactAssessment)
	assert.Equal(t, "main.tf", change.SuggestedIaCFile.Filename)
	assert.Equal(t, models.DefaultIaCProvider, change.SuggestedIaCFile.Provider)

	require.Len(t, captured.Contents, 1)
	require.Len(t, captured.Contents[0].Parts, 1)
	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Upgrade EBS volume")
	assert.Contains(t, prompt, "vol-123")
	require.NotEmpty(t, captured.SystemInstruction.Parts)
	assert.Contains(t, captured.SystemInstruction.Parts[0].Text, "Terraform expert")
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
}

func TestProposeFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transport error
		wantEmpty bool
		contains  string
	}{
		{
			name:     "api error",
			status:   http.StatusBadRequest,
			body:     `{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`,
			contains: "API key not valid",
		},
		{
			name:   "opaque http error",
			status: http.StatusBadRequest,
			body:   "bad request",
		},
		{
			name:      "no candidates",
			status:    http.StatusOK,
			body:      `{"candidates": []}`,
			wantEmpty: true,
		},
		{
			name:      "blocked prompt",
			status:    http.StatusOK,
			body:      `{"promptFeedback": {"blockReason": "SAFETY"}}`,
			wantEmpty: true,
			contains:  "SAFETY",
		},
		{
			name:      "missing file content",
			status:    http.StatusOK,
			body:      `{"candidates": [{"content": {"parts": [{"text": "{\"impact_assessment\": \"x\", \"suggested_iac_file\": {\"filename\": \"main.tf\"}}"}]}}]}`,
			wantEmpty: true,
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     `{"candidates": [{"content": {"parts": [{"text": "Sure! Here is the file"}]}}]}`,
			contains: "decode suggested change",
		},
		{
			name:      "transport failure",
			transport: errors.New("dial tcp: connection refused"),
			contains:  "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				if tt.transport != nil {
					return nil, tt.transport
				}
				return respond(tt.status, tt.body), nil
			})

			_, err := client.Propose(context.Background(), models.NewOpportunity("t", "d", "r"))
			require.Error(t, err)
			assert.Equal(t, tt.wantEmpty, errors.Is(err, ErrEmptyResponse))
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestGenerateIaC(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, candidate(t, "```json\n{\"filename\": \"s3.tf\", \"content\": \"resource \\\"aws_s3_bucket\\\" \\\"b\\\" {}\"}\n```")), nil
	})

	file, err := client.GenerateIaC(context.Background(), "an S3 bucket for logs")
	require.NoError(t, err)
	assert.Equal(t, "s3.tf", file.Filename)
	assert.Contains(t, file.Content, "aws_s3_bucket")

	_, err = client.GenerateIaC(context.Background(), "   ")
	assert.Error(t, err)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), Options{}, nil)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a": 1}`:                  `{"a": 1}`,
		"```json\n{\"a\": 1}\n```":  `{"a": 1}`,
		"```\n{\"a\": 1}```":        `{"a": 1}`,
		"  \n{\"a\": 1}\n  ":        `{"a": 1}`,
	}
	for input, want := range tests {
		assert.Equal(t, want, stripCodeFence(input))
	}
}

func TestStaticEnricherGp2Volume(t *testing.T) {
	volume := models.NewMetric("aws_ebs_volume_info", map[string]string{
		"volume_id":         "vol-0abc",
		"volume_type":       "gp2",
		"size":              "100",
		"availability_zone": "us-east-1a",
	})
	opportunity := models.NewOpportunity("Upgrade EBS volume from gp2 to gp3", "gp2", "vol-0abc", volume)

	change, err := NewStaticEnricher().Propose(context.Background(), opportunity)
	require.NoError(t, err)

	content := change.SuggestedIaCFile.Content
	assert.Equal(t, "main.tf", change.SuggestedIaCFile.Filename)
	assert.Contains(t, content, `resource "aws_ebs_volume" "vol_0abc"`)
	assert.Contains(t, content, `id = "vol-0abc"`)
	assert.Contains(t, content, `type              = "gp3"`)
	assert.Contains(t, content, `size              = 100`)
	assert.Contains(t, content, `availability_zone = "us-east-1a"`)
}

func TestStaticEnricherGenericFinding(t *testing.T) {
	opportunity := models.NewOpportunity("Low CPU on api", "CPU below 10.0%\nfor 15 minutes", "api")

	change, err := NewStaticEnricher().Propose(context.Background(), opportunity)
	require.NoError(t, err)
	assert.Contains(t, change.SuggestedIaCFile.Content, "# Low CPU on api\n")
	assert.Contains(t, change.SuggestedIaCFile.Content, "# for 15 minutes\n")
	assert.NotContains(t, change.SuggestedIaCFile.Content, "resource")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewStaticEnricher().Propose(ctx, opportunity)
	assert.Error(t, err)
}
