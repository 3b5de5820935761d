package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/utils"
)

func candidate(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: parts}},
		},
	}
}

func TestParseVerdict(t *testing.T) {
	verdict, err := parseVerdict(candidate(
		genai.Text(`{"unsubscribe": true, `),
		genai.Blob{MIMEType: "image/png", Data: []byte{0x89}},
		genai.Text(`"confidence": 0.8, "explanation": "asks to stop"}`),
	))
	require.NoError(t, err)
	assert.True(t, verdict.Unsubscribe)
	assert.Equal(t, 0.8, verdict.Confidence)
	assert.Equal(t, "asks to stop", verdict.Explanation)
}

func TestParseVerdictWrappedInProse(t *testing.T) {
	verdict, err := parseVerdict(candidate(
		genai.Text("Here you go:\n```json\n{\"unsubscribe\": false, \"confidence\": 0.6}\n```"),
	))
	require.NoError(t, err)
	assert.False(t, verdict.Unsubscribe)
}

func TestParseVerdictEmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil response", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"no text parts", candidate(genai.Blob{MIMEType: "image/png"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseVerdict(tt.resp)
			assert.Error(t, err)
		})
	}
}

func TestParseVerdictNotJSON(t *testing.T) {
	_, err := parseVerdict(candidate(genai.Text("yes, unsubscribe them")))
	assert.Error(t, err)
}

func TestMissingAPIKey(t *testing.T) {
	_, err := NewClassifier(context.Background(), config.GeminiConfig{}, zap.NewNop(), utils.NewTextProcessor(zap.NewNop()))
	assert.ErrorIs(t, err, core.ErrMissingCredentials)
}
