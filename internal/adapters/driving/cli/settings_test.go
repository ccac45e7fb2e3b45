package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Test helper functions in settings.go

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSettingsShowCmd(t *testing.T) {
	ts := setupTestServices(t)
	ts.settings.settings.Expertise.Dir = "/srv/expertise"

	out, err := execute(t, "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "[Embedding]")
	assert.Contains(t, out, "Model: "+domain.DefaultEmbeddingModels()[domain.AIProviderOllama])
	assert.Contains(t, out, "Provider: cosine")
	assert.Contains(t, out, "Min Score: 0.50")
	assert.Contains(t, out, "Folder: /srv/expertise")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsShowCmd_Invalid(t *testing.T) {
	ts := setupTestServices(t)
	ts.settings.validateErr = domain.ErrEmbeddingUnavailable

	out, err := execute(t, "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Warning:")
}

func TestSettingsEmbeddingCmd(t *testing.T) {
	ts := setupTestServices(t)
	rootCmd.SetIn(strings.NewReader("1\nnomic-embed-text\n"))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "settings", "embedding")

	require.NoError(t, err)
	assert.Contains(t, out, "Validating configuration... OK")
	assert.Equal(t, domain.AIProviderOllama, ts.settings.settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", ts.settings.settings.Embedding.Model)
}

func TestSettingsEmbeddingCmd_ValidationFails(t *testing.T) {
	ts := setupTestServices(t)
	ts.settings.embedErr = errors.New("connection refused")
	rootCmd.SetIn(strings.NewReader("1\n\n"))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "settings", "embedding")

	require.Error(t, err)
	assert.Contains(t, out, "FAILED: connection refused")
}

func TestSettingsRerankCmd(t *testing.T) {
	ts := setupTestServices(t)
	rootCmd.SetIn(strings.NewReader("2\n\n"))
	defer rootCmd.SetIn(nil)

	out, err := execute(t, "settings", "rerank")

	require.NoError(t, err)
	assert.Contains(t, out, "Re-ranker configured: tei")
	assert.Equal(t, domain.RerankProviderTEI, ts.settings.rerankProvider)
	assert.Equal(t, "http://localhost:8080", ts.settings.rerankURL)
}
