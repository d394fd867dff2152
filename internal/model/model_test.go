package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  ImportStrategy
		ok    bool
	}{
		{"append", StrategyAppend, true},
		{"overwrite", StrategyOverwrite, true},
		{"update_only", StrategyUpdateOnly, true},
		{"update-only", StrategyUpdateOnly, true},
		{"", "", false},
		{"merge", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStrategy(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	assert.True(t, BatchStatusSucceeded.Terminal())
	assert.True(t, BatchStatusFailed.Terminal())
	assert.False(t, BatchStatusPending.Terminal())
	assert.False(t, BatchStatusRunning.Terminal())
}

func TestMaskContext(t *testing.T) {
	masked := MaskContext(map[string]any{
		"Authorization": "Bearer tok",
		"X-API-Key":     "k1",
		"api_key":       "k2",
		"PASSWORD":      "hunter2",
		"batch_id":      int64(7),
		"nested": map[string]any{
			"token":  "t",
			"domain": "US",
		},
	})

	assert.Equal(t, "***", masked["Authorization"])
	assert.Equal(t, "***", masked["X-API-Key"])
	assert.Equal(t, "***", masked["api_key"])
	assert.Equal(t, "***", masked["PASSWORD"])
	assert.Equal(t, int64(7), masked["batch_id"])

	nested, ok := masked["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "***", nested["token"])
	assert.Equal(t, "US", nested["domain"])
}

func TestMaskContext_Nil(t *testing.T) {
	assert.Nil(t, MaskContext(nil))
}

func TestMaskContext_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"secret": "s3cr3t"}
	_ = MaskContext(in)
	assert.Equal(t, "s3cr3t", in["secret"])
}

func TestTokenUsage(t *testing.T) {
	u := TokenUsage{InputTokens: 70, OutputTokens: 30}
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 5})
	assert.Equal(t, 80, u.InputTokens)
	assert.Equal(t, 35, u.OutputTokens)
	assert.Equal(t, 115, u.Total())
}
