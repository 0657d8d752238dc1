package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderStreamTextDeltas(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"message_start"}`,
		`{"type":"content_block_delta","delta":{"text":"hello "}}`,
		`{"type":"content_block_delta","delta":{"text":"world"}}`,
		`{"type":"message_stop"}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, RenderStream(strings.NewReader(input), &out))
	assert.Equal(t, "hello world", out.String())
}

func TestRenderStreamAssistantBlocks(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash"}]}}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, RenderStream(strings.NewReader(input), &out))
	assert.Equal(t, "working on it\n[tool: Bash]\n", out.String())
}

func TestRenderStreamErrorEvent(t *testing.T) {
	input := `{"type":"error","error":{"message":"rate limited"}}`

	var out strings.Builder
	require.NoError(t, RenderStream(strings.NewReader(input), &out))
	assert.Contains(t, out.String(), "rate limited")
}

func TestRenderStreamSkipsGarbageLines(t *testing.T) {
	input := strings.Join([]string{
		`not json at all`,
		``,
		`{"type":"content_block_delta","delta":{"text":"ok"}}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, RenderStream(strings.NewReader(input), &out))
	assert.Equal(t, "ok", out.String())
}

func TestStreamJSONArgs(t *testing.T) {
	argv := []string{"claude", "-p", "--output-format", "text"}
	got, swapped := streamJSONArgs(argv)
	assert.True(t, swapped)
	assert.Equal(t, []string{"claude", "-p", "--output-format", "stream-json"}, got)
	assert.Equal(t, "text", argv[3], "input argv untouched")

	codex := []string{"codex", "exec", "-m", "gpt-5-codex"}
	got, swapped = streamJSONArgs(codex)
	assert.False(t, swapped)
	assert.Equal(t, codex, got)
}
