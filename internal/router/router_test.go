package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompts(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), []byte("prompt"), 0644)
		require.NoError(t, err)
	}
	return dir
}

func statExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func testRouter(mode, promptsDir string) *Router {
	return &Router{
		Enabled:    true,
		Mode:       mode,
		Prompt:     "router.md",
		Allowlist:  []string{"supervisor.md", "main.md", "reviewer.md"},
		PromptsDir: promptsDir,
	}
}

func TestNormalizeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", ModeDefault, false},
		{"default", ModeDefault, false},
		{"router_default", ModeDefault, false},
		{"router-first", ModeFirst, false},
		{"first", ModeFirst, false},
		{"only", ModeOnly, false},
		{"ROUTER_ONLY", ModeOnly, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, "main.md", NormalizePrompt("main"))
	assert.Equal(t, "main.md", NormalizePrompt("main.md"))
	assert.Equal(t, "sub/reviewer.md", NormalizePrompt("sub/reviewer"))
	assert.Equal(t, "", NormalizePrompt("  "))
}

func TestResolvePromptPath(t *testing.T) {
	got := ResolvePromptPath("main", "prompts")
	assert.Equal(t, filepath.Join("prompts", "main.md"), got)

	// A token already prefixed with the prompts dir is not doubled.
	got = ResolvePromptPath("prompts/main.md", "prompts")
	assert.Equal(t, filepath.Join("prompts", "main.md"), got)
}

func TestParseOutput(t *testing.T) {
	token, err := ParseOutput("  reviewer.md \n")
	require.NoError(t, err)
	assert.Equal(t, "reviewer.md", token)

	_, err = ParseOutput("\n \n")
	var outErr *OutputError
	require.ErrorAs(t, err, &outErr)

	_, err = ParseOutput("one.md\ntwo.md\n")
	require.ErrorAs(t, err, &outErr)
}

func TestApply_Disabled(t *testing.T) {
	r := &Router{}
	d, err := r.Apply("supervisor.md", "ignored.md", statExists)
	require.NoError(t, err)
	assert.Equal(t, "supervisor.md", d.Prompt)
	assert.Equal(t, "deterministic", d.Source)
}

func TestApply_DefaultMode(t *testing.T) {
	dir := writePrompts(t, "supervisor.md", "main.md", "reviewer.md")
	r := testRouter(ModeDefault, dir)

	// No router output keeps the deterministic selection.
	d, err := r.Apply("supervisor.md", "", statExists)
	require.NoError(t, err)
	assert.Equal(t, "supervisor.md", d.Prompt)

	// Valid output overrides.
	d, err = r.Apply("supervisor.md", "reviewer\n", statExists)
	require.NoError(t, err)
	assert.Equal(t, "reviewer.md", d.Prompt)
	assert.Equal(t, "router", d.Source)

	// Invalid output aborts the step.
	_, err = r.Apply("supervisor.md", "not-allowed.md", statExists)
	var outErr *OutputError
	assert.ErrorAs(t, err, &outErr)
}

func TestApply_FirstModeFallsBack(t *testing.T) {
	dir := writePrompts(t, "supervisor.md", "main.md", "reviewer.md")
	r := testRouter(ModeFirst, dir)

	// Valid output wins.
	d, err := r.Apply("main.md", "reviewer.md", statExists)
	require.NoError(t, err)
	assert.Equal(t, "reviewer.md", d.Prompt)

	// Missing output falls back.
	d, err = r.Apply("main.md", "", statExists)
	require.NoError(t, err)
	assert.Equal(t, "main.md", d.Prompt)
	assert.Equal(t, "deterministic", d.Source)

	// Invalid output also falls back in this mode.
	d, err = r.Apply("main.md", "not-allowed.md", statExists)
	require.NoError(t, err)
	assert.Equal(t, "main.md", d.Prompt)
}

func TestApply_OnlyModeFailsClosed(t *testing.T) {
	dir := writePrompts(t, "supervisor.md", "main.md", "reviewer.md")
	r := testRouter(ModeOnly, dir)

	var outErr *OutputError

	// Empty output is fatal; deterministic selection never substitutes.
	_, err := r.Apply("supervisor.md", "", statExists)
	require.ErrorAs(t, err, &outErr)

	// Non-allowlisted output is fatal.
	_, err = r.Apply("supervisor.md", "rogue.md", statExists)
	require.ErrorAs(t, err, &outErr)

	// Allowlisted prompt missing on disk is fatal.
	r2 := testRouter(ModeOnly, dir)
	r2.Allowlist = append(r2.Allowlist, "ghost.md")
	_, err = r2.Apply("supervisor.md", "ghost.md", statExists)
	require.ErrorAs(t, err, &outErr)

	// Valid output routes.
	d, err := r.Apply("supervisor.md", "main.md", statExists)
	require.NoError(t, err)
	assert.Equal(t, "main.md", d.Prompt)
}

func TestValidate(t *testing.T) {
	r := &Router{Enabled: true, Mode: "only"}
	err := r.Validate()
	assert.Error(t, err, "router_only with no prompt must fail closed")

	r = &Router{Enabled: true, Mode: "only", Prompt: "router.md"}
	require.NoError(t, r.Validate())
	assert.Equal(t, ModeOnly, r.Mode)

	r = &Router{Enabled: false, Mode: "only"}
	assert.Error(t, r.Validate())

	r = &Router{Mode: "bogus"}
	assert.Error(t, r.Validate())
}
