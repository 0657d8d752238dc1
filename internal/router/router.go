// Package router implements the optional prompt-override stage.
//
// The deterministic sequencer decides which prompt a step would run; the
// router may replace that selection with the single-line output of an
// externally executed router prompt, validated against a closed allowlist.
// Three modes control how the two sources combine:
//
//   - router_default: deterministic selection runs; a present router output
//     overrides it after validation
//   - router_first: router output is attempted first and falls back to the
//     deterministic selection when absent or invalid
//   - router_only: router output is mandatory and validation failures are
//     fatal; the deterministic selection is never substituted
//
// Validation is fail-closed: an override must be a single non-empty line,
// must be on the allowlist, and its prompt file must exist on disk.
package router

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Router modes.
const (
	ModeDefault = "router_default"
	ModeFirst   = "router_first"
	ModeOnly    = "router_only"
)

// OutputError reports an invalid router output: empty, multi-line, not on
// the allowlist, or naming a prompt file that does not exist. In
// router_only and router_default modes it aborts the step before any state
// mutation.
type OutputError struct {
	// Reason describes what was wrong with the output.
	Reason string
	// Output is the offending raw output, trimmed.
	Output string
}

func (e *OutputError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("router output invalid: %s", e.Reason)
	}
	return fmt.Sprintf("router output invalid: %s (output %q)", e.Reason, e.Output)
}

// NormalizeMode canonicalizes a router mode string, accepting the short
// and dashed aliases. Unknown modes are an error, never a default.
func NormalizeMode(value string) (string, error) {
	if value == "" {
		return ModeDefault, nil
	}
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_") {
	case "default", "router", "router_default":
		return ModeDefault, nil
	case "first", "router_first":
		return ModeFirst, nil
	case "only", "router_only":
		return ModeOnly, nil
	default:
		return "", fmt.Errorf("unsupported router mode %q (use router_default, router_first, or router_only)", value)
	}
}

// NormalizePrompt canonicalizes a prompt token: the .md extension is added
// when missing and the path is expressed with forward slashes. Lookup keys
// and allowlist entries all pass through this.
func NormalizePrompt(token string) string {
	p := strings.TrimSpace(token)
	if p == "" {
		return ""
	}
	if filepath.Ext(p) != ".md" {
		p += ".md"
	}
	return filepath.ToSlash(p)
}

// ResolvePromptPath maps a prompt token to its on-disk location under
// promptsDir. Absolute tokens are used as-is; tokens already prefixed with
// the prompts directory name are resolved against its parent.
func ResolvePromptPath(token, promptsDir string) string {
	normalized := filepath.FromSlash(NormalizePrompt(token))
	if filepath.IsAbs(normalized) {
		return normalized
	}
	dirName := filepath.Base(promptsDir)
	parts := strings.Split(filepath.ToSlash(normalized), "/")
	if len(parts) > 1 && dirName != "" && parts[0] == dirName {
		return filepath.Join(filepath.Dir(promptsDir), normalized)
	}
	return filepath.Join(promptsDir, normalized)
}

// ParseOutput extracts the prompt token from raw router output. The output
// must contain exactly one non-empty line.
func ParseOutput(raw string) (string, error) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	switch len(lines) {
	case 0:
		return "", &OutputError{Reason: "empty output; expected a single prompt name"}
	case 1:
		return lines[0], nil
	default:
		return "", &OutputError{Reason: "expected a single non-empty line", Output: strings.Join(lines, " / ")}
	}
}

// Decision sources.
const (
	SourceDeterministic = "deterministic"
	SourceRouter        = "router"
)

// Decision is the outcome of one routing pass.
type Decision struct {
	// Prompt is the normalized prompt that will run.
	Prompt string
	// Source is [SourceDeterministic] or [SourceRouter].
	Source string
	// Reason is a human-readable rationale for logs.
	Reason string
}

// Router validates and applies override routing. The zero value (disabled)
// passes the deterministic selection through untouched.
type Router struct {
	// Enabled turns override routing on. When false, Apply returns the
	// deterministic prompt and no last_prompt is recorded.
	Enabled bool

	// Mode is one of the Mode* constants (normalize with [NormalizeMode]).
	Mode string

	// Prompt is the router prompt executed externally to produce the
	// override line. Required in router_only mode.
	Prompt string

	// Allowlist is the closed set of permitted prompt tokens. Entries are
	// normalized on first use.
	Allowlist []string

	// PromptsDir is where prompt files live; override targets must exist
	// under it.
	PromptsDir string
}

// Validate checks the router configuration before any step runs.
// router_only with no router prompt configured fails closed here.
func (r *Router) Validate() error {
	mode, err := NormalizeMode(r.Mode)
	if err != nil {
		return err
	}
	r.Mode = mode
	if r.Enabled && mode == ModeOnly && r.Prompt == "" {
		return fmt.Errorf("router_only mode requires a router prompt; none configured")
	}
	if !r.Enabled && mode == ModeOnly {
		return fmt.Errorf("router_only mode requires routing to be enabled")
	}
	return nil
}

func (r *Router) allowset() map[string]bool {
	set := make(map[string]bool, len(r.Allowlist))
	for _, item := range r.Allowlist {
		if n := NormalizePrompt(item); n != "" {
			set[n] = true
		}
	}
	return set
}

// validateOverride checks a parsed override token against the allowlist
// and the filesystem.
func (r *Router) validateOverride(token string, exists func(string) bool) (string, error) {
	norm := NormalizePrompt(token)
	allow := r.allowset()
	if !allow[norm] {
		keys := make([]string, 0, len(allow))
		for k := range allow {
			keys = append(keys, k)
		}
		return "", &OutputError{Reason: fmt.Sprintf("prompt not in allowlist %v", keys), Output: norm}
	}
	if !exists(ResolvePromptPath(norm, r.PromptsDir)) {
		return "", &OutputError{Reason: "prompt file not found on disk", Output: norm}
	}
	return norm, nil
}

// Apply combines the deterministic selection with the router output under
// the configured mode and returns the final [Decision].
//
// The exists func reports whether a prompt file path is present; production
// callers pass a stat check, tests pass a map lookup. Validation failures
// surface as [*OutputError] except in router_first mode, where an invalid
// override falls back to the deterministic selection.
func (r *Router) Apply(deterministic string, routerOutput string, exists func(string) bool) (Decision, error) {
	det := Decision{
		Prompt: NormalizePrompt(deterministic),
		Source: SourceDeterministic,
		Reason: "sequencer selection",
	}
	if !r.Enabled {
		return det, nil
	}

	mode, err := NormalizeMode(r.Mode)
	if err != nil {
		return Decision{}, err
	}

	override := func() (Decision, error) {
		token, err := ParseOutput(routerOutput)
		if err != nil {
			return Decision{}, err
		}
		norm, err := r.validateOverride(token, exists)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Prompt: norm, Source: SourceRouter, Reason: "router override"}, nil
	}

	switch mode {
	case ModeOnly:
		if strings.TrimSpace(routerOutput) == "" {
			return Decision{}, &OutputError{Reason: "router_only mode requires router output"}
		}
		return override()

	case ModeFirst:
		if strings.TrimSpace(routerOutput) != "" {
			if d, err := override(); err == nil {
				return d, nil
			}
		}
		return det, nil

	default: // ModeDefault
		if strings.TrimSpace(routerOutput) == "" {
			return det, nil
		}
		return override()
	}
}
