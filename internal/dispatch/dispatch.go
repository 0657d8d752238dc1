// Package dispatch resolves which external agent handles a step.
//
// Resolution is an explicit, ordered precedence chain over typed maps; no
// reflection, no dynamic lookup. First match wins:
//
//  1. per-prompt override supplied at invocation time
//  2. per-role override supplied at invocation time
//  3. configured prompt map
//  4. configured role map
//  5. configured default agent
//
// Prompt keys are canonicalized (extension added, prompts-dir prefix
// stripped) before any lookup, so "plans/review", "plans/review.md", and
// "prompts/plans/review.md" all address the same entry.
package dispatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoAgent indicates the precedence chain matched nothing and no default
// agent is configured. This is a configuration error, fatal at startup.
var ErrNoAgent = errors.New("no agent resolved")

// Config is the configured portion of the dispatch table.
type Config struct {
	// Default is the agent used when no map matches. Empty means no
	// default, which makes an unmatched lookup fatal.
	Default string

	// Roles maps actor role (galph/ralph) to an agent id.
	Roles map[string]string

	// Prompts maps canonical prompt keys to an agent id.
	Prompts map[string]string

	// PromptsDir is used to canonicalize prompt keys.
	PromptsDir string
}

// Overrides carries the invocation-time maps (from CLI flags). They take
// precedence over everything in [Config].
type Overrides struct {
	Roles   map[string]string
	Prompts map[string]string
}

// NormalizeAgent canonicalizes an agent id (trim + lowercase).
func NormalizeAgent(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeRole canonicalizes a role key.
func NormalizeRole(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// CanonicalPromptKey normalizes a prompt token into the key form used by
// prompt maps: .md extension ensured, prompts-dir prefix stripped, forward
// slashes.
func CanonicalPromptKey(token, promptsDir string) string {
	p := strings.TrimSpace(token)
	if p == "" {
		return ""
	}
	if filepath.Ext(p) != ".md" {
		p += ".md"
	}
	p = filepath.ToSlash(p)
	dirName := filepath.Base(filepath.ToSlash(promptsDir))
	if dirName != "" && dirName != "." {
		if rel, ok := strings.CutPrefix(p, dirName+"/"); ok {
			p = rel
		}
	}
	return p
}

// ParseAgentMap parses a comma-separated key=value list (the CLI override
// syntax) into a map, normalizing keys with normalizeKey and values as
// agent ids. Empty entries are skipped; entries without '=' are an error.
func ParseAgentMap(raw string, normalizeKey func(string) string) (map[string]string, error) {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result, nil
	}
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return nil, fmt.Errorf("invalid agent mapping %q: expected key=value", token)
		}
		key = normalizeKey(key)
		if key != "" {
			result[key] = NormalizeAgent(value)
		}
	}
	return result, nil
}

// Resolve returns the agent id for (role, prompt) under the precedence
// chain. It returns [ErrNoAgent] when nothing matches and Config.Default
// is empty.
func Resolve(role, prompt string, cfg Config, ov Overrides) (string, error) {
	roleKey := NormalizeRole(role)
	promptKey := CanonicalPromptKey(prompt, cfg.PromptsDir)

	if agent, ok := ov.Prompts[promptKey]; ok {
		return agent, nil
	}
	if agent, ok := ov.Roles[roleKey]; ok {
		return agent, nil
	}
	if agent, ok := lookupCanonical(cfg.Prompts, promptKey, cfg.PromptsDir); ok {
		return agent, nil
	}
	if agent, ok := cfg.Roles[roleKey]; ok {
		return NormalizeAgent(agent), nil
	}
	if def := NormalizeAgent(cfg.Default); def != "" {
		return def, nil
	}
	return "", fmt.Errorf("%w for role=%q prompt=%q and no default agent configured", ErrNoAgent, roleKey, promptKey)
}

// lookupCanonical tolerates configured prompt maps whose keys were written
// without the .md extension or with the prompts-dir prefix.
func lookupCanonical(m map[string]string, promptKey, promptsDir string) (string, bool) {
	if agent, ok := m[promptKey]; ok {
		return NormalizeAgent(agent), true
	}
	for key, agent := range m {
		if CanonicalPromptKey(key, promptsDir) == promptKey {
			return NormalizeAgent(agent), true
		}
	}
	return "", false
}
