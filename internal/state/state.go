// Package state owns the shared step-state document and the git-backed
// store that transports it between the two actors.
//
// The document is a small JSON file whose step_index parity decides which
// actor may write it. It is created once and mutated in place; history
// lives in version control, not in the document.
//
// Key types:
//   - [State] - the document itself, with atomic read/write helpers
//   - [Stamp] - a partial update applied by [State.Apply]
//   - [Store] - load/save through a [gitport.Port] with optimistic
//     concurrency (pull, recompute, push; bounded retry on rejection)
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status values for the document. Terminal values are only ever observed
// at process exit; "failed" permits a retry of the same step index.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRunning     Status = "running"
	StatusWaitingNext Status = "waiting-next"
	StatusComplete    Status = "complete"
	StatusFailed      Status = "failed"
)

// IsValid reports whether s is one of the defined status values.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusWaitingNext, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// isoFormat is the timestamp layout used in the document.
const isoFormat = "2006-01-02T15:04:05Z"

// leaseDuration is how far ahead lease_expires_at is stamped. The lease is
// advisory staleness information, never an enforced lock.
const leaseDuration = 10 * time.Minute

func utcNow() string {
	return time.Now().UTC().Format(isoFormat)
}

func leaseExpiry() string {
	return time.Now().UTC().Add(leaseDuration).Format(isoFormat)
}

// State is the shared step-state document.
//
// step_index parity selects the valid writer (even: supervisor, odd:
// loop); iteration is a legacy alias kept at step_index+1. last_prompt is
// only recorded when override routing is enabled and may differ from
// expected_step.
type State struct {
	WorkflowName   string `json:"workflow_name"`
	StepIndex      int    `json:"step_index"`
	Iteration      int    `json:"iteration"`
	ExpectedStep   string `json:"expected_step,omitempty"`
	Status         Status `json:"status"`
	LastUpdate     string `json:"last_update"`
	LeaseExpiresAt string `json:"lease_expires_at"`
	GalphCommit    string `json:"galph_commit,omitempty"`
	RalphCommit    string `json:"ralph_commit,omitempty"`
	LastPrompt     string `json:"last_prompt,omitempty"`

	// Exit, when set, asks running actors to stop cleanly at the next
	// iteration boundary. Written manually by an operator, never by the
	// runners themselves.
	Exit       bool   `json:"exit,omitempty"`
	ExitReason string `json:"exit_reason,omitempty"`
}

// LeaseFresh reports whether the advisory lease stamp has not passed at
// the given instant. A malformed or absent stamp reads as stale. The
// lease carries staleness information for operators; nothing enforces it.
func (s *State) LeaseFresh(now time.Time) bool {
	expiry, err := time.Parse(isoFormat, s.LeaseExpiresAt)
	if err != nil {
		return false
	}
	return now.UTC().Before(expiry)
}

// New returns a fresh document at step 0.
func New() *State {
	return &State{
		WorkflowName:   "standard",
		StepIndex:      0,
		Iteration:      1,
		Status:         StatusIdle,
		LastUpdate:     utcNow(),
		LeaseExpiresAt: leaseExpiry(),
	}
}

// Read loads the document from path. A missing or unreadable file yields a
// fresh document: actors bootstrap the state on first run rather than
// failing. step_index and iteration are reconciled for documents written
// before step_index existed.
func Read(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return New()
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return New()
	}

	st := New()
	if err := json.Unmarshal(data, st); err != nil {
		return New()
	}

	// Legacy documents carry only iteration; derive step_index from it.
	if _, hasStep := raw["step_index"]; !hasStep {
		if st.Iteration > 0 {
			st.StepIndex = st.Iteration - 1
		} else {
			st.StepIndex = 0
		}
	}
	st.Iteration = st.StepIndex + 1
	if st.WorkflowName == "" {
		st.WorkflowName = "standard"
	}
	if st.Status == "" {
		st.Status = StatusIdle
	}
	return st
}

// Write persists the document atomically: write to a temp file in the same
// directory, then rename over the target.
func (s *State) Write(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "state.*.json")
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// Stamp is a partial update. Zero-valued fields are left untouched, so a
// stamp only describes what changed; last_update and the advisory lease
// are always refreshed by [State.Apply].
type Stamp struct {
	ExpectedStep  string
	Status        Status
	IncrementStep bool
	GalphCommit   string
	RalphCommit   string
	LastPrompt    string
}

// Apply merges the stamp into the document and refreshes the timestamps.
// Incrementing the step keeps the legacy iteration alias in lockstep.
func (s *State) Apply(st Stamp) {
	if st.ExpectedStep != "" {
		s.ExpectedStep = st.ExpectedStep
	}
	if st.Status != "" {
		s.Status = st.Status
	}
	if st.IncrementStep {
		s.StepIndex++
		s.Iteration = s.StepIndex + 1
	}
	if st.GalphCommit != "" {
		s.GalphCommit = st.GalphCommit
	}
	if st.RalphCommit != "" {
		s.RalphCommit = st.RalphCommit
	}
	if st.LastPrompt != "" {
		s.LastPrompt = st.LastPrompt
	}
	s.LastUpdate = utcNow()
	s.LeaseExpiresAt = leaseExpiry()
}
