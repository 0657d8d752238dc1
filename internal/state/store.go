package state

import (
	"errors"
	"fmt"

	"stepsync/internal/gitport"
)

// defaultPushRetries bounds the pull-rebase-retry loop after a rejected
// push before the rejection is surfaced as fatal.
const defaultPushRetries = 3

// Store loads and saves the state document through a [gitport.Port].
//
// Git push is the only serialization point between the two actors: a push
// fails when the remote advanced since the last pull, and Save answers
// that with pull-rebase and a bounded retry. The store never force-pushes.
type Store struct {
	port gitport.Port

	// Path is the state file location, relative to the repository root so
	// it can be staged directly.
	Path string

	// Branch is the branch state commits are pushed to.
	Branch string

	// MaxPushRetries overrides the retry bound when > 0.
	MaxPushRetries int

	// Local disables state synchronization: Load reads the document
	// without pulling, Save writes it without committing or pushing, and
	// the branch guard is skipped. Evidence commits made elsewhere are
	// unaffected.
	Local bool
}

// NewStore creates a [Store] over the given port.
func NewStore(port gitport.Port, path, branch string) *Store {
	return &Store{port: port, Path: path, Branch: branch}
}

// CheckBranch verifies the checked-out branch matches the configured one.
// A mismatch is fatal before any pull or push happens.
func (s *Store) CheckBranch() error {
	if s.Local || s.Branch == "" {
		return nil
	}
	current, err := s.port.CurrentBranch()
	if err != nil {
		return err
	}
	if current != s.Branch {
		return &gitport.BranchMismatchError{Want: s.Branch, Got: current}
	}
	return nil
}

// Load pulls the latest remote state and reads the document. Any
// in-progress rebase is aborted first so a crashed previous run cannot
// wedge the pull. Pull conflicts are fatal, not silently ignored.
func (s *Store) Load() (*State, error) {
	if s.Local {
		return Read(s.Path), nil
	}
	if err := s.port.AbortRebase(); err != nil {
		return nil, err
	}
	if err := s.port.Pull(); err != nil {
		return nil, err
	}
	return Read(s.Path), nil
}

// Save writes the document, commits it with the given message, and pushes
// to the configured branch with an explicit refspec. A rejected push is
// retried with pull-rebase up to the bound; the state commit rides the
// rebase, so evidence commits and the state advance publish together.
func (s *Store) Save(st *State, message string) error {
	if err := st.Write(s.Path); err != nil {
		return err
	}
	if s.Local {
		return nil
	}
	if _, err := s.port.Commit([]string{s.Path}, message); err != nil {
		return err
	}
	return s.push()
}

func (s *Store) push() error {
	retries := s.MaxPushRetries
	if retries <= 0 {
		retries = defaultPushRetries
	}
	for attempt := 0; ; attempt++ {
		err := s.port.Push(s.Branch)
		if err == nil {
			return nil
		}
		var rejected *gitport.PushRejectedError
		if !errors.As(err, &rejected) {
			return err
		}
		if attempt >= retries {
			rejected.Retried = attempt
			return rejected
		}
		if err := s.port.PullRebase(); err != nil {
			return err
		}
	}
}

// PushPending publishes local commits without touching the document. Used
// for push-only reconciliation when a previous run stamped a handoff but
// exited before the push landed.
func (s *Store) PushPending() error {
	return s.push()
}

// HasPendingHandoff reports whether a locally stamped handoff is waiting
// to be published.
func (s *Store) HasPendingHandoff() (bool, error) {
	if s.Local {
		return false, nil
	}
	return s.port.HasUnpushedCommits(s.Branch)
}

// CommitMessage renders the structured state-commit message: actor role,
// prompt, status, and the zero-padded iteration. The running marker is
// stamped before a prompt is chosen, so an empty prompt drops the field
// rather than rendering a blank.
func CommitMessage(role, prompt string, iteration int, status Status) string {
	if prompt == "" {
		return fmt.Sprintf("[SYNC i=%05d] actor=%s status=%s", iteration, role, status)
	}
	return fmt.Sprintf("[SYNC i=%05d] actor=%s prompt=%s status=%s", iteration, role, prompt, status)
}
