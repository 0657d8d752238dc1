// Package gitport abstracts the version-control operations that the state
// store and handoff guard depend on.
//
// The orchestration core never shells out to git directly; it talks to the
// [Port] interface. Three implementations exist:
//   - [Git]: the production implementation backed by the git CLI
//   - [Noop]: used for --no-git runs; every operation succeeds without effect
//   - [Memory]: an in-memory fake for deterministic unit tests
//
// Keeping the boundary narrow is what makes the step-sequencing state
// machine testable without a real repository.
package gitport

// WorktreeStatus is a snapshot of the dirty paths in the working tree,
// partitioned the way the auto-commit passes need them.
type WorktreeStatus struct {
	// Modified lists tracked files with unstaged modifications.
	Modified []string

	// Staged lists files with staged additions or modifications.
	Staged []string

	// Untracked lists untracked files not covered by ignore rules.
	Untracked []string

	// IgnoredUntracked lists untracked files that ignore rules would
	// normally exclude. Populated so the report pass can force-add them.
	IgnoredUntracked []string

	// Gitlinks lists submodule paths recorded in the index. Paths under a
	// gitlink are never eligible for auto-commit.
	Gitlinks []string
}

// Dirty returns the union of modified, staged, and untracked paths in a
// stable order with duplicates removed. Ignored-untracked paths are only
// included when includeIgnored is set.
func (s *WorktreeStatus) Dirty(includeIgnored bool) []string {
	seen := make(map[string]bool)
	var out []string
	groups := [][]string{s.Modified, s.Staged, s.Untracked}
	if includeIgnored {
		groups = append(groups, s.IgnoredUntracked)
	}
	for _, group := range groups {
		for _, p := range group {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Port is the version-control boundary used by the orchestration core.
//
// Pull and PullRebase report conflicts as [*PullConflictError]; Push reports
// remote-advanced rejections as [*PushRejectedError] so callers can
// distinguish retryable rejections from hard failures.
type Port interface {
	// CurrentBranch returns the name of the checked-out branch.
	CurrentBranch() (string, error)

	// Pull fetches and integrates the remote branch.
	Pull() error

	// PullRebase pulls with rebase. Used by the push retry loop after a
	// rejected push.
	PullRebase() error

	// Push publishes local commits to the named branch using an explicit
	// refspec, never a bare push.
	Push(branch string) error

	// Status returns the current dirty-path snapshot.
	Status() (*WorktreeStatus, error)

	// Add stages the given paths. With force set, ignore rules are
	// bypassed (git add -f).
	Add(paths []string, force bool) error

	// Commit stages the given paths (if any) and commits. It returns
	// false with a nil error when there is nothing to commit.
	Commit(paths []string, message string) (bool, error)

	// ShortHead returns the abbreviated commit id of HEAD.
	ShortHead() (string, error)

	// HasUnpushedCommits reports whether HEAD is ahead of the remote
	// tracking ref for the named branch.
	HasUnpushedCommits(branch string) (bool, error)

	// IsIgnored reports whether ignore rules exclude the path.
	IsIgnored(path string) (bool, error)

	// AbortRebase aborts an in-progress rebase if one exists. It is a
	// no-op (nil error) when no rebase is in progress.
	AbortRebase() error
}
