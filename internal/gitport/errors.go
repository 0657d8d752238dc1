package gitport

import (
	"fmt"
	"strings"
)

// BranchMismatchError indicates the checked-out branch is not the branch
// the run was configured for. It is fatal before any pull or push happens.
type BranchMismatchError struct {
	// Want is the configured branch.
	Want string
	// Got is the branch actually checked out.
	Got string
}

func (e *BranchMismatchError) Error() string {
	return fmt.Sprintf("branch mismatch: configured for %q but %q is checked out", e.Want, e.Got)
}

// PullConflictError indicates a pull could not be integrated cleanly,
// typically untracked-file collisions or merge conflicts. Output carries
// the git output so the operator sees the offending paths.
type PullConflictError struct {
	Output string
}

func (e *PullConflictError) Error() string {
	return fmt.Sprintf("git pull failed: %s", lastLine(e.Output))
}

// PushRejectedError indicates the remote advanced since the last pull and
// rejected the push. The state store retries these with pull-rebase up to a
// bound before surfacing the error.
type PushRejectedError struct {
	Branch  string
	Output  string
	Retried int
}

func (e *PushRejectedError) Error() string {
	if e.Retried > 0 {
		return fmt.Sprintf("git push to %s rejected after %d retries: %s", e.Branch, e.Retried, lastLine(e.Output))
	}
	return fmt.Sprintf("git push to %s rejected: %s", e.Branch, lastLine(e.Output))
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "(no output)"
}
