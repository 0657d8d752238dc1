package gitport

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Git implements [Port] by invoking the git CLI.
//
// All commands run in Dir (the repository root); an empty Dir uses the
// process working directory.
type Git struct {
	// Dir is the repository root the commands run in.
	Dir string
}

// NewGit creates a [Git] port rooted at dir.
func NewGit(dir string) *Git {
	return &Git{Dir: dir}
}

func (g *Git) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// runLines runs a git command and returns its non-empty output lines.
// A failing command yields an empty list, matching the permissive listing
// behavior the auto-commit passes expect.
func (g *Git) runLines(args ...string) []string {
	out, err := g.run(args...)
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch() (string, error) {
	out, err := g.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %s", lastLine(out))
	}
	return strings.TrimSpace(out), nil
}

// Pull runs a plain pull. Any failure is surfaced as a
// [*PullConflictError] carrying the git output; the orchestration treats
// pull failures as requiring manual resolution, not silent retries.
func (g *Git) Pull() error {
	out, err := g.run("pull", "--no-edit")
	if err != nil {
		return &PullConflictError{Output: out}
	}
	return nil
}

// PullRebase pulls with rebase, used between push retries.
func (g *Git) PullRebase() error {
	out, err := g.run("pull", "--rebase")
	if err != nil {
		return &PullConflictError{Output: out}
	}
	return nil
}

// Push publishes to the named branch with an explicit refspec.
func (g *Git) Push(branch string) error {
	out, err := g.run("push", "origin", fmt.Sprintf("HEAD:refs/heads/%s", branch))
	if err != nil {
		low := strings.ToLower(out)
		if strings.Contains(low, "[rejected]") || strings.Contains(low, "non-fast-forward") ||
			strings.Contains(low, "fetch first") || strings.Contains(low, "failed to push") {
			return &PushRejectedError{Branch: branch, Output: out}
		}
		return fmt.Errorf("git push to %s failed: %s", branch, lastLine(out))
	}
	return nil
}

// Status collects the dirty-path snapshot from porcelain listings.
func (g *Git) Status() (*WorktreeStatus, error) {
	status := &WorktreeStatus{
		Modified:         g.runLines("diff", "--name-only", "--diff-filter=M"),
		Staged:           g.runLines("diff", "--cached", "--name-only", "--diff-filter=AM"),
		Untracked:        g.runLines("ls-files", "--others", "--exclude-standard"),
		IgnoredUntracked: g.runLines("ls-files", "--others", "-i", "--exclude-standard"),
	}
	// Submodule gitlinks have mode 160000 in the index.
	for _, line := range g.runLines("ls-files", "-s") {
		fields := strings.Fields(line)
		if len(fields) >= 4 && fields[0] == "160000" {
			status.Gitlinks = append(status.Gitlinks, fields[3])
		}
	}
	return status, nil
}

// Add stages paths, optionally bypassing ignore rules.
func (g *Git) Add(paths []string, force bool) error {
	if len(paths) == 0 {
		return nil
	}
	args := []string{"add"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, "--")
	args = append(args, paths...)
	out, err := g.run(args...)
	if err != nil {
		return fmt.Errorf("git add failed: %s", lastLine(out))
	}
	return nil
}

// Commit stages the given paths and commits. Returns false when there is
// nothing to commit, which git reports as a non-zero exit with a clean
// status message rather than a hard failure.
func (g *Git) Commit(paths []string, message string) (bool, error) {
	if len(paths) > 0 {
		if err := g.Add(paths, false); err != nil {
			return false, err
		}
	}
	out, err := g.run("commit", "-m", message)
	if err != nil {
		low := strings.ToLower(out)
		if strings.Contains(low, "nothing to commit") || strings.Contains(low, "nothing added to commit") {
			return false, nil
		}
		return false, fmt.Errorf("git commit failed: %s", lastLine(out))
	}
	return true, nil
}

// ShortHead returns the abbreviated HEAD commit id.
func (g *Git) ShortHead() (string, error) {
	out, err := g.run("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD failed: %s", lastLine(out))
	}
	return strings.TrimSpace(out), nil
}

// HasUnpushedCommits reports whether HEAD is ahead of origin/branch.
// Missing remote refs count as "nothing to push".
func (g *Git) HasUnpushedCommits(branch string) (bool, error) {
	out, err := g.run("rev-list", "--count", fmt.Sprintf("origin/%s..HEAD", branch))
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) != "0", nil
}

// IsIgnored reports whether ignore rules exclude the path.
func (g *Git) IsIgnored(path string) (bool, error) {
	// check-ignore exits 0 when ignored, 1 when not.
	_, err := g.run("check-ignore", "-q", "--", path)
	return err == nil, nil
}

// AbortRebase aborts an in-progress rebase. When no rebase is in progress
// it returns nil so load paths can call it unconditionally.
func (g *Git) AbortRebase() error {
	if !g.rebaseInProgress() {
		return nil
	}
	out, err := g.run("rebase", "--abort")
	if err != nil {
		return fmt.Errorf("git rebase --abort failed: %s", lastLine(out))
	}
	return nil
}

func (g *Git) rebaseInProgress() bool {
	out, err := g.run("rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	gitDir := strings.TrimSpace(out)
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(g.Dir, gitDir)
	}
	for _, marker := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(gitDir, marker)); err == nil {
			return true
		}
	}
	return false
}
