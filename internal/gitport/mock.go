package gitport

// Memory is an in-memory [Port] for tests.
//
// It records every mutating call and lets tests inject failures: set
// RejectPushes to make the first N pushes fail with [*PushRejectedError],
// or PullErr to fail every pull. The zero value behaves like a clean
// repository on branch "main".
type Memory struct {
	// Branch is what CurrentBranch returns. Defaults to "main".
	Branch string

	// Head is what ShortHead returns. Defaults to "abc1234".
	Head string

	// StatusResult is returned by Status. Nil means a clean tree.
	StatusResult *WorktreeStatus

	// PullErr, when set, is returned by Pull and PullRebase.
	PullErr error

	// RejectPushes makes the first N pushes fail with PushRejectedError.
	RejectPushes int

	// Unpushed is what HasUnpushedCommits returns.
	Unpushed bool

	// Ignored marks paths that IsIgnored reports as ignored.
	Ignored map[string]bool

	// Recorded calls.
	Pulls        int
	PullRebases  int
	Pushes       []string
	Added        [][]string
	ForceAdded   [][]string
	Commits      []MemoryCommit
	RebaseAborts int
}

// MemoryCommit records one Commit call.
type MemoryCommit struct {
	Paths   []string
	Message string
}

func (m *Memory) CurrentBranch() (string, error) {
	if m.Branch == "" {
		return "main", nil
	}
	return m.Branch, nil
}

func (m *Memory) Pull() error {
	m.Pulls++
	return m.PullErr
}

func (m *Memory) PullRebase() error {
	m.PullRebases++
	return m.PullErr
}

func (m *Memory) Push(branch string) error {
	if m.RejectPushes > 0 {
		m.RejectPushes--
		return &PushRejectedError{Branch: branch, Output: "! [rejected] (fetch first)"}
	}
	m.Pushes = append(m.Pushes, branch)
	return nil
}

func (m *Memory) Status() (*WorktreeStatus, error) {
	if m.StatusResult == nil {
		return &WorktreeStatus{}, nil
	}
	return m.StatusResult, nil
}

func (m *Memory) Add(paths []string, force bool) error {
	if force {
		m.ForceAdded = append(m.ForceAdded, paths)
	} else {
		m.Added = append(m.Added, paths)
	}
	return nil
}

func (m *Memory) Commit(paths []string, message string) (bool, error) {
	m.Commits = append(m.Commits, MemoryCommit{Paths: paths, Message: message})
	return true, nil
}

func (m *Memory) ShortHead() (string, error) {
	if m.Head == "" {
		return "abc1234", nil
	}
	return m.Head, nil
}

func (m *Memory) HasUnpushedCommits(branch string) (bool, error) {
	return m.Unpushed, nil
}

func (m *Memory) IsIgnored(path string) (bool, error) {
	return m.Ignored[path], nil
}

func (m *Memory) AbortRebase() error {
	m.RebaseAborts++
	return nil
}

// Noop is the [Port] used for --no-git runs. Every operation succeeds
// without touching any repository; listings come back empty so the guard
// and state store become pass-throughs.
type Noop struct{}

func (Noop) CurrentBranch() (string, error)          { return "local", nil }
func (Noop) Pull() error                             { return nil }
func (Noop) PullRebase() error                       { return nil }
func (Noop) Push(string) error                       { return nil }
func (Noop) Status() (*WorktreeStatus, error)        { return &WorktreeStatus{}, nil }
func (Noop) Add([]string, bool) error                { return nil }
func (Noop) Commit([]string, string) (bool, error)   { return false, nil }
func (Noop) ShortHead() (string, error)              { return "", nil }
func (Noop) HasUnpushedCommits(string) (bool, error) { return false, nil }
func (Noop) IsIgnored(string) (bool, error)          { return false, nil }
func (Noop) AbortRebase() error                      { return nil }
