package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepsync/internal/gitport"
)

func sizes(m map[string]int64) func(string) (int64, bool) {
	return func(p string) (int64, bool) {
		size, ok := m[p]
		return size, ok
	}
}

func trackedOutputPolicy() Policy {
	return Policy{
		TrackedOutputs: ChannelPolicy{
			Enabled:      true,
			Extensions:   []string{".json", ".csv"},
			MaxFileBytes: 1000,
		},
	}
}

func TestSettleTrackedOutputsCommitsMatchingModified(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Modified: []string{"fixtures/out.json", "src/main.go"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{"fixtures/out.json": 120, "src/main.go": 80})

	policy := trackedOutputPolicy()
	policy.TolerateDirty = true

	set, err := g.Settle(policy)
	require.NoError(t, err)

	assert.Equal(t, []string{"fixtures/out.json"}, set.TrackedOutputs)
	assert.Contains(t, set.Skipped, "src/main.go")
	require.Len(t, port.Commits, 1)
	assert.Equal(t, []string{"fixtures/out.json"}, port.Commits[0].Paths)
	assert.Contains(t, port.Commits[0].Message, "GALPH AUTO: tracked outputs")
	assert.Contains(t, port.Commits[0].Message, "fixtures/out.json")
}

func TestSettleTrackedOutputsSizeCapLeavesFileDirty(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Modified: []string{"fixtures/big.json", "fixtures/small.json"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{"fixtures/big.json": 5000, "fixtures/small.json": 10})

	set, err := g.Settle(trackedOutputPolicy())
	require.NoError(t, err, "size-capped files match the allowlist so they are not violations")

	assert.Equal(t, []string{"fixtures/small.json"}, set.TrackedOutputs)
	assert.Contains(t, set.Skipped, "fixtures/big.json")
}

func TestSettleTrackedOutputsTotalCap(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Modified: []string{"a.json", "b.json", "c.json"},
		},
	}
	g := NewGuard(port, "ralph", nil)
	g.SizeOf = sizes(map[string]int64{"a.json": 400, "b.json": 400, "c.json": 400})

	policy := trackedOutputPolicy()
	policy.TrackedOutputs.MaxTotalBytes = 900

	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, set.TrackedOutputs)
	assert.Contains(t, set.Skipped, "c.json")
}

func TestSettleDocMetaWhitelistGlobs(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Untracked: []string{"docs/notes.md", "plans/q3/roadmap.md", "scratch.txt"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{
		"docs/notes.md":       50,
		"plans/q3/roadmap.md": 60,
		"scratch.txt":         5,
	})

	policy := Policy{
		DocMeta: ChannelPolicy{
			Enabled:      true,
			Globs:        []string{"docs/**/*.md", "docs/*.md", "plans/**/*.md"},
			MaxFileBytes: 1000,
		},
		TolerateDirty: true,
	}

	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/notes.md", "plans/q3/roadmap.md"}, set.DocMeta)
	assert.NotContains(t, set.DocMeta, "scratch.txt")
}

func TestSettleDocMetaSkipsGitlinkPaths(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Modified: []string{"vendor/lib", "docs/readme.md"},
			Gitlinks: []string{"vendor/lib"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{"docs/readme.md": 10})

	policy := Policy{
		DocMeta:       ChannelPolicy{Enabled: true, Globs: []string{"**/*.md", "**"}},
		TolerateDirty: true,
	}
	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.NotContains(t, set.DocMeta, "vendor/lib")
	assert.Contains(t, set.DocMeta, "docs/readme.md")
}

func TestSettleReportsForceAddsIgnoredArtifacts(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Untracked:        []string{"reports/run.txt"},
			IgnoredUntracked: []string{"reports/metrics.log"},
		},
		Ignored: map[string]bool{"reports/metrics.log": true},
	}
	g := NewGuard(port, "ralph", nil)
	g.SizeOf = sizes(map[string]int64{"reports/run.txt": 30, "reports/metrics.log": 40})

	policy := Policy{
		Reports: ChannelPolicy{
			Enabled:    true,
			Globs:      []string{"reports/**"},
			Extensions: []string{".txt", ".log"},
			ForceAdd:   true,
		},
	}

	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"reports/run.txt", "reports/metrics.log"}, set.Reports)
	require.Len(t, port.ForceAdded, 1)
	assert.Equal(t, []string{"reports/metrics.log"}, port.ForceAdded[0])
	require.Len(t, port.Added, 1)
	assert.Equal(t, []string{"reports/run.txt"}, port.Added[0])
	require.Len(t, port.Commits, 1)
	assert.Nil(t, port.Commits[0].Paths, "reports commit picks up what Add staged")
	assert.Contains(t, port.Commits[0].Message, "RALPH AUTO: reports evidence")
}

func TestSettleReportsSkipPrefixes(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Untracked: []string{"logs/agent.txt", "tmp/scratch.txt", "reports/ok.txt"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{
		"logs/agent.txt":  10,
		"tmp/scratch.txt": 10,
		"reports/ok.txt":  10,
	})

	policy := Policy{
		Reports:      ChannelPolicy{Enabled: true, Extensions: []string{".txt"}},
		SkipPrefixes: []string{"logs", "tmp/"},
	}

	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/ok.txt"}, set.Reports)
}

func TestSettleDirtyTreeViolation(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Modified:  []string{"src/app.go"},
			Untracked: []string{"mystery.bin"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{"src/app.go": 10, "mystery.bin": 10})

	_, err := g.Settle(trackedOutputPolicy())
	var dirtyErr *DirtyTreeError
	require.ErrorAs(t, err, &dirtyErr)
	assert.ElementsMatch(t, []string{"src/app.go", "mystery.bin"}, dirtyErr.Paths)
}

func TestSettleTolerateDirtyDowngradesViolation(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{Untracked: []string{"mystery.bin"}},
	}
	var logged []string
	g := NewGuard(port, "galph", func(format string, args ...any) {
		logged = append(logged, format)
	})

	policy := trackedOutputPolicy()
	policy.TolerateDirty = true

	_, err := g.Settle(policy)
	require.NoError(t, err)
	assert.NotEmpty(t, logged)
}

func TestSettleIgnorePathsNeverTouched(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{Modified: []string{"loop_state.json"}},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{"loop_state.json": 10})

	policy := Policy{
		TrackedOutputs: ChannelPolicy{Enabled: true, Extensions: []string{".json"}},
		IgnorePaths:    []string{"loop_state.json"},
	}

	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.Empty(t, set.TrackedOutputs)
	assert.Empty(t, port.Commits)
}

func TestSettleDryRunStagesNothing(t *testing.T) {
	port := &gitport.Memory{
		StatusResult: &gitport.WorktreeStatus{
			Modified:  []string{"fixtures/out.json"},
			Untracked: []string{"reports/run.txt"},
		},
	}
	g := NewGuard(port, "galph", nil)
	g.SizeOf = sizes(map[string]int64{"fixtures/out.json": 10, "reports/run.txt": 10})

	policy := trackedOutputPolicy()
	policy.Reports = ChannelPolicy{Enabled: true, Extensions: []string{".txt"}}
	policy.DryRun = true

	set, err := g.Settle(policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"fixtures/out.json"}, set.TrackedOutputs)
	assert.Equal(t, []string{"reports/run.txt"}, set.Reports)
	assert.Empty(t, port.Commits)
	assert.Empty(t, port.Added)
	assert.Zero(t, set.Commits)
}

func TestSettleNoopPortPassesThrough(t *testing.T) {
	g := NewGuard(gitport.Noop{}, "galph", nil)
	set, err := g.Settle(trackedOutputPolicy())
	require.NoError(t, err)
	assert.Empty(t, set.TrackedOutputs)
	assert.Zero(t, set.Commits)
}

func TestMatchGlobs(t *testing.T) {
	cases := []struct {
		glob, path string
		want       bool
	}{
		{"docs/*.md", "docs/a.md", true},
		{"docs/*.md", "docs/sub/a.md", false},
		{"docs/**/*.md", "docs/sub/deep/a.md", true},
		{"**/*.json", "a.json", true},
		{"**/*.json", "x/y/z.json", true},
		{"reports/**", "reports/run/out.txt", true},
		{"reports/**", "other/out.txt", false},
		{"*.csv", "data.csv", true},
		{"*.csv", "data/data.csv", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchesAny(tc.path, []string{tc.glob}), "%s vs %s", tc.glob, tc.path)
	}
}

func TestLoadSkipPrefixes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SkipFileName)
	require.NoError(t, os.WriteFile(path, []byte("# cache dirs\nnode_modules/\n\n.cache\n"), 0o644))

	prefixes, err := LoadSkipPrefixes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"node_modules", ".cache"}, prefixes)
}

func TestLoadSkipPrefixesMissingFile(t *testing.T) {
	prefixes, err := LoadSkipPrefixes(filepath.Join(t.TempDir(), SkipFileName))
	require.NoError(t, err)
	assert.Nil(t, prefixes)
}
