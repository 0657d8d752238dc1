// Package guard enforces the clean-tree invariant around every handoff.
//
// Before the state document may advance, the guard runs three ordered
// auto-commit passes, each scoped to its own allowlist and size caps:
//
//  1. tracked outputs - modifications to already-tracked paths (fixtures
//     and other regenerated artifacts)
//  2. doc/meta - documentation and metadata whitelist globs
//  3. reports - report artifacts by extension and path glob, optionally
//     force-added past ignore rules
//
// Anything left dirty that no allowlist covers is a dirty-tree violation:
// fatal unless the policy tolerates it. The guard completes (or fails)
// before the state store writes anything, so evidence and the state
// advance always publish in the same push.
package guard

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"stepsync/internal/gitport"
)

// ChannelPolicy scopes one auto-commit pass.
type ChannelPolicy struct {
	// Enabled turns the pass on.
	Enabled bool

	// Globs is the path-glob allowlist. An empty list means the pass
	// matches on extensions alone (reports) or nothing (doc/meta, whose
	// whitelist is its globs).
	Globs []string

	// Extensions is the lowercase extension allowlist (with dots).
	Extensions []string

	// MaxFileBytes caps individual files; larger files are skipped and
	// left dirty.
	MaxFileBytes int64

	// MaxTotalBytes caps the bytes staged by one pass. Zero means no cap.
	MaxTotalBytes int64

	// ForceAdd stages ignored files anyway (reports channel only).
	ForceAdd bool
}

// Policy configures one settle call across all three channels.
type Policy struct {
	TrackedOutputs ChannelPolicy
	DocMeta        ChannelPolicy
	Reports        ChannelPolicy

	// SkipPrefixes are path prefixes (log and tmp directories plus
	// .reportsignore entries) excluded from the report pass and from the
	// violation check.
	SkipPrefixes []string

	// IgnorePaths are exact paths the guard never touches, such as the
	// state document itself.
	IgnorePaths []string

	// TolerateDirty downgrades a dirty-tree violation to a logged warning.
	TolerateDirty bool

	// DryRun logs what each pass would commit without staging anything.
	DryRun bool
}

// CommitSet reports what settle committed (or, in dry-run, would commit).
type CommitSet struct {
	TrackedOutputs []string
	DocMeta        []string
	Reports        []string

	// Skipped lists paths a pass saw but refused (size caps, extension or
	// glob mismatch).
	Skipped []string

	// Commits counts the commit objects created.
	Commits int
}

// DirtyTreeError is the fatal settle outcome: tracked or untracked paths
// remained dirty outside every allowlist. Paths are reported explicitly so
// the operator can resolve and re-run the same step.
type DirtyTreeError struct {
	Paths []string
}

func (e *DirtyTreeError) Error() string {
	return fmt.Sprintf("dirty tree after auto-commit passes: %s", strings.Join(e.Paths, ", "))
}

// Logger receives guard progress lines.
type Logger func(format string, args ...any)

// Guard runs the settle protocol against a [gitport.Port].
type Guard struct {
	port gitport.Port

	// Actor tags the auto-commit messages (e.g. "galph").
	Actor string

	// Log receives progress lines; nil discards them.
	Log Logger

	// SizeOf reports a file's size; nil uses os.Stat. Injectable for
	// tests that run against the in-memory port.
	SizeOf func(path string) (int64, bool)
}

// NewGuard creates a [Guard] for the given actor.
func NewGuard(port gitport.Port, actor string, log Logger) *Guard {
	return &Guard{port: port, Actor: actor, Log: log}
}

func (g *Guard) logf(format string, args ...any) {
	if g.Log != nil {
		g.Log(format, args...)
	}
}

func (g *Guard) sizeOf(p string) (int64, bool) {
	if g.SizeOf != nil {
		return g.SizeOf(p)
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

func (g *Guard) messagePrefix(channel string) string {
	return fmt.Sprintf("%s AUTO: %s — tests: not run", strings.ToUpper(g.Actor), channel)
}

// Settle runs the three auto-commit passes and then checks the remaining
// tree. It returns a [*DirtyTreeError] when uncovered dirty paths remain
// and the policy does not tolerate them. No state mutation happens here;
// the caller stamps and saves only after Settle returns cleanly.
func (g *Guard) Settle(policy Policy) (*CommitSet, error) {
	status, err := g.port.Status()
	if err != nil {
		return nil, err
	}

	set := &CommitSet{}

	if policy.TrackedOutputs.Enabled {
		if err := g.settleTrackedOutputs(policy, status, set); err != nil {
			return nil, err
		}
	}
	if policy.DocMeta.Enabled {
		if err := g.settleDocMeta(policy, status, set); err != nil {
			return nil, err
		}
	}
	if policy.Reports.Enabled {
		if err := g.settleReports(policy, status, set); err != nil {
			return nil, err
		}
	}

	if err := g.checkRemaining(policy, status, set); err != nil {
		return set, err
	}
	return set, nil
}

// settleTrackedOutputs stages modifications to already-tracked paths that
// match the tracked-output extension and glob allowlists, within caps.
func (g *Guard) settleTrackedOutputs(policy Policy, status *gitport.WorktreeStatus, set *CommitSet) error {
	ch := policy.TrackedOutputs
	var staged []string
	var total int64

	for _, p := range status.Modified {
		if containsPath(policy.IgnorePaths, p) || underAnyPrefix(p, policy.SkipPrefixes) {
			continue
		}
		if len(ch.Extensions) > 0 && !hasExtension(p, ch.Extensions) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		if len(ch.Globs) > 0 && !matchesAny(p, ch.Globs) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		size, ok := g.sizeOf(p)
		if !ok || overCaps(size, total, ch) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		staged = append(staged, p)
		total += size
	}

	if len(staged) == 0 {
		return nil
	}
	if policy.DryRun {
		g.logf("[tracked-outputs] DRY-RUN: would commit %d files (%d bytes)", len(staged), total)
		set.TrackedOutputs = staged
		return nil
	}
	committed, err := g.port.Commit(staged, commitMessage(g.messagePrefix("tracked outputs"), staged))
	if err != nil {
		return err
	}
	if committed {
		g.logf("[tracked-outputs] auto-committed %d files (%d bytes)", len(staged), total)
		set.Commits++
	}
	set.TrackedOutputs = staged
	return nil
}

// settleDocMeta stages any dirty path matching the doc/meta whitelist
// globs within the per-file cap. Submodule gitlink paths never qualify.
func (g *Guard) settleDocMeta(policy Policy, status *gitport.WorktreeStatus, set *CommitSet) error {
	ch := policy.DocMeta
	var staged []string

	for _, p := range status.Dirty(false) {
		if containsPath(policy.IgnorePaths, p) || underAnyPrefix(p, policy.SkipPrefixes) {
			continue
		}
		if underGitlink(p, status.Gitlinks) {
			continue
		}
		if !matchesAny(p, ch.Globs) {
			continue
		}
		size, ok := g.sizeOf(p)
		if !ok || (ch.MaxFileBytes > 0 && size > ch.MaxFileBytes) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		staged = append(staged, p)
	}

	if len(staged) == 0 {
		return nil
	}
	if policy.DryRun {
		g.logf("[doc-meta] DRY-RUN: would commit %d files", len(staged))
		set.DocMeta = staged
		return nil
	}
	committed, err := g.port.Commit(staged, commitMessage(g.messagePrefix("doc/meta hygiene"), staged))
	if err != nil {
		return err
	}
	if committed {
		g.logf("[doc-meta] auto-committed %d files", len(staged))
		set.Commits++
	}
	set.DocMeta = staged
	return nil
}

// settleReports stages report artifacts by extension and optional path
// globs within size caps, force-adding ignored files when the channel
// allows it. Log and tmp paths are always excluded via SkipPrefixes.
func (g *Guard) settleReports(policy Policy, status *gitport.WorktreeStatus, set *CommitSet) error {
	ch := policy.Reports
	var staged []string
	var total int64

	for _, p := range status.Dirty(ch.ForceAdd) {
		if containsPath(policy.IgnorePaths, p) || underAnyPrefix(p, policy.SkipPrefixes) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		if len(ch.Globs) > 0 && !matchesAny(p, ch.Globs) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		if !hasExtension(p, ch.Extensions) {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		size, ok := g.sizeOf(p)
		if !ok || overCaps(size, total, ch) {
			set.Skipped = append(set.Skipped, p)
			continue
		}

		if policy.DryRun {
			staged = append(staged, p)
			total += size
			continue
		}

		ignored, err := g.port.IsIgnored(p)
		if err != nil {
			return err
		}
		if ignored && !ch.ForceAdd {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		if err := g.port.Add([]string{p}, ignored && ch.ForceAdd); err != nil {
			set.Skipped = append(set.Skipped, p)
			continue
		}
		staged = append(staged, p)
		total += size
	}

	if len(staged) == 0 {
		return nil
	}
	if policy.DryRun {
		g.logf("[reports] DRY-RUN: would commit %d files (%d bytes)", len(staged), total)
		set.Reports = staged
		return nil
	}
	committed, err := g.port.Commit(nil, commitMessage(g.messagePrefix("reports evidence"), staged))
	if err != nil {
		return err
	}
	if committed {
		g.logf("[reports] auto-committed %d files (%d bytes)", len(staged), total)
		set.Commits++
	}
	set.Reports = staged
	return nil
}

// checkRemaining flags dirty paths that no channel's allowlist covers.
// Paths a pass accepted or skipped for size alone are covered; paths
// matching nothing are violations.
func (g *Guard) checkRemaining(policy Policy, status *gitport.WorktreeStatus, set *CommitSet) error {
	handled := make(map[string]bool)
	for _, group := range [][]string{set.TrackedOutputs, set.DocMeta, set.Reports} {
		for _, p := range group {
			handled[p] = true
		}
	}

	var violations []string
	for _, p := range status.Dirty(false) {
		if handled[p] || containsPath(policy.IgnorePaths, p) || underAnyPrefix(p, policy.SkipPrefixes) {
			continue
		}
		if underGitlink(p, status.Gitlinks) {
			continue
		}
		if g.coveredByAnyChannel(policy, p, status) {
			continue
		}
		violations = append(violations, p)
	}

	if len(violations) == 0 {
		return nil
	}
	if policy.TolerateDirty {
		g.logf("[guard] WARNING: tolerating %d dirty paths: %s", len(violations), strings.Join(violations, ", "))
		return nil
	}
	return &DirtyTreeError{Paths: violations}
}

// coveredByAnyChannel reports whether some enabled channel's allowlist
// matches the path, ignoring size caps. Size-capped files are deliberately
// left dirty, not treated as violations.
func (g *Guard) coveredByAnyChannel(policy Policy, p string, status *gitport.WorktreeStatus) bool {
	tracked := containsPath(status.Modified, p)
	if policy.TrackedOutputs.Enabled && tracked &&
		hasExtension(p, policy.TrackedOutputs.Extensions) &&
		(len(policy.TrackedOutputs.Globs) == 0 || matchesAny(p, policy.TrackedOutputs.Globs)) {
		return true
	}
	if policy.DocMeta.Enabled && matchesAny(p, policy.DocMeta.Globs) {
		return true
	}
	if policy.Reports.Enabled &&
		hasExtension(p, policy.Reports.Extensions) &&
		(len(policy.Reports.Globs) == 0 || matchesAny(p, policy.Reports.Globs)) {
		return true
	}
	return false
}

func commitMessage(prefix string, paths []string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("\n\nFiles:\n")
	for _, p := range paths {
		fmt.Fprintf(&b, " - %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func overCaps(size, total int64, ch ChannelPolicy) bool {
	if ch.MaxFileBytes > 0 && size > ch.MaxFileBytes {
		return true
	}
	if ch.MaxTotalBytes > 0 && total+size > ch.MaxTotalBytes {
		return true
	}
	return false
}

func hasExtension(p string, exts []string) bool {
	if len(exts) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(p))
	for _, allowed := range exts {
		if ext == strings.ToLower(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

func containsPath(paths []string, p string) bool {
	for _, candidate := range paths {
		if candidate == p {
			return true
		}
	}
	return false
}

func underGitlink(p string, gitlinks []string) bool {
	for _, link := range gitlinks {
		if p == link || strings.HasPrefix(p, link+"/") {
			return true
		}
	}
	return false
}

// underAnyPrefix reports whether p falls under any of the path prefixes,
// compared segment-wise.
func underAnyPrefix(p string, prefixes []string) bool {
	parts := splitSegments(p)
	for _, prefix := range prefixes {
		pre := splitSegments(prefix)
		if len(pre) == 0 || len(pre) > len(parts) {
			continue
		}
		match := true
		for i := range pre {
			if parts[i] != pre[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

// matchesAny reports whether the slash path matches any glob. Globs use
// per-segment matching with "**" spanning any number of segments, so
// "plans/**/*.md" behaves the way the configuration examples expect.
func matchesAny(p string, globs []string) bool {
	for _, glob := range globs {
		if glob == "" {
			continue
		}
		if matchGlob(splitSegments(glob), splitSegments(p)) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchGlob(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchGlob(pattern[1:], segs[1:])
}
