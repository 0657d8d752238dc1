package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	st := New()

	assert.Equal(t, "standard", st.WorkflowName)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, 1, st.Iteration)
	assert.Equal(t, StatusIdle, st.Status)
	assert.NotEmpty(t, st.LastUpdate)
	assert.NotEmpty(t, st.LeaseExpiresAt)
}

func TestReadWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync", "state.json")

	st := New()
	st.StepIndex = 4
	st.Iteration = 5
	st.Status = StatusWaitingNext
	st.ExpectedStep = "supervisor.md"
	st.GalphCommit = "abc1234"
	require.NoError(t, st.Write(path))

	got := Read(path)
	assert.Equal(t, 4, got.StepIndex)
	assert.Equal(t, 5, got.Iteration)
	assert.Equal(t, StatusWaitingNext, got.Status)
	assert.Equal(t, "supervisor.md", got.ExpectedStep)
	assert.Equal(t, "abc1234", got.GalphCommit)
}

func TestRead_MissingFileReturnsFresh(t *testing.T) {
	st := Read(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestRead_CorruptFileReturnsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	st := Read(path)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestRead_LegacyIterationOnly(t *testing.T) {
	// Documents written before step_index existed derive it from the
	// iteration alias.
	path := filepath.Join(t.TempDir(), "state.json")
	doc := map[string]any{"iteration": 7, "status": "idle"}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	st := Read(path)
	assert.Equal(t, 6, st.StepIndex)
	assert.Equal(t, 7, st.Iteration)
}

func TestRead_IterationAliasReconciled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := map[string]any{"step_index": 3, "iteration": 99}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	st := Read(path)
	assert.Equal(t, 3, st.StepIndex)
	assert.Equal(t, 4, st.Iteration, "iteration is always step_index+1")
}

func TestApply_Increment(t *testing.T) {
	st := New()
	before := st.LastUpdate

	st.Apply(Stamp{Status: StatusWaitingNext, IncrementStep: true, GalphCommit: "dead"})

	assert.Equal(t, 1, st.StepIndex)
	assert.Equal(t, 2, st.Iteration)
	assert.Equal(t, StatusWaitingNext, st.Status)
	assert.Equal(t, "dead", st.GalphCommit)
	assert.NotEmpty(t, before)
}

func TestApply_FailureKeepsStep(t *testing.T) {
	st := New()
	st.StepIndex = 4
	st.Iteration = 5

	st.Apply(Stamp{Status: StatusFailed, RalphCommit: "beef"})

	assert.Equal(t, 4, st.StepIndex)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "beef", st.RalphCommit)
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusRunning, StatusWaitingNext, StatusComplete, StatusFailed} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, Status("done").IsValid())
	assert.False(t, Status("").IsValid())
}
