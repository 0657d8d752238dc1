package agent

import "context"

// MockCall records one Run or Query invocation on a mock.
type MockCall struct {
	AgentID    string
	PromptPath string
	LogPath    string
}

// MockExecutor is a test double for the executor interfaces consumed by
// the runner. Exit codes are dequeued per call; when the queue is empty,
// ExitCode is returned.
type MockExecutor struct {
	// ExitCode is the default result for Run.
	ExitCode int

	// ExitCodes, when non-empty, is consumed one entry per Run call.
	ExitCodes []int

	// RunErr, when set, is returned by every Run call.
	RunErr error

	// QueryOutput and QueryErr drive Query.
	QueryOutput string
	QueryErr    error

	// Calls records every invocation in order.
	Calls []MockCall
}

func (m *MockExecutor) Run(_ context.Context, agentID, promptPath, logPath string) (int, error) {
	m.Calls = append(m.Calls, MockCall{AgentID: agentID, PromptPath: promptPath, LogPath: logPath})
	if m.RunErr != nil {
		return -1, m.RunErr
	}
	if len(m.ExitCodes) > 0 {
		code := m.ExitCodes[0]
		m.ExitCodes = m.ExitCodes[1:]
		return code, nil
	}
	return m.ExitCode, nil
}

func (m *MockExecutor) Query(_ context.Context, agentID, promptPath, logPath string) (string, error) {
	m.Calls = append(m.Calls, MockCall{AgentID: agentID, PromptPath: promptPath, LogPath: logPath})
	return m.QueryOutput, m.QueryErr
}
