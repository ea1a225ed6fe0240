package cloudgrade

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements Client for testing poll and grade flows.
type mockClient struct {
	submitFunc     func(ctx context.Context, textInput string, ictx *InstanceContext) (*Submission, error)
	taskResultFunc func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error)
}

func (m *mockClient) InstanceDetails(context.Context, string) (*InstanceContext, error) {
	return nil, nil
}

func (m *mockClient) Upload(context.Context, string) (*FileInfo, error) {
	return nil, nil
}

func (m *mockClient) AnalyzeHomework(context.Context, FileInfo, *InstanceContext) (string, error) {
	return "", nil
}

func (m *mockClient) SubmitGrade(ctx context.Context, textInput string, ictx *InstanceContext) (*Submission, error) {
	return m.submitFunc(ctx, textInput, ictx)
}

func (m *mockClient) TaskResult(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
	return m.taskResultFunc(ctx, taskID, instanceNid)
}

func running() *TaskResult {
	return &TaskResult{Status: &TaskStatus{State: StateRunning}}
}

func TestPollTask_ArtifactsSignalCompletion(t *testing.T) {
	mock := &mockClient{
		taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
			return &TaskResult{
				Artifacts: []Artifact{
					{Parts: []ArtifactPart{{Kind: "data", Data: json.RawMessage(`{"totalScore":88}`)}}},
				},
			}, nil
		},
	}

	result, err := PollTask(context.Background(), mock, "task-123", "inst-1",
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.True(t, result.Done())
	assert.Len(t, result.Artifacts, 1)
}

func TestPollTask_CompletesAfterRunning(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
			n := calls.Add(1)
			if n < 3 {
				return running(), nil
			}
			return &TaskResult{Status: &TaskStatus{State: StateCompleted}}, nil
		},
	}

	result, err := PollTask(context.Background(), mock, "task-456", "inst-1",
		WithPollInterval(10*time.Millisecond),
		WithPollCap(20*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State())
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollTask_TerminalStates(t *testing.T) {
	for _, state := range []string{StateFailed, StateError, StateCancelled} {
		t.Run(state, func(t *testing.T) {
			mock := &mockClient{
				taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
					return &TaskResult{Status: &TaskStatus{State: state}}, nil
				},
			}

			_, err := PollTask(context.Background(), mock, "task-term", "inst-1",
				WithPollInterval(10*time.Millisecond),
			)
			require.Error(t, err)
			assert.Contains(t, err.Error(), state)
		})
	}
}

func TestPollTask_OverallTimeout(t *testing.T) {
	// The task keeps answering "running"; the overall timeout must stop the
	// loop even though every individual poll succeeds.
	mock := &mockClient{
		taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
			return running(), nil
		},
	}

	_, err := PollTask(context.Background(), mock, "task-timeout", "inst-1",
		WithPollInterval(5*time.Millisecond),
		WithPollCap(10*time.Millisecond),
		WithPollTimeout(50*time.Millisecond),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollTask_ErrorPropagation(t *testing.T) {
	mock := &mockClient{
		taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
			return nil, &APIError{StatusCode: 500, Body: "server error"}
		},
	}

	_, err := PollTask(context.Background(), mock, "task-err", "inst-1",
		WithPollInterval(10*time.Millisecond),
	)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}

func TestGrade_ImmediateResult(t *testing.T) {
	raw := json.RawMessage(`{"totalScore":92,"fullMark":100}`)
	mock := &mockClient{
		submitFunc: func(ctx context.Context, textInput string, ictx *InstanceContext) (*Submission, error) {
			return &Submission{Kind: "result", Raw: raw}, nil
		},
		taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
			t.Fatal("immediate result must not be polled")
			return nil, nil
		},
	}

	data, err := Grade(context.Background(), mock, "[]", &InstanceContext{InstanceNid: "inst-1"})
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(data))
}

func TestGrade_TaskHandlePolled(t *testing.T) {
	final := json.RawMessage(`{"artifacts":[{"parts":[{"kind":"data","data":{"totalScore":70}}]}]}`)
	mock := &mockClient{
		submitFunc: func(ctx context.Context, textInput string, ictx *InstanceContext) (*Submission, error) {
			return &Submission{Kind: "task", ID: "task-789"}, nil
		},
		taskResultFunc: func(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
			assert.Equal(t, "task-789", taskID)
			assert.Equal(t, "inst-1", instanceNid)
			var result TaskResult
			require.NoError(t, json.Unmarshal(final, &result))
			result.Raw = final
			return &result, nil
		},
	}

	data, err := Grade(context.Background(), mock, "[]", &InstanceContext{InstanceNid: "inst-1"},
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.JSONEq(t, string(final), string(data))
}
