package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

func newWorkflowEnv(t *testing.T, proc Processor) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(DiscoveryWorkflow, workflow.RegisterOptions{Name: DiscoveryWorkflowName})
	acts := &Activities{Proc: proc}
	env.RegisterActivityWithOptions(acts.ProcessItem, activity.RegisterOptions{Name: ProcessActivityName})
	return env
}

func fastOptions(attempts int32) WorkflowOptions {
	return WorkflowOptions{
		ActivityTimeout: time.Minute,
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
	}
}

func TestDiscoveryWorkflow_Success(t *testing.T) {
	var got atomic.Value
	env := newWorkflowEnv(t, ProcessorFunc(func(_ context.Context, id string) error {
		got.Store(id)
		return nil
	}))

	env.ExecuteWorkflow(DiscoveryWorkflow, "item-1", fastOptions(3))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, "item-1", got.Load())
}

func TestDiscoveryWorkflow_RetriesActivity(t *testing.T) {
	var calls atomic.Int32
	env := newWorkflowEnv(t, ProcessorFunc(func(context.Context, string) error {
		if calls.Add(1) < 3 {
			return eris.New("store unavailable")
		}
		return nil
	}))

	env.ExecuteWorkflow(DiscoveryWorkflow, "item-1", fastOptions(3))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDiscoveryWorkflow_GivesUp(t *testing.T) {
	var calls atomic.Int32
	env := newWorkflowEnv(t, ProcessorFunc(func(context.Context, string) error {
		calls.Add(1)
		return eris.New("store unavailable")
	}))

	env.ExecuteWorkflow(DiscoveryWorkflow, "item-1", fastOptions(2))

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "discovery-abc", WorkflowID("abc"))
}
