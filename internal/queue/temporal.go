package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/arbitrage-cli/internal/config"
)

const (
	// DiscoveryWorkflowName is the registered workflow type.
	DiscoveryWorkflowName = "ItemDiscovery"
	// ProcessActivityName is the registered activity type.
	ProcessActivityName = "ProcessItem"
)

// WorkflowID is the deterministic workflow id for an item. Reusing it keeps
// at most one running discovery per item.
func WorkflowID(itemID string) string {
	return "discovery-" + itemID
}

// WorkflowOptions tunes the discovery workflow's activity.
type WorkflowOptions struct {
	ActivityTimeout time.Duration
	MaxAttempts     int32
	InitialInterval time.Duration
}

// DefaultWorkflowOptions mirrors the local queue defaults.
func DefaultWorkflowOptions() WorkflowOptions {
	return WorkflowOptions{
		ActivityTimeout: 30 * time.Minute,
		MaxAttempts:     3,
		InitialInterval: time.Second,
	}
}

// Activities exposes the driver to Temporal.
type Activities struct {
	Proc Processor
}

// ProcessItem runs the pipeline for one item. Returning an error makes
// Temporal retry the activity.
func (a *Activities) ProcessItem(ctx context.Context, itemID string) error {
	return a.Proc.Process(ctx, itemID)
}

// DiscoveryWorkflow executes the ProcessItem activity with retries.
func DiscoveryWorkflow(ctx workflow.Context, itemID string, opts WorkflowOptions) error {
	if opts.ActivityTimeout <= 0 {
		opts = DefaultWorkflowOptions()
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: opts.ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    opts.InitialInterval,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    opts.MaxAttempts,
		},
	})

	logger := workflow.GetLogger(ctx)
	logger.Info("discovery workflow started", "item_id", itemID)

	if err := workflow.ExecuteActivity(ctx, ProcessActivityName, itemID).Get(ctx, nil); err != nil {
		logger.Error("discovery workflow failed", "item_id", itemID, "error", err)
		return err
	}
	return nil
}

// TemporalDispatcher starts one discovery workflow per item.
type TemporalDispatcher struct {
	client    client.Client
	taskQueue string
	opts      WorkflowOptions
}

// NewTemporalDispatcher creates a dispatcher on taskQueue.
func NewTemporalDispatcher(c client.Client, taskQueue string, opts WorkflowOptions) *TemporalDispatcher {
	return &TemporalDispatcher{client: c, taskQueue: taskQueue, opts: opts}
}

// Enqueue implements Dispatcher. A workflow already running for the item is
// reused instead of starting a second one.
func (d *TemporalDispatcher) Enqueue(ctx context.Context, itemID string) error {
	_, err := d.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       WorkflowID(itemID),
		TaskQueue:                d.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, DiscoveryWorkflowName, itemID, d.opts)
	if err != nil {
		return eris.Wrapf(err, "temporal: start workflow for %s", itemID)
	}
	return nil
}

// DialTemporal connects to the configured Temporal frontend.
func DialTemporal(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "temporal: dial")
	}
	return c, nil
}

// NewWorker registers the discovery workflow and activity on taskQueue.
func NewWorker(c client.Client, taskQueue string, proc Processor, concurrency int) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: concurrency,
	})
	w.RegisterWorkflowWithOptions(DiscoveryWorkflow, workflow.RegisterOptions{Name: DiscoveryWorkflowName})
	acts := &Activities{Proc: proc}
	w.RegisterActivityWithOptions(acts.ProcessItem, activity.RegisterOptions{Name: ProcessActivityName})
	return w
}
