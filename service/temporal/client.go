package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// Client starts and inspects reconciliation workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// WorkflowID returns the id used for a reconcile workflow of kind.
func WorkflowID(kind string) string {
	return fmt.Sprintf("reconcile-%s-%s", kind, uuid.NewString())
}

// StartReconcile starts a ReconcileWorkflow and returns its workflow id.
func (c *Client) StartReconcile(ctx context.Context, input ReconcileWorkflowInput) (string, error) {
	id := WorkflowID(string(input.Operation.Kind))

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"operation":  string(input.Operation.Kind),
			"target":     input.Operation.Value,
			"source":     input.Source,
			"created_by": "distadmin",
		},
	}, ReconcileWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start reconcile workflow", "workflow_id", id, "error", err)
		return "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.Info("started reconcile workflow",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"source", input.Source,
	)
	return run.GetID(), nil
}

// ReconcileStatus describes a running or finished reconcile workflow.
type ReconcileStatus struct {
	WorkflowID string             `json:"workflow_id"`
	Status     string             `json:"status"`
	Progress   *ReconcileProgress `json:"progress,omitempty"`
}

// DescribeReconcile returns the execution status and current progress of a workflow.
func (c *Client) DescribeReconcile(ctx context.Context, workflowID string) (*ReconcileStatus, error) {
	desc, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to describe workflow %q: %w", workflowID, err)
	}

	status := &ReconcileStatus{
		WorkflowID: workflowID,
		Status:     desc.GetWorkflowExecutionInfo().GetStatus().String(),
	}

	value, err := c.client.QueryWorkflow(ctx, workflowID, "", ProgressQuery)
	if err != nil {
		c.logger.Warn("failed to query workflow progress", "workflow_id", workflowID, "error", err)
		return status, nil
	}
	var progress ReconcileProgress
	if err := value.Get(&progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress for %q: %w", workflowID, err)
	}
	status.Progress = &progress
	return status, nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
