package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
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

// StartArchive starts a one-off ArchiveAccountWorkflow and returns its workflow ID.
func (c *Client) StartArchive(ctx context.Context, address string, limit int) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        archiveWorkflowID(address),
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, opts, ArchiveAccountWorkflow, ArchiveAccountInput{
		Address: address,
		Limit:   limit,
	})
	if err != nil {
		c.logger.Error("failed to start archive workflow",
			"address", address,
			"error", err,
		)
		return "", fmt.Errorf("failed to start archive workflow: %w", err)
	}

	c.logger.Info("archive workflow started",
		"address", address,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), nil
}

// WaitArchive blocks until the archive workflow with workflowID completes.
func (c *Client) WaitArchive(ctx context.Context, workflowID string) (*ArchiveAccountResult, error) {
	var result ArchiveAccountResult
	if err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("archive workflow %q failed: %w", workflowID, err)
	}
	return &result, nil
}

// UpsertArchiveSchedule creates or updates a schedule that archives address
// every interval.
func (c *Client) UpsertArchiveSchedule(ctx context.Context, address string, limit int, interval time.Duration) error {
	id := scheduleID(address)

	c.logger.Debug("upserting archive schedule",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.createArchiveSchedule(ctx, address, limit, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			if action, ok := input.Description.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				action.Args = []interface{}{ArchiveAccountInput{Address: address, Limit: limit}}
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("archive schedule updated",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

func (c *Client) createArchiveSchedule(ctx context.Context, address string, limit int, interval time.Duration) error {
	id := scheduleID(address)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        archiveWorkflowID(address),
			Workflow:  "ArchiveAccountWorkflow",
			TaskQueue: c.taskQueue,
			Args:      []interface{}{ArchiveAccountInput{Address: address, Limit: limit}},
		},
		Memo: map[string]interface{}{
			"address":    address,
			"limit":      limit,
			"created_by": "stellar-explain",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("archive schedule created",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteArchiveSchedule deletes the archive schedule for address.
func (c *Client) DeleteArchiveSchedule(ctx context.Context, address string) error {
	id := scheduleID(address)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("archive schedule deleted", "address", address, "schedule_id", id)
	return nil
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// archiveWorkflowID is stable per account so concurrent runs for the same
// account are rejected by Temporal.
func archiveWorkflowID(address string) string {
	return "archive-account-" + address
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
