package natsbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/task"
)

// DefaultRequestTimeout bounds a task request when no timeout is set.
const DefaultRequestTimeout = 30 * time.Minute

// TaskRequest is the payload sent on an agent's task subject. The reply is
// a JSON task.Result.
type TaskRequest struct {
	AgentID string    `json:"agentId"`
	Task    task.Task `json:"task"`
}

// RemoteExecutor dispatches tasks to workers with NATS request/reply.
type RemoteExecutor struct {
	client  *Client
	timeout time.Duration
	logger  *logging.Logger
}

// NewRemoteExecutor creates an executor that sends requests over client.
// A zero timeout uses DefaultRequestTimeout.
func NewRemoteExecutor(client *Client, timeout time.Duration, logger *logging.Logger) *RemoteExecutor {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RemoteExecutor{client: client, timeout: timeout, logger: logging.OrNop(logger)}
}

// Execute sends t to TopicTask(agentID) and waits for the worker's result.
func (e *RemoteExecutor) Execute(ctx context.Context, agentID string, t task.Task) (task.Result, error) {
	data, err := json.Marshal(TaskRequest{AgentID: agentID, Task: t})
	if err != nil {
		return task.Result{}, errors.NewExecutorError("marshal task request", err).
			WithAgentID(agentID).WithTaskID(t.ID).WithRetryable(false)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debug("dispatching task", "agent_id", agentID, "task_id", t.ID)
	msg, err := e.client.conn.RequestWithContext(ctx, TopicTask(agentID), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return task.Result{}, errors.NewExecutorError("no worker subscribed", errors.ErrExecutorUnavailable).
				WithAgentID(agentID).WithTaskID(t.ID)
		}
		return task.Result{}, errors.NewExecutorError("task request failed", err).
			WithAgentID(agentID).WithTaskID(t.ID)
	}

	var res task.Result
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return task.Result{}, errors.NewExecutorError("decode task result", err).
			WithAgentID(agentID).WithTaskID(t.ID).WithRetryable(false)
	}
	return res, nil
}
