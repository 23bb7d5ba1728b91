package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/task"
)

// Worker answers task requests by running them on a local executor and
// reports progress for every agent it serves. Requests are handled
// concurrently so one worker can stand in for a whole agent pool.
type Worker struct {
	client    *Client
	exec      coordinator.Executor
	publisher *ProgressPublisher
	logger    *logging.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
}

// NewWorker creates a worker around exec.
func NewWorker(client *Client, exec coordinator.Executor, logger *logging.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		client:    client,
		exec:      exec,
		publisher: NewProgressPublisher(client),
		logger:    logging.OrNop(logger),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start joins the worker queue group on every task subject.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return nil
	}
	sub, err := w.client.QueueSubscribe(TaskWildcard, WorkerQueue, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TaskWildcard, err)
	}
	w.sub = sub
	w.logger.Info("worker started", "subject", TaskWildcard)
	return w.client.Flush()
}

// Stop unsubscribes, cancels in-flight tasks and waits for them to reply.
// A stopped worker cannot be restarted.
func (w *Worker) Stop() {
	w.mu.Lock()
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) handle(msg *nats.Msg) {
	w.wg.Go(func() { w.serve(msg) })
}

func (w *Worker) serve(msg *nats.Msg) {
	var req TaskRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		w.logger.Warn("malformed task request", "subject", msg.Subject, "error", err.Error())
		w.reply(msg, task.Result{Success: false, Error: "malformed task request: " + err.Error()})
		return
	}

	logger := w.logger.WithAgent(req.AgentID)
	w.report(progress.AgentProgress{AgentID: req.AgentID, CurrentTask: req.Task.ID, Status: progress.StatusWorking})

	res, err := w.exec.Execute(w.ctx, req.AgentID, req.Task)
	if err != nil {
		res = task.Result{Success: false, Error: err.Error()}
	}
	res.AgentID = req.AgentID
	res.TaskID = req.Task.ID

	status := progress.StatusComplete
	if !res.Success {
		status = progress.StatusFailed
	}
	w.report(progress.AgentProgress{AgentID: req.AgentID, PercentComplete: 100, Status: status})
	logger.Debug("task served", "task_id", req.Task.ID, "success", res.Success)
	w.reply(msg, res)
}

func (w *Worker) reply(msg *nats.Msg, res task.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		w.logger.Error("marshal task result", "error", err.Error())
		return
	}
	if err := msg.Respond(data); err != nil {
		w.logger.Warn("reply failed", "task_id", res.TaskID, "error", err.Error())
	}
}

func (w *Worker) report(p progress.AgentProgress) {
	if err := w.publisher.Publish(p); err != nil {
		w.logger.Warn("progress publish failed", "agent_id", p.AgentID, "error", err.Error())
	}
}
