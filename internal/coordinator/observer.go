package coordinator

import (
	"time"

	"github.com/Iron-Ham/fanout/internal/task"
)

// Observer receives coordination events. Callbacks for tasks of one batch
// may arrive concurrently from different agents; implementations must be
// safe for concurrent use.
type Observer interface {
	OnBatchStarted(batchID string, agents int)
	OnTaskFinished(batchID string, result task.Result)
	OnBatchFinished(outcome BatchOutcome)
}

// BatchStatus is the final state of a batch in a run.
type BatchStatus string

const (
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
	BatchSkipped   BatchStatus = "skipped"
)

// BatchOutcome summarizes one batch after it finished or was skipped.
type BatchOutcome struct {
	BatchID   string        `json:"batchId"`
	Status    BatchStatus   `json:"status"`
	Agents    int           `json:"agents"`
	Succeeded []string      `json:"succeeded,omitempty"`
	Failed    []string      `json:"failed,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	BatchStarted  func(batchID string, agents int)
	TaskFinished  func(batchID string, result task.Result)
	BatchFinished func(outcome BatchOutcome)
}

func (o ObserverFuncs) OnBatchStarted(batchID string, agents int) {
	if o.BatchStarted != nil {
		o.BatchStarted(batchID, agents)
	}
}

func (o ObserverFuncs) OnTaskFinished(batchID string, result task.Result) {
	if o.TaskFinished != nil {
		o.TaskFinished(batchID, result)
	}
}

func (o ObserverFuncs) OnBatchFinished(outcome BatchOutcome) {
	if o.BatchFinished != nil {
		o.BatchFinished(outcome)
	}
}

type nopObserver struct{}

func (nopObserver) OnBatchStarted(string, int)         {}
func (nopObserver) OnTaskFinished(string, task.Result) {}
func (nopObserver) OnBatchFinished(BatchOutcome)       {}
