package natsbus

import "fmt"

// Subject patterns.

const (
	// TaskWildcard matches every agent's task subject.
	TaskWildcard = "fanout.task.*"
	// ProgressWildcard matches every agent's progress subject.
	ProgressWildcard = "fanout.progress.*"
	// WorkerQueue is the queue group workers join so each task request is
	// delivered to exactly one of them.
	WorkerQueue = "fanout-workers"
)

func TopicTask(agentID string) string {
	return fmt.Sprintf("fanout.task.%s", agentID)
}

func TopicProgress(agentID string) string {
	return fmt.Sprintf("fanout.progress.%s", agentID)
}
