package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/fanout/internal/batch"
	"github.com/Iron-Ham/fanout/internal/coordinator"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/progress"
	"github.com/Iron-Ham/fanout/internal/task"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus(BusConfig{Port: RandomPort})
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func connect(t *testing.T, bus *Bus) *Client {
	t.Helper()
	client, err := NewClient(bus)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func startWorker(t *testing.T, bus *Bus, exec coordinator.ExecutorFunc) {
	t.Helper()
	w := NewWorker(connect(t, bus), exec, nil)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
}

func echo(_ context.Context, _ string, t task.Task) (task.Result, error) {
	return task.Result{Success: true, Files: t.Files}, nil
}

func TestBusStartStop(t *testing.T) {
	bus := startBus(t)
	assert.NotEmpty(t, bus.ClientURL())
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "fanout.task.agent-1", TopicTask("agent-1"))
	assert.Equal(t, "fanout.progress.agent-2", TopicProgress("agent-2"))
}

func TestRemoteExecutor_RoundTrip(t *testing.T) {
	bus := startBus(t)
	startWorker(t, bus, echo)

	exec := NewRemoteExecutor(connect(t, bus), 5*time.Second, nil)
	res, err := exec.Execute(context.Background(), "agent-3", task.Task{ID: "t1", Description: "x", Files: []string{"a.go"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "agent-3", res.AgentID)
	assert.Equal(t, "t1", res.TaskID)
	assert.Equal(t, []string{"a.go"}, res.Files)
}

func TestRemoteExecutor_WorkerError(t *testing.T) {
	bus := startBus(t)
	startWorker(t, bus, func(context.Context, string, task.Task) (task.Result, error) {
		return task.Result{}, errors.New("disk full")
	})

	res, err := NewRemoteExecutor(connect(t, bus), 5*time.Second, nil).
		Execute(context.Background(), "agent-1", task.Task{ID: "t1", Description: "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "disk full", res.Error)
}

func TestRemoteExecutor_NoWorker(t *testing.T) {
	bus := startBus(t)
	_, err := NewRemoteExecutor(connect(t, bus), time.Second, nil).
		Execute(context.Background(), "agent-1", task.Task{ID: "t1", Description: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrExecutorUnavailable)
	assert.True(t, errors.IsRetryable(err))
}

func TestProgressSource_TracksWorkerReports(t *testing.T) {
	bus := startBus(t)
	startWorker(t, bus, echo)

	src, err := NewProgressSource(connect(t, bus), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	exec := NewRemoteExecutor(connect(t, bus), 5*time.Second, nil)
	for _, agent := range []string{"agent-2", "agent-1"} {
		_, err := exec.Execute(context.Background(), agent, task.Task{ID: "t-" + agent, Description: "x"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		snap := src.Snapshot()
		return len(snap) == 2 &&
			snap[0].Status == progress.StatusComplete &&
			snap[1].Status == progress.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	snap := src.Snapshot()
	assert.Equal(t, "agent-1", snap[0].AgentID)
	assert.Equal(t, 100.0, snap[0].PercentComplete)
}

func TestProgressSource_IgnoresMalformed(t *testing.T) {
	bus := startBus(t)
	client := connect(t, bus)

	src, err := NewProgressSource(client, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	changed := make(chan int, 4)
	src.SetChangeCallback(func(s []progress.AgentProgress) { changed <- len(s) })

	require.NoError(t, client.conn.Publish(TopicProgress("x"), []byte("not json")))
	require.NoError(t, NewProgressPublisher(client).Publish(progress.AgentProgress{AgentID: "agent-1", Status: progress.StatusIdle}))
	require.NoError(t, client.Flush())

	select {
	case n := <-changed:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for progress callback")
	}
}

func TestCoordinatorOverNATS(t *testing.T) {
	bus := startBus(t)
	startWorker(t, bus, echo)

	c, err := coordinator.New(coordinator.Config{Executor: NewRemoteExecutor(connect(t, bus), 5*time.Second, nil)})
	require.NoError(t, err)

	ts := []task.Task{
		{ID: "a", Description: "A", EstimatedDuration: 5},
		{ID: "b", Description: "B", EstimatedDuration: 5},
		{ID: "c", Description: "C", EstimatedDuration: 5, DependsOn: []string{"a"}},
	}
	plan := coordinator.Plan{Batches: []batch.Batch{
		batch.New("batch-1", 0, ts[:2], nil),
		batch.New("batch-2", 1, ts[2:], []string{"batch-1"}),
	}}
	res, err := c.Execute(context.Background(), plan, coordinator.Options{Strategy: coordinator.StrategyConservative, MaxAgents: 2})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, 2, res.Metrics.AgentCount)
}
