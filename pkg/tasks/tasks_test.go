package tasks_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/gateway/pkg/tasks"
)

func TestTaskRun(t *testing.T) {
	var count int32
	task := tasks.NewTask("counter", time.Minute, func() {
		atomic.AddInt32(&count, 1)
	})

	assert.True(t, task.ShouldRun())
	assert.True(t, task.Run())
	assert.EqualValues(t, 1, task.RunCount())
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))

	// rescheduled an interval ahead, not due anymore
	assert.False(t, task.ShouldRun())
	assert.WithinDuration(t, time.Now().Add(time.Minute), task.NextRunAt(), 5*time.Second)
}

func TestTaskNotReentrant(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	task := tasks.NewTask("slow", time.Minute, func() {
		close(started)
		<-release
	}, tasks.WithRunTimeout(10*time.Millisecond))

	go task.Run()
	<-started

	// second run must give up after the run timeout
	assert.False(t, task.Run())
	close(release)
}

func TestTaskPanicRecovered(t *testing.T) {
	task := tasks.NewTask("broken", time.Minute, func() {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		assert.True(t, task.Run())
	})
	assert.False(t, task.IsRunning())
	assert.EqualValues(t, 1, task.RunCount())
}

func TestTaskInitialDelay(t *testing.T) {
	task := tasks.NewTask("delayed", time.Minute, func() {},
		tasks.WithInitialDelay(time.Hour))
	assert.False(t, task.ShouldRun())
}

func TestScheduler(t *testing.T) {
	var count int32
	s := tasks.NewScheduler(tasks.WithTickerInterval(10 * time.Millisecond))

	task := tasks.NewTask("tick", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	}, tasks.WithID("tick-1"))

	s.Add(task)
	assert.Equal(t, 1, s.Count())
	assert.Same(t, task, s.Get("tick-1"))
	assert.Nil(t, s.Get("missing"))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop())

	s.Clear()
	assert.Equal(t, 0, s.Count())
}
