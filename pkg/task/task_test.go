package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_RunToCompletion(t *testing.T) {
	task := Run(func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, task.IsReady())

	v, err, ok := task.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestTask_NotReadyWhileRunning(t *testing.T) {
	release := make(chan struct{})
	task := Run(func(ctx context.Context) (string, error) {
		<-release
		return "done", nil
	})

	assert.False(t, task.IsReady())
	_, _, ok := task.Result()
	assert.False(t, ok)

	close(release)
	<-task.Done()
	assert.True(t, task.IsReady())
}

func TestTask_RequestStop(t *testing.T) {
	task := Run(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.False(t, task.StopRequested())

	task.RequestStop()
	assert.True(t, task.StopRequested())

	_, err := task.Wait()
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTask_ReleaseHandsToReaper(t *testing.T) {
	stopped := make(chan struct{})
	task := Run(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(stopped)
		return 0, ctx.Err()
	})

	task.Release()
	task.Release()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("released task was not asked to stop")
	}
	<-task.Done()
}

func TestTask_ReleaseFinished(t *testing.T) {
	task := Run(func(ctx context.Context) (int, error) { return 1, nil })
	<-task.Done()
	task.Release()

	v, err := task.Wait()
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
}

// gate is a waitable closed on demand
type gate chan struct{}

func (g gate) Done() <-chan struct{} { return g }

func TestReaper_DropsFinished(t *testing.T) {
	r := NewReaper(time.Millisecond)
	defer r.Close()

	a, b := make(gate), make(gate)
	r.Adopt(a)
	r.Adopt(b)
	assert.Equal(t, 2, r.Pending())

	close(a)
	assert.Eventually(t, func() bool { return r.Pending() == 1 }, 5*time.Second, time.Millisecond)

	close(b)
	assert.Eventually(t, func() bool { return r.Pending() == 0 }, 5*time.Second, time.Millisecond)
}

func TestReaper_CloseWaits(t *testing.T) {
	r := NewReaper(time.Hour)

	g := make(gate)
	r.Adopt(g)

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before the adopted waitable finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(g)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, 0, r.Pending())
	r.Close()
}

func TestReaper_AdoptAfterClose(t *testing.T) {
	r := NewReaper(time.Millisecond)
	r.Close()

	g := make(gate)
	r.Adopt(g)
	assert.Equal(t, 0, r.Pending())

	// Close stays idempotent and does not wait on the late waitable
	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second Close blocked")
	}
}

func TestDefaultReaper(t *testing.T) {
	assert.Same(t, DefaultReaper(), DefaultReaper())
}
