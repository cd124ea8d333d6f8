package framework

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestRunnerStopsOnFailure(t *testing.T) {
	r := NewRunner()
	r.Go(NamedRun("waiter", RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})), RunFunc(func(context.Context) error {
		return errBoom
	}))
	err := r.Wait()
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "boom", err.Error())
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	err := errs.Add(errBoom, io.EOF).Aggregate()
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "multiple errors:\nboom\nEOF", err.Error())
}

type testCloser struct {
	closed int
}

func (c *testCloser) Close() error {
	c.closed++
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	c := &testCloser{}
	err := RunWithContextCloser(context.Background(), c, func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, c.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = &testCloser{}
	block := make(chan struct{})
	err = RunWithContextCloser(ctx, closerFunc(func() error {
		c.closed++
		close(block)
		return nil
	}), func() error {
		<-block
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.closed)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
