package goroutine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecover_NoPanic(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	func() {
		defer Recover("pump", logger)
	}()
}

func TestRecover_StringPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("detector-loop", logger)
		panic("boom")
	}()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Goroutine panic recovered", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "detector-loop", fields["goroutine"])
	assert.Equal(t, "boom", fields["panic"])

	stack, ok := fields["stack"].(string)
	require.True(t, ok)
	assert.Contains(t, stack, "goroutine")
	assert.LessOrEqual(t, len(stack), StackTraceBufferSize)
}

func TestRecover_IntPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("metrics-server", logger)
		panic(42)
	}()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ContextMap()["panic"])
}

func TestRecover_WithNilLogger(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover("no-logger", nil)
		panic("nobody listening")
	}()
	<-done
}

func TestGuard_PassesErrorsThrough(t *testing.T) {
	want := errors.New("analyzer failed")

	err := Guard(func() error { return want })
	assert.ErrorIs(t, err, want)

	assert.NoError(t, Guard(func() error { return nil }))
}

func TestGuard_ConvertsPanic(t *testing.T) {
	err := Guard(func() error {
		var m map[string]int
		m["x"]++
		return nil
	})
	require.Error(t, err)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.NotNil(t, pe.Value)
	assert.Contains(t, pe.Stack, "goroutine")
	assert.Contains(t, err.Error(), "panic:")
}
