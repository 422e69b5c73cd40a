package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func withObserved(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	Initialize(zap.New(core))
	t.Cleanup(func() { Initialize(zap.NewNop()) })
	return logs
}

func TestGetReturnsSameLoggerPerCategory(t *testing.T) {
	withObserved(t)
	assert.Same(t, Get(CategoryAgent), Get(CategoryAgent))
	assert.NotSame(t, Get(CategoryAgent), Get(CategoryDAO))
}

func TestCategoryNamesLogger(t *testing.T) {
	logs := withObserved(t)

	Get(CategoryTrust).Info("chain length %d", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "trust", entries[0].LoggerName)
	assert.Equal(t, "chain length 3", entries[0].Message)
}

func TestWithAddsFields(t *testing.T) {
	logs := withObserved(t)

	Get(CategoryPipeline).With("run_id", "abc").Info("transition complete")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "abc", fields["run_id"])
}

func TestTimerLogsDuration(t *testing.T) {
	logs := withObserved(t)

	StartTimer(CategoryContext, "Builder.Build").Stop()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "Builder.Build")
}
