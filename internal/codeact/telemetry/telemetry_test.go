package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/config"
)

func TestNoopSinkDiscardsEvents(t *testing.T) {
	s := Noop()
	s.RecordIteration(context.Background(), IterationEvent{ConversationID: "c1", Iteration: 1})
	assert.NoError(t, s.Close(context.Background()))
}

func TestBuildWithoutClickHouseDSNStillRecords(t *testing.T) {
	s, err := Build(context.Background(), config.ObsConfig{})
	require.NoError(t, err)
	s.RecordIteration(context.Background(), IterationEvent{
		ConversationID: "c1",
		TaskKey:        "t1",
		Iteration:      2,
		PromptMode:     "build",
		ActionType:     "terminal_run",
		Status:         "ok",
		RetryCount:     0,
		Duration:       50 * time.Millisecond,
	})
	assert.NoError(t, s.Close(context.Background()))
}

func TestNewClickhouseWriterReturnsNilWithoutDSN(t *testing.T) {
	w, err := newClickhouseWriter(context.Background(), config.ObsConfig{})
	require.NoError(t, err)
	assert.Nil(t, w, "expected nil writer when no DSN is configured")
}
