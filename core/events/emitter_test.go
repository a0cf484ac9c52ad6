package events

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"command-center/core/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversToEverySinkDespiteErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	first := NewRecorder()
	second := NewRecorder()
	fanout := NewFanout(logger)
	fanout.Register("first", first)
	fanout.Register("broken", SinkFunc(func(context.Context, models.JobUpdateEvent) error {
		return errors.New("socket closed")
	}))
	fanout.Register("second", second)

	fanout.Emit(context.Background(), models.JobUpdateEvent{ID: "j1", Status: models.JobStatusPlanning})

	require.Len(t, first.Events("j1"), 1)
	require.Len(t, second.Events("j1"), 1)
	assert.False(t, second.Events("j1")[0].At.IsZero())
	assert.NotNil(t, second.Events("j1")[0].Logs)
	assert.Contains(t, buf.String(), "socket closed")
	assert.Contains(t, buf.String(), "sink=broken")
}

func TestFanoutRegisterReplaces(t *testing.T) {
	fanout := NewFanout(nil)
	old := NewRecorder()
	replacement := NewRecorder()
	fanout.Register("ws", old)
	fanout.Register("ws", replacement)

	fanout.Emit(context.Background(), models.JobUpdateEvent{ID: "j1"})
	assert.Empty(t, old.Events(""))
	assert.Len(t, replacement.Events(""), 1)
}

func TestLogSinkWritesEachLine(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	sink := NewLogSink(logger)
	require.NoError(t, sink.Emit(context.Background(), models.JobUpdateEvent{
		ID:     "j1",
		Status: models.JobStatusBooting,
		Logs:   []string{"Provisioning GitHub resources...", "Repo created"},
	}))

	out := buf.String()
	assert.Contains(t, out, "Provisioning GitHub resources...")
	assert.Contains(t, out, "Repo created")
	assert.Contains(t, out, "job_id=j1")
}

func TestRecorderStatuses(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()
	rec.Emit(ctx, models.JobUpdateEvent{ID: "a", Status: models.JobStatusPlanning})
	rec.Emit(ctx, models.JobUpdateEvent{ID: "b", Status: models.JobStatusWorking})
	rec.Emit(ctx, models.JobUpdateEvent{ID: "a", Status: models.JobStatusPrReady})

	assert.Equal(t, []models.JobStatus{models.JobStatusPlanning, models.JobStatusPrReady}, rec.Statuses("a"))
	assert.Len(t, rec.Events(""), 3)
}
