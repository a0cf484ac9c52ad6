package engine

import (
	"context"
	"errors"
	"fmt"

	"command-center/core/credentials"
	"command-center/core/models"

	"github.com/sirupsen/logrus"
)

// Stage names, used in JobErrors and logs
const (
	stageProvision     = "provision"
	stageGenerate      = "generate"
	stageCleanup       = "cleanup"
	stageVerifyAccess  = "verify_access"
	stageSyncContext   = "sync_context"
	stageConnect       = "connect"
	stageUploadContext = "upload_context"
	stageStartSession  = "start_session"
	stagePoll          = "poll"
)

// contextFile is the file agents read their instructions from
const contextFile = "AGENTS.md"

func defaultKeyGenerator() (*models.SshKeypair, error) {
	return credentials.Generate()
}

// run is the state of one executing job
type run struct {
	engine *Engine
	jobID  string
	status models.JobStatus
	log    *logrus.Entry
}

// enter moves the job to status and announces it
func (r *run) enter(ctx context.Context, status models.JobStatus, lines ...string) {
	r.status = status
	r.update(func(s *models.JobState) { s.Status = status })
	r.emit(ctx, models.JobUpdateEvent{ID: r.jobID, Status: status, Logs: lines})
}

// note announces progress without changing status
func (r *run) note(ctx context.Context, lines ...string) {
	r.emit(ctx, models.JobUpdateEvent{ID: r.jobID, Status: r.status, Logs: lines})
}

// fail ends the job: one event at the current status carrying the error and
// the failure sentinel, then the registry entry is marked failed.
func (r *run) fail(ctx context.Context, stage string, err error) error {
	jobErr := &JobError{Kind: classify(err), Stage: stage, Err: err}
	var existing *JobError
	if errors.As(err, &existing) {
		jobErr = existing
		if jobErr.Stage == "" {
			jobErr.Stage = stage
		}
	}

	r.emit(ctx, models.JobUpdateEvent{
		ID:     r.jobID,
		Status: r.status,
		Logs:   []string{fmt.Sprintf("Error during %s: %v", stage, err), models.LogFailed},
	})
	r.update(func(s *models.JobState) {
		s.Status = models.JobStatusFailed
		s.FailureReason = jobErr.Error()
	})
	r.status = models.JobStatusFailed
	return jobErr
}

func (r *run) update(mutate func(*models.JobState)) {
	if _, err := r.engine.deps.Registry.Update(r.jobID, mutate); err != nil {
		r.log.WithError(err).Warn("Failed to update job registry")
	}
}

// emit delivers an event even when the job's context is already cancelled
func (r *run) emit(ctx context.Context, event models.JobUpdateEvent) {
	if event.Logs == nil {
		event.Logs = []string{}
	}
	r.engine.deps.Emitter.Emit(context.WithoutCancel(ctx), event)
}

// cleanupStack runs registered release steps once, newest first
type cleanupStack struct {
	steps []cleanupStep
	done  bool
}

type cleanupStep struct {
	name string
	fn   func(context.Context) error
}

func (c *cleanupStack) push(name string, fn func(context.Context) error) {
	c.steps = append(c.steps, cleanupStep{name: name, fn: fn})
}

// run executes every step even if earlier ones fail and returns the first error
func (c *cleanupStack) run(ctx context.Context, log *logrus.Entry) error {
	if c.done {
		return nil
	}
	c.done = true

	// release must happen even for a cancelled job
	ctx = context.WithoutCancel(ctx)
	var first error
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(ctx); err != nil {
			log.WithError(err).WithField("step", step.name).Warn("Cleanup step failed")
			if first == nil {
				first = fmt.Errorf("failed to %s: %w", step.name, err)
			}
		}
	}
	return first
}
