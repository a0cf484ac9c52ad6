package engine

import (
	"context"
	"fmt"
	"time"

	"command-center/core/models"

	"github.com/sirupsen/logrus"
)

// startSession starts the agent session and records its id on the job
func (e *Engine) startSession(ctx context.Context, r *run, source, prompt string, mode models.AgentMode) (string, error) {
	sessionID, err := e.deps.Agents.StartSession(ctx, source, prompt, mode.RequiresApproval())
	if err != nil {
		return "", r.fail(ctx, stageStartSession, err)
	}
	r.update(func(s *models.JobState) { s.SessionID = &sessionID })
	r.log = r.log.WithField("session_id", sessionID)
	return sessionID, nil
}

// pollSession is the loop every variant ends with. It returns nil once the
// session reaches pr_ready or merged; poll errors are retried until
// MaxPollFailures consecutive failures.
func (e *Engine) pollSession(ctx context.Context, r *run, sessionID string) error {
	timer := time.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return r.fail(ctx, stagePoll, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
		case <-timer.C:
		}
		timer.Reset(e.cfg.PollInterval)

		snap, err := e.deps.Agents.PollSession(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx, stagePoll, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
			}
			failures++
			r.log.WithError(err).WithField("failures", failures).Warn("Polling error")
			if e.cfg.MaxPollFailures > 0 && failures >= e.cfg.MaxPollFailures {
				return r.fail(ctx, stagePoll, fmt.Errorf("%w (%d): %w", ErrTooManyFailures, failures, err))
			}
			continue
		}
		failures = 0

		now := time.Now()
		r.status = snap.Status
		r.update(func(s *models.JobState) {
			s.Status = snap.Status
			s.LastPoll = &now
			if snap.PR != nil {
				pr := *snap.PR
				s.PR = &pr
			}
		})

		var logs []string
		if line := models.PollLogLine(snap.Status); line != "" {
			logs = append(logs, line)
		}
		r.emit(ctx, models.JobUpdateEvent{
			ID:        r.jobID,
			Status:    snap.Status,
			Logs:      logs,
			PrDetails: snap.PR,
			Plan:      snap.Plan,
		})
		r.log.WithFields(logrus.Fields{"status": snap.Status, "remote_state": snap.RemoteState}).Debug("Polled agent session")

		if snap.Status.EndsPolling() {
			return nil
		}
	}
}
