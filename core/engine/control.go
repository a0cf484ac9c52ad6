package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"command-center/core/models"
)

// ApprovePlan forwards a human approval to the job's agent session. The next
// poll observes the resulting state.
func (e *Engine) ApprovePlan(ctx context.Context, jobID string) error {
	sessionID, err := e.sessionOf(jobID)
	if err != nil {
		return err
	}
	return e.deps.Agents.ResumeSession(ctx, sessionID)
}

// RefinePlan sends feedback on the proposed plan to the job's agent session
func (e *Engine) RefinePlan(ctx context.Context, jobID, feedback string) error {
	if strings.TrimSpace(feedback) == "" {
		return configError("refine", fmt.Errorf("%w: feedback is empty", ErrInvalidRequest))
	}
	sessionID, err := e.sessionOf(jobID)
	if err != nil {
		return err
	}
	return e.deps.Agents.SendFeedback(ctx, sessionID, feedback)
}

// MergePR squash-merges the job's pull request and marks the job merged
func (e *Engine) MergePR(ctx context.Context, jobID string) (string, error) {
	state, err := e.deps.Registry.Get(jobID)
	if err != nil {
		return "", err
	}
	if state.Status == models.JobStatusMerged {
		return "", fmt.Errorf("%w: pull request already merged", ErrJobNotRunning)
	}
	if state.PR == nil || state.PR.Number <= 0 {
		return "", ErrNoPullRequest
	}
	owner, repo, err := splitFullName(state.RepoIdentifier)
	if err != nil {
		return "", configError("merge", fmt.Errorf("%w: %w", ErrInvalidRepoURL, err))
	}

	sha, err := e.deps.SourceControl.MergePullRequest(ctx, owner, repo, state.PR.Number)
	if err != nil {
		return "", &JobError{Kind: classify(err), Stage: "merge", Err: err}
	}

	_, err = e.deps.Registry.Update(jobID, func(s *models.JobState) { s.Status = models.JobStatusMerged })
	if err != nil {
		e.logger.WithError(err).WithField("job_id", jobID).Warn("Merged job is no longer registered")
	}
	pr := *state.PR
	e.deps.Emitter.Emit(ctx, models.JobUpdateEvent{
		ID:        jobID,
		Status:    models.JobStatusMerged,
		Logs:      []string{fmt.Sprintf("Pull Request #%d merged.", pr.Number)},
		PrDetails: &pr,
	})
	return sha, nil
}

func (e *Engine) sessionOf(jobID string) (string, error) {
	state, err := e.deps.Registry.Get(jobID)
	if err != nil {
		return "", err
	}
	if state.SessionID == nil || *state.SessionID == "" {
		return "", ErrNoSession
	}
	if state.Status == models.JobStatusFailed {
		return "", errors.Join(ErrJobNotRunning, errors.New(state.FailureReason))
	}
	return *state.SessionID, nil
}
