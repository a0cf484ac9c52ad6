package engine

import (
	"context"
	"fmt"

	"command-center/core/auth"
	"command-center/core/models"
)

const (
	uplinkPrompt  = "Read AGENTS.md and execute instructions."
	uplinkMessage = "Update AGENTS.md via Command Center"
)

// SubmitUplink accepts an existing-repository job and returns its id immediately
func (e *Engine) SubmitUplink(req models.UplinkRequest) (string, error) {
	p, err := e.prepareUplink(req)
	if err != nil {
		return "", err
	}
	return e.start(p)
}

// RunUplink runs an existing-repository job on the calling goroutine
func (e *Engine) RunUplink(ctx context.Context, req models.UplinkRequest) (string, error) {
	p, err := e.prepareUplink(req)
	if err != nil {
		return "", err
	}
	return e.runSync(ctx, p)
}

func (e *Engine) prepareUplink(req models.UplinkRequest) (*pipeline, error) {
	owner, repo, err := ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, configError(stageVerifyAccess, err)
	}
	if !req.Mode.Valid() {
		return nil, configError(stageVerifyAccess, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode))
	}

	return &pipeline{
		variant:  models.VariantUplink,
		mode:     req.Mode,
		repo:     owner + "/" + repo,
		initial:  models.JobStatusConnecting,
		required: []auth.Service{auth.ServiceGitHub, auth.ServiceAgent},
		run: func(ctx context.Context, r *run) error {
			return e.uplink(ctx, r, owner, repo, req)
		},
	}, nil
}

func (e *Engine) uplink(ctx context.Context, r *run, owner, repo string, req models.UplinkRequest) error {
	gh := e.deps.SourceControl
	r.log = r.log.WithField("repo", owner+"/"+repo)

	r.enter(ctx, models.JobStatusConnecting, "Verifying repository access...")
	ok, err := gh.CheckRepoAccess(ctx, owner, repo)
	if err != nil {
		return r.fail(ctx, stageVerifyAccess, err)
	}
	if !ok {
		return r.fail(ctx, stageVerifyAccess, fmt.Errorf("%w: %s/%s", ErrAccessDenied, owner, repo))
	}

	r.enter(ctx, models.JobStatusUploadingContext, "Syncing AGENTS.md...")
	if err := gh.UpsertFile(ctx, owner, repo, contextFile, req.Context, uplinkMessage); err != nil {
		return r.fail(ctx, stageSyncContext, err)
	}

	r.enter(ctx, models.JobStatusPlanning, "Starting AI Session...")
	sessionID, err := e.startSession(ctx, r, fmt.Sprintf("github.com/%s/%s", owner, repo), uplinkPrompt, req.Mode)
	if err != nil {
		return err
	}
	return e.pollSession(ctx, r, sessionID)
}
