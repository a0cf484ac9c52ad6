package engine

import (
	"context"
	"fmt"
	"strings"

	"command-center/core/auth"
	"command-center/core/credentials"
	"command-center/core/executor"
	"command-center/core/models"
)

const (
	remotePrompt  = "Connect to the provided environment and execute the plan based on AGENTS.md"
	probeCommand  = "echo 'Connection Established'"
	probeExpected = "Connection Established"
)

// SubmitRemote accepts a remote-host job and returns its id immediately
func (e *Engine) SubmitRemote(req models.RemoteRequest) (string, error) {
	p, err := e.prepareRemote(req)
	if err != nil {
		return "", err
	}
	return e.start(p)
}

// RunRemote runs a remote-host job on the calling goroutine
func (e *Engine) RunRemote(ctx context.Context, req models.RemoteRequest) (string, error) {
	p, err := e.prepareRemote(req)
	if err != nil {
		return "", err
	}
	return e.runSync(ctx, p)
}

func (e *Engine) prepareRemote(req models.RemoteRequest) (*pipeline, error) {
	switch {
	case strings.TrimSpace(req.Host) == "":
		return nil, configError(stageConnect, fmt.Errorf("%w: host is required", ErrInvalidRequest))
	case req.Username == "":
		return nil, configError(stageConnect, fmt.Errorf("%w: username is required", ErrInvalidRequest))
	case req.Port < 0 || req.Port > 65535:
		return nil, configError(stageConnect, fmt.Errorf("%w: port %d out of range", ErrInvalidRequest, req.Port))
	case !req.Mode.Valid():
		return nil, configError(stageConnect, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode))
	}
	if req.Port == 0 {
		req.Port = 22
	}

	publicKey, err := credentials.DerivePublicKey(req.PrivateKey)
	if err != nil {
		return nil, configError(stageConnect, fmt.Errorf("%w: %w", ErrKeyDerivation, err))
	}
	keys := &models.SshKeypair{PrivateKey: req.PrivateKey, PublicKey: publicKey}

	source := strings.TrimSpace(req.RepoURL)
	repoIdentifier := ""
	if source != "" {
		if owner, repo, err := ParseRepoURL(source); err == nil {
			repoIdentifier = owner + "/" + repo
		}
	} else {
		source = fmt.Sprintf("ssh://%s@%s:%d", req.Username, req.Host, req.Port)
	}

	return &pipeline{
		variant:  models.VariantRemote,
		mode:     req.Mode,
		repo:     repoIdentifier,
		initial:  models.JobStatusConnecting,
		required: []auth.Service{auth.ServiceAgent},
		run: func(ctx context.Context, r *run) error {
			return e.remote(ctx, r, req, keys, source)
		},
	}, nil
}

func (e *Engine) remote(ctx context.Context, r *run, req models.RemoteRequest, keys *models.SshKeypair, source string) error {
	r.log = r.log.WithField("host", req.Host)
	r.enter(ctx, models.JobStatusConnecting, fmt.Sprintf("Connecting to %s:%d...", req.Host, req.Port))

	host := req.Host
	if e.deps.Hosts != nil {
		resolved, err := e.deps.Hosts.Resolve(ctx, req.Host)
		if err != nil {
			return r.fail(ctx, stageConnect, err)
		}
		host = resolved
	}
	target := executor.Target{Host: host, Port: req.Port, User: req.Username}

	result, err := e.deps.Executor.Execute(ctx, target, keys, probeCommand)
	if err == nil && (result.ExitCode != 0 || !strings.Contains(result.Output, probeExpected)) {
		err = fmt.Errorf("%w: probe exited %d: %s", ErrCommandFailed, result.ExitCode, outputTail(result.Output))
	}
	if err != nil {
		return r.fail(ctx, stageConnect, err)
	}
	r.note(ctx, "Connection successful.")

	r.enter(ctx, models.JobStatusUploadingContext, "Uploading AGENTS.md...")
	command := executor.WriteFileCommand(contextFile, req.Context)
	if err := e.runRemote(ctx, target, keys, command); err != nil {
		return r.fail(ctx, stageUploadContext, err)
	}

	r.enter(ctx, models.JobStatusPlanning, "Starting AI Session...")
	sessionID, err := e.startSession(ctx, r, source, remotePrompt, req.Mode)
	if err != nil {
		return err
	}
	return e.pollSession(ctx, r, sessionID)
}
