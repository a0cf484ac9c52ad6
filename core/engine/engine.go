// Package engine runs scaffold, uplink and remote jobs: it sequences
// provisioning, credential issuance, context handoff and agent session
// polling, and reports every stage as a JobUpdateEvent.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"command-center/core/auth"
	"command-center/core/events"
	"command-center/core/executor"
	"command-center/core/models"
	"command-center/core/repository"
	"command-center/core/spec"
	"command-center/providers/agent"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SourceControl is the subset of the GitHub client the pipelines use
type SourceControl interface {
	CreatePrivateRepo(ctx context.Context, name string) (string, error)
	CreateCodespace(ctx context.Context, owner, repo string) (string, error)
	WaitForCodespace(ctx context.Context, name string) error
	DeleteCodespace(ctx context.Context, name string) error
	AddDeployKey(ctx context.Context, owner, repo, publicKey, title string) (int64, error)
	RemoveDeployKey(ctx context.Context, owner, repo string, id int64) error
	CheckRepoAccess(ctx context.Context, owner, repo string) (bool, error)
	UpsertFile(ctx context.Context, owner, repo, path, content, message string) error
	MergePullRequest(ctx context.Context, owner, repo string, number int) (string, error)
}

// AgentSessions is the agent session service
type AgentSessions interface {
	StartSession(ctx context.Context, source, prompt string, requireApproval bool) (string, error)
	PollSession(ctx context.Context, sessionID string) (*agent.Snapshot, error)
	ResumeSession(ctx context.Context, sessionID string) error
	SendFeedback(ctx context.Context, sessionID, feedback string) error
}

// RemoteExecutor runs one command on a remote host
type RemoteExecutor interface {
	Execute(ctx context.Context, target executor.Target, keys *models.SshKeypair, command string) (*executor.Result, error)
}

// HostResolver maps a user-supplied host to a dialable address
type HostResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// KeyGenerator issues an ephemeral keypair
type KeyGenerator func() (*models.SshKeypair, error)

// Dependencies are the collaborators an Engine drives
type Dependencies struct {
	SourceControl SourceControl
	Agents        AgentSessions
	Executor      RemoteExecutor
	Hosts         HostResolver // optional; hosts are dialed as given when nil
	GenerateKeys  KeyGenerator // defaults to credentials.Generate
	Registry      *repository.JobRegistry
	Emitter       events.Emitter
	Recipes       *spec.RecipeCatalog
	Auth          auth.Store
}

// Config holds pipeline timing and the scaffold environment's SSH endpoint
type Config struct {
	PollInterval    time.Duration
	MaxPollFailures int // 0 polls until cancelled
	ScaffoldTarget  executor.Target
	Logger          *logrus.Logger
}

// Engine accepts jobs and runs each on its own goroutine
type Engine struct {
	deps   Dependencies
	cfg    Config
	logger *logrus.Logger

	baseCtx  context.Context
	stopAll  context.CancelFunc
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	inflight sync.WaitGroup
}

// New creates a new engine
func New(deps Dependencies, cfg Config) (*Engine, error) {
	if deps.SourceControl == nil || deps.Agents == nil || deps.Executor == nil {
		return nil, fmt.Errorf("engine requires source control, agent and executor clients")
	}
	if deps.Registry == nil {
		deps.Registry = repository.NewJobRegistry()
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewFanout(cfg.Logger)
	}
	if deps.Recipes == nil {
		deps.Recipes = spec.DefaultRecipes()
	}
	if deps.GenerateKeys == nil {
		deps.GenerateKeys = defaultKeyGenerator
	}
	if deps.Auth == nil {
		deps.Auth = auth.StaticStore{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		deps:    deps,
		cfg:     cfg,
		logger:  cfg.Logger,
		baseCtx: ctx,
		stopAll: cancel,
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Registry returns the registry the engine records job state in
func (e *Engine) Registry() *repository.JobRegistry {
	return e.deps.Registry
}

// Recipes returns the recipe catalog
func (e *Engine) Recipes() *spec.RecipeCatalog {
	return e.deps.Recipes
}

// AuthStatus reports which service credentials are available
func (e *Engine) AuthStatus() models.AuthState {
	return auth.Status(e.deps.Auth)
}

// pipeline is a validated job ready to run
type pipeline struct {
	variant  models.Variant
	mode     models.AgentMode
	repo     string // owner/name, when known up front
	initial  models.JobStatus
	required []auth.Service
	run      func(ctx context.Context, r *run) error
}

// Submit validates a parsed job spec and starts it
func (e *Engine) Submit(sub *spec.Submission) (string, error) {
	switch {
	case sub == nil:
		return "", configError("submit", fmt.Errorf("%w: empty submission", ErrInvalidRequest))
	case sub.Scaffold != nil:
		return e.SubmitScaffold(*sub.Scaffold)
	case sub.Uplink != nil:
		return e.SubmitUplink(*sub.Uplink)
	case sub.Remote != nil:
		return e.SubmitRemote(*sub.Remote)
	}
	return "", configError("submit", fmt.Errorf("%w: variant %q has no request", ErrInvalidRequest, sub.Variant))
}

// Run validates a parsed job spec and runs it on the calling goroutine
func (e *Engine) Run(ctx context.Context, sub *spec.Submission) (string, error) {
	switch {
	case sub == nil:
		return "", configError("submit", fmt.Errorf("%w: empty submission", ErrInvalidRequest))
	case sub.Scaffold != nil:
		return e.RunScaffold(ctx, *sub.Scaffold)
	case sub.Uplink != nil:
		return e.RunUplink(ctx, *sub.Uplink)
	case sub.Remote != nil:
		return e.RunRemote(ctx, *sub.Remote)
	}
	return "", configError("submit", fmt.Errorf("%w: variant %q has no request", ErrInvalidRequest, sub.Variant))
}

// start registers a job and runs p on a new goroutine. The id is returned as
// soon as the job is registered.
func (e *Engine) start(p *pipeline) (string, error) {
	if err := e.requireAuth(p); err != nil {
		return "", err
	}

	id, ctx, err := e.register(p)
	if err != nil {
		return "", err
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.release(id)
		e.execute(ctx, id, p)
	}()
	return id, nil
}

// runSync registers a job and runs p on the caller's goroutine
func (e *Engine) runSync(ctx context.Context, p *pipeline) (string, error) {
	if err := e.requireAuth(p); err != nil {
		return "", err
	}

	id, jobCtx, err := e.register(p)
	if err != nil {
		return "", err
	}
	defer e.release(id)

	stop := context.AfterFunc(ctx, func() { e.Cancel(id) })
	defer stop()

	return id, e.execute(jobCtx, id, p)
}

func (e *Engine) requireAuth(p *pipeline) error {
	if err := auth.Require(e.deps.Auth, p.required...); err != nil {
		return &JobError{Kind: KindAuthentication, Stage: "submit", Err: err}
	}
	return nil
}

func (e *Engine) register(p *pipeline) (string, context.Context, error) {
	id := uuid.NewString()
	mode := p.mode
	if mode == "" {
		mode = models.AgentModeAuto
	}
	err := e.deps.Registry.Create(models.JobState{
		ID:             id,
		Variant:        p.variant,
		Mode:           mode,
		RepoIdentifier: p.repo,
		Status:         p.initial,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to register job: %w", err)
	}

	ctx, cancel := context.WithCancel(e.baseCtx)
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
	return id, ctx, nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	delete(e.cancels, id)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) execute(ctx context.Context, id string, p *pipeline) error {
	r := &run{
		engine: e,
		jobID:  id,
		status: p.initial,
		log: e.logger.WithFields(logrus.Fields{
			"job_id":  id,
			"variant": p.variant,
		}),
	}
	r.log.Info("Job started")

	err := p.run(ctx, r)
	if err != nil {
		r.log.WithError(err).WithField("kind", KindOf(err)).Error("Job failed")
		return err
	}
	r.log.WithField("status", r.status).Info("Job finished")
	return nil
}

// Cancel stops a running job. The job ends as failed.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return ErrJobNotRunning
	}
	cancel()
	return nil
}

// Shutdown cancels every running job and waits for them to finish
// recording their failure, or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopAll()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every job started with Submit* has finished
func (e *Engine) Wait() {
	e.inflight.Wait()
}
