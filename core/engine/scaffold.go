package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"command-center/core/auth"
	"command-center/core/executor"
	"command-center/core/models"
)

const (
	deployKeyTitle = "Command Center Ephemeral"
	scaffoldPrompt = "Review the generated code and make improvements."
)

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

// SubmitScaffold accepts a new-project job and returns its id immediately
func (e *Engine) SubmitScaffold(req models.ScaffoldRequest) (string, error) {
	p, err := e.prepareScaffold(req)
	if err != nil {
		return "", err
	}
	return e.start(p)
}

// RunScaffold runs a new-project job to completion on the calling goroutine
func (e *Engine) RunScaffold(ctx context.Context, req models.ScaffoldRequest) (string, error) {
	p, err := e.prepareScaffold(req)
	if err != nil {
		return "", err
	}
	return e.runSync(ctx, p)
}

func (e *Engine) prepareScaffold(req models.ScaffoldRequest) (*pipeline, error) {
	if !repoNamePattern.MatchString(req.Name) || strings.Trim(req.Name, ".") == "" {
		return nil, configError(stageProvision, fmt.Errorf("%w: project name %q", ErrInvalidRequest, req.Name))
	}
	if !req.Mode.Valid() {
		return nil, configError(stageProvision, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode))
	}
	scriptURL, err := e.deps.Recipes.Resolve(req.RecipeID)
	if err != nil {
		return nil, configError(stageProvision, fmt.Errorf("%w: %w", ErrInvalidRecipe, err))
	}

	return &pipeline{
		variant:  models.VariantScaffold,
		mode:     req.Mode,
		initial:  models.JobStatusBooting,
		required: []auth.Service{auth.ServiceGitHub, auth.ServiceAgent},
		run: func(ctx context.Context, r *run) error {
			return e.scaffold(ctx, r, req, scriptURL)
		},
	}, nil
}

func (e *Engine) scaffold(ctx context.Context, r *run, req models.ScaffoldRequest, scriptURL string) (err error) {
	gh := e.deps.SourceControl
	cleanup := &cleanupStack{}
	defer func() {
		// on failure the stack is best effort; the stage error stands
		if cerr := cleanup.run(ctx, r.log); cerr != nil && err == nil {
			err = r.fail(ctx, stageCleanup, cerr)
		}
	}()

	r.enter(ctx, models.JobStatusBooting, "Provisioning GitHub resources...")

	fullName, err := gh.CreatePrivateRepo(ctx, req.Name)
	if err != nil {
		return r.fail(ctx, stageProvision, err)
	}
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return r.fail(ctx, stageProvision, err)
	}
	r.update(func(s *models.JobState) { s.RepoIdentifier = fullName })
	r.log = r.log.WithField("repo", fullName)

	codespace, err := gh.CreateCodespace(ctx, owner, repo)
	if err != nil {
		return r.fail(ctx, stageProvision, err)
	}
	cleanup.push("delete codespace", func(ctx context.Context) error {
		return gh.DeleteCodespace(ctx, codespace)
	})

	if err := gh.WaitForCodespace(ctx, codespace); err != nil {
		return r.fail(ctx, stageProvision, err)
	}

	keys, err := e.deps.GenerateKeys()
	if err != nil {
		return r.fail(ctx, stageProvision, fmt.Errorf("failed to generate keypair: %w", err))
	}
	keyID, err := gh.AddDeployKey(ctx, owner, repo, keys.PublicKey, deployKeyTitle)
	if err != nil {
		return r.fail(ctx, stageProvision, err)
	}
	cleanup.push("remove deploy key", func(ctx context.Context) error {
		return gh.RemoveDeployKey(ctx, owner, repo, keyID)
	})

	r.enter(ctx, models.JobStatusGenerating, "Connecting via SSH and running generator...")

	command := fmt.Sprintf("%s && curl -fsSL -o run.sh %s && bash run.sh %s",
		executor.WriteFileCommand(contextFile, req.Context), executor.ShellQuote(scriptURL), executor.ShellQuote(req.Name))
	if err := e.runRemote(ctx, e.cfg.ScaffoldTarget, keys, command); err != nil {
		return r.fail(ctx, stageGenerate, err)
	}

	if err := cleanup.run(ctx, r.log); err != nil {
		return r.fail(ctx, stageCleanup, err)
	}

	r.enter(ctx, models.JobStatusPlanning, "Starting AI Session...")
	sessionID, err := e.startSession(ctx, r, "github.com/"+fullName, scaffoldPrompt, req.Mode)
	if err != nil {
		return err
	}
	return e.pollSession(ctx, r, sessionID)
}

// runRemote executes command and turns a non-zero exit into an error
func (e *Engine) runRemote(ctx context.Context, target executor.Target, keys *models.SshKeypair, command string) error {
	result, err := e.deps.Executor.Execute(ctx, target, keys, command)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: exit status %d: %s", ErrCommandFailed, result.ExitCode, outputTail(result.Output))
	}
	return nil
}

// outputTail keeps the last few lines of command output for error messages
func outputTail(output string) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
