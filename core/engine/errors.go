package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"command-center/core/apierror"
	"command-center/core/auth"
	"command-center/core/credentials"
	"command-center/core/executor"
	"command-center/core/spec"
	"command-center/providers/github"
)

// Kind classifies why a job failed, independent of transport
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindAuthentication      Kind = "authentication"
	KindConnectivity        Kind = "connectivity"
	KindRemoteAPI           Kind = "remote_api"
	KindProvisioningTimeout Kind = "provisioning_timeout"
	KindExecution           Kind = "execution"
	KindCancelled           Kind = "cancelled"
)

var (
	ErrInvalidRecipe   = errors.New("invalid recipe")
	ErrInvalidRepoURL  = errors.New("invalid repository url")
	ErrInvalidRequest  = errors.New("invalid job request")
	ErrKeyDerivation   = errors.New("failed to derive public key")
	ErrAccessDenied    = errors.New("no write access to repository")
	ErrCommandFailed   = errors.New("remote command failed")
	ErrNoSession       = errors.New("job has no agent session")
	ErrNoPullRequest   = errors.New("job has no pull request")
	ErrJobNotRunning   = errors.New("job is not running")
	ErrTooManyFailures = errors.New("too many consecutive poll failures")
	ErrCancelled       = errors.New("job cancelled")
)

// JobError is the error a pipeline returns when one of its stages fails
type JobError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *JobError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a JobError anywhere in err's chain, or "".
func KindOf(err error) Kind {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	return ""
}

func configError(stage string, err error) *JobError {
	return &JobError{Kind: KindConfiguration, Stage: stage, Err: err}
}

// classify maps an error from a collaborator onto a Kind
func classify(err error) Kind {
	if k := KindOf(err); k != "" {
		return k
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrInvalidRecipe), errors.Is(err, spec.ErrUnknownRecipe),
		errors.Is(err, ErrInvalidRepoURL), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrKeyDerivation), errors.Is(err, credentials.ErrMalformedKey),
		errors.Is(err, executor.ErrCredential):
		return KindConfiguration
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, ErrAccessDenied),
		errors.Is(err, executor.ErrAuth):
		return KindAuthentication
	case errors.Is(err, executor.ErrConnect), errors.Is(err, executor.ErrHandshake),
		errors.Is(err, executor.ErrChannel), errors.Is(err, context.DeadlineExceeded):
		return KindConnectivity
	case errors.Is(err, github.ErrEnvironmentTimeout):
		return KindProvisioningTimeout
	case errors.Is(err, ErrCommandFailed):
		return KindExecution
	}

	var apiErr *apierror.RemoteAPIError
	if errors.As(err, &apiErr) {
		switch {
		case !apiErr.HasResponse():
			return KindConnectivity
		case apiErr.StatusCode == http.StatusUnauthorized:
			return KindAuthentication
		}
		return KindRemoteAPI
	}
	return KindConnectivity
}
