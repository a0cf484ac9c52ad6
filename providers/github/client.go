// Package github is the source-control client: a thin typed façade over the
// GitHub REST operations the pipelines need.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"command-center/core/apierror"

	gogithub "github.com/google/go-github/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	// ErrEnvironmentTimeout is returned when a codespace never becomes available.
	ErrEnvironmentTimeout = errors.New("codespace did not become available")

	// ErrRevisionConflict is returned when a file write carried a stale
	// revision marker, or a create raced with another writer.
	ErrRevisionConflict = errors.New("file revision conflict")
)

const (
	codespaceAvailable = "Available"
	codespaceMachine   = "basicLinux"
)

// Options configures a Client
type Options struct {
	BaseURL string // defaults to https://api.github.com/
	Token   string
	// TokenSource overrides Token when set
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client

	EnvironmentInterval time.Duration
	EnvironmentAttempts int

	Logger *logrus.Logger
}

// Client is the GitHub source-control client
type Client struct {
	gh                  *gogithub.Client
	environmentInterval time.Duration
	environmentAttempts int
	logger              *logrus.Logger
}

// NewClient creates a new GitHub client authenticating with a bearer token
func NewClient(opts Options) (*Client, error) {
	base := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		base = opts.HTTPClient.Transport
	}
	tokens := opts.TokenSource
	if tokens == nil {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: tokens,
			Base:   base,
		},
		Timeout: 30 * time.Second,
	}

	gh := gogithub.NewClient(httpClient)
	gh.UserAgent = "command-center"
	if opts.BaseURL != "" {
		raw := opts.BaseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		gh.BaseURL = u
	}

	interval := opts.EnvironmentInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	attempts := opts.EnvironmentAttempts
	if attempts <= 0 {
		attempts = 60
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		gh:                  gh,
		environmentInterval: interval,
		environmentAttempts: attempts,
		logger:              logger,
	}, nil
}

// CreatePrivateRepo creates an initialized private repository under the
// authenticated account and returns its owner/name.
func (c *Client) CreatePrivateRepo(ctx context.Context, name string) (string, error) {
	repo, resp, err := c.gh.Repositories.Create(ctx, "", &gogithub.Repository{
		Name:     gogithub.String(name),
		Private:  gogithub.Bool(true),
		AutoInit: gogithub.Bool(true),
	})
	if err != nil {
		return "", apiError("create_repo", resp, err)
	}
	fullName := repo.GetFullName()
	if !strings.Contains(fullName, "/") {
		return "", &apierror.RemoteAPIError{Service: "github", Operation: "create_repo", StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected full name %q", fullName)}
	}
	return fullName, nil
}

type codespace struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// CreateCodespace creates a codespace for owner/repo and returns its name.
func (c *Client) CreateCodespace(ctx context.Context, owner, repo string) (string, error) {
	req, err := c.gh.NewRequest(http.MethodPost, fmt.Sprintf("repos/%s/%s/codespaces", owner, repo), map[string]string{
		"machine": codespaceMachine,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build codespace request: %w", err)
	}

	// 202 still carries the codespace body; go-github decodes it before
	// reporting AcceptedError
	var cs codespace
	resp, err := c.gh.Do(ctx, req, &cs)
	if err != nil && !accepted(err) {
		return "", apiError("create_codespace", resp, err)
	}
	if cs.Name == "" {
		return "", &apierror.RemoteAPIError{Service: "github", Operation: "create_codespace", StatusCode: resp.StatusCode, Message: "response carried no codespace name"}
	}
	return cs.Name, nil
}

// WaitForCodespace polls until the codespace reports Available, giving up
// after the configured number of attempts.
func (c *Client) WaitForCodespace(ctx context.Context, name string) error {
	for attempt := 1; attempt <= c.environmentAttempts; attempt++ {
		state, err := c.codespaceState(ctx, name)
		switch {
		case err == nil && state == codespaceAvailable:
			return nil
		case err != nil && apierror.StatusCode(err) == 0:
			return err
		case err != nil:
			c.logger.WithError(err).WithField("codespace", name).Debug("Codespace status check failed")
		default:
			c.logger.WithFields(logrus.Fields{"codespace": name, "state": state, "attempt": attempt}).Debug("Codespace not ready")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.environmentInterval):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrEnvironmentTimeout, name, c.environmentAttempts)
}

func (c *Client) codespaceState(ctx context.Context, name string) (string, error) {
	req, err := c.gh.NewRequest(http.MethodGet, "user/codespaces/"+url.PathEscape(name), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build codespace request: %w", err)
	}
	var cs codespace
	resp, err := c.gh.Do(ctx, req, &cs)
	if err != nil {
		return "", apiError("get_codespace", resp, err)
	}
	return cs.State, nil
}

// DeleteCodespace destroys a codespace.
func (c *Client) DeleteCodespace(ctx context.Context, name string) error {
	req, err := c.gh.NewRequest(http.MethodDelete, "user/codespaces/"+url.PathEscape(name), nil)
	if err != nil {
		return fmt.Errorf("failed to build codespace request: %w", err)
	}
	resp, err := c.gh.Do(ctx, req, nil)
	if err != nil && !accepted(err) {
		return apiError("delete_codespace", resp, err)
	}
	return nil
}

// AddDeployKey registers a read-write deploy key on owner/repo and returns its id.
func (c *Client) AddDeployKey(ctx context.Context, owner, repo, publicKey, title string) (int64, error) {
	key, resp, err := c.gh.Repositories.CreateKey(ctx, owner, repo, &gogithub.Key{
		Key:      gogithub.String(publicKey),
		Title:    gogithub.String(title),
		ReadOnly: gogithub.Bool(false),
	})
	if err != nil {
		return 0, apiError("add_deploy_key", resp, err)
	}
	return key.GetID(), nil
}

// RemoveDeployKey revokes a deploy key.
func (c *Client) RemoveDeployKey(ctx context.Context, owner, repo string, id int64) error {
	resp, err := c.gh.Repositories.DeleteKey(ctx, owner, repo, id)
	if err != nil {
		return apiError("remove_deploy_key", resp, err)
	}
	return nil
}

// GetFileRevision returns the blob sha of path, and false when the file does not exist.
func (c *Client) GetFileRevision(ctx context.Context, owner, repo, path string) (string, bool, error) {
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		apiErr := apiError("get_file", resp, err)
		if apierror.IsNotFound(apiErr) {
			return "", false, nil
		}
		return "", false, apiErr
	}
	if file == nil {
		return "", false, &apierror.RemoteAPIError{Service: "github", Operation: "get_file", StatusCode: resp.StatusCode, Message: path + " is a directory"}
	}
	return file.GetSHA(), true, nil
}

// WriteFile writes content to path. An empty sha creates the file; otherwise
// the write only succeeds if sha is still the file's current revision.
func (c *Client) WriteFile(ctx context.Context, owner, repo, path, content, message, sha string) error {
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String(message),
		Content: []byte(content),
	}

	var (
		resp *gogithub.Response
		err  error
	)
	if sha == "" {
		_, resp, err = c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts)
	} else {
		opts.SHA = gogithub.String(sha)
		_, resp, err = c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	}
	if err == nil {
		return nil
	}

	apiErr := apiError("write_file", resp, err)
	code := apierror.StatusCode(apiErr)
	if code == http.StatusConflict || (sha == "" && code == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%w: %s: %w", ErrRevisionConflict, path, apiErr)
	}
	return apiErr
}

// UpsertFile reads the current revision of path and writes content over it,
// creating the file when absent.
func (c *Client) UpsertFile(ctx context.Context, owner, repo, path, content, message string) error {
	sha, _, err := c.GetFileRevision(ctx, owner, repo, path)
	if err != nil {
		return err
	}
	return c.WriteFile(ctx, owner, repo, path, content, message, sha)
}

type repoAccess struct {
	Permissions *struct {
		Push bool `json:"push"`
	} `json:"permissions"`
}

// CheckRepoAccess reports whether the authenticated account can push to owner/repo.
func (c *Client) CheckRepoAccess(ctx context.Context, owner, repo string) (bool, error) {
	req, err := c.gh.NewRequest(http.MethodGet, fmt.Sprintf("repos/%s/%s", owner, repo), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build repo request: %w", err)
	}
	var access repoAccess
	resp, err := c.gh.Do(ctx, req, &access)
	if err != nil {
		apiErr := apiError("check_access", resp, err)
		switch apierror.StatusCode(apiErr) {
		case http.StatusNotFound, http.StatusForbidden:
			return false, nil
		}
		return false, apiErr
	}
	if access.Permissions == nil {
		return true, nil
	}
	return access.Permissions.Push, nil
}

// MergePullRequest squash-merges a pull request and returns the merge commit sha.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int) (string, error) {
	result, resp, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, "", &gogithub.PullRequestOptions{
		MergeMethod: "squash",
	})
	if err != nil {
		return "", apiError("merge_pull_request", resp, err)
	}
	return result.GetSHA(), nil
}

// accepted reports whether err is go-github's 202 Accepted marker
func accepted(err error) bool {
	var acceptedErr *gogithub.AcceptedError
	return errors.As(err, &acceptedErr)
}

func apiError(operation string, resp *gogithub.Response, err error) error {
	apiErr := &apierror.RemoteAPIError{Service: "github", Operation: operation, Err: err}
	if resp != nil && resp.Response != nil {
		apiErr.StatusCode = resp.StatusCode
	}
	var errResp *gogithub.ErrorResponse
	if errors.As(err, &errResp) {
		apiErr.Message = errResp.Message
		apiErr.Err = nil
		if apiErr.StatusCode == 0 && errResp.Response != nil {
			apiErr.StatusCode = errResp.Response.StatusCode
		}
	}
	return apiErr
}
