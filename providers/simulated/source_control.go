// Package simulated provides in-process stand-ins for GitHub, the agent
// session service and remote hosts. They back dev mode and the engine tests.
package simulated

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"command-center/core/apierror"
	"command-center/providers/github"
)

// Repo is a simulated repository
type Repo struct {
	Files      map[string]string
	DeployKeys map[int64]string
	Writable   bool
	Merged     map[int]bool
}

// SourceControl simulates the GitHub operations the pipelines use
type SourceControl struct {
	mu sync.Mutex

	Owner string
	// CodespaceName overrides generated codespace names
	CodespaceName string
	// CodespaceNeverReady makes WaitForCodespace time out
	CodespaceNeverReady bool
	// OpenAccess treats every unknown repository as existing and writable
	OpenAccess bool
	// Fail injects an error for the named operation, e.g. "create_codespace"
	Fail map[string]error

	Repos      map[string]*Repo // by owner/name
	Codespaces map[string]string
	Calls      []string

	seq int
}

// NewSourceControl creates a simulated GitHub account named owner
func NewSourceControl(owner string) *SourceControl {
	return &SourceControl{
		Owner:      owner,
		Fail:       make(map[string]error),
		Repos:      make(map[string]*Repo),
		Codespaces: make(map[string]string),
	}
}

// AddRepo seeds an existing repository
func (s *SourceControl) AddRepo(fullName string, writable bool) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo := newRepo(writable)
	s.Repos[fullName] = repo
	return repo
}

func newRepo(writable bool) *Repo {
	return &Repo{
		Files:      make(map[string]string),
		DeployKeys: make(map[int64]string),
		Writable:   writable,
		Merged:     make(map[int]bool),
	}
}

// CallLog returns the operations performed so far, in order
func (s *SourceControl) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}

// record logs op and returns the injected failure for it, if any. Callers hold mu.
func (s *SourceControl) record(op string) error {
	s.Calls = append(s.Calls, op)
	return s.Fail[op]
}

func notFound(op, what string) error {
	return &apierror.RemoteAPIError{Service: "github", Operation: op, StatusCode: http.StatusNotFound, Message: what + " not found"}
}

func (s *SourceControl) CreatePrivateRepo(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create_repo"); err != nil {
		return "", err
	}
	fullName := s.Owner + "/" + name
	if _, exists := s.Repos[fullName]; exists {
		return "", &apierror.RemoteAPIError{Service: "github", Operation: "create_repo", StatusCode: http.StatusUnprocessableEntity, Message: "name already exists on this account"}
	}
	s.Repos[fullName] = newRepo(true)
	return fullName, nil
}

func (s *SourceControl) CreateCodespace(_ context.Context, owner, repo string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("create_codespace"); err != nil {
		return "", err
	}
	if _, ok := s.Repos[owner+"/"+repo]; !ok {
		return "", notFound("create_codespace", "repository")
	}
	s.seq++
	name := s.CodespaceName
	if name == "" {
		name = fmt.Sprintf("%s-codespace-%d", repo, s.seq)
	}
	s.Codespaces[name] = "Provisioning"
	return name, nil
}

func (s *SourceControl) WaitForCodespace(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("wait_codespace"); err != nil {
		return err
	}
	if _, ok := s.Codespaces[name]; !ok {
		return notFound("get_codespace", "codespace")
	}
	if s.CodespaceNeverReady {
		return fmt.Errorf("%w: %s", github.ErrEnvironmentTimeout, name)
	}
	s.Codespaces[name] = "Available"
	return nil
}

func (s *SourceControl) DeleteCodespace(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("delete_codespace"); err != nil {
		return err
	}
	if _, ok := s.Codespaces[name]; !ok {
		return notFound("delete_codespace", "codespace")
	}
	delete(s.Codespaces, name)
	return nil
}

func (s *SourceControl) AddDeployKey(_ context.Context, owner, repo, publicKey, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("add_deploy_key"); err != nil {
		return 0, err
	}
	r, ok := s.Repos[owner+"/"+repo]
	if !ok {
		return 0, notFound("add_deploy_key", "repository")
	}
	s.seq++
	id := int64(s.seq)
	r.DeployKeys[id] = publicKey
	return id, nil
}

func (s *SourceControl) RemoveDeployKey(_ context.Context, owner, repo string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("remove_deploy_key"); err != nil {
		return err
	}
	r, ok := s.Repos[owner+"/"+repo]
	if !ok {
		return notFound("remove_deploy_key", "repository")
	}
	if _, ok := r.DeployKeys[id]; !ok {
		return notFound("remove_deploy_key", "deploy key")
	}
	delete(r.DeployKeys, id)
	return nil
}

func (s *SourceControl) CheckRepoAccess(_ context.Context, owner, repo string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("check_access"); err != nil {
		return false, err
	}
	r, ok := s.Repos[owner+"/"+repo]
	if !ok && s.OpenAccess {
		r, ok = newRepo(true), true
		s.Repos[owner+"/"+repo] = r
	}
	return ok && r.Writable, nil
}

func (s *SourceControl) UpsertFile(_ context.Context, owner, repo, path, content, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("write_file"); err != nil {
		return err
	}
	r, ok := s.Repos[owner+"/"+repo]
	if !ok {
		return notFound("write_file", "repository")
	}
	r.Files[path] = content
	return nil
}

func (s *SourceControl) MergePullRequest(_ context.Context, owner, repo string, number int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("merge_pull_request"); err != nil {
		return "", err
	}
	r, ok := s.Repos[owner+"/"+repo]
	if !ok {
		return "", notFound("merge_pull_request", "repository")
	}
	if r.Merged[number] {
		return "", &apierror.RemoteAPIError{Service: "github", Operation: "merge_pull_request", StatusCode: http.StatusMethodNotAllowed, Message: "Pull Request is not mergeable"}
	}
	r.Merged[number] = true
	return fmt.Sprintf("%040x", number), nil
}
