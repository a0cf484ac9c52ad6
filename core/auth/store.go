// Package auth looks up the credentials for the external services.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"command-center/core/models"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

// Service names an external service that needs a credential
type Service string

const (
	ServiceGitHub Service = "github"
	ServiceAgent  Service = "agent"
)

// ErrNotAuthenticated is returned when no credential is available for a service
var ErrNotAuthenticated = errors.New("not authenticated")

// Store yields the current token for a service
type Store interface {
	Token(service Service) (string, error)
}

// StaticStore serves tokens fixed at startup, e.g. from configuration
type StaticStore map[Service]string

func (s StaticStore) Token(service Service) (string, error) {
	if tok := strings.TrimSpace(s[service]); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotAuthenticated, service)
}

// fileKeys lists the keys a credential file may use per service, in order
var fileKeys = map[Service][]string{
	ServiceGitHub: {"github_access_token"},
	ServiceAgent:  {"agent_token", "google_refresh_token"},
}

// FileStore reads tokens from a JSON or YAML credential file on every lookup,
// so tokens rotated on disk take effect without a restart.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Token(service Service) (string, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("%w: %s: failed to read credential file: %v", ErrNotAuthenticated, service, err)
	}
	for _, key := range fileKeys[service] {
		if tok := strings.TrimSpace(v.GetString(key)); tok != "" {
			return tok, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotAuthenticated, service)
}

// Chain tries each store in turn
type Chain []Store

func (c Chain) Token(service Service) (string, error) {
	for _, s := range c {
		if tok, err := s.Token(service); err == nil {
			return tok, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotAuthenticated, service)
}

// Status reports which services have a credential, without exposing them
func Status(s Store) models.AuthState {
	_, ghErr := s.Token(ServiceGitHub)
	_, agentErr := s.Token(ServiceAgent)
	return models.AuthState{
		GithubAuthenticated: ghErr == nil,
		AgentAuthenticated:  agentErr == nil,
	}
}

// Require returns ErrNotAuthenticated unless every service has a credential
func Require(s Store, services ...Service) error {
	for _, svc := range services {
		if _, err := s.Token(svc); err != nil {
			return err
		}
	}
	return nil
}

type tokenSource struct {
	store   Store
	service Service
}

// TokenSource adapts a store to an oauth2.TokenSource for HTTP clients
func TokenSource(s Store, service Service) oauth2.TokenSource {
	return &tokenSource{store: s, service: service}
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := t.store.Token(t.service)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}
