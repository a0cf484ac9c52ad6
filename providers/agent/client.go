// Package agent is the client for the AI agent session service.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"command-center/core/apierror"
	"command-center/core/models"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

var (
	// ErrSessionStart marks a failure to begin an agent session.
	ErrSessionStart = errors.New("agent session start failed")

	// ErrSessionControl marks a rejected approval or feedback call.
	ErrSessionControl = errors.New("agent session control failed")
)

// Options configures a Client
type Options struct {
	BaseURL string // defaults to https://jules.googleapis.com/v1/
	Token   string
	// TokenSource overrides Token when set
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	Logger      *logrus.Logger
}

// Client talks to the agent session REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// Snapshot is one observation of a remote session mapped into local terms
type Snapshot struct {
	Status      models.JobStatus
	PR          *models.PrDetails
	Plan        *string
	RemoteState string
}

// NewClient creates a new agent session client
func NewClient(opts Options) *Client {
	base := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		base = opts.HTTPClient.Transport
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://jules.googleapis.com/v1/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	tokens := opts.TokenSource
	if tokens == nil {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "agent-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// a 4xx is the caller's problem, not the service's
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := apierror.StatusCode(err)
			return code >= 400 && code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &oauth2.Transport{
				Source: tokens,
				Base:   base,
			},
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

type startRequest struct {
	Source              string `json:"source"`
	Prompt              string `json:"prompt"`
	RequirePlanApproval bool   `json:"requirePlanApproval"`
}

type sessionResource struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Inputs struct {
		PlanSummary string `json:"plan_summary"`
	} `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// StartSession begins a session against source and returns its id.
func (c *Client) StartSession(ctx context.Context, source, prompt string, requireApproval bool) (string, error) {
	var session sessionResource
	err := c.do(ctx, "start_session", http.MethodPost, "sessions", startRequest{
		Source:              source,
		Prompt:              prompt,
		RequirePlanApproval: requireApproval,
	}, &session)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionStart, err)
	}
	if session.Name == "" {
		return "", fmt.Errorf("%w: %w", ErrSessionStart, &apierror.RemoteAPIError{
			Service: "agent", Operation: "start_session", StatusCode: http.StatusOK, Message: "response carried no session name",
		})
	}
	return session.Name, nil
}

// PollSession fetches the session's current state.
func (c *Client) PollSession(ctx context.Context, sessionID string) (*Snapshot, error) {
	var session sessionResource
	if err := c.do(ctx, "poll_session", http.MethodGet, sessionID, nil, &session); err != nil {
		return nil, err
	}
	status, pr, plan := MapState(session.State, session.Outputs, session.Inputs.PlanSummary)
	return &Snapshot{Status: status, PR: pr, Plan: plan, RemoteState: session.State}, nil
}

// ResumeSession approves the plan the session is waiting on.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, "approve_plan", http.MethodPost, sessionID+":approvePlan", struct{}{}, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionControl, err)
	}
	return nil
}

// SendFeedback sends a refinement instruction to the session.
func (c *Client) SendFeedback(ctx context.Context, sessionID, feedback string) error {
	body := map[string]string{"prompt": feedback}
	if err := c.do(ctx, "send_message", http.MethodPost, sessionID+":sendMessage", body, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionControl, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, op, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &apierror.RemoteAPIError{Service: "agent", Operation: op, Err: err}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(path, "/"), reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apierror.RemoteAPIError{Service: "agent", Operation: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apierror.RemoteAPIError{
			Service:    "agent",
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apierror.RemoteAPIError{Service: "agent", Operation: op, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

// errorMessage extracts {"error":{"message":...}} when present, falling back
// to the raw body.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
