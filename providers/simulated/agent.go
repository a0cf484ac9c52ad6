package simulated

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"command-center/core/apierror"
	"command-center/core/models"
	"command-center/providers/agent"
)

// Step is one scripted poll result
type Step struct {
	Snapshot *agent.Snapshot
	Err      error
}

// StartCall records one StartSession request
type StartCall struct {
	Source          string
	Prompt          string
	RequireApproval bool
}

type session struct {
	source          string
	requireApproval bool
	approved        bool
	polls           int
	progress        int
}

// AgentSessions simulates the agent session service. With no Script,
// sessions move planning → working → pr_ready, pausing at waiting_approval
// until approved when the session requires it.
type AgentSessions struct {
	mu sync.Mutex

	// Script is replayed for every session; the last step repeats
	Script   []Step
	StartErr error

	Started  []StartCall
	Approved []string
	Feedback map[string][]string

	sessions map[string]*session
	seq      int
}

// NewAgentSessions creates a simulated agent service
func NewAgentSessions(script ...Step) *AgentSessions {
	return &AgentSessions{
		Script:   script,
		Feedback: make(map[string][]string),
		sessions: make(map[string]*session),
	}
}

// Polls returns how many times a session has been polled
func (a *AgentSessions) Polls(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[sessionID]; ok {
		return s.polls
	}
	return 0
}

// StartCalls returns the sessions started so far
func (a *AgentSessions) StartCalls() []StartCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]StartCall(nil), a.Started...)
}

func (a *AgentSessions) StartSession(_ context.Context, source, prompt string, requireApproval bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Started = append(a.Started, StartCall{Source: source, Prompt: prompt, RequireApproval: requireApproval})
	if a.StartErr != nil {
		return "", a.StartErr
	}
	a.seq++
	id := fmt.Sprintf("sessions/sim-%d", a.seq)
	a.sessions[id] = &session{source: source, requireApproval: requireApproval}
	return id, nil
}

func (a *AgentSessions) PollSession(_ context.Context, sessionID string) (*agent.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		return nil, &apierror.RemoteAPIError{Service: "agent", Operation: "poll_session", StatusCode: http.StatusNotFound, Message: "session not found"}
	}
	s.polls++

	if len(a.Script) > 0 {
		idx := s.polls - 1
		if idx >= len(a.Script) {
			idx = len(a.Script) - 1
		}
		step := a.Script[idx]
		if step.Err != nil {
			return nil, step.Err
		}
		snap := *step.Snapshot
		return &snap, nil
	}
	return a.progress(s), nil
}

func (a *AgentSessions) progress(s *session) *agent.Snapshot {
	if s.progress == 1 && s.requireApproval && !s.approved {
		plan := "1. Read AGENTS.md\n2. Implement the requested changes\n3. Open a pull request"
		return &agent.Snapshot{Status: models.JobStatusWaitingApproval, Plan: &plan, RemoteState: "AWAITING_PLAN_APPROVAL"}
	}
	s.progress++
	switch s.progress {
	case 1:
		return &agent.Snapshot{Status: models.JobStatusPlanning, RemoteState: "PLANNING"}
	case 2:
		return &agent.Snapshot{Status: models.JobStatusWorking, RemoteState: "IN_PROGRESS"}
	}
	repo := strings.TrimPrefix(strings.TrimPrefix(s.source, "https://"), "github.com/")
	return &agent.Snapshot{
		Status:      models.JobStatusPrReady,
		RemoteState: "COMPLETED",
		PR: &models.PrDetails{
			Number: 1,
			URL:    fmt.Sprintf("https://github.com/%s/pull/1", repo),
			Title:  "Changes requested in AGENTS.md",
		},
	}
}

func (a *AgentSessions) ResumeSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %w", agent.ErrSessionControl, &apierror.RemoteAPIError{Service: "agent", Operation: "approve_plan", StatusCode: http.StatusNotFound})
	}
	s.approved = true
	a.Approved = append(a.Approved, sessionID)
	return nil
}

func (a *AgentSessions) SendFeedback(_ context.Context, sessionID, feedback string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %w", agent.ErrSessionControl, &apierror.RemoteAPIError{Service: "agent", Operation: "send_message", StatusCode: http.StatusNotFound})
	}
	a.Feedback[sessionID] = append(a.Feedback[sessionID], feedback)
	return nil
}
