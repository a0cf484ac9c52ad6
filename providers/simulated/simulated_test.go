package simulated

import (
	"context"
	"testing"

	"command-center/core/apierror"
	"command-center/core/executor"
	"command-center/core/models"
	"command-center/providers/github"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentDefaultProgressionWaitsForApproval(t *testing.T) {
	ctx := context.Background()
	a := NewAgentSessions()

	id, err := a.StartSession(ctx, "github.com/acct/app", "go", true)
	require.NoError(t, err)

	var seen []models.JobStatus
	for i := 0; i < 3; i++ {
		snap, err := a.PollSession(ctx, id)
		require.NoError(t, err)
		seen = append(seen, snap.Status)
	}
	assert.Equal(t, []models.JobStatus{
		models.JobStatusPlanning,
		models.JobStatusWaitingApproval,
		models.JobStatusWaitingApproval,
	}, seen)

	require.NoError(t, a.ResumeSession(ctx, id))
	snap, _ := a.PollSession(ctx, id)
	assert.Equal(t, models.JobStatusWorking, snap.Status)
	snap, _ = a.PollSession(ctx, id)
	assert.Equal(t, models.JobStatusPrReady, snap.Status)
	require.NotNil(t, snap.PR)
	assert.Equal(t, "https://github.com/acct/app/pull/1", snap.PR.URL)
	assert.Equal(t, 5, a.Polls(id))
}

func TestAgentUnknownSession(t *testing.T) {
	_, err := NewAgentSessions().PollSession(context.Background(), "sessions/nope")
	assert.True(t, apierror.IsNotFound(err))
}

func TestSourceControlLifecycle(t *testing.T) {
	ctx := context.Background()
	gh := NewSourceControl("acct")

	full, err := gh.CreatePrivateRepo(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "acct/demo", full)

	cs, err := gh.CreateCodespace(ctx, "acct", "demo")
	require.NoError(t, err)
	require.NoError(t, gh.WaitForCodespace(ctx, cs))

	keyID, err := gh.AddDeployKey(ctx, "acct", "demo", "ssh-ed25519 AAAA", "title")
	require.NoError(t, err)
	require.NoError(t, gh.RemoveDeployKey(ctx, "acct", "demo", keyID))
	assert.True(t, apierror.IsNotFound(gh.RemoveDeployKey(ctx, "acct", "demo", keyID)))
	require.NoError(t, gh.DeleteCodespace(ctx, cs))

	gh.CodespaceNeverReady = true
	cs, _ = gh.CreateCodespace(ctx, "acct", "demo")
	assert.ErrorIs(t, gh.WaitForCodespace(ctx, cs), github.ErrEnvironmentTimeout)
}

func TestExecutorEchoesProbe(t *testing.T) {
	e := NewExecutor()
	keys := &models.SshKeypair{PrivateKey: "pem", PublicKey: "pub"}

	res, err := e.Execute(context.Background(), executor.Target{Host: "h"}, keys, "echo 'Connection Established'")
	require.NoError(t, err)
	assert.Equal(t, "Connection Established\n", res.Output)

	_, err = e.Execute(context.Background(), executor.Target{Host: "h"}, nil, "true")
	assert.ErrorIs(t, err, executor.ErrCredential)
	assert.Len(t, e.Commands(), 1)
}
