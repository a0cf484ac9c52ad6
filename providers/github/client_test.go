package github

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"command-center/core/apierror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContents is an in-memory contents API enforcing blob sha preconditions.
type fakeContents struct {
	mu    sync.Mutex
	files map[string]string // path -> content
}

func blobSHA(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (f *fakeContents) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.PathValue("path")
	current, exists := f.files[path]

	switch r.Method {
	case http.MethodGet:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "file", "path": path, "sha": blobSHA(current)})
	case http.MethodPut:
		var body struct {
			Message string `json:"message"`
			Content string `json:"content"`
			SHA     string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		if exists && body.SHA == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "\"sha\" wasn't supplied."})
			return
		}
		if exists && body.SHA != blobSHA(current) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": path + " does not match " + body.SHA})
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		f.files[path] = string(decoded)
		writeJSON(w, http.StatusOK, map[string]any{"content": map[string]string{"sha": blobSHA(string(decoded))}})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		BaseURL:             server.URL,
		Token:               "test-token",
		EnvironmentInterval: time.Millisecond,
		EnvironmentAttempts: 3,
	})
	require.NoError(t, err)
	return client
}

func TestCreatePrivateRepo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "demo", body["name"])
		assert.Equal(t, true, body["private"])
		assert.Equal(t, true, body["auto_init"])
		writeJSON(w, http.StatusCreated, map[string]string{"full_name": "acct/demo"})
	})
	client := newTestClient(t, mux)

	fullName, err := client.CreatePrivateRepo(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "acct/demo", fullName)
}

func TestCreatePrivateRepoError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	})
	client := newTestClient(t, mux)

	_, err := client.CreatePrivateRepo(context.Background(), "demo")
	var apiErr *apierror.RemoteAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "create_repo", apiErr.Operation)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Bad credentials", apiErr.Message)
}

func TestCodespaceLifecycle(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	deleted := false

	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acct/demo/codespaces", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, codespace{Name: "env1", State: "Queued"})
	})
	mux.HandleFunc("GET /user/codespaces/env1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		state := "Starting"
		if polls >= 2 {
			state = "Available"
		}
		writeJSON(w, http.StatusOK, codespace{Name: "env1", State: state})
	})
	mux.HandleFunc("DELETE /user/codespaces/env1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deleted = true
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	name, err := client.CreateCodespace(ctx, "acct", "demo")
	require.NoError(t, err)
	assert.Equal(t, "env1", name)

	require.NoError(t, client.WaitForCodespace(ctx, name))
	require.NoError(t, client.DeleteCodespace(ctx, name))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, polls)
	assert.True(t, deleted)
}

func TestCodespaceAcceptedResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acct/demo/codespaces", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, codespace{Name: "env2", State: "Provisioning"})
	})
	mux.HandleFunc("POST /repos/acct/empty/codespaces", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("DELETE /user/codespaces/env2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("DELETE /user/codespaces/gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	name, err := client.CreateCodespace(ctx, "acct", "demo")
	require.NoError(t, err)
	assert.Equal(t, "env2", name)
	assert.NoError(t, client.DeleteCodespace(ctx, name))

	_, err = client.CreateCodespace(ctx, "acct", "empty")
	assert.Equal(t, http.StatusAccepted, apierror.StatusCode(err))

	err = client.DeleteCodespace(ctx, "gone")
	assert.True(t, apierror.IsNotFound(err))
}

func TestWaitForCodespaceTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/codespaces/env1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, codespace{Name: "env1", State: "Starting"})
	})
	client := newTestClient(t, mux)

	err := client.WaitForCodespace(context.Background(), "env1")
	assert.True(t, errors.Is(err, ErrEnvironmentTimeout), "got %v", err)
}

func TestDeployKeys(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acct/demo/keys", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ssh-ed25519 AAAA", body["key"])
		assert.Equal(t, false, body["read_only"])
		writeJSON(w, http.StatusCreated, map[string]any{"id": 999})
	})
	mux.HandleFunc("DELETE /repos/acct/demo/keys/999", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	id, err := client.AddDeployKey(ctx, "acct", "demo", "ssh-ed25519 AAAA", "ephemeral")
	require.NoError(t, err)
	assert.Equal(t, int64(999), id)
	assert.NoError(t, client.RemoveDeployKey(ctx, "acct", "demo", id))
}

func TestUpsertFileCreatesThenUpdates(t *testing.T) {
	contents := &fakeContents{files: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acct/demo/contents/{path}", contents.handle)
	client := newTestClient(t, mux)
	ctx := context.Background()

	require.NoError(t, client.UpsertFile(ctx, "acct", "demo", "AGENTS.md", "v1", "sync"))
	require.NoError(t, client.UpsertFile(ctx, "acct", "demo", "AGENTS.md", "v2", "sync"))

	contents.mu.Lock()
	defer contents.mu.Unlock()
	assert.Equal(t, "v2", contents.files["AGENTS.md"])
}

func TestWriteFileStaleRevisionConflicts(t *testing.T) {
	contents := &fakeContents{files: map[string]string{"AGENTS.md": "original"}}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acct/demo/contents/{path}", contents.handle)
	client := newTestClient(t, mux)
	ctx := context.Background()

	sha, exists, err := client.GetFileRevision(ctx, "acct", "demo", "AGENTS.md")
	require.NoError(t, err)
	require.True(t, exists)

	// a concurrent editor lands first
	require.NoError(t, client.WriteFile(ctx, "acct", "demo", "AGENTS.md", "their edit", "edit", sha))

	err = client.WriteFile(ctx, "acct", "demo", "AGENTS.md", "our edit", "edit", sha)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRevisionConflict), "got %v", err)
	assert.True(t, apierror.IsConflict(err))

	// create without a marker over an existing file is also a conflict
	err = client.WriteFile(ctx, "acct", "demo", "AGENTS.md", "blind", "edit", "")
	assert.True(t, errors.Is(err, ErrRevisionConflict), "got %v", err)

	contents.mu.Lock()
	defer contents.mu.Unlock()
	assert.Equal(t, "their edit", contents.files["AGENTS.md"])
}

func TestCheckRepoAccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acct/writable", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"full_name": "acct/writable", "permissions": map[string]bool{"push": true}})
	})
	mux.HandleFunc("GET /repos/acct/readonly", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"full_name": "acct/readonly", "permissions": map[string]bool{"push": false}})
	})
	mux.HandleFunc("GET /repos/acct/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("GET /repos/acct/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "oops"})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	ok, err := client.CheckRepoAccess(ctx, "acct", "writable")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.CheckRepoAccess(ctx, "acct", "readonly")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.CheckRepoAccess(ctx, "acct", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.CheckRepoAccess(ctx, "acct", "broken")
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusCode(err))
}

func TestMergePullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/acct/demo/pulls/7/merge", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "squash", body["merge_method"])
		writeJSON(w, http.StatusOK, map[string]any{"sha": "abc123", "merged": true})
	})
	client := newTestClient(t, mux)

	sha, err := client.MergePullRequest(context.Background(), "acct", "demo", 7)
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}
