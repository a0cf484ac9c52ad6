package ws

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"command-center/core/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietHub() *Hub {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewHub(l)
}

func TestHubStreamsEventsForSubscribedJob(t *testing.T) {
	hub := quietHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?job=job-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Emit(ctx, models.JobUpdateEvent{ID: "job-2", Status: models.JobStatusWorking, Logs: []string{}}))
	require.NoError(t, hub.Emit(ctx, models.JobUpdateEvent{ID: "job-1", Status: models.JobStatusPlanning, Logs: []string{"Agent is thinking..."}}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.JobUpdateEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, models.JobStatusPlanning, got.Status)
	assert.Equal(t, []string{"Agent is thinking..."}, got.Logs)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := quietHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, time.Millisecond)
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := quietHub()
	slow := &Client{id: "slow", hub: hub, send: make(chan []byte, 1)}
	hub.register(slow)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = hub.Emit(ctx, models.JobUpdateEvent{ID: "job", Status: models.JobStatusWorking})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow client")
	}
	assert.Len(t, slow.send, 1)

	hub.unregister(slow)
	_, open := <-slow.send
	assert.True(t, open)
	_, open = <-slow.send
	assert.False(t, open)
}
