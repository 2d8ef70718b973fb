package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/fabrica/internal/common"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSubscriber stands up a server-side connection registered with the
// service and returns the client end for reading broadcasts.
func newSubscriber(t *testing.T, svc *Service) *websocket.Conn {
	t.Helper()

	registered := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		svc.Register(conn)
		close(registered)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case <-registered:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber was never registered")
	}
	return client
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	svc := NewService(common.GetLogger())
	client := newSubscriber(t, svc)

	svc.PublishProjectEvent("prj_1", "created", "requested")

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "project", event.Kind)
	assert.Equal(t, "created", event.Event)
	assert.Equal(t, "prj_1", event.ProjectID)
}

func TestConcurrentPublishersShareOneConnection(t *testing.T) {
	svc := NewService(common.GetLogger())
	client := newSubscriber(t, svc)

	// Publishers fan in from request and cron goroutines in production; a
	// connection without write serialization panics under this load.
	const publishers = 16
	const perPublisher = 10

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				if n%2 == 0 {
					svc.PublishProjectEvent("prj_1", "updated", nil)
				} else {
					svc.PublishJobEvent("job_1", "prj_1", "progress", nil)
				}
			}
		}(i)
	}

	received := 0
	done := make(chan error, 1)
	go func() {
		for received < publishers*perPublisher {
			client.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := client.ReadMessage(); err != nil {
				done <- err
				return
			}
			received++
		}
		done <- nil
	}()

	wg.Wait()
	require.NoError(t, <-done)
	assert.Equal(t, publishers*perPublisher, received)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	svc := NewService(common.GetLogger())
	client := newSubscriber(t, svc)

	svc.mu.RLock()
	var conn *websocket.Conn
	for c := range svc.clients {
		conn = c
	}
	svc.mu.RUnlock()
	require.NotNil(t, conn)

	svc.Unregister(conn)
	svc.PublishProjectEvent("prj_1", "deleted", nil)

	client.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}
