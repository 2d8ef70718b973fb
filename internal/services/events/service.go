// Package events broadcasts best-effort state-change events over WebSocket.
// Polling the API remains the source of truth; a dropped event is not an
// error condition.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

// Event is the wire shape pushed to connected clients.
type Event struct {
	Kind      string    `json:"kind"` // "project" or "job"
	Event     string    `json:"event"`
	ProjectID string    `json:"project_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Service manages WebSocket subscribers and fans events out to them.
// Each connection carries its own write mutex: gorilla/websocket allows
// only one concurrent writer per connection, and publishers arrive on
// arbitrary request and cron goroutines.
type Service struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	logger  arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		logger:  logger,
	}
}

// Register adds a subscriber connection.
func (s *Service) Register(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn] = &sync.Mutex{}
	s.logger.Debug().Int("clients", len(s.clients)).Msg("Event subscriber registered")
}

// Unregister removes and closes a subscriber connection.
func (s *Service) Unregister(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
}

// PublishProjectEvent broadcasts a lifecycle transition.
func (s *Service) PublishProjectEvent(projectID string, event string, payload any) {
	s.broadcast(Event{
		Kind:      "project",
		Event:     event,
		ProjectID: projectID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// PublishJobEvent broadcasts a pipeline job state change.
func (s *Service) PublishJobEvent(jobID, projectID string, event string, payload any) {
	s.broadcast(Event{
		Kind:      "job",
		Event:     event,
		JobID:     jobID,
		ProjectID: projectID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (s *Service) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event.Event).Msg("Failed to marshal event")
		return
	}

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	locks := make([]*sync.Mutex, 0, len(s.clients))
	for conn, lock := range s.clients {
		conns = append(conns, conn)
		locks = append(locks, lock)
	}
	s.mu.RUnlock()

	for i, conn := range conns {
		locks[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		locks[i].Unlock()

		if err != nil {
			s.logger.Debug().Err(err).Msg("Dropping unresponsive event subscriber")
			s.Unregister(conn)
		}
	}
}
