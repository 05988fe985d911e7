package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Conn is the slice of the websocket connection the session needs. Satisfied
// by *websocket.Conn; tests substitute an in-memory fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Envelope is the wire frame for every realtime message, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session is one live client connection (thread-safe). Identity fields are
// set when the client joins a board and read during fan-out.
type Session struct {
	ID          string
	ConnectedAt time.Time

	mu       sync.RWMutex
	conn     Conn
	writeMu  sync.Mutex
	boardID  int64
	userID   string
	userName string
	isGuest  bool
	closed   bool
}

// New creates a session around an accepted connection.
func New(conn Conn) *Session {
	return &Session{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send marshals and writes one event frame. Serialized per connection so
// concurrent broadcasts do not interleave writes.
func (s *Session) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Join records the board and identity this session is attached to.
func (s *Session) Join(boardID int64, userID, userName string, isGuest bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.boardID = boardID
	s.userID = userID
	s.userName = userName
	s.isGuest = isGuest
}

// BoardID returns the joined board id, 0 when the session has not joined.
func (s *Session) BoardID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.boardID
}

// UserID returns the joined identity, empty when the session has not joined.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userID
}

// UserName returns the joined display name.
func (s *Session) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userName
}

// IsGuest reports whether the joined identity is ephemeral.
func (s *Session) IsGuest() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.isGuest
}

// Close closes the underlying connection once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}

// IsClosed reports whether Close has run.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.closed
}

// Duration returns how long the session has been connected.
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}
