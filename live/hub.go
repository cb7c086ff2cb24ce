package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dataponto/dataponto-backend/metrics"
	"github.com/dataponto/dataponto-backend/services"
	"github.com/dataponto/dataponto-backend/utils"
)

// Event types
const (
	EventReady  = "ready"
	EventNotice = "notice"
	EventView   = "view"
	EventError  = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// inbound is a client frame whose data is decoded once the event is known.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type NoticePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DurationMS  int64  `json:"duration_ms"`
}

type ViewPayload struct {
	Path string `json:"path"`
}

// Hub tracks the open sessions.
type Hub struct {
	sessions map[*Session]struct{}
	mutex    sync.Mutex
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[*Session]struct{})}
}

// Register wraps conn in a session for userID and starts its writer.
func (h *Hub) Register(conn *websocket.Conn, userID string) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mutex.Lock()
	h.sessions[s] = struct{}{}
	h.mutex.Unlock()
	metrics.LiveSessions.Inc()

	go s.writePump()
	s.log().Info("Live session opened")
	return s
}

// Unregister closes the session and forgets it.
func (h *Hub) Unregister(s *Session) {
	h.mutex.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mutex.Unlock()

	if ok {
		metrics.LiveSessions.Dec()
	}
	s.Close()
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.sessions)
}

// CloseAll ends every session, used on shutdown.
func (h *Hub) CloseAll() {
	h.mutex.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Session is one websocket connection of a signed-in viewer.
type Session struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte

	viewMu sync.RWMutex
	view   string

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Session) log() *logrus.Entry {
	return utils.Info(logrus.Fields{"session": s.ID, "user_id": s.UserID})
}

// Send queues msg for the writer. It reports false when the session is
// closed or too far behind, in which case the message is dropped.
func (s *Session) Send(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.Error(logrus.Fields{"session": s.ID}).Errorf("Error marshaling message: %v", err)
		return false
	}

	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	default:
		utils.Error(logrus.Fields{"session": s.ID}).Warnf("Dropping %s event, client is not reading", msg.Event)
		return false
	}
}

// Notify delivers an in-app notice.
func (s *Session) Notify(n services.Notice) {
	s.Send(Message{Event: EventNotice, Data: NoticePayload{
		Title:       n.Title,
		Description: n.Description,
		DurationMS:  n.Duration.Milliseconds(),
	}})
}

func (s *Session) CurrentView() string {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

func (s *Session) SetView(path string) {
	s.viewMu.Lock()
	s.view = path
	s.viewMu.Unlock()
}

// Done is closed once the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session; it is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.log().Info("Live session closed")
	})
}

// ReadLoop processes client frames until the connection fails or the
// session is closed.
func (s *Session) ReadLoop() {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inbound
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Error(logrus.Fields{"session": s.ID}).Warnf("Live session read error: %v", err)
			}
			return
		}

		switch frame.Event {
		case EventView:
			var view ViewPayload
			if err := json.Unmarshal(frame.Data, &view); err != nil || view.Path == "" {
				s.Send(Message{Event: EventError, Data: "invalid view payload"})
				continue
			}
			s.SetView(view.Path)
		default:
			s.Send(Message{Event: EventError, Data: "unknown event " + frame.Event})
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				utils.Error(logrus.Fields{"session": s.ID}).Warnf("Error sending message to client: %v", err)
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
