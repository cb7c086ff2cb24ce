package controllers_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dataponto/dataponto-backend/controllers"
	"github.com/dataponto/dataponto-backend/live"
	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/repository"
	"github.com/dataponto/dataponto-backend/services"
)

type pushLog struct {
	mu   sync.Mutex
	reqs []services.DispatchRequest
}

func (p *pushLog) Push(ctx context.Context, req services.DispatchRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return nil
}

func (p *pushLog) All() []services.DispatchRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]services.DispatchRequest(nil), p.reqs...)
}

type liveFixture struct {
	db      *gorm.DB
	monitor *services.ChangeMonitor
	hub     *live.Hub
	pushes  *pushLog
	server  *httptest.Server
}

func setupLiveServer(t *testing.T) *liveFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &liveFixture{
		db:      db,
		monitor: services.NewChangeMonitor(db),
		hub:     live.NewHub(),
		pushes:  &pushLog{},
	}
	center := &services.NotificationCenter{
		Store:            repository.NewStore(db),
		Feed:             f.monitor,
		Pusher:           f.pushes,
		Location:         time.UTC,
		ReminderInterval: time.Hour,
	}
	ctrl := controllers.NewLiveController(context.Background(), f.hub, center, []string{"*"})

	router := gin.New()
	router.GET("/ws", asViewer(viewerID), ctrl.Connect)
	f.server = httptest.NewServer(router)
	t.Cleanup(func() {
		f.hub.CloseAll()
		f.server.Close()
	})
	return f
}

func (f *liveFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (f frame) field(key string) interface{} {
	m, _ := f.Data.(map[string]interface{})
	return m[key]
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

func TestLiveSessionDeliversMessageNotices(t *testing.T) {
	f := setupLiveServer(t)
	name := "Ana"
	require.NoError(t, f.db.Create(&models.Profile{UserID: otherID, DisplayName: &name}).Error)

	conn := f.dial(t, "?view=/agenda")
	ready := readFrame(t, conn)
	assert.Equal(t, live.EventReady, ready.Event)
	assert.Equal(t, true, ready.field("notifications"))
	assert.NotEmpty(t, ready.field("session_id"))

	require.Eventually(t, func() bool { return f.monitor.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.db.Create(&models.Message{SenderID: otherID, Content: "Chegou o orçamento"}).Error)
	_, err := f.monitor.CheckChanges(context.Background())
	require.NoError(t, err)

	notice := readFrame(t, conn)
	assert.Equal(t, live.EventNotice, notice.Event)
	assert.Equal(t, "💬 Nova mensagem de Ana", notice.field("title"))
	assert.Equal(t, "Chegou o orçamento", notice.field("description"))
	assert.Equal(t, float64(8000), notice.field("duration_ms"))

	pushes := f.pushes.All()
	require.Len(t, pushes, 1)
	assert.Equal(t, otherID, pushes[0].SenderID)
	assert.Equal(t, services.TypeMessage, pushes[0].Type)
}

func TestLiveSessionTracksView(t *testing.T) {
	f := setupLiveServer(t)
	conn := f.dial(t, "")
	readFrame(t, conn)
	require.Eventually(t, func() bool { return f.monitor.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(live.Message{Event: live.EventView, Data: live.ViewPayload{Path: "/chat"}}))
	// an unknown event is answered, which also orders it after the view change
	require.NoError(t, conn.WriteJSON(live.Message{Event: "typing"}))
	assert.Equal(t, live.EventError, readFrame(t, conn).Event)

	require.NoError(t, f.db.Create(&models.Message{SenderID: otherID, Content: "já viu?"}).Error)
	_, err := f.monitor.CheckChanges(context.Background())
	require.NoError(t, err)

	// on the chat page the toast is suppressed but the push still goes out
	assert.Len(t, f.pushes.All(), 1)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var fr frame
	assert.Error(t, conn.ReadJSON(&fr))
}

func TestLiveSessionTeardownOnDisconnect(t *testing.T) {
	f := setupLiveServer(t)
	conn := f.dial(t, "")
	readFrame(t, conn)
	require.Eventually(t, func() bool { return f.monitor.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.hub.Count())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return f.monitor.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLiveSessionWithNotificationsOff(t *testing.T) {
	f := setupLiveServer(t)
	conn := f.dial(t, "?notifications=off")

	ready := readFrame(t, conn)
	assert.Equal(t, false, ready.field("notifications"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.monitor.Subscribers())
}
