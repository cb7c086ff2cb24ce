package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dataponto/dataponto-backend/config"
	"github.com/dataponto/dataponto-backend/database"
	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/services"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	viewerID = "0b9f6a52-8c1e-4d3a-9f7b-2e6c4a1d5b70"
	otherID  = "7c2d9e14-3a5b-4f6c-8d7e-1a2b3c4d5e6f"
	anonKey  = "anon-key"
	adminKey = "service-role-key"
)

func TestMain(m *testing.M) {
	utils.InitLogger() // ✅ Ensure logger is ready for tests
	utils.SetJWTSecret("integration-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// pushEndpoint stands in for the browser vendors' push services.
type pushEndpoint struct {
	mu       sync.Mutex
	payloads map[string][]services.PushPayload
}

func (p *pushEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload services.PushPayload
	_ = json.NewDecoder(r.Body).Decode(&payload)
	p.mu.Lock()
	p.payloads[r.URL.Path] = append(p.payloads[r.URL.Path], payload)
	p.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (p *pushEndpoint) received(path string) []services.PushPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]services.PushPayload(nil), p.payloads[path]...)
}

func setupTestApp(t *testing.T) (*App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	conf := config.Config{
		Environment:            "test",
		SupabaseAnonKey:        anonKey,
		SupabaseServiceRoleKey: adminKey,
		PushTTL:                60,
		PushWorkers:            2,
		PushTimeout:            2 * time.Second,
		ReminderInterval:       time.Hour,
		ChangePollInterval:     time.Hour,
		Timezone:               "UTC",
		RateLimitRPS:           100,
		CORSOrigins:            "*",
	}
	app := NewApp(conf, db)
	t.Cleanup(func() {
		app.Shutdown()
		sqlDB.Close()
	})
	return app, db
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := utils.GenerateToken(userID, "authenticated", time.Hour)
	require.NoError(t, err)
	return token
}

func call(t *testing.T, h http.Handler, method, url string, headers map[string]string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestEndToEndIntegration menguji flow utama:
// 1. Dua user mendaftarkan browser untuk push
// 2. Ambil deadline milik viewer
// 3. Kirim push lewat function key
// 4. Sesi live menerima notice pesan baru lalu memicu push
func TestEndToEndIntegration(t *testing.T) {
	app, db := setupTestApp(t)
	endpoint := &pushEndpoint{payloads: map[string][]services.PushPayload{}}
	pushSrv := httptest.NewServer(endpoint)
	defer pushSrv.Close()

	// 1. Subscriptions
	for _, user := range []string{viewerID, otherID} {
		w := call(t, app.Router, "POST", "/api/push/subscriptions",
			map[string]string{"Authorization": "Bearer " + bearer(t, user)},
			map[string]interface{}{
				"endpoint": pushSrv.URL + "/" + user,
				"keys":     map[string]string{"p256dh": "p", "auth": "a"},
			})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	// 2. Deadlines
	today := time.Now().UTC().Format(models.DateLayout)
	require.NoError(t, db.Create(&models.Goal{Title: "Fechar trimestre", DueDate: today, CreatedBy: viewerID}).Error)
	w := call(t, app.Router, "GET", "/api/deadlines?filter=today",
		map[string]string{"Authorization": "Bearer " + bearer(t, viewerID)}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Fechar trimestre")
	assert.Contains(t, w.Body.String(), `"route":"/metas"`)

	w = call(t, app.Router, "GET", "/api/deadlines", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 3. Function endpoint
	w = call(t, app.Router, "POST", "/functions/v1/send-push-notification",
		map[string]string{"apikey": anonKey},
		map[string]string{"title": "📅 Compromisso chegando!", "body": "\"Standup\" começa agora!", "sender_id": viewerID, "type": "appointment"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dispatch struct {
		Results []string `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dispatch))
	require.Len(t, dispatch.Results, 1)
	assert.True(t, strings.HasPrefix(dispatch.Results[0], "Sent to "))

	got := endpoint.received("/" + otherID)
	require.Len(t, got, 1)
	assert.Equal(t, "/agenda", got[0].URL)
	assert.Empty(t, endpoint.received("/"+viewerID))

	w = call(t, app.Router, "POST", "/functions/v1/send-push-notification", map[string]string{"apikey": "wrong"}, map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 4. Live session
	srv := httptest.NewServer(app.Router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?view=/dashboard&token=" + bearer(t, viewerID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "ready", frame.Event)
	require.Eventually(t, func() bool { return app.Monitor.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, db.Create(&models.Message{SenderID: otherID, Content: "Reunião confirmada"}).Error)
	_, err = app.Monitor.CheckChanges(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "notice", frame.Event)
	assert.Equal(t, "💬 Nova mensagem de Alguém", frame.Data["title"])

	app.Pusher.Wait()
	got = endpoint.received("/" + viewerID)
	require.Len(t, got, 1)
	assert.Equal(t, "/chat", got[0].URL)
	assert.Equal(t, "Reunião confirmada", got[0].Body)
}

func TestFunctionRolesAndPublicRoutes(t *testing.T) {
	app, _ := setupTestApp(t)

	w := call(t, app.Router, "POST", "/functions/v1/generate-vapid-keys", map[string]string{"apikey": anonKey}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, app.Router, "POST", "/functions/v1/generate-vapid-keys", map[string]string{"Authorization": "Bearer " + adminKey}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "publicKey")

	w = call(t, app.Router, "GET", "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, app.Router, "GET", "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dataponto_live_sessions")
}
