package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/repository"
)

type recordingSink struct {
	recordingNotifier
	mu   sync.Mutex
	view string
}

func (s *recordingSink) CurrentView() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func TestNotificationCenterArmsAndTearsDown(t *testing.T) {
	db := openMigratedDB(t)
	store := repository.NewStore(db)
	monitor := NewChangeMonitor(db)
	pusher := &recordingPusher{}

	viewer := "1d7a1f64-1111-4c1e-9d77-3d4b1c2e5f60"
	now := time.Now().In(time.UTC)
	start := now.Add(5 * time.Minute)
	if start.Day() != now.Day() {
		t.Skip("reminder window crosses midnight")
	}
	require.NoError(t, db.Create(&models.Appointment{
		Title:           "Standup",
		AppointmentDate: now.Format(models.DateLayout),
		StartTime:       start.Format("15:04:00"),
		ReminderMinutes: intPtr(15),
		UserID:          viewer,
	}).Error)

	nc := &NotificationCenter{Store: store, Feed: monitor, Pusher: pusher, Location: time.UTC, ReminderInterval: time.Hour}
	sink := &recordingSink{view: "/dashboard"}
	teardown := nc.Enable(context.Background(), viewer, sink)

	// the poller evaluates once on arm
	assert.Eventually(t, func() bool { return len(sink.All()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, monitor.Subscribers())

	require.NoError(t, db.Create(&models.Message{SenderID: "someone-else", Content: "olá"}).Error)
	_, err := monitor.CheckChanges(context.Background())
	require.NoError(t, err)

	notices := sink.All()
	require.Len(t, notices, 2)
	assert.Equal(t, "💬 Nova mensagem de Alguém", notices[1].Title)
	assert.Len(t, pusher.All(), 2)

	teardown()
	assert.Zero(t, monitor.Subscribers())

	require.NoError(t, db.Create(&models.Message{SenderID: "someone-else", Content: "again"}).Error)
	_, err = monitor.CheckChanges(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.All(), 2)
}
