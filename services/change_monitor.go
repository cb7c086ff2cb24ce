package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dataponto/dataponto-backend/metrics"
	"github.com/dataponto/dataponto-backend/models"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	DefaultChangePollInterval = time.Second
	DefaultChangeRetention    = 24 * time.Hour
	defaultChangeBatch        = 100
	purgeInterval             = time.Hour
	messagesTable             = "messages"
)

// ChangeMonitor polls the db_changes log written by the database triggers
// and publishes new chat messages to its subscribers. A failed poll is
// retried on the next tick, so a lost connection only delays delivery.
type ChangeMonitor struct {
	DB        *gorm.DB
	Interval  time.Duration
	BatchSize int
	// Retention is how long processed changes are kept before the purge.
	Retention time.Duration

	mu     sync.RWMutex
	subs   map[uint64]*changeSubscription
	nextID uint64

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

func NewChangeMonitor(db *gorm.DB) *ChangeMonitor {
	return &ChangeMonitor{
		DB:        db,
		Interval:  DefaultChangePollInterval,
		BatchSize: defaultChangeBatch,
		Retention: DefaultChangeRetention,
		subs:      make(map[uint64]*changeSubscription),
	}
}

func (cm *ChangeMonitor) Start(ctx context.Context) {
	cm.runMu.Lock()
	defer cm.runMu.Unlock()
	if cm.stop != nil {
		return
	}
	cm.stop = make(chan struct{})
	cm.done = make(chan struct{})

	go cm.run(ctx, cm.stop, cm.done)
}

func (cm *ChangeMonitor) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	interval := cm.Interval
	if interval <= 0 {
		interval = DefaultChangePollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	purge := time.NewTicker(purgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := cm.CheckChanges(ctx); err != nil && ctx.Err() == nil {
				utils.Error(logrus.Fields{}).Errorf("Change poll failed, retrying: %v", err)
			}
		case <-purge.C:
			if cm.Retention <= 0 {
				continue
			}
			if _, err := cm.PurgeProcessed(ctx, time.Now().Add(-cm.Retention)); err != nil && ctx.Err() == nil {
				utils.Error(logrus.Fields{}).Errorf("Change log purge failed: %v", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends polling and waits for the loop to exit.
func (cm *ChangeMonitor) Stop() {
	cm.runMu.Lock()
	stop, done := cm.stop, cm.done
	cm.stop, cm.done = nil, nil
	cm.runMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

type changeSubscription struct {
	cm      *ChangeMonitor
	id      uint64
	handler MessageHandler

	// held for reading while the handler runs
	mu     sync.RWMutex
	closed bool
}

func (s *changeSubscription) deliver(ctx context.Context, msg models.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.handler(ctx, msg)
}

// Close waits for an in-flight delivery to this subscription only; other
// subscribers keep receiving.
func (s *changeSubscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cm.mu.Lock()
	delete(s.cm.subs, s.id)
	s.cm.mu.Unlock()
}

// Subscribe registers handler for message inserts. Once Close returns the
// handler is not called again.
func (cm *ChangeMonitor) Subscribe(handler MessageHandler) Subscription {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.nextID++
	sub := &changeSubscription{cm: cm, id: cm.nextID, handler: handler}
	cm.subs[sub.id] = sub
	return sub
}

// Subscribers returns the number of registered handlers.
func (cm *ChangeMonitor) Subscribers() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.subs)
}

// CheckChanges claims and publishes one batch of unprocessed changes and
// returns how many it claimed. A change is claimed before it is published,
// so a second monitor on the same database never publishes it again. The
// message is loaded before the claim; if that fails the change stays
// unprocessed and the error is returned, so the next tick retries it.
func (cm *ChangeMonitor) CheckChanges(ctx context.Context) (int, error) {
	batch := cm.BatchSize
	if batch <= 0 {
		batch = defaultChangeBatch
	}

	var changes []models.DBChange
	err := cm.DB.WithContext(ctx).
		Where("processed = ?", false).
		Order("changed_at ASC").
		Order("id ASC").
		Limit(batch).
		Find(&changes).Error
	if err != nil {
		return 0, fmt.Errorf("fetch changes: %w", err)
	}

	claimed := 0
	for _, change := range changes {
		msg, publish, err := cm.loadMessage(ctx, change)
		if err != nil {
			return claimed, err
		}

		res := cm.DB.WithContext(ctx).
			Model(&models.DBChange{}).
			Where("id = ? AND processed = ?", change.ID, false).
			Update("processed", true)
		if res.Error != nil {
			return claimed, fmt.Errorf("mark change %d processed: %w", change.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		claimed++
		metrics.ChangesProcessed.WithLabelValues(change.TableName).Inc()

		if publish {
			cm.publish(ctx, msg)
		}
	}

	if claimed > 0 {
		utils.Info(logrus.Fields{}).Debugf("Processed %d changes", claimed)
	}
	return claimed, nil
}

// loadMessage resolves the message a change refers to. It reports false
// for changes that publish nothing: other tables, other actions and
// messages deleted before the poll.
func (cm *ChangeMonitor) loadMessage(ctx context.Context, change models.DBChange) (models.Message, bool, error) {
	var msg models.Message
	if change.TableName != messagesTable || change.ActionType != models.ChangeInsert {
		return msg, false, nil
	}

	err := cm.DB.WithContext(ctx).First(&msg, "id = ?", change.RecordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// deleted before we got to it
		return msg, false, nil
	}
	if err != nil {
		utils.Error(logrus.Fields{"message": change.RecordID}).Errorf("Error fetching message: %v", err)
		return msg, false, fmt.Errorf("fetch message %s: %w", change.RecordID, err)
	}
	return msg, true, nil
}

// PurgeProcessed deletes processed changes recorded before cutoff and
// returns how many were removed. Unprocessed changes are never purged.
func (cm *ChangeMonitor) PurgeProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	res := cm.DB.WithContext(ctx).
		Where("processed = ? AND changed_at < ?", true, cutoff.UTC()).
		Delete(&models.DBChange{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge changes: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		utils.Info(logrus.Fields{}).Infof("Purged %d processed changes", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// publish hands msg to a snapshot of the subscribers, outside the monitor
// lock, so a slow handler never blocks Subscribe or another Close.
func (cm *ChangeMonitor) publish(ctx context.Context, msg models.Message) {
	cm.mu.RLock()
	subs := make([]*changeSubscription, 0, len(cm.subs))
	for _, sub := range cm.subs {
		subs = append(subs, sub)
	}
	cm.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, sub := range subs {
		sub.deliver(ctx, msg)
	}
}
