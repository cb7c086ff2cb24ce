package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dataponto/dataponto-backend/models"
)

// Store reads the workspace tables on behalf of one viewer. Ownership
// scoping follows the row-level rules of the hosted database: projects and
// appointments by user_id, goals by created_by.
type Store struct {
	db *gorm.DB
	// Shared disables owner scoping for single-household deployments.
	Shared bool
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) scoped(ctx context.Context, column, viewer string) *gorm.DB {
	tx := s.db.WithContext(ctx)
	if !s.Shared {
		tx = tx.Where(column+" = ?", viewer)
	}
	return tx
}

// OpenProjects returns the viewer's projects that have a due date and are
// not completed.
func (s *Store) OpenProjects(ctx context.Context, viewer string) ([]models.Project, error) {
	var projects []models.Project
	err := s.scoped(ctx, "user_id", viewer).
		Where("due_date IS NOT NULL").
		Where("status <> ?", models.ProjectStatusCompleted).
		Order("created_at ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	return projects, nil
}

// UpcomingAppointments returns appointments dated today or later.
func (s *Store) UpcomingAppointments(ctx context.Context, viewer, today string) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := s.scoped(ctx, "user_id", viewer).
		Where("appointment_date >= ?", today).
		Order("appointment_date ASC").
		Order("start_time ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return appointments, nil
}

// OpenGoals returns goals that are not completed.
func (s *Store) OpenGoals(ctx context.Context, viewer string) ([]models.Goal, error) {
	var goals []models.Goal
	err := s.scoped(ctx, "created_by", viewer).
		Where("status <> ?", models.GoalStatusCompleted).
		Order("created_at ASC").
		Find(&goals).Error
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	return goals, nil
}

// DueReminders returns the appointments of date that ask for a reminder
// and have not started before clock ("HH:MM").
func (s *Store) DueReminders(ctx context.Context, viewer, date, clock string) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := s.scoped(ctx, "user_id", viewer).
		Where("appointment_date = ?", date).
		Where("reminder_minutes IS NOT NULL").
		Where("start_time >= ?", clock).
		Order("start_time ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	return appointments, nil
}

// DisplayName looks up a user's display name. It returns "" without error
// when the user has no profile or no name.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query profile: %w", err)
	}
	if profile.DisplayName == nil {
		return "", nil
	}
	return *profile.DisplayName, nil
}

// Message loads one chat message.
func (s *Store) Message(ctx context.Context, id string) (models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return msg, fmt.Errorf("query message %s: %w", id, err)
	}
	return msg, nil
}

// Subscriptions returns every push subscription, leaving out the rows of
// excludeUserID when it is not empty.
func (s *Store) Subscriptions(ctx context.Context, excludeUserID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	tx := s.db.WithContext(ctx).Order("created_at ASC")
	if excludeUserID != "" {
		tx = tx.Where("user_id <> ?", excludeUserID)
	}
	if err := tx.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	return subs, nil
}

// DeleteSubscription removes a subscription by id.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.PushSubscription{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete push subscription %s: %w", id, err)
	}
	return nil
}

// UpsertSubscription creates the (user_id, endpoint) row or refreshes its
// keys.
func (s *Store) UpsertSubscription(ctx context.Context, sub *models.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	// on conflict the stored row keeps its original id
	var stored models.PushSubscription
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", sub.UserID, sub.Endpoint).
		First(&stored).Error
	if err != nil {
		return fmt.Errorf("reload push subscription: %w", err)
	}
	*sub = stored
	return nil
}

// DeleteUserSubscription removes one of the user's endpoints. It reports
// whether a row was removed.
func (s *Store) DeleteUserSubscription(ctx context.Context, userID, endpoint string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return false, fmt.Errorf("delete push subscription: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
