package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/mhai/internal/models"
	"gorm.io/gorm"
)

// historyLimit caps how many earlier exchanges are handed to the responder.
const historyLimit = 10

func listMessages(db *gorm.DB, surface string, userID uint, since *uint) ([]models.Message, error) {
	q := db.Where("surface = ? AND user_id = ?", surface, userID)
	if since != nil {
		q = q.Where("id > ?", *since)
	}
	var msgs []models.Message
	if err := q.Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list %s messages: %w", surface, err)
	}
	return msgs, nil
}

func getMessage(db *gorm.DB, id uint) (*models.Message, error) {
	var m models.Message
	if err := db.First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return &m, nil
}

// recentHistory returns the answered exchanges preceding id, oldest first.
func recentHistory(db *gorm.DB, m *models.Message) ([]models.Message, error) {
	var msgs []models.Message
	err := db.Where("surface = ? AND user_id = ? AND id < ? AND response <> ?", m.Surface, m.UserID, m.ID, "").
		Order("id DESC").Limit(historyLimit).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("history for message %d: %w", m.ID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func markInProgress(db *gorm.DB, id uint) error {
	return db.Model(&models.Message{}).
		Where("id = ? AND status = ?", id, models.StatusStarted).
		Update("status", models.StatusInProgress).Error
}

// finishMessage stores the response unless one is already present. A message
// is answered at most once; it reports whether this call answered it.
func finishMessage(db *gorm.DB, id uint, response, status string, at time.Time) (bool, error) {
	res := db.Model(&models.Message{}).
		Where("id = ? AND (response IS NULL OR response = ?)", id, "").
		Updates(map[string]any{
			"response":           response,
			"status":             status,
			"response_timestamp": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("finish message %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// staleMessages returns unanswered messages prompted before cutoff.
func staleMessages(db *gorm.DB, cutoff time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := db.Where("status IN ? AND (response IS NULL OR response = ?) AND prompt_timestamp < ?",
		[]string{models.StatusStarted, models.StatusInProgress}, "", cutoff).
		Order("id ASC").Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("find stale messages: %w", err)
	}
	return msgs, nil
}

func findOrCreateUser(db *gorm.DB, username string) (*models.User, error) {
	var u models.User
	err := db.Where("username = ?", username).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	u = models.User{Username: username}
	if err := db.Create(&u).Error; err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}
	return &u, nil
}

func findSession(db *gorm.DB, token string) (*models.Session, error) {
	var sess models.Session
	if err := db.Preload("User").Where("token = ?", token).First(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

func deleteSession(db *gorm.DB, token string) error {
	return db.Where("token = ?", token).Delete(&models.Session{}).Error
}

func deleteExpiredSessions(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Where("expires_at < ?", now).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
