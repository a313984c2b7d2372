package models

import "time"

// User owns chat and diary messages.
type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"size:150;not null;uniqueIndex"`
	CreatedAt time.Time
}

// Session is a browser-style login session. Token travels in the sessionid
// cookie, CSRFToken in the csrftoken cookie and X-CSRFToken header.
type Session struct {
	Token     string `gorm:"primaryKey;size:64"`
	UserID    uint   `gorm:"not null;index"`
	CSRFToken string `gorm:"size:64;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`

	User User `gorm:"foreignKey:UserID"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
