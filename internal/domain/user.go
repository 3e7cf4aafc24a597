package domain

import (
	"time"
)

type User struct {
	ID         int64      `json:"id" db:"id"`
	TelegramID int64      `json:"telegram_id" db:"telegram_id"`
	Username   *string    `json:"username,omitempty" db:"username"`
	FirstName  string     `json:"first_name" db:"first_name"`
	LastName   *string    `json:"last_name,omitempty" db:"last_name"`
	IsAdmin    bool       `json:"is_admin" db:"is_admin"`
	IsBlocked  bool       `json:"is_blocked" db:"is_blocked"`
	BlockedAt  *time.Time `json:"blocked_at,omitempty" db:"blocked_at"`
	BlockedBy  *int64     `json:"blocked_by,omitempty" db:"blocked_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// DisplayName имя для упоминания в сообщениях: @username либо first_name
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	return u.FirstName
}
