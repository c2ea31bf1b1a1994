package entity

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// NotificationPreferences mirrors the jsonb preference blob stored per user.
// AlertsEnabled is a tri-state: unset means enabled.
type NotificationPreferences struct {
	AlertsEnabled *bool `json:"alerts_enabled"`
}

// User is a JetPredict account as seen by the dispatcher. The account system
// owns these rows; the dispatcher only reads them.
type User struct {
	ID                      string         `gorm:"primaryKey" json:"id"`
	DisplayName             string         `json:"display_name"`
	PushToken               *string        `json:"push_token"`
	TelegramChatID          *int64         `json:"telegram_chat_id"`
	NotificationPreferences datatypes.JSON `gorm:"type:jsonb" json:"notification_preferences"`
	CreatedAt               time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// AlertsEnabled reports whether prediction alerts are enabled for the user.
// Missing or unparseable preferences default to enabled; only an explicit
// false opts the user out.
func (u *User) AlertsEnabled() bool {
	if len(u.NotificationPreferences) == 0 {
		return true
	}
	var prefs NotificationPreferences
	if err := json.Unmarshal(u.NotificationPreferences, &prefs); err != nil {
		return true
	}
	if prefs.AlertsEnabled == nil {
		return true
	}
	return *prefs.AlertsEnabled
}

// HasPushToken reports whether the user has a usable push delivery token.
func (u *User) HasPushToken() bool {
	return u.PushToken != nil && *u.PushToken != ""
}

// HasTelegramChat reports whether the user has linked a Telegram account.
func (u *User) HasTelegramChat() bool {
	return u.TelegramChatID != nil && *u.TelegramChatID != 0
}
