package domain

import "time"

// BotSession maps a managed number to the opaque session id pointing at its
// archived (SESSION-ID~) or local (LOCAL~) credential bundle. Upserted once a
// connection reaches the open state; read back by the bootstrapper on start.
type BotSession struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Number    string    `json:"number" gorm:"uniqueIndex"`
	Jid       string    `json:"jid"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BotSession) TableName() string {
	return "bot_session"
}

// BotSettingsKV holds one per-number setting as a name/value row. Missing
// names fall back to defaults on read, so new settings merge forward without
// migrations.
type BotSettingsKV struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Number    string    `json:"number" gorm:"index:idx_bot_settings_number_name,unique"`
	Name      string    `json:"name" gorm:"index:idx_bot_settings_number_name,unique"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BotSettingsKV) TableName() string {
	return "bot_settings"
}
