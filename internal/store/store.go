package store

import (
	"strconv"

	"github.com/silamd/wabothub/internal/domain"
	"github.com/silamd/wabothub/pkg/common"
	"github.com/spf13/cast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settings is one number's configuration, assembled from bot_settings rows
// overlaid on defaults. Reading never writes, so repeated reads are stable.
type Settings struct {
	WorkType       string `json:"worktype"`
	AutoRead       bool   `json:"autoread"`
	Online         bool   `json:"online"`
	AutoViewStatus bool   `json:"autoswview"`
	AutoLikeStatus bool   `json:"autoswlike"`
	WelcomeMessage string `json:"welcome_message"`
	GoodbyeMessage string `json:"goodbye_message"`
}

const (
	KeyWorkType       = "worktype"
	KeyAutoRead       = "autoread"
	KeyOnline         = "online"
	KeyAutoViewStatus = "autoswview"
	KeyAutoLikeStatus = "autoswlike"
	KeyWelcomeMessage = "welcome_message"
	KeyGoodbyeMessage = "goodbye_message"
)

func DefaultSettings() Settings {
	return Settings{
		WorkType:       "public",
		AutoRead:       true,
		Online:         true,
		AutoViewStatus: true,
		AutoLikeStatus: true,
	}
}

// Store persists per-number settings and session records.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetSettings returns the number's settings merged with defaults. Numbers
// without any rows get pure defaults; unknown row names are ignored.
func (s *Store) GetSettings(number string) (Settings, error) {
	number = common.SanitizeNumber(number)
	settings := DefaultSettings()

	var rows []domain.BotSettingsKV
	if err := s.db.Where("number = ?", number).Find(&rows).Error; err != nil {
		return settings, err
	}

	for _, row := range rows {
		switch row.Name {
		case KeyWorkType:
			settings.WorkType = row.Value
		case KeyAutoRead:
			settings.AutoRead = cast.ToBool(row.Value)
		case KeyOnline:
			settings.Online = cast.ToBool(row.Value)
		case KeyAutoViewStatus:
			settings.AutoViewStatus = cast.ToBool(row.Value)
		case KeyAutoLikeStatus:
			settings.AutoLikeStatus = cast.ToBool(row.Value)
		case KeyWelcomeMessage:
			settings.WelcomeMessage = row.Value
		case KeyGoodbyeMessage:
			settings.GoodbyeMessage = row.Value
		}
	}
	return settings, nil
}

// SaveSettings upserts the given name/value pairs for the number. Names not
// present in patch keep their stored (or default) values.
func (s *Store) SaveSettings(number string, patch map[string]string) error {
	number = common.SanitizeNumber(number)
	for name, value := range patch {
		row := domain.BotSettingsKV{
			ID:     common.UUIDint64(),
			Number: number,
			Name:   name,
			Value:  value,
		}
		err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "number"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// BoolValue formats a bool the way settings rows store it.
func BoolValue(v bool) string {
	return strconv.FormatBool(v)
}

// UpsertSession records the session id for a number, replacing any previous
// record. Called once a connection reaches the open state with durably
// archived credentials.
func (s *Store) UpsertSession(number, jid, sessionID string) error {
	number = common.SanitizeNumber(number)
	row := domain.BotSession{
		ID:        common.UUIDint64(),
		Number:    number,
		Jid:       jid,
		SessionID: sessionID,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{"jid", "session_id", "updated_at"}),
	}).Create(&row).Error
}

// ListSessions returns every known session record.
func (s *Store) ListSessions() ([]domain.BotSession, error) {
	var sessions []domain.BotSession
	err := s.db.Order("number").Find(&sessions).Error
	return sessions, err
}

// DeleteSession removes the session record for a number, if any.
func (s *Store) DeleteSession(number string) error {
	number = common.SanitizeNumber(number)
	return s.db.Where("number = ?", number).Delete(&domain.BotSession{}).Error
}
