package sql

import (
	"database/sql"
	"errors"
	"time"

	"postdrop/backend/internal/domain"
)

// GetSetting 读取配置项。
func (s *Store) GetSetting(key string) (string, error) {
	query := s.q(`SELECT value FROM settings WHERE ` + s.settingKeyColumn() + ` = ?`)
	var value string
	err := s.db.QueryRow(query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrSettingNotFound
	}
	return value, err
}

// SetSetting 写入配置项（upsert）。
func (s *Store) SetSetting(key, value string) error {
	now := time.Now().UTC()

	if s.driverName == "postgres" {
		query := s.q(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`)
		_, err := s.db.Exec(query, key, value, now)
		return err
	}

	query := `
		INSERT INTO settings (` + "`key`" + `, value, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)
	`
	_, err := s.db.Exec(query, key, value, now)
	return err
}

// settingKeyColumn key 在 MySQL 里是保留字，需要反引号。
func (s *Store) settingKeyColumn() string {
	if s.driverName == "mysql" {
		return "`key`"
	}
	return "key"
}
