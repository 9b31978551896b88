package sql

import (
	"database/sql"
	"errors"

	"postdrop/backend/internal/domain"
)

// CreateUser 插入新用户，外部标识冲突时返回 ErrUserExists。
func (s *Store) CreateUser(user *domain.User) error {
	query := s.q(`
		INSERT INTO users (id, external_id, display_name, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		user.ID,
		user.ExternalID,
		user.DisplayName,
		user.Username,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	return err
}

// GetUser 按内部 ID 查询用户。
func (s *Store) GetUser(id string) (*domain.User, error) {
	query := s.q(`
		SELECT id, external_id, display_name, username, created_at, updated_at
		FROM users
		WHERE id = ?
	`)
	return s.scanUser(s.db.QueryRow(query, id))
}

// GetUserByExternalID 按平台标识查询用户。
func (s *Store) GetUserByExternalID(externalID int64) (*domain.User, error) {
	query := s.q(`
		SELECT id, external_id, display_name, username, created_at, updated_at
		FROM users
		WHERE external_id = ?
	`)
	return s.scanUser(s.db.QueryRow(query, externalID))
}

// UpdateUser 更新用户资料。
func (s *Store) UpdateUser(user *domain.User) error {
	query := s.q(`
		UPDATE users
		SET display_name = ?, username = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := s.db.Exec(query, user.DisplayName, user.Username, user.UpdatedAt, user.ID)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// ListUserExternalIDs 返回全部已知用户的平台标识（升序）。
func (s *Store) ListUserExternalIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT external_id FROM users ORDER BY external_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUsers 返回用户总数。
func (s *Store) CountUsers() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (s *Store) scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.DisplayName,
		&user.Username,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
