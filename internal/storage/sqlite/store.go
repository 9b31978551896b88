// Package sqlite 提供 domain.Store 的嵌入式 SQLite 实现，
// 适合单机部署：零运维，进程重启后数据仍在。
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动

	"postdrop/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	external_id  INTEGER NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	username     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id         TEXT PRIMARY KEY,
	user_id    TEXT REFERENCES users(id),
	address    TEXT NOT NULL COLLATE NOCASE UNIQUE,
	password   TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mailboxes_user_active ON mailboxes(user_id, active);

CREATE TABLE IF NOT EXISTS emails (
	id           TEXT PRIMARY KEY,
	mailbox_id   TEXT NOT NULL REFERENCES mailboxes(id) ON DELETE CASCADE,
	sender_name  TEXT NOT NULL DEFAULT '',
	sender_email TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	body_plain   TEXT NOT NULL DEFAULT '',
	body_html    TEXT NOT NULL DEFAULT '',
	raw_headers  TEXT NOT NULL DEFAULT '',
	received_at  TIMESTAMP NOT NULL,
	is_read      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_emails_mailbox_received ON emails(mailbox_id, received_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store SQLite 存储实现。
type Store struct {
	db *sqlx.DB
}

// NewStore 打开（必要时创建）SQLite 数据库并建表。
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "postdrop.db"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite 单写者，连接多了只会互相等锁
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	return s.db.Ping()
}

// isUniqueViolation 判定唯一约束冲突。
//
// modernc.org/sqlite 不导出结构化的错误码类型，按约定文本匹配。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// userRow 数据库行与领域模型之间的映射。
type userRow struct {
	ID          string    `db:"id"`
	ExternalID  int64     `db:"external_id"`
	DisplayName string    `db:"display_name"`
	Username    string    `db:"username"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		DisplayName: r.DisplayName,
		Username:    r.Username,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// CreateUser 插入新用户，外部标识冲突时返回 ErrUserExists。
func (s *Store) CreateUser(user *domain.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, external_id, display_name, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.ExternalID, user.DisplayName, user.Username, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	return err
}

// GetUser 按内部 ID 查询用户。
func (s *Store) GetUser(id string) (*domain.User, error) {
	var row userRow
	err := s.db.Get(&row, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetUserByExternalID 按平台标识查询用户。
func (s *Store) GetUserByExternalID(externalID int64) (*domain.User, error) {
	var row userRow
	err := s.db.Get(&row, `SELECT * FROM users WHERE external_id = ?`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// UpdateUser 更新用户资料。
func (s *Store) UpdateUser(user *domain.User) error {
	result, err := s.db.Exec(`
		UPDATE users SET display_name = ?, username = ?, updated_at = ? WHERE id = ?`,
		user.DisplayName, user.Username, user.UpdatedAt, user.ID,
	)
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
	var ids []int64
	err := s.db.Select(&ids, `SELECT external_id FROM users ORDER BY external_id`)
	return ids, err
}

// CountUsers 返回用户总数。
func (s *Store) CountUsers() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM users`)
	return count, err
}

var _ domain.Store = (*Store)(nil)
