package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postdrop/backend/internal/domain"
)

type mailboxRow struct {
	ID        string         `db:"id"`
	UserID    sql.NullString `db:"user_id"`
	Address   string         `db:"address"`
	Password  string         `db:"password"`
	Active    bool           `db:"active"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r mailboxRow) toDomain() *domain.Mailbox {
	mb := &domain.Mailbox{
		ID:        r.ID,
		Address:   r.Address,
		Password:  r.Password,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
	if r.UserID.Valid {
		uid := r.UserID.String
		mb.UserID = &uid
	}
	return mb
}

// SaveMailbox 插入邮箱，地址唯一性冲突时返回 ErrAddressTaken。
//
// 地址列是 COLLATE NOCASE，大小写只差一点的地址也会撞约束。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	_, err := s.db.Exec(`
		INSERT INTO mailboxes (id, user_id, address, password, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mailbox.ID, mailbox.UserID, mailbox.Address, mailbox.Password, mailbox.Active, mailbox.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAddressTaken
	}
	return err
}

// GetMailbox 按 ID 查询邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var row mailboxRow
	err := s.db.Get(&row, `SELECT * FROM mailboxes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetActiveMailboxByUserID 查询用户当前激活的邮箱。
func (s *Store) GetActiveMailboxByUserID(userID string) (*domain.Mailbox, error) {
	var row mailboxRow
	err := s.db.Get(&row, `
		SELECT * FROM mailboxes
		WHERE user_id = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetActiveMailboxByAddress 按地址查询激活邮箱（NOCASE 列自带不分大小写）。
func (s *Store) GetActiveMailboxByAddress(address string) (*domain.Mailbox, error) {
	var row mailboxRow
	err := s.db.Get(&row, `
		SELECT * FROM mailboxes
		WHERE address = ? AND active = 1`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// DeactivateMailboxesByUserID 停用用户名下的全部邮箱。
func (s *Store) DeactivateMailboxesByUserID(userID string) error {
	_, err := s.db.Exec(`UPDATE mailboxes SET active = 0 WHERE user_id = ?`, userID)
	return err
}

// TransferMailbox 在单个事务内停用新持有者的现有邮箱并转移目标邮箱。
func (s *Store) TransferMailbox(mailboxID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE mailboxes SET active = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deactivate current mailboxes: %w", err)
	}

	result, err := tx.Exec(`UPDATE mailboxes SET user_id = ?, active = 1 WHERE id = ?`, userID, mailboxID)
	if err != nil {
		return fmt.Errorf("transfer mailbox: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrMailboxNotFound
	}

	return tx.Commit()
}
