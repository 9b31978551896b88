package sql

import (
	"database/sql"
	"errors"
	"fmt"

	"postdrop/backend/internal/domain"
)

// SaveMailbox 插入邮箱，地址唯一性冲突时返回 ErrAddressTaken。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	query := s.q(`
		INSERT INTO mailboxes (id, user_id, address, password, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		mailbox.ID,
		mailbox.UserID,
		mailbox.Address,
		mailbox.Password,
		mailbox.Active,
		mailbox.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAddressTaken
	}
	return err
}

// GetMailbox 按 ID 查询邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	query := s.q(`
		SELECT id, user_id, address, password, active, created_at
		FROM mailboxes
		WHERE id = ?
	`)
	return s.scanMailbox(s.db.QueryRow(query, id))
}

// GetActiveMailboxByUserID 查询用户当前激活的邮箱。
func (s *Store) GetActiveMailboxByUserID(userID string) (*domain.Mailbox, error) {
	query := s.q(`
		SELECT id, user_id, address, password, active, created_at
		FROM mailboxes
		WHERE user_id = ? AND active = ?
		ORDER BY created_at DESC
		LIMIT 1
	`)
	return s.scanMailbox(s.db.QueryRow(query, userID, true))
}

// GetActiveMailboxByAddress 按地址查询激活邮箱（不分大小写）。
func (s *Store) GetActiveMailboxByAddress(address string) (*domain.Mailbox, error) {
	query := s.q(`
		SELECT id, user_id, address, password, active, created_at
		FROM mailboxes
		WHERE lower(address) = lower(?) AND active = ?
	`)
	return s.scanMailbox(s.db.QueryRow(query, address, true))
}

// DeactivateMailboxesByUserID 停用用户名下的全部邮箱。
func (s *Store) DeactivateMailboxesByUserID(userID string) error {
	query := s.q(`UPDATE mailboxes SET active = ? WHERE user_id = ?`)
	_, err := s.db.Exec(query, false, userID)
	return err
}

// TransferMailbox 在单个事务内停用新持有者的现有邮箱并转移目标邮箱。
func (s *Store) TransferMailbox(mailboxID, userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	deactivate := s.q(`UPDATE mailboxes SET active = ? WHERE user_id = ?`)
	if _, err := tx.Exec(deactivate, false, userID); err != nil {
		return fmt.Errorf("deactivate current mailboxes: %w", err)
	}

	transfer := s.q(`UPDATE mailboxes SET user_id = ?, active = ? WHERE id = ?`)
	result, err := tx.Exec(transfer, userID, true, mailboxID)
	if err != nil {
		return fmt.Errorf("transfer mailbox: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrMailboxNotFound
	}

	return tx.Commit()
}

func (s *Store) scanMailbox(row *sql.Row) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	var userID sql.NullString

	err := row.Scan(
		&mb.ID,
		&userID,
		&mb.Address,
		&mb.Password,
		&mb.Active,
		&mb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		mb.UserID = &userID.String
	}
	return &mb, nil
}
