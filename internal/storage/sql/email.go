package sql

import (
	"database/sql"
	"errors"

	"postdrop/backend/internal/domain"
)

// SaveEmail 追加一封邮件。
func (s *Store) SaveEmail(email *domain.Email) error {
	query := s.q(`
		INSERT INTO emails (id, mailbox_id, sender_name, sender_email, subject,
		                    body_plain, body_html, raw_headers, received_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		email.ID,
		email.MailboxID,
		email.SenderName,
		email.SenderEmail,
		email.Subject,
		email.BodyPlain,
		email.BodyHTML,
		email.RawHeaders,
		email.ReceivedAt,
		email.IsRead,
	)
	return err
}

// ListEmails 按收件时间倒序分页返回邮件。
func (s *Store) ListEmails(mailboxID string, limit, offset int) ([]domain.Email, error) {
	query := s.q(`
		SELECT id, mailbox_id, sender_name, sender_email, subject,
		       body_plain, body_html, raw_headers, received_at, is_read
		FROM emails
		WHERE mailbox_id = ?
		ORDER BY received_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)
	rows, err := s.db.Query(query, mailboxID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []domain.Email{}
	for rows.Next() {
		var e domain.Email
		if err := rows.Scan(
			&e.ID,
			&e.MailboxID,
			&e.SenderName,
			&e.SenderEmail,
			&e.Subject,
			&e.BodyPlain,
			&e.BodyHTML,
			&e.RawHeaders,
			&e.ReceivedAt,
			&e.IsRead,
		); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// CountEmails 返回邮箱内邮件总数。
func (s *Store) CountEmails(mailboxID string) (int, error) {
	query := s.q(`SELECT COUNT(*) FROM emails WHERE mailbox_id = ?`)
	var count int
	err := s.db.QueryRow(query, mailboxID).Scan(&count)
	return count, err
}

// GetEmail 按 ID 查询邮件。
func (s *Store) GetEmail(id string) (*domain.Email, error) {
	query := s.q(`
		SELECT id, mailbox_id, sender_name, sender_email, subject,
		       body_plain, body_html, raw_headers, received_at, is_read
		FROM emails
		WHERE id = ?
	`)
	var e domain.Email
	err := s.db.QueryRow(query, id).Scan(
		&e.ID,
		&e.MailboxID,
		&e.SenderName,
		&e.SenderEmail,
		&e.Subject,
		&e.BodyPlain,
		&e.BodyHTML,
		&e.RawHeaders,
		&e.ReceivedAt,
		&e.IsRead,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkEmailRead 将邮件标记为已读。
func (s *Store) MarkEmailRead(id string) error {
	query := s.q(`UPDATE emails SET is_read = ? WHERE id = ?`)
	result, err := s.db.Exec(query, true, id)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrEmailNotFound
	}
	return nil
}
