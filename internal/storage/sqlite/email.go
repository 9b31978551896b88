package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"postdrop/backend/internal/domain"
)

type emailRow struct {
	ID          string    `db:"id"`
	MailboxID   string    `db:"mailbox_id"`
	SenderName  string    `db:"sender_name"`
	SenderEmail string    `db:"sender_email"`
	Subject     string    `db:"subject"`
	BodyPlain   string    `db:"body_plain"`
	BodyHTML    string    `db:"body_html"`
	RawHeaders  string    `db:"raw_headers"`
	ReceivedAt  time.Time `db:"received_at"`
	IsRead      bool      `db:"is_read"`
}

func (r emailRow) toDomain() domain.Email {
	return domain.Email{
		ID:          r.ID,
		MailboxID:   r.MailboxID,
		SenderName:  r.SenderName,
		SenderEmail: r.SenderEmail,
		Subject:     r.Subject,
		BodyPlain:   r.BodyPlain,
		BodyHTML:    r.BodyHTML,
		RawHeaders:  r.RawHeaders,
		ReceivedAt:  r.ReceivedAt,
		IsRead:      r.IsRead,
	}
}

// SaveEmail 追加一封邮件。
func (s *Store) SaveEmail(email *domain.Email) error {
	_, err := s.db.Exec(`
		INSERT INTO emails (id, mailbox_id, sender_name, sender_email, subject,
		                    body_plain, body_html, raw_headers, received_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email.ID, email.MailboxID, email.SenderName, email.SenderEmail, email.Subject,
		email.BodyPlain, email.BodyHTML, email.RawHeaders, email.ReceivedAt, email.IsRead,
	)
	return err
}

// ListEmails 按收件时间倒序分页返回邮件。
func (s *Store) ListEmails(mailboxID string, limit, offset int) ([]domain.Email, error) {
	var rows []emailRow
	err := s.db.Select(&rows, `
		SELECT * FROM emails
		WHERE mailbox_id = ?
		ORDER BY received_at DESC, id DESC
		LIMIT ? OFFSET ?`, mailboxID, limit, offset)
	if err != nil {
		return nil, err
	}

	emails := make([]domain.Email, 0, len(rows))
	for _, r := range rows {
		emails = append(emails, r.toDomain())
	}
	return emails, nil
}

// CountEmails 返回邮箱内邮件总数。
func (s *Store) CountEmails(mailboxID string) (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM emails WHERE mailbox_id = ?`, mailboxID)
	return count, err
}

// GetEmail 按 ID 查询邮件。
func (s *Store) GetEmail(id string) (*domain.Email, error) {
	var row emailRow
	err := s.db.Get(&row, `SELECT * FROM emails WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	email := row.toDomain()
	return &email, nil
}

// MarkEmailRead 将邮件标记为已读。
func (s *Store) MarkEmailRead(id string) error {
	result, err := s.db.Exec(`UPDATE emails SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrEmailNotFound
	}
	return nil
}

// GetSetting 读取配置项。
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrSettingNotFound
	}
	return value, err
}

// SetSetting 写入配置项（upsert）。
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return err
}
