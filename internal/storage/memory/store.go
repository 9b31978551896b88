// Package memory 提供 domain.Store 的内存实现，用于开发环境和测试。
package memory

import (
	"sort"
	"strings"
	"sync"

	"postdrop/backend/internal/domain"
)

// Store 内存存储实现。
//
// 所有方法在单把互斥锁下执行，地址唯一性与转移的原子性
// 直接由锁保证，对外语义与数据库实现一致。
type Store struct {
	mu sync.Mutex

	users     map[string]*domain.User    // id -> user
	byExtID   map[int64]string           // externalID -> user id
	mailboxes map[string]*domain.Mailbox // id -> mailbox
	emails    map[string]*domain.Email   // id -> email
	settings  map[string]string
}

// NewStore 创建内存存储。
func NewStore() *Store {
	return &Store{
		users:     make(map[string]*domain.User),
		byExtID:   make(map[int64]string),
		mailboxes: make(map[string]*domain.Mailbox),
		emails:    make(map[string]*domain.Email),
		settings:  make(map[string]string),
	}
}

// CreateUser 插入新用户，外部标识冲突时返回 ErrUserExists。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byExtID[user.ExternalID]; ok {
		return domain.ErrUserExists
	}

	clone := *user
	s.users[user.ID] = &clone
	s.byExtID[user.ExternalID] = user.ID
	return nil
}

// GetUser 按内部 ID 查询用户。
func (s *Store) GetUser(id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetUserByExternalID 按平台标识查询用户。
func (s *Store) GetUserByExternalID(externalID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExtID[externalID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// UpdateUser 更新用户资料。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	stored.DisplayName = user.DisplayName
	stored.Username = user.Username
	stored.UpdatedAt = user.UpdatedAt
	return nil
}

// ListUserExternalIDs 返回全部已知用户的平台标识（升序，保证遍历稳定）。
func (s *Store) ListUserExternalIDs() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.byExtID))
	for extID := range s.byExtID {
		ids = append(ids, extID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CountUsers 返回用户总数。
func (s *Store) CountUsers() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

// SaveMailbox 插入邮箱，地址冲突（不分大小写）时返回 ErrAddressTaken。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := strings.ToLower(mailbox.Address)
	for _, mb := range s.mailboxes {
		if mb.ID != mailbox.ID && strings.ToLower(mb.Address) == address {
			return domain.ErrAddressTaken
		}
	}

	clone := *mailbox
	if mailbox.UserID != nil {
		uid := *mailbox.UserID
		clone.UserID = &uid
	}
	s.mailboxes[mailbox.ID] = &clone
	return nil
}

// GetMailbox 按 ID 查询邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return nil, domain.ErrMailboxNotFound
	}
	return cloneMailbox(mb), nil
}

// GetActiveMailboxByUserID 查询用户当前激活的邮箱。
func (s *Store) GetActiveMailboxByUserID(userID string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mb := range s.mailboxes {
		if mb.Active && mb.UserID != nil && *mb.UserID == userID {
			return cloneMailbox(mb), nil
		}
	}
	return nil, domain.ErrMailboxNotFound
}

// GetActiveMailboxByAddress 按地址查询激活邮箱（不分大小写）。
func (s *Store) GetActiveMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address = strings.ToLower(strings.TrimSpace(address))
	for _, mb := range s.mailboxes {
		if mb.Active && strings.ToLower(mb.Address) == address {
			return cloneMailbox(mb), nil
		}
	}
	return nil, domain.ErrMailboxNotFound
}

// DeactivateMailboxesByUserID 停用用户名下的全部邮箱。
func (s *Store) DeactivateMailboxesByUserID(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deactivateLocked(userID)
	return nil
}

// TransferMailbox 原子地把邮箱转移到新用户名下并激活。
func (s *Store) TransferMailbox(mailboxID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[mailboxID]
	if !ok {
		return domain.ErrMailboxNotFound
	}

	s.deactivateLocked(userID)

	uid := userID
	mb.UserID = &uid
	mb.Active = true
	return nil
}

func (s *Store) deactivateLocked(userID string) {
	for _, mb := range s.mailboxes {
		if mb.UserID != nil && *mb.UserID == userID {
			mb.Active = false
		}
	}
}

// SaveEmail 追加一封邮件。
func (s *Store) SaveEmail(email *domain.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *email
	s.emails[email.ID] = &clone
	return nil
}

// ListEmails 按收件时间倒序分页返回邮件。
func (s *Store) ListEmails(mailboxID string, limit, offset int) ([]domain.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.Email
	for _, e := range s.emails {
		if e.MailboxID == mailboxID {
			all = append(all, *e)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ReceivedAt.Equal(all[j].ReceivedAt) {
			return all[i].ReceivedAt.After(all[j].ReceivedAt)
		}
		return all[i].ID > all[j].ID
	})

	if offset >= len(all) {
		return []domain.Email{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// CountEmails 返回邮箱内邮件总数。
func (s *Store) CountEmails(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.emails {
		if e.MailboxID == mailboxID {
			count++
		}
	}
	return count, nil
}

// GetEmail 按 ID 查询邮件。
func (s *Store) GetEmail(id string) (*domain.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.emails[id]
	if !ok {
		return nil, domain.ErrEmailNotFound
	}
	clone := *e
	return &clone, nil
}

// MarkEmailRead 将邮件标记为已读。
func (s *Store) MarkEmailRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.emails[id]
	if !ok {
		return domain.ErrEmailNotFound
	}
	e.IsRead = true
	return nil
}

// GetSetting 读取配置项。
func (s *Store) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.settings[key]
	if !ok {
		return "", domain.ErrSettingNotFound
	}
	return value, nil
}

// SetSetting 写入配置项。
func (s *Store) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现恒为健康）。
func (s *Store) Health() error { return nil }

func cloneMailbox(mb *domain.Mailbox) *domain.Mailbox {
	clone := *mb
	if mb.UserID != nil {
		uid := *mb.UserID
		clone.UserID = &uid
	}
	return &clone
}

var _ domain.Store = (*Store)(nil)
