package domain

import "errors"

// 存储层统一的哨兵错误。
var (
	// ErrUserNotFound 用户不存在。
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 外部标识已被占用。
	ErrUserExists = errors.New("user already exists")
	// ErrMailboxNotFound 邮箱不存在或未激活。
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrAddressTaken 地址唯一性冲突，调用方应重新生成地址后重试。
	ErrAddressTaken = errors.New("address already taken")
	// ErrEmailNotFound 邮件不存在。
	ErrEmailNotFound = errors.New("email not found")
	// ErrSettingNotFound 配置项不存在。
	ErrSettingNotFound = errors.New("setting not found")
)

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *User) error
	GetUser(id string) (*User, error)
	GetUserByExternalID(externalID int64) (*User, error)
	UpdateUser(user *User) error
	ListUserExternalIDs() ([]int64, error)
	CountUsers() (int, error)
}

// MailboxRepository 定义邮箱数据存取操作。
//
// SaveMailbox 在地址唯一性冲突时必须返回 ErrAddressTaken，
// 目录层据此执行有界重试；冲突检测依赖底层存储的唯一约束，
// 不使用应用层锁。
type MailboxRepository interface {
	SaveMailbox(mailbox *Mailbox) error
	GetMailbox(id string) (*Mailbox, error)
	GetActiveMailboxByUserID(userID string) (*Mailbox, error)
	GetActiveMailboxByAddress(address string) (*Mailbox, error)
	DeactivateMailboxesByUserID(userID string) error
	// TransferMailbox 原子地停用 userID 现有的全部邮箱，并把指定邮箱
	// 转移到 userID 名下激活。两步要么都成功要么都失败。
	TransferMailbox(mailboxID, userID string) error
}

// EmailRepository 定义邮件数据存取操作。
type EmailRepository interface {
	SaveEmail(email *Email) error
	ListEmails(mailboxID string, limit, offset int) ([]Email, error)
	CountEmails(mailboxID string) (int, error)
	GetEmail(id string) (*Email, error)
	MarkEmailRead(id string) error
}

// SettingRepository 定义进程级配置存取操作。
type SettingRepository interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Store 聚合目录组件依赖的全部存储接口。
//
// 目录是 User/Mailbox/Email 行的唯一写入方，
// 其他组件不得绕过它直接落库。
type Store interface {
	UserRepository
	MailboxRepository
	EmailRepository
	SettingRepository

	Close() error
	Health() error
}
