// Package directory 是用户、邮箱和邮件行的唯一持有者。
//
// 地址/凭据的生成、冲突重试、登录转移和激活域名都经由本包，
// 其他组件不得绕过它直接操作存储。
package directory

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/domain"
)

var (
	// ErrInvalidLogin 登录转移凭据不匹配。刻意不区分"地址不存在"
	// 和"密码错误"，避免地址枚举。
	ErrInvalidLogin = errors.New("invalid address or password")
	// ErrLoginThrottled 登录尝试过于频繁。
	ErrLoginThrottled = errors.New("too many login attempts")
	// ErrAddressSpaceExhausted 地址生成重试耗尽（地址空间配置过小时才会出现）。
	ErrAddressSpaceExhausted = errors.New("failed to allocate unique address")
)

// 地址本地部分与凭据的生成字母表。
const (
	localPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	passwordAlphabet  = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// 激活域名的进程内缓存时长，保证多实例部署下的最终一致
	domainCacheTTL = 30 * time.Second

	// 登录尝试限速：每 3 秒补充一次，突发上限 5 次
	loginAttemptInterval = 3 * time.Second
	loginAttemptBurst    = 5
)

// Cache 定义目录的可选读缓存（Redis 实现见 storage/redis）。
//
// 缓存未命中或未配置时一律回源，未命中不是错误。
type Cache interface {
	GetMailboxByAddress(address string) (*domain.Mailbox, bool)
	SetMailboxByAddress(address string, mailbox *domain.Mailbox)
	InvalidateMailbox(address string)
}

// Service 封装邮箱目录的全部业务操作。
type Service struct {
	store domain.Store
	cache Cache // 可选，nil 表示不启用
	cfg   config.MailboxConfig
	log   *zap.Logger

	// 激活域名的短 TTL 缓存
	domainMu     sync.Mutex
	cachedDomain string
	domainExpiry time.Time

	// 登录尝试限速器，按用户 ID 维护
	loginMu       sync.Mutex
	loginLimiters map[string]*rate.Limiter
}

// NewService 创建目录服务。cache 传 nil 表示禁用读缓存。
func NewService(store domain.Store, cache Cache, cfg config.MailboxConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:         store,
		cache:         cache,
		cfg:           cfg,
		log:           log,
		loginLimiters: make(map[string]*rate.Limiter),
	}
}

// EnsureUser 幂等地创建或刷新用户。
//
// 昵称/用户名只在"提供了非空值且与存量不同"时更新。
func (s *Service) EnsureUser(externalID int64, displayName, username string) (*domain.User, error) {
	user, err := s.store.GetUserByExternalID(externalID)
	if errors.Is(err, domain.ErrUserNotFound) {
		now := time.Now().UTC()
		user = &domain.User{
			ID:          uuid.NewString(),
			ExternalID:  externalID,
			DisplayName: displayName,
			Username:    username,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if createErr := s.store.CreateUser(user); createErr != nil {
			if errors.Is(createErr, domain.ErrUserExists) {
				// 并发创建竞争：另一个请求赢了，读它的结果
				return s.store.GetUserByExternalID(externalID)
			}
			return nil, createErr
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	changed := false
	if displayName != "" && displayName != user.DisplayName {
		user.DisplayName = displayName
		changed = true
	}
	if username != "" && username != user.Username {
		user.Username = username
		changed = true
	}
	if changed {
		user.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateUser(user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// AllocateMailbox 返回用户的激活邮箱，没有则生成新邮箱。
//
// 对同一用户重复调用（无轮换）返回同一个地址。地址冲突依赖
// 存储层唯一约束检测，在有界循环内静默重试。
func (s *Service) AllocateMailbox(userID string) (*domain.Mailbox, error) {
	if mb, err := s.store.GetActiveMailboxByUserID(userID); err == nil {
		return mb, nil
	} else if !errors.Is(err, domain.ErrMailboxNotFound) {
		return nil, err
	}

	activeDomain, err := s.GetDomain()
	if err != nil {
		return nil, err
	}

	retries := s.cfg.AllocRetries
	if retries <= 0 {
		retries = 10
	}

	for attempt := 0; attempt < retries; attempt++ {
		address := fmt.Sprintf("%s@%s",
			randomString(localPartAlphabet, s.cfg.LocalPartLength), activeDomain)

		mailbox := &domain.Mailbox{
			ID:        uuid.NewString(),
			UserID:    &userID,
			Address:   address,
			Password:  randomString(passwordAlphabet, s.cfg.PasswordLength),
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}

		err := s.store.SaveMailbox(mailbox)
		if errors.Is(err, domain.ErrAddressTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return mailbox, nil
	}

	return nil, ErrAddressSpaceExhausted
}

// RotateMailbox 停用用户的全部邮箱并签发一个全新的地址/凭据对。
//
// 被停用邮箱的历史邮件保留在库中（见 DESIGN.md 的保留策略决策）：
// 停用邮箱不再匹配收件解析，但通过凭据登录重新激活后历史可见。
func (s *Service) RotateMailbox(userID string) (*domain.Mailbox, error) {
	if current, err := s.store.GetActiveMailboxByUserID(userID); err == nil {
		s.invalidateMailboxCache(current.Address)
	}

	if err := s.store.DeactivateMailboxesByUserID(userID); err != nil {
		return nil, err
	}
	return s.AllocateMailbox(userID)
}

// ReassignMailbox 按地址+凭据把既有激活邮箱转移到当前用户名下。
//
// 这是凭据式账号切换，不是密码重置。比较使用常数时间，
// 尝试频率受限；任何不匹配都返回同一个 ErrInvalidLogin。
func (s *Service) ReassignMailbox(userID, address, password string) (*domain.Mailbox, error) {
	if !s.loginLimiter(userID).Allow() {
		return nil, ErrLoginThrottled
	}

	address = domain.NormalizeAddress(address)
	mailbox, err := s.store.GetActiveMailboxByAddress(address)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			// 未知地址也做一次比较，平衡两个分支的耗时
			subtle.ConstantTimeCompare([]byte(password), []byte(password))
			return nil, ErrInvalidLogin
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(mailbox.Password), []byte(password)) != 1 {
		return nil, ErrInvalidLogin
	}

	if current, err := s.store.GetActiveMailboxByUserID(userID); err == nil {
		s.invalidateMailboxCache(current.Address)
	}
	s.invalidateMailboxCache(mailbox.Address)

	if err := s.store.TransferMailbox(mailbox.ID, userID); err != nil {
		return nil, err
	}

	uid := userID
	mailbox.UserID = &uid
	mailbox.Active = true

	s.log.Info("mailbox reassigned",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("user_id", userID),
	)
	return mailbox, nil
}

// ResolveRecipient 按入站收件地址解析激活邮箱。
//
// 不分大小写，只匹配激活邮箱；未命中返回 ErrMailboxNotFound，
// 调用方应当静默跳过（发往无主地址的邮件是预期噪音）。
func (s *Service) ResolveRecipient(address string) (*domain.Mailbox, error) {
	address = domain.NormalizeAddress(address)

	if s.cache != nil {
		if mb, ok := s.cache.GetMailboxByAddress(address); ok {
			return mb, nil
		}
	}

	mailbox, err := s.store.GetActiveMailboxByAddress(address)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetMailboxByAddress(address, mailbox)
	}
	return mailbox, nil
}

// GetDomain 返回当前激活的邮箱域名后缀（带 30s 进程内缓存）。
//
// 配置表为空时用默认域名播种，保证首次启动即可分配地址。
func (s *Service) GetDomain() (string, error) {
	s.domainMu.Lock()
	defer s.domainMu.Unlock()

	if s.cachedDomain != "" && time.Now().Before(s.domainExpiry) {
		return s.cachedDomain, nil
	}

	value, err := s.store.GetSetting(domain.SettingActiveDomain)
	if errors.Is(err, domain.ErrSettingNotFound) {
		value = s.cfg.DefaultDomain
		if err := s.store.SetSetting(domain.SettingActiveDomain, value); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	s.cachedDomain = value
	s.domainExpiry = time.Now().Add(domainCacheTTL)
	return value, nil
}

// SetDomain 校验并切换激活域名，返回实际生效的值。
//
// 校验失败不产生任何变更；切换不回溯影响已签发地址。
func (s *Service) SetDomain(newDomain string) (string, error) {
	newDomain = strings.ToLower(strings.TrimSpace(newDomain))
	if err := domain.ValidateDomain(newDomain); err != nil {
		return "", err
	}

	if err := s.store.SetSetting(domain.SettingActiveDomain, newDomain); err != nil {
		return "", err
	}

	s.domainMu.Lock()
	s.cachedDomain = newDomain
	s.domainExpiry = time.Now().Add(domainCacheTTL)
	s.domainMu.Unlock()

	s.log.Info("active domain changed", zap.String("domain", newDomain))
	return newDomain, nil
}

// SaveEmail 把一封规范化邮件落为邮箱内的邮件行。
func (s *Service) SaveEmail(mailboxID string, parsed *domain.ParsedMessage) (*domain.Email, error) {
	email := &domain.Email{
		ID:          uuid.NewString(),
		MailboxID:   mailboxID,
		SenderName:  parsed.SenderName,
		SenderEmail: parsed.SenderEmail,
		Subject:     parsed.Subject,
		BodyPlain:   parsed.BodyPlain,
		BodyHTML:    parsed.BodyHTML,
		RawHeaders:  parsed.RawHeaders,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveEmail(email); err != nil {
		return nil, err
	}
	return email, nil
}

// ListMessages 按收件时间倒序分页列出邮箱内的邮件。
func (s *Service) ListMessages(mailboxID string, limit, offset int) ([]domain.Email, error) {
	return s.store.ListEmails(mailboxID, limit, offset)
}

// CountMessages 返回邮箱内邮件总数。
func (s *Service) CountMessages(mailboxID string) (int, error) {
	return s.store.CountEmails(mailboxID)
}

// GetMessage 按 ID 获取单封邮件。
func (s *Service) GetMessage(id string) (*domain.Email, error) {
	return s.store.GetEmail(id)
}

// MarkMessageRead 将邮件标记为已读。
func (s *Service) MarkMessageRead(id string) error {
	return s.store.MarkEmailRead(id)
}

// ListMessagesByLocalPart 面向只读 Web 视图：按激活域名下的
// 本地部分列出邮件。地址未命中时返回空列表而非错误。
func (s *Service) ListMessagesByLocalPart(localPart string, limit int) ([]domain.Email, error) {
	activeDomain, err := s.GetDomain()
	if err != nil {
		return nil, err
	}

	address := strings.ToLower(strings.TrimSpace(localPart)) + "@" + activeDomain
	mailbox, err := s.ResolveRecipient(address)
	if errors.Is(err, domain.ErrMailboxNotFound) {
		return []domain.Email{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListEmails(mailbox.ID, limit, 0)
}

// UserExternalID 返回用户的平台标识（通知路由需要）。
func (s *Service) UserExternalID(userID string) (int64, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return 0, err
	}
	return user.ExternalID, nil
}

// BroadcastTargets 返回全部已知用户的平台标识（广播收件人名单）。
func (s *Service) BroadcastTargets() ([]int64, error) {
	return s.store.ListUserExternalIDs()
}

// CountUsers 返回用户总数。
func (s *Service) CountUsers() (int, error) {
	return s.store.CountUsers()
}

// Health 透传存储层健康状态。
func (s *Service) Health() error {
	return s.store.Health()
}

func (s *Service) invalidateMailboxCache(address string) {
	if s.cache != nil {
		s.cache.InvalidateMailbox(strings.ToLower(address))
	}
}

// loginLimiter 返回指定用户的登录尝试限速器（按需创建）。
func (s *Service) loginLimiter(userID string) *rate.Limiter {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	limiter, ok := s.loginLimiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(loginAttemptInterval), loginAttemptBurst)
		s.loginLimiters[userID] = limiter
	}
	return limiter
}

// randomString 用给定字母表生成密码学随机串。
func randomString(alphabet string, length int) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 不可用属于环境致命问题
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b)
}
