package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DialogKind 模态对话框类别。None 以外的值会拦截普通交互。
type DialogKind int

const (
	DialogNone DialogKind = iota
	DialogLoginAddress
	DialogLoginPassword
	DialogDomain
	DialogBroadcastText
	DialogBroadcastConfirm
	DialogBulkImport
)

// CardState 单张邮件卡片的呈现状态，按卡片消息 ID 记录。
type CardState struct {
	EmailID       string
	CodeVisible   bool
	LinksExpanded bool
	Expanded      bool // 是否展开全文
}

// Session 一个聊天的全部呈现状态。
//
// 字段只在持有 mu 时读写；引擎的处理入口负责加锁。
type Session struct {
	mu sync.Mutex

	ChatID int64
	UserID string // 目录用户 ID

	// 仪表盘状态
	DashboardMessageID int
	InboxOpen          bool
	ToolsOpen          bool
	PasswordVisible    bool
	Page               int

	// 对话框状态
	Dialog      DialogKind
	DialogDraft string // 多步对话框暂存（登录地址、广播文案等）

	// 邮件卡片状态，键是卡片的消息 ID，条数有上限
	Cards map[int]*CardState

	limiter  *rate.Limiter
	lastSeen time.Time
}

// 单个会话保留的卡片状态上限。被淘汰的卡片在下次点击时
// 按默认状态重建，不影响可用性。
const maxSessionCards = 30

// rememberCard 登记卡片状态，超量时淘汰消息 ID 最小的（最旧的）条目。
func (s *Session) rememberCard(messageID int, card *CardState) {
	s.Cards[messageID] = card
	if len(s.Cards) <= maxSessionCards {
		return
	}

	oldest := 0
	first := true
	for id := range s.Cards {
		if first || id < oldest {
			oldest = id
			first = false
		}
	}
	delete(s.Cards, oldest)
}

// SessionCache 带 TTL 和容量上限的会话缓存。
//
// 会话只是呈现状态，丢失的代价是一次 /start 重建，
// 所以超量时直接淘汰最久未活跃的条目。
type SessionCache struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	maxSize  int
	ttl      time.Duration

	actionInterval time.Duration
}

// NewSessionCache 创建会话缓存并启动周期清理。
func NewSessionCache(maxSize int, ttl, actionInterval time.Duration) *SessionCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	cache := &SessionCache{
		sessions:       make(map[int64]*Session),
		maxSize:        maxSize,
		ttl:            ttl,
		actionInterval: actionInterval,
	}
	go cache.cleanupLoop()
	return cache
}

// Get 返回聊天的会话，不存在则创建。
func (c *SessionCache) Get(chatID int64) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[chatID]
	if !ok {
		if len(c.sessions) >= c.maxSize {
			c.evictOldestLocked()
		}
		sess = &Session{
			ChatID: chatID,
			Cards:  make(map[int]*CardState),
		}
		if c.actionInterval > 0 {
			sess.limiter = rate.NewLimiter(rate.Every(c.actionInterval), 1)
		}
		c.sessions[chatID] = sess
	}
	sess.lastSeen = time.Now()
	return sess
}

// Peek 返回聊天的会话，不存在时返回 nil（不创建）。
func (c *SessionCache) Peek(chatID int64) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[chatID]
	if !ok {
		return nil
	}
	sess.lastSeen = time.Now()
	return sess
}

// Len 当前会话数。
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// AllowAction 按会话的操作限速器判定本次交互是否放行。
func (s *Session) AllowAction() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// evictOldestLocked 淘汰最久未活跃的会话。调用方持锁。
func (c *SessionCache) evictOldestLocked() {
	var oldestID int64
	var oldestSeen time.Time
	first := true
	for id, sess := range c.sessions {
		if first || sess.lastSeen.Before(oldestSeen) {
			oldestID = id
			oldestSeen = sess.lastSeen
			first = false
		}
	}
	if !first {
		delete(c.sessions, oldestID)
	}
}

// cleanupLoop 周期清理超时会话。
func (c *SessionCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-c.ttl)
		c.mu.Lock()
		for id, sess := range c.sessions {
			if sess.lastSeen.Before(cutoff) {
				delete(c.sessions, id)
			}
		}
		c.mu.Unlock()
	}
}
