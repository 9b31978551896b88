// Package redis 提供目录的可选读缓存（地址 → 激活邮箱）。
//
// 缓存只加速收件解析这一条热路径；任何错误都降级为未命中，
// Redis 不可用不影响正确性。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/domain"
)

const (
	mailboxKeyPrefix = "postdrop:mailbox:addr:"
	mailboxTTL       = 10 * time.Minute
	opTimeout        = 500 * time.Millisecond
)

// Cache Redis 读缓存。
type Cache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewCache 连接 Redis 并做一次连通性检查。
func NewCache(cfg config.RedisConfig, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, log: log}, nil
}

// GetMailboxByAddress 查缓存，任何错误都当未命中。
func (c *Cache) GetMailboxByAddress(address string) (*domain.Mailbox, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, mailboxKeyPrefix+address).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("redis get failed", zap.Error(err))
		}
		return nil, false
	}

	var mb domain.Mailbox
	if err := json.Unmarshal(raw, &mb); err != nil {
		c.log.Warn("corrupt cache entry, dropping", zap.String("address", address))
		c.InvalidateMailbox(address)
		return nil, false
	}
	return &mb, true
}

// SetMailboxByAddress 写缓存，失败只记录。
func (c *Cache) SetMailboxByAddress(address string, mailbox *domain.Mailbox) {
	raw, err := json.Marshal(mailbox)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, mailboxKeyPrefix+address, raw, mailboxTTL).Err(); err != nil {
		c.log.Debug("redis set failed", zap.Error(err))
	}
}

// InvalidateMailbox 删除地址对应的缓存条目。
func (c *Cache) InvalidateMailbox(address string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, mailboxKeyPrefix+address).Err(); err != nil {
		c.log.Debug("redis del failed", zap.Error(err))
	}
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}
