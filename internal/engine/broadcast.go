package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/push"
)

// BroadcastResult 一次广播的投递统计。
type BroadcastResult struct {
	Sent   int
	Failed int
	Total  int
}

// Broadcast 向全部已知用户逐个投递文本。
//
// 平台限流时按 RetryAfter 等待并重试一次，仍失败才计入失败；
// ctx 取消会中止剩余投递（已发出的不回滚）。
func (e *Engine) Broadcast(ctx context.Context, text string) BroadcastResult {
	targets, err := e.dir.BroadcastTargets()
	if err != nil {
		e.log.Error("failed to list broadcast targets", zap.Error(err))
		return BroadcastResult{}
	}

	result := BroadcastResult{Total: len(targets)}
	for _, chatID := range targets {
		if ctx.Err() != nil {
			break
		}

		if e.broadcastOne(ctx, chatID, text) {
			result.Sent++
			e.incr(func(m *monitoring.Metrics) { m.BroadcastDelivered.Inc() })
		} else {
			result.Failed++
			e.incr(func(m *monitoring.Metrics) { m.BroadcastFailed.Inc() })
		}
	}

	e.log.Info("broadcast finished",
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("total", result.Total),
	)
	return result
}

// broadcastOne 向单个聊天投递，限流时重试一次。
func (e *Engine) broadcastOne(ctx context.Context, chatID int64, text string) bool {
	msg := &push.Message{ChatID: chatID, Text: text, DisablePreview: true}

	_, err := e.transport.SendMessage(ctx, msg)
	if err == nil {
		return true
	}

	var rateErr *push.RateLimitedError
	if errors.As(err, &rateErr) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(rateErr.RetryAfter):
		}
		if _, err := e.transport.SendMessage(ctx, msg); err == nil {
			return true
		}
	}

	e.log.Warn("broadcast delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
	return false
}
