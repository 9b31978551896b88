package push

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Handler 处理一条更新。实现自行保证并发安全。
type Handler interface {
	HandleUpdate(ctx context.Context, update *Update)
}

// Poller 通过长轮询驱动更新流。
type Poller struct {
	client  *Client
	handler Handler
	timeout time.Duration
	log     *zap.Logger
}

// NewPoller 创建长轮询器。
func NewPoller(client *Client, handler Handler, timeout time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{
		client:  client,
		handler: handler,
		timeout: timeout,
		log:     log,
	}
}

// Run 阻塞拉取更新直到 ctx 取消。
//
// 每条更新在独立协程里处理，慢操作不会卡住拉取循环。
func (p *Poller) Run(ctx context.Context) error {
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var rateErr *RateLimitedError
			wait := 3 * time.Second
			if errors.As(err, &rateErr) {
				wait = rateErr.RetryAfter
			}
			p.log.Warn("poll failed, backing off",
				zap.Error(err), zap.Duration("wait", wait))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		for i := range updates {
			update := updates[i]
			if update.ID >= offset {
				offset = update.ID + 1
			}
			go p.handler.HandleUpdate(ctx, &update)
		}
	}
}
