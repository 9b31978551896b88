// Package ingest 实现入站邮件的摄取管道：解析一次、按收件人扇出落库、
// 异步触发通知。
package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/extract"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/pool"
)

// Envelope 一次 SMTP 事务产出的投递单元。
type Envelope struct {
	From       string
	Recipients []string
	Raw        []byte
}

// Notifier 新邮件到达时的通知出口（实时卡片、WebSocket 等）。
//
// 通知失败只记录，不影响落库结果。
type Notifier interface {
	NotifyNewMail(ctx context.Context, mailbox *domain.Mailbox, email *domain.Email, parsed *domain.ParsedMessage)
}

// Pipeline 摄取管道。
type Pipeline struct {
	dir       *directory.Service
	notifiers []Notifier
	workers   *pool.WorkerPool
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewPipeline 创建摄取管道。metrics 传 nil 表示不上报指标。
func NewPipeline(dir *directory.Service, workers *pool.WorkerPool, metrics *monitoring.Metrics, log *zap.Logger, notifiers ...Notifier) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		dir:       dir,
		notifiers: notifiers,
		workers:   workers,
		metrics:   metrics,
		log:       log,
	}
}

// Deliver 处理一个信封：原始字节解析一次，对每个可解析的收件人
// 各落一行邮件并触发通知。
//
// 无主收件人静默跳过；单个收件人的持久化失败不影响其余收件人，
// 只有全部收件人都失败时才返回错误。
func (p *Pipeline) Deliver(ctx context.Context, env *Envelope) error {
	p.incr(func(m *monitoring.Metrics) { m.EnvelopesAccepted.Inc() })

	parsed := extract.Extract(env.Raw)
	if parsed.Subject == "" && parsed.BodyPlain == "" && parsed.BodyHTML == "" {
		p.incr(func(m *monitoring.Metrics) { m.ExtractFailures.Inc() })
	}

	var stored, failed int
	var lastErr error
	for _, rcpt := range env.Recipients {
		mailbox, err := p.dir.ResolveRecipient(rcpt)
		if err != nil {
			if errors.Is(err, domain.ErrMailboxNotFound) {
				p.incr(func(m *monitoring.Metrics) { m.RecipientsUnresolved.Inc() })
				p.log.Debug("recipient has no active mailbox, skipping",
					zap.String("recipient", rcpt))
				continue
			}
			failed++
			lastErr = err
			continue
		}

		email, err := p.dir.SaveEmail(mailbox.ID, parsed)
		if err != nil {
			failed++
			lastErr = err
			p.log.Error("failed to persist email",
				zap.String("mailbox_id", mailbox.ID),
				zap.Error(err))
			continue
		}

		stored++
		p.incr(func(m *monitoring.Metrics) { m.EmailsStored.Inc() })
		p.notify(ctx, mailbox, email, parsed)
	}

	p.log.Info("envelope delivered",
		zap.String("from", env.From),
		zap.Int("recipients", len(env.Recipients)),
		zap.Int("stored", stored),
	)

	if failed > 0 && stored == 0 {
		return lastErr
	}
	return nil
}

// notify 通过协程池异步分发通知，隔离外部平台的延迟和故障。
func (p *Pipeline) notify(ctx context.Context, mailbox *domain.Mailbox, email *domain.Email, parsed *domain.ParsedMessage) {
	for _, n := range p.notifiers {
		n := n
		task := func() {
			n.NotifyNewMail(ctx, mailbox, email, parsed)
		}
		if p.workers != nil {
			p.workers.Submit(task)
		} else {
			task()
		}
	}
}

func (p *Pipeline) incr(fn func(*monitoring.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}
