// Package smtp 实现只收不发的 SMTP 入口。
//
// 监听端不做收件人存在性校验：任何语法合法的收件人都被接受，
// 解析与丢弃留给摄取管道（对外不暴露哪些地址真实存在）。
package smtp

import (
	"context"
	"io"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/ingest"
)

// Backend 实现 go-smtp 的 Backend 接口。
type Backend struct {
	pipeline *ingest.Pipeline
	limiter  *ConnectionLimiter
	maxBytes int64
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(pipeline *ingest.Pipeline, limiter *ConnectionLimiter, maxBytes int64, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Backend{
		pipeline: pipeline,
		limiter:  limiter,
		maxBytes: maxBytes,
		log:      log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 2},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
	released    bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只做语法校验。存在性校验推迟到摄取阶段，既避免地址探测，
// 也容忍转发链路上的大小写/尖括号差异。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := domain.NormalizeAddress(to)
	if err := domain.ValidateAddress(addr); err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 接收邮件内容并交给摄取管道。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes))
	if err != nil {
		return err
	}

	if len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "no valid recipients",
		}
	}

	err = s.backend.pipeline.Deliver(context.Background(), &ingest.Envelope{
		From:       s.fromAddress,
		Recipients: s.recipients,
		Raw:        rawBytes,
	})
	if err != nil {
		s.backend.log.Error("delivery failed", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary delivery failure",
		}
	}
	return nil
}

// Reset 重置事务状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，归还连接许可。
func (s *session) Logout() error {
	if s.backend.limiter != nil && !s.released {
		s.backend.limiter.Release()
		s.released = true
	}
	return nil
}
