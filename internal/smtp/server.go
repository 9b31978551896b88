package smtp

import (
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/ingest"
)

// NewServer 按配置组装 SMTP 服务器。
func NewServer(cfg config.SMTPConfig, pipeline *ingest.Pipeline, log *zap.Logger) *gosmtp.Server {
	limiter := NewConnectionLimiter(cfg.MaxConns, cfg.MaxConnRate)
	maxBytes := int64(cfg.MaxMessageMB) << 20

	backend := NewBackend(pipeline, limiter, maxBytes, log)

	server := gosmtp.NewServer(backend)
	server.Addr = cfg.BindAddr
	server.Domain = cfg.Hostname
	server.ReadTimeout = 60 * time.Second
	server.WriteTimeout = 60 * time.Second
	server.MaxMessageBytes = maxBytes
	server.MaxRecipients = 50
	server.AllowInsecureAuth = true

	return server
}
