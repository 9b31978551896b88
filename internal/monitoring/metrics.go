// Package monitoring 聚合 Prometheus 指标。
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 监控指标集合。
//
// 未解析收件人、通知失败等"静默"事件只在这里留痕，
// 不作为错误向上传播。
type Metrics struct {
	// 摄取指标
	EnvelopesAccepted    prometheus.Counter
	EmailsStored         prometheus.Counter
	RecipientsUnresolved prometheus.Counter
	ExtractFailures      prometheus.Counter

	// 通知指标
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter

	// 呈现引擎指标
	ActionsHandled     *prometheus.CounterVec
	ActionsRateLimited prometheus.Counter
	BroadcastDelivered prometheus.Counter
	BroadcastFailed    prometheus.Counter

	// 目录指标
	MailboxesRotated prometheus.Counter
	LoginsAccepted   prometheus.Counter
	LoginsRejected   prometheus.Counter
}

// NewMetrics 创建并注册全部指标（promauto 自动注册到默认 registry）。
func NewMetrics() *Metrics {
	return &Metrics{
		EnvelopesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_envelopes_accepted_total",
			Help: "Total number of inbound envelopes accepted",
		}),
		EmailsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_emails_stored_total",
			Help: "Total number of email rows persisted",
		}),
		RecipientsUnresolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_recipients_unresolved_total",
			Help: "Total number of recipients silently dropped (no active mailbox)",
		}),
		ExtractFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_extract_degraded_total",
			Help: "Total number of messages that degraded to empty fields during extraction",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_notifications_sent_total",
			Help: "Total number of new-mail notifications delivered",
		}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_notifications_failed_total",
			Help: "Total number of new-mail notifications that failed",
		}),
		ActionsHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "postdrop_actions_handled_total",
			Help: "Total number of session actions handled, by kind",
		}, []string{"kind"}),
		ActionsRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_actions_rate_limited_total",
			Help: "Total number of session actions rejected by the per-user rate limiter",
		}),
		BroadcastDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_broadcast_delivered_total",
			Help: "Total number of broadcast messages delivered",
		}),
		BroadcastFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_broadcast_failed_total",
			Help: "Total number of broadcast messages that failed after retry",
		}),
		MailboxesRotated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_mailboxes_rotated_total",
			Help: "Total number of mailbox rotations",
		}),
		LoginsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_logins_accepted_total",
			Help: "Total number of successful credential reassignments",
		}),
		LoginsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "postdrop_logins_rejected_total",
			Help: "Total number of rejected credential reassignments",
		}),
	}
}
