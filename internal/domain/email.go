package domain

import "time"

// Email 表示投递到某个邮箱的一封邮件。
//
// 只由摄取流水线创建，追加写入；仅在邮箱被硬删除时级联删除。
type Email struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID   string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	SenderName  string    `json:"senderName" gorm:"type:varchar(255)"`
	SenderEmail string    `json:"senderEmail" gorm:"type:varchar(255)"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	BodyPlain   string    `json:"bodyPlain" gorm:"type:text"`
	BodyHTML    string    `json:"bodyHtml" gorm:"type:text"`
	RawHeaders  string    `json:"rawHeaders" gorm:"type:text"`
	ReceivedAt  time.Time `json:"receivedAt" gorm:"index"`
	IsRead      bool      `json:"isRead" gorm:"default:false"`
}

// SenderDisplay 返回用于展示的发件人形式 "Name <addr>"。
func (e *Email) SenderDisplay() string {
	if e.SenderName != "" && e.SenderEmail != "" {
		return e.SenderName + " <" + e.SenderEmail + ">"
	}
	if e.SenderEmail != "" {
		return e.SenderEmail
	}
	return e.SenderName
}
