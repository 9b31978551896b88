package domain

import "time"

// Mailbox 表示一次性邮箱的业务实体。
//
// 不变式：同一个 UserID 在任意时刻最多只有一个 active=true 的邮箱。
// 邮箱在轮换或登录转移时被停用而非删除，凭据一经生成不可修改，
// 只能通过整体轮换更换。
type Mailbox struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    *string   `json:"userId,omitempty" gorm:"type:varchar(36);index"` // 当前持有者（可通过登录转移）
	Address   string    `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	Password  string    `json:"-" gorm:"type:varchar(64)"` // 登录转移凭据，仅对持有者展示
	Active    bool      `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"createdAt"`
}
