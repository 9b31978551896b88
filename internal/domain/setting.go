package domain

import "time"

// 进程级配置项的键。
const (
	// SettingActiveDomain 当前用于生成新地址的邮箱域名后缀。
	// 修改不会回溯影响已签发的地址。
	SettingActiveDomain = "active_domain"
)

// Setting 表示单行键值配置（如当前激活域名）。
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;type:varchar(64)"`
	Value     string    `json:"value" gorm:"type:varchar(255)"`
	UpdatedAt time.Time `json:"updatedAt"`
}
