package domain

import "time"

// User 表示通过聊天平台接入的注册用户。
//
// ExternalID 是聊天平台侧的用户标识，全局唯一；
// 用户在首次交互时创建，之后只刷新昵称和用户名，永不删除。
type User struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ExternalID  int64     `json:"externalId" gorm:"uniqueIndex;not null"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(255)"`
	Username    string    `json:"username,omitempty" gorm:"type:varchar(100)"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
