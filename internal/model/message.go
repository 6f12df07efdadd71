// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageRole 消息角色常量
const (
	MessageRoleUser      = "user"      // 用户消息
	MessageRoleAssistant = "assistant" // AI 助手响应
)

// Message 消息模型
// 对应数据库表 messages
// 一个项目的消息按 created_at 严格递增，只追加、不修改内容
type Message struct {
	// ID 消息唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// ProjectID 所属项目ID，外键关联 projects.id
	ProjectID int64 `gorm:"index;not null" json:"project_id"`

	// Role 消息角色
	// user: 用户发送的消息
	// assistant: 生成管线写入的 AI 响应
	Role string `gorm:"size:20;not null" json:"role"`

	// Content 消息内容
	// assistant 消息的内容是一份完整的 HTML 文档（不做校验）
	Content string `gorm:"type:longtext;not null" json:"content"`

	// Processed 处理标记
	// user 消息在生成管线处理成功后由 false 置为 true，只变化一次
	// assistant 消息创建时即为 true
	Processed bool `gorm:"default:false;index" json:"processed"`

	// CreatedAt 消息创建时间，是消息历史的唯一排序键
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Project 所属项目（多对一关系）
	Project *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
