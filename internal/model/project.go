// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// Project 项目模型
// 对应数据库表 projects
// 一个项目代表一个由 AI 生成的网站，拥有一份当前的 HTML 产物和一段消息历史
type Project struct {
	// ID 项目唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Name 项目名称，由用户在创建时指定
	Name string `gorm:"size:255;not null" json:"name"`

	// InitialPrompt 创建项目时用户输入的网站描述
	// 仅在创建时写入，之后不再修改
	InitialPrompt string `gorm:"type:text" json:"initial_prompt"`

	// HTMLContent 最新一次生成的完整 HTML 文档
	// 每次生成成功后整体覆盖，不做增量合并
	// 生成的文档经常超过 64KB，所以使用 LONGTEXT
	HTMLContent string `gorm:"type:longtext" json:"html_content"`

	// CreatedAt 项目创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Messages 项目的所有消息（一对多关系）
	Messages []Message `gorm:"foreignKey:ProjectID" json:"messages,omitempty"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}
