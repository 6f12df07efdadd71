// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"
	"slop-factory-server/internal/model"
)

// MessageRepository 消息数据访问层
// 负责消息相关的所有数据库操作
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetByID 根据 ID 获取消息
// 参数:
//   - ctx: 上下文
//   - id: 消息ID
//
// 返回:
//   - *model.Message: 消息对象，不存在时返回 nil
//   - error: 数据库错误
func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).First(&message, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// GetByProjectID 获取项目的所有消息
// 按创建时间正序排列（最早的在前），这也是传给 LLM 的对话顺序
// 参数:
//   - ctx: 上下文
//   - projectID: 项目ID
//
// 返回:
//   - []model.Message: 消息列表
//   - error: 数据库错误
func (r *MessageRepository) GetByProjectID(ctx context.Context, projectID int64) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// ListUnprocessedUser 获取待处理的用户消息
// 调度器轮询时使用：processed = false 且 role = user，最旧的在前
// 参数:
//   - ctx: 上下文
//   - limit: 最多返回的消息数
//
// 返回:
//   - []model.Message: 消息列表
//   - error: 数据库错误
func (r *MessageRepository) ListUnprocessedUser(ctx context.Context, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("processed = ? AND role = ?", false, model.MessageRoleUser).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// CompleteGeneration 原子地落盘一次生成结果
// 在同一个事务里完成三步写入：
//  1. 插入 assistant 回复消息（processed = true）
//  2. 整体覆盖项目的 html_content
//  3. 将原始 user 消息标记为已处理
//
// 任何一步失败则整体回滚，不会留下部分写入的状态
// 参数:
//   - ctx: 上下文
//   - userMessageID: 触发本次生成的 user 消息ID
//   - reply: 待插入的 assistant 消息，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) CompleteGeneration(ctx context.Context, userMessageID int64, reply *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 插入 AI 回复
		if err := tx.Create(reply).Error; err != nil {
			return err
		}

		// 2. 更新项目 HTML
		if err := tx.Model(&model.Project{}).
			Where("id = ?", reply.ProjectID).
			Update("html_content", reply.Content).Error; err != nil {
			return err
		}

		// 3. 标记原始消息已处理
		return tx.Model(&model.Message{}).
			Where("id = ?", userMessageID).
			Update("processed", true).Error
	})
}
