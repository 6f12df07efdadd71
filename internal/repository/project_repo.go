// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"
	"slop-factory-server/internal/model"
)

// ProjectRepository 项目数据访问层
// 负责项目相关的所有数据库操作
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建 ProjectRepository 实例
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create 创建新项目
// 参数:
//   - ctx: 上下文
//   - project: 项目对象，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *ProjectRepository) Create(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID 根据 ID 获取项目
// 参数:
//   - ctx: 上下文
//   - id: 项目ID
//
// 返回:
//   - *model.Project: 项目对象，不存在时返回 nil
//   - error: 数据库错误
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).First(&project, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

// List 获取所有项目
// 按创建时间倒序排列（最新的在前），用于画廊列表页
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - []model.Project: 项目列表
//   - error: 数据库错误
func (r *ProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}
