// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"slop-factory-server/internal/model"
)

// MessageTrigger 消息触发接口
// ProjectService 创建 user 消息后通过它通知调度器
// 用接口 + SetTrigger 注入，避免和 Dispatcher 形成构造顺序上的循环
type MessageTrigger interface {
	DispatchMessageAsync(msg *model.Message)
}

// ProjectService 项目服务
// 承接展示层的读写：项目的创建与查询、消息的创建与查询
type ProjectService struct {
	projects  ProjectStore   // 项目存储
	messages  MessageStore   // 消息存储
	htmlCache HTMLCache      // HTML 缓存，可为 nil
	trigger   MessageTrigger // 消息触发器
	logger    *zap.Logger
}

// NewProjectService 创建 ProjectService 实例
func NewProjectService(
	projects ProjectStore,
	messages MessageStore,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projects: projects,
		messages: messages,
		logger:   logger,
	}
}

// SetHTMLCache 设置 HTML 缓存
func (s *ProjectService) SetHTMLCache(c HTMLCache) {
	s.htmlCache = c
}

// SetTrigger 设置消息触发器
func (s *ProjectService) SetTrigger(t MessageTrigger) {
	s.trigger = t
}

// CreateProject 创建新项目
// 同时创建第一条 user 消息（由项目名和描述拼出的初始提示词）并触发生成
// 参数:
//   - ctx: 上下文
//   - name: 项目名称
//   - description: 网站描述
//
// 返回:
//   - *model.Project: 创建的项目
//   - error: 数据库错误
func (s *ProjectService) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	project := &model.Project{
		Name:          name,
		InitialPrompt: description,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}

	// 初始消息的内容格式是固定的，生成管线把它当作普通的 user 消息处理
	initial := &model.Message{
		ProjectID: project.ID,
		Role:      model.MessageRoleUser,
		Content:   fmt.Sprintf("Create a website named %s with the following description: %s", name, description),
	}
	if err := s.messages.Create(ctx, initial); err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		zap.Int64("project_id", project.ID),
		zap.Int64("initial_message_id", initial.ID),
	)

	if s.trigger != nil {
		s.trigger.DispatchMessageAsync(initial)
	}
	return project, nil
}

// ListProjects 获取项目列表
// 按创建时间倒序，用于画廊页
func (s *ProjectService) ListProjects(ctx context.Context) ([]model.Project, error) {
	return s.projects.List(ctx)
}

// GetProject 获取项目详情
func (s *ProjectService) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// GetProjectHTML 获取项目的 HTML 产物
// 先查缓存，未命中时回源数据库并写回缓存
// 预览页的读取频率远高于生成频率，这条路径上缓存命中是常态
func (s *ProjectService) GetProjectHTML(ctx context.Context, id int64) (string, error) {
	if s.htmlCache != nil {
		html, hit, err := s.htmlCache.GetProjectHTML(ctx, id)
		if err != nil {
			// 缓存故障不阻塞读取，回源数据库
			s.logger.Warn("html cache read failed", zap.Int64("project_id", id), zap.Error(err))
		} else if hit {
			return html, nil
		}
	}

	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", ErrProjectNotFound
	}

	if s.htmlCache != nil && project.HTMLContent != "" {
		if err := s.htmlCache.SetProjectHTML(ctx, id, project.HTMLContent, htmlCacheTTL); err != nil {
			s.logger.Warn("html cache write failed", zap.Int64("project_id", id), zap.Error(err))
		}
	}
	return project.HTMLContent, nil
}

// CreateMessage 为项目创建一条 user 消息并触发生成
// 参数:
//   - ctx: 上下文
//   - projectID: 项目ID
//   - content: 消息内容
//
// 返回:
//   - *model.Message: 创建的消息
//   - error: ErrProjectNotFound 或数据库错误
func (s *ProjectService) CreateMessage(ctx context.Context, projectID int64, content string) (*model.Message, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	message := &model.Message{
		ProjectID: projectID,
		Role:      model.MessageRoleUser,
		Content:   content,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}

	if s.trigger != nil {
		s.trigger.DispatchMessageAsync(message)
	}
	return message, nil
}

// GetMessages 获取项目的消息历史
// 按创建时间正序，用于对话视图
func (s *ProjectService) GetMessages(ctx context.Context, projectID int64) ([]model.Message, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return s.messages.GetByProjectID(ctx, projectID)
}
