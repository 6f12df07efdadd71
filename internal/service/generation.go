// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"slop-factory-server/internal/cache"
	"slop-factory-server/internal/llm"
	"slop-factory-server/internal/model"
)

// 业务服务相关错误
var (
	ErrProjectNotFound = errors.New("项目不存在")
	ErrMessageNotFound = errors.New("消息不存在")
)

// 固定的系统指令
// 要求 LLM 返回一份完整、自包含、粗野主义风格的 HTML 文档
// 所有生成调用共用同一份指令，属于配置数据而不是逻辑
const websiteSystemPrompt = `You are a website generator. When asked to create or modify a website, respond with valid HTML that matches the request.
The HTML should be complete and self-contained, including any necessary CSS and JavaScript.
Use modern, semantic HTML5.
Include beautiful styling directly in a <style> tag.
Make the design match brutalist principles - raw, utilitarian, and unpolished aesthetics.
Do not explain the code, just return the HTML.
The response should start with <html> and end with </html>.`

// HTML 缓存的过期时间
const htmlCacheTTL = 24 * time.Hour

// ProjectStore 生成管线和项目服务依赖的项目存储接口
type ProjectStore interface {
	Create(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, id int64) (*model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
}

// MessageStore 生成管线和调度器依赖的消息存储接口
type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	GetByProjectID(ctx context.Context, projectID int64) ([]model.Message, error)
	ListUnprocessedUser(ctx context.Context, limit int) ([]model.Message, error)
	CompleteGeneration(ctx context.Context, userMessageID int64, reply *model.Message) error
}

// HTMLCache 项目 HTML 产物的缓存接口
type HTMLCache interface {
	GetProjectHTML(ctx context.Context, projectID int64) (string, bool, error)
	SetProjectHTML(ctx context.Context, projectID int64, html string, ttl time.Duration) error
}

// UpdateNotifier 项目更新事件的发布接口
// WebSocket Hub 通过订阅端收到事件后推送给浏览器
type UpdateNotifier interface {
	PublishProjectUpdate(ctx context.Context, event *cache.ProjectUpdateEvent) error
}

// GenerationService 生成管线
// 把一条未处理的 user 消息转换成一条 assistant 回复和一份新的项目 HTML 产物
type GenerationService struct {
	projects  ProjectStore   // 项目存储
	messages  MessageStore   // 消息存储
	completer llm.Client     // LLM 补全客户端
	htmlCache HTMLCache      // HTML 缓存，可为 nil
	notifier  UpdateNotifier // 更新事件发布器，可为 nil
	logger    *zap.Logger
}

// NewGenerationService 创建 GenerationService 实例
func NewGenerationService(
	projects ProjectStore,
	messages MessageStore,
	completer llm.Client,
	logger *zap.Logger,
) *GenerationService {
	return &GenerationService{
		projects:  projects,
		messages:  messages,
		completer: completer,
		logger:    logger,
	}
}

// SetHTMLCache 设置 HTML 缓存
func (s *GenerationService) SetHTMLCache(c HTMLCache) {
	s.htmlCache = c
}

// SetNotifier 设置更新事件发布器
func (s *GenerationService) SetNotifier(n UpdateNotifier) {
	s.notifier = n
}

// Generate 处理一条 user 消息
// 步骤:
//  1. 加载所属项目，不存在则返回 ErrProjectNotFound，不做任何写入
//  2. 按时间正序加载项目的完整消息历史
//  3. 携带固定系统指令调用 LLM 补全服务
//  4. 在同一个事务里插入 assistant 回复、覆盖项目 HTML、标记原消息已处理
//  5. 事务提交后刷新 HTML 缓存并广播更新事件（失败只记日志）
//
// 成功后恰好多出一条 assistant 消息，且项目的 html_content 等于它的内容
func (s *GenerationService) Generate(ctx context.Context, msg *model.Message) error {
	log := s.logger.With(
		zap.Int64("message_id", msg.ID),
		zap.Int64("project_id", msg.ProjectID),
	)
	log.Info("processing message")

	// 1. 加载项目
	project, err := s.projects.GetByID(ctx, msg.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		log.Warn("project not found, skipping message")
		return ErrProjectNotFound
	}

	// 2. 加载完整消息历史
	// 每次调用都读取最新的完整序列，不做增量
	history, err := s.messages.GetByProjectID(ctx, msg.ProjectID)
	if err != nil {
		return err
	}
	log.Debug("loaded chat history", zap.Int("messages", len(history)))

	turns := make([]llm.Turn, len(history))
	for i, m := range history {
		turns[i] = llm.Turn{Role: m.Role, Content: m.Content}
	}

	// 3. 调用 LLM
	log.Info("calling completion service")
	aiResponse, err := s.completer.Complete(ctx, websiteSystemPrompt, turns)
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		return err
	}
	log.Info("received completion", zap.Int("html_length", len(aiResponse)))

	// 4. 原子落盘
	reply := &model.Message{
		ProjectID: msg.ProjectID,
		Role:      model.MessageRoleAssistant,
		Content:   aiResponse,
		Processed: true,
	}
	if err := s.messages.CompleteGeneration(ctx, msg.ID, reply); err != nil {
		log.Error("failed to persist generation result", zap.Error(err))
		return err
	}

	// 5. 事务之外的尽力而为：刷新缓存、广播更新
	if s.htmlCache != nil {
		if err := s.htmlCache.SetProjectHTML(ctx, msg.ProjectID, aiResponse, htmlCacheTTL); err != nil {
			log.Warn("failed to refresh html cache", zap.Error(err))
		}
	}
	if s.notifier != nil {
		event := &cache.ProjectUpdateEvent{
			ProjectID: msg.ProjectID,
			MessageID: reply.ID,
			Timestamp: time.Now().Unix(),
		}
		if err := s.notifier.PublishProjectUpdate(ctx, event); err != nil {
			log.Warn("failed to publish project update", zap.Error(err))
		}
	}

	log.Info("message processed", zap.Int64("reply_id", reply.ID))
	return nil
}
