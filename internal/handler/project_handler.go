// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"slop-factory-server/internal/model"
	"slop-factory-server/internal/service"
	"slop-factory-server/pkg/response"
)

// ProjectHandler 项目请求处理器
// 承接画廊、创建表单和项目对话页的全部读写
type ProjectHandler struct {
	projectService *service.ProjectService
}

// NewProjectHandler 创建 ProjectHandler 实例
func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
	}
}

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`        // 项目名称
	Description string `json:"description" binding:"required"` // 网站描述
}

// CreateMessageRequest 创建消息请求
type CreateMessageRequest struct {
	Content string `json:"content" binding:"required"` // 消息内容
}

// ProjectResponse 项目响应
type ProjectResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	InitialPrompt string `json:"initial_prompt"`
	HTMLContent   string `json:"html_content"`
	CreatedAt     string `json:"created_at"`
}

// MessageResponse 消息响应
type MessageResponse struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// CreateProject 创建新项目
// 路由: POST /api/v1/projects
// 项目创建后会立即用初始提示词触发一次生成，html_content 稍后由管线填充
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "无效的请求参数")
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		response.InternalError(c, "创建项目失败")
		return
	}

	response.Created(c, toProjectResponse(project))
}

// ListProjects 获取项目列表
// 路由: GET /api/v1/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projectService.ListProjects(c.Request.Context())
	if err != nil {
		response.InternalError(c, "获取项目列表失败")
		return
	}

	result := make([]ProjectResponse, len(projects))
	for i := range projects {
		result[i] = *toProjectResponse(&projects[i])
	}
	response.Success(c, gin.H{
		"projects": result,
		"total":    len(result),
	})
}

// GetProject 获取项目详情
// 路由: GET /api/v1/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的项目ID")
		return
	}

	project, err := h.projectService.GetProject(c.Request.Context(), projectID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			response.ProjectNotFound(c)
		default:
			response.InternalError(c, "获取项目详情失败")
		}
		return
	}

	response.Success(c, toProjectResponse(project))
}

// GetProjectPreview 获取项目的 HTML 产物
// 路由: GET /api/v1/projects/:id/preview
// 直接返回 text/html，画廊和预览页用 iframe 加载
func (h *ProjectHandler) GetProjectPreview(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的项目ID")
		return
	}

	html, err := h.projectService.GetProjectHTML(c.Request.Context(), projectID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			response.ProjectNotFound(c)
		default:
			response.InternalError(c, "获取项目预览失败")
		}
		return
	}

	c.Data(200, "text/html; charset=utf-8", []byte(html))
}

// CreateMessage 为项目创建一条消息
// 路由: POST /api/v1/projects/:id/messages
// 消息落库后立即返回，生成在后台异步进行，前端通过 WebSocket 收更新
func (h *ProjectHandler) CreateMessage(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的项目ID")
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "无效的请求参数")
		return
	}

	message, err := h.projectService.CreateMessage(c.Request.Context(), projectID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			response.ProjectNotFound(c)
		default:
			response.InternalError(c, "创建消息失败")
		}
		return
	}

	response.Created(c, toMessageResponse(message))
}

// GetMessages 获取项目的消息历史
// 路由: GET /api/v1/projects/:id/messages
func (h *ProjectHandler) GetMessages(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的项目ID")
		return
	}

	messages, err := h.projectService.GetMessages(c.Request.Context(), projectID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			response.ProjectNotFound(c)
		default:
			response.InternalError(c, "获取消息列表失败")
		}
		return
	}

	result := make([]MessageResponse, len(messages))
	for i := range messages {
		result[i] = *toMessageResponse(&messages[i])
	}
	response.Success(c, gin.H{
		"messages": result,
		"total":    len(result),
	})
}

// toProjectResponse 将项目模型转换为响应格式
func toProjectResponse(project *model.Project) *ProjectResponse {
	return &ProjectResponse{
		ID:            project.ID,
		Name:          project.Name,
		InitialPrompt: project.InitialPrompt,
		HTMLContent:   project.HTMLContent,
		CreatedAt:     project.CreatedAt.Format(time.RFC3339),
	}
}

// toMessageResponse 将消息模型转换为响应格式
func toMessageResponse(message *model.Message) *MessageResponse {
	return &MessageResponse{
		ID:        message.ID,
		Role:      message.Role,
		Content:   message.Content,
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	}
}
