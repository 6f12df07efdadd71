// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"slop-factory-server/internal/service"
	"slop-factory-server/pkg/response"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	// 读缓冲区大小
	ReadBufferSize: 1024,
	// 写缓冲区大小
	WriteBufferSize: 1024,
	// 检查来源（预览页和 API 不同源，放行所有来源）
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 处理 WebSocket 连接
type Handler struct {
	hub            *Hub
	projectService *service.ProjectService
}

// NewHandler 创建 WebSocket Handler
func NewHandler(hub *Hub, projectService *service.ProjectService) *Handler {
	return &Handler{
		hub:            hub,
		projectService: projectService,
	}
}

// HandlePreviewWS 处理预览页的 WebSocket 连接
// 路由: GET /ws/preview
// 参数: project_id (query parameter) - 要观看的项目ID
// 连接建立后先推送一帧当前 HTML，之后每次生成完成实时推送
func (h *Handler) HandlePreviewWS(c *gin.Context) {
	// 从 query 参数获取项目ID
	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		response.BadRequest(c, "无效的项目ID")
		return
	}

	// 校验项目是否存在
	if _, err := h.projectService.GetProject(c.Request.Context(), projectID); err != nil {
		response.ProjectNotFound(c)
		return
	}

	// 升级 HTTP 连接为 WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	// 创建客户端
	client := NewClient(h.hub, conn, projectID)

	// 注册客户端
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()

	// 首帧：推送当前 HTML，浏览器不需要先走一次 HTTP 预览接口
	if html, err := h.projectService.GetProjectHTML(c.Request.Context(), projectID); err == nil {
		client.SendMessage(NewMessage(TypeHello, &ProjectUpdatePayload{
			ProjectID:   projectID,
			HTMLContent: html,
		}))
	}

	log.Printf("Preview WebSocket connected: projectID=%d", projectID)
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// WebSocket 路由不需要中间件（预览是公开的）
	ws := r.Group("/ws")
	{
		// 预览页 WebSocket
		ws.GET("/preview", h.HandlePreviewWS)
	}
}
