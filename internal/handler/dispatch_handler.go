// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"slop-factory-server/internal/service"
	"slop-factory-server/pkg/response"
)

// DispatchHandler 调度请求处理器
// 暴露两个内部入口，对应两种触发方式：
//   - /internal/dispatch/run: 外部定时器触发一轮轮询
//   - /internal/dispatch/message: 消息插入后的事件触发
//
// 进程内的轮询 goroutine 走同一个 Dispatcher，这两个接口是给
// 外部调度器（cron、手工运维）用的
type DispatchHandler struct {
	dispatcher *service.Dispatcher
}

// NewDispatchHandler 创建 DispatchHandler 实例
func NewDispatchHandler(dispatcher *service.Dispatcher) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
	}
}

// DispatchMessageRequest 事件触发请求
type DispatchMessageRequest struct {
	MessageID int64 `json:"message_id" binding:"required"` // 刚插入的消息ID
}

// RunCycle 执行一轮轮询调度
// 路由: POST /internal/dispatch/run
// 所有选中的消息都被尝试过即算成功，单条消息的结果只体现在统计里
// 只有选择查询失败时才返回 500
func (h *DispatchHandler) RunCycle(c *gin.Context) {
	result, err := h.dispatcher.RunCycle(c.Request.Context())
	if err != nil {
		response.InternalError(c, "调度查询失败")
		return
	}

	response.Success(c, result)
}

// DispatchMessage 事件触发单条消息的处理
// 路由: POST /internal/dispatch/message
// 非 user 消息和已处理的消息是空操作，直接返回成功
func (h *DispatchHandler) DispatchMessage(c *gin.Context) {
	var req DispatchMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "无效的请求参数")
		return
	}

	err := h.dispatcher.DispatchMessageByID(c.Request.Context(), req.MessageID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			response.MessageNotFound(c)
		case errors.Is(err, service.ErrProjectNotFound):
			response.ProjectNotFound(c)
		default:
			response.GenerationFailed(c, "消息处理失败")
		}
		return
	}

	response.Success(c, nil)
}
