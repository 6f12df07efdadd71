// Package websocket 提供 WebSocket 通信功能
// 实现网站预览的实时推送：生成完成后立刻通知正在观看的浏览器
package websocket

import (
	"time"
)

// MessageType 消息类型常量
const (
	// 浏览器 → 服务端
	TypeHeartbeat = "heartbeat" // 心跳

	// 服务端 → 浏览器
	TypeProjectUpdate = "project:update" // 项目 HTML 已更新
	TypeHello         = "hello"          // 连接建立后的首帧，携带当前 HTML

	// 通用
	TypeError = "error" // 错误消息
	TypePong  = "pong"  // 心跳响应
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string      `json:"type"`      // 消息类型
	Payload   interface{} `json:"payload"`   // 消息内容
	Timestamp int64       `json:"timestamp"` // 时间戳（毫秒）
}

// NewMessage 创建新消息
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ==================== Payload 类型定义 ====================

// ProjectUpdatePayload 项目更新 Payload
// 生成流水线写入新 HTML 后推送给观看该项目的浏览器
type ProjectUpdatePayload struct {
	ProjectID   int64  `json:"project_id"`           // 项目ID
	MessageID   int64  `json:"message_id,omitempty"` // 触发更新的助手消息ID
	HTMLContent string `json:"html_content"`         // 最新的完整 HTML
}

// ErrorPayload 错误消息 Payload
type ErrorPayload struct {
	Code    int    `json:"code"`    // 错误码
	Message string `json:"message"` // 错误信息
}
