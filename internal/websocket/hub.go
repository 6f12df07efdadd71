// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"slop-factory-server/internal/cache"
)

// HTMLProvider 提供项目最新 HTML 的查询能力
// 由 service.ProjectService 实现
type HTMLProvider interface {
	GetProjectHTML(ctx context.Context, id int64) (string, error)
}

// Hub 是 WebSocket 连接的中心管理器
// 负责：
// 1. 管理所有预览连接
// 2. 订阅 Redis 的项目更新事件
// 3. 把新生成的 HTML 推送给观看对应项目的浏览器
type Hub struct {
	// 观看者映射：projectID -> []*Client
	// 一个项目可能同时被多个浏览器观看
	viewers map[int64][]*Client

	// 注册通道
	register chan *Client

	// 注销通道
	unregister chan *Client

	// 互斥锁，保护并发访问
	mu sync.RWMutex

	// 依赖的服务
	projects HTMLProvider
	cache    *cache.RedisCache
}

// NewHub 创建 Hub 实例
func NewHub(projects HTMLProvider, cache *cache.RedisCache) *Hub {
	return &Hub{
		viewers:    make(map[int64][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		projects:   projects,
		cache:      cache,
	}
}

// Run 启动 Hub 的主循环
// 应该在单独的 goroutine 中运行
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// RunPubSub 消费 Redis 的项目更新事件并推送给观看者
// 应该在单独的 goroutine 中运行，ctx 取消时退出
// 多实例部署时每个实例各自订阅，事件经 Redis 扇出到所有实例
func (h *Hub) RunPubSub(ctx context.Context) {
	pubsub := h.cache.SubscribeProjectUpdates(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event cache.ProjectUpdateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Failed to parse project update event: %v", err)
				continue
			}

			h.pushProjectUpdate(ctx, &event)
		}
	}
}

// pushProjectUpdate 把一条更新事件推送给观看对应项目的浏览器
// 没有观看者时跳过 HTML 查询，避免无谓的数据库访问
func (h *Hub) pushProjectUpdate(ctx context.Context, event *cache.ProjectUpdateEvent) {
	if h.ViewerCount(event.ProjectID) == 0 {
		return
	}

	// 事件只携带 ID，HTML 从缓存/数据库取最新值
	html, err := h.projects.GetProjectHTML(ctx, event.ProjectID)
	if err != nil {
		log.Printf("Failed to load project HTML for push: projectID=%d, err=%v", event.ProjectID, err)
		return
	}

	h.notifyViewers(event.ProjectID, NewMessage(TypeProjectUpdate, &ProjectUpdatePayload{
		ProjectID:   event.ProjectID,
		MessageID:   event.MessageID,
		HTMLContent: html,
	}))
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.viewers[client.projectID] = append(h.viewers[client.projectID], client)
	log.Printf("Preview client registered: projectID=%d", client.projectID)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.viewers[client.projectID]
	for i, c := range clients {
		if c == client {
			h.viewers[client.projectID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	// 如果没有连接了，删除 key
	if len(h.viewers[client.projectID]) == 0 {
		delete(h.viewers, client.projectID)
	}

	// 关闭客户端
	client.Close()
	log.Printf("Preview client unregistered: projectID=%d", client.projectID)
}

// notifyViewers 向观看指定项目的所有浏览器发送消息
func (h *Hub) notifyViewers(projectID int64, msg *Message) {
	h.mu.RLock()
	clients := h.viewers[projectID]
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

// ViewerCount 返回观看指定项目的连接数
func (h *Hub) ViewerCount(projectID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers[projectID])
}

// Register 注册客户端（供外部调用）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（供外部调用）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
