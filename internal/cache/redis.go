// Package cache 提供 Redis 缓存操作的封装
// 处理项目 HTML 缓存、消息处理锁、项目更新事件广播等需要快速访问的数据
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"slop-factory-server/internal/config"
)

// 项目更新事件的 Pub/Sub 频道
const projectUpdateChannel = "project:updates"

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username, // 阿里云 Redis 需要用户名
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== 项目 HTML 缓存 ====================
// 画廊和预览页读取 html_content 的频率远高于生成频率
// 生成成功后整体刷新，读取时先查缓存再回源数据库

// SetProjectHTML 缓存项目的 HTML 产物
// 生成管线在事务提交后调用
// 参数:
//   - ctx: 上下文
//   - projectID: 项目ID
//   - html: 完整 HTML 文档
//   - ttl: 过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) SetProjectHTML(ctx context.Context, projectID int64, html string, ttl time.Duration) error {
	return c.client.Set(ctx, fmt.Sprintf("project:%d:html", projectID), html, ttl).Err()
}

// GetProjectHTML 读取项目的 HTML 缓存
// 参数:
//   - ctx: 上下文
//   - projectID: 项目ID
//
// 返回:
//   - string: 缓存的 HTML，未命中时返回空串
//   - bool: 是否命中
//   - error: Redis 操作错误
func (c *RedisCache) GetProjectHTML(ctx context.Context, projectID int64) (string, bool, error) {
	html, err := c.client.Get(ctx, fmt.Sprintf("project:%d:html", projectID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return html, true, nil
}

// InvalidateProjectHTML 删除项目的 HTML 缓存
// 参数:
//   - ctx: 上下文
//   - projectID: 项目ID
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) InvalidateProjectHTML(ctx context.Context, projectID int64) error {
	return c.client.Del(ctx, fmt.Sprintf("project:%d:html", projectID)).Err()
}

// ==================== 消息处理锁 ====================
// 事件触发和轮询触发可能同时选中同一条消息
// 处理前先用 SETNX 抢占租约，抢不到的一方直接跳过

// AcquireMessageLock 尝试获取消息处理锁
// 参数:
//   - ctx: 上下文
//   - messageID: 消息ID
//   - token: 持有者标识（调度器生成的 uuid）
//   - ttl: 租约时长，防止持有者崩溃后锁永久残留
//
// 返回:
//   - bool: 是否获取成功
//   - error: Redis 操作错误
func (c *RedisCache) AcquireMessageLock(ctx context.Context, messageID int64, token string, ttl time.Duration) (bool, error) {
	// SETNX: 只有 Key 不存在时才写入
	return c.client.SetNX(ctx, fmt.Sprintf("dispatch:lock:%d", messageID), token, ttl).Result()
}

// ReleaseMessageLock 释放消息处理锁
// 只有持有者本人可以释放，避免误删别人续期后的锁
// 参数:
//   - ctx: 上下文
//   - messageID: 消息ID
//   - token: 获取锁时使用的持有者标识
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) ReleaseMessageLock(ctx context.Context, messageID int64, token string) error {
	key := fmt.Sprintf("dispatch:lock:%d", messageID)

	// 先校验持有者再删除
	// 两步之间存在极小的窗口，但锁本身有 TTL 兜底，这里不引入 Lua 脚本
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // 锁已过期
	}
	if err != nil {
		return err
	}
	if val != token {
		return nil // 锁已被其他持有者接管
	}
	return c.client.Del(ctx, key).Err()
}

// ==================== Pub/Sub ====================
// 生成成功后广播项目更新事件
// WebSocket Hub 订阅该频道并推送给订阅了对应项目的浏览器

// ProjectUpdateEvent 项目更新事件
type ProjectUpdateEvent struct {
	ProjectID int64 `json:"project_id"` // 项目ID
	MessageID int64 `json:"message_id"` // 本次生成产生的 assistant 消息ID
	Timestamp int64 `json:"timestamp"`  // 事件时间（Unix 秒）
}

// PublishProjectUpdate 发布项目更新事件
// 参数:
//   - ctx: 上下文
//   - event: 事件内容（会被 JSON 序列化）
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) PublishProjectUpdate(ctx context.Context, event *ProjectUpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// PUBLISH 发布消息到指定频道
	// 所有订阅该频道的客户端都会收到消息
	return c.client.Publish(ctx, projectUpdateChannel, data).Err()
}

// SubscribeProjectUpdates 订阅项目更新事件
// 返回 PubSub 对象，调用方负责关闭
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - *redis.PubSub: PubSub 订阅对象
func (c *RedisCache) SubscribeProjectUpdates(ctx context.Context) *redis.PubSub {
	return c.client.Subscribe(ctx, projectUpdateChannel)
}

// ==================== 通用方法 ====================

// Ping 检查 Redis 连接
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - error: 如果连接失败返回错误
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
