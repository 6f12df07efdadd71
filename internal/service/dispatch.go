// Package service 提供业务逻辑层的实现
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slop-factory-server/internal/config"
	"slop-factory-server/internal/model"
)

// Generator 生成管线接口
type Generator interface {
	Generate(ctx context.Context, msg *model.Message) error
}

// MessageLocker 消息处理锁接口
// 事件触发和轮询触发并存时靠它保证一条消息同一时刻只被处理一次
type MessageLocker interface {
	AcquireMessageLock(ctx context.Context, messageID int64, token string, ttl time.Duration) (bool, error)
	ReleaseMessageLock(ctx context.Context, messageID int64, token string) error
}

// CycleResult 一轮调度的结果统计
type CycleResult struct {
	Selected  int `json:"selected"`  // 本轮选中的消息数
	Succeeded int `json:"succeeded"` // 处理成功的消息数
	Failed    int `json:"failed"`    // 处理失败的消息数（下轮会重新选中）
	Skipped   int `json:"skipped"`   // 因锁被占用而跳过的消息数
}

// Dispatcher 消息调度器
// 只负责选择和分发，所有写入逻辑都在 GenerationService 里
type Dispatcher struct {
	messages  MessageStore  // 消息存储（只用选择查询）
	generator Generator     // 生成管线
	locker    MessageLocker // 消息处理锁
	logger    *zap.Logger
	batchSize int           // 每轮处理的最大消息数，同时也是并发上限
	lockTTL   time.Duration // 消息锁的租约时长
}

// NewDispatcher 创建 Dispatcher 实例
func NewDispatcher(
	messages MessageStore,
	generator Generator,
	locker MessageLocker,
	logger *zap.Logger,
	cfg config.DispatchConfig,
) *Dispatcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Dispatcher{
		messages:  messages,
		generator: generator,
		locker:    locker,
		logger:    logger,
		batchSize: batchSize,
		lockTTL:   lockTTL,
	}
}

// RunCycle 执行一轮轮询调度
// 选出最多 batchSize 条未处理的 user 消息（最旧的在前），并发地逐条处理
// 单条消息的失败只记入统计，不影响同一轮的其他消息
// 只有选择查询本身失败时才返回错误
func (d *Dispatcher) RunCycle(ctx context.Context) (*CycleResult, error) {
	cycleID := uuid.NewString()
	log := d.logger.With(zap.String("cycle_id", cycleID))

	messages, err := d.messages.ListUnprocessedUser(ctx, d.batchSize)
	if err != nil {
		log.Error("failed to select unprocessed messages", zap.Error(err))
		return nil, err
	}

	result := &CycleResult{Selected: len(messages)}
	if len(messages) == 0 {
		return result, nil
	}
	log.Info("dispatching messages", zap.Int("selected", len(messages)))

	// 有界并发分发
	// 每个任务自行捕获错误并记入统计，永远返回 nil
	// 所以一条消息的失败不会取消兄弟任务
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.batchSize)

	for i := range messages {
		msg := messages[i]
		g.Go(func() error {
			outcome, _ := d.processOne(gctx, &msg)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSucceeded:
				result.Succeeded++
			case outcomeFailed:
				result.Failed++
			case outcomeSkipped:
				result.Skipped++
			}
			return nil
		})
	}

	// 任务不返回错误，Wait 只用来等待全部完成
	_ = g.Wait()

	log.Info("cycle finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// StartPolling 启动轮询循环
// 阻塞运行直到 ctx 被取消，应该在单独的 goroutine 中调用
func (d *Dispatcher) StartPolling(ctx context.Context, interval time.Duration) {
	d.logger.Info("dispatch poller started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatch poller stopped")
			return
		case <-ticker.C:
			if _, err := d.RunCycle(ctx); err != nil {
				d.logger.Error("dispatch cycle failed", zap.Error(err))
			}
		}
	}
}

// DispatchMessage 事件触发：处理单条刚插入的消息
// 非 user 消息和已处理的消息直接成功返回（空操作）
// 处理失败时返回底层错误；消息保持未处理状态，轮询会重新选中它
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg *model.Message) error {
	if msg.Role != model.MessageRoleUser || msg.Processed {
		return nil
	}

	_, err := d.processOne(ctx, msg)
	return err
}

// DispatchMessageByID 事件触发：按消息 ID 处理
// /internal/dispatch/message 接口使用，消息不存在时返回 ErrMessageNotFound
func (d *Dispatcher) DispatchMessageByID(ctx context.Context, messageID int64) error {
	msg, err := d.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	return d.DispatchMessage(ctx, msg)
}

// DispatchMessageAsync 异步的事件触发
// 消息创建接口在响应前调用，生成在后台进行
func (d *Dispatcher) DispatchMessageAsync(msg *model.Message) {
	go func() {
		// 不继承请求上下文：HTTP 响应返回后生成仍需继续
		if err := d.DispatchMessage(context.Background(), msg); err != nil {
			d.logger.Error("async dispatch failed",
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}()
}

// 单条消息的处理结果
type processOutcome int

const (
	outcomeSucceeded processOutcome = iota
	outcomeFailed
	outcomeSkipped
)

// processOne 处理一条消息：抢锁、生成、释放锁
// 错误在这里记录日志并转换为统计结果，同时返回底层错误供事件触发路径使用
func (d *Dispatcher) processOne(ctx context.Context, msg *model.Message) (processOutcome, error) {
	log := d.logger.With(
		zap.Int64("message_id", msg.ID),
		zap.Int64("project_id", msg.ProjectID),
	)

	token := uuid.NewString()
	acquired, err := d.locker.AcquireMessageLock(ctx, msg.ID, token, d.lockTTL)
	if err != nil {
		log.Error("failed to acquire message lock", zap.Error(err))
		return outcomeFailed, err
	}
	if !acquired {
		// 另一个触发路径正在处理这条消息
		log.Debug("message already being processed, skipping")
		return outcomeSkipped, nil
	}
	defer func() {
		if err := d.locker.ReleaseMessageLock(ctx, msg.ID, token); err != nil {
			log.Warn("failed to release message lock", zap.Error(err))
		}
	}()

	if err := d.generator.Generate(ctx, msg); err != nil {
		log.Error("generation failed", zap.Error(err))
		return outcomeFailed, err
	}
	return outcomeSucceeded, nil
}
