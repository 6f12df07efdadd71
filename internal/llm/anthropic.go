// Package llm 封装对外部 LLM 补全服务的调用
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/schema"

	"slop-factory-server/internal/config"
)

// AnthropicClient 基于 Anthropic Messages API 的补全客户端
// 底层模型通过 langchaingo 的 llms.Model 接口持有，测试时可以注入假实现
type AnthropicClient struct {
	model     llms.Model    // langchaingo 模型实例
	maxTokens int           // 单次生成的最大 token 数
	timeout   time.Duration // 默认超时
}

// NewAnthropicClient 创建 AnthropicClient 实例
// 参数:
//   - cfg: 应用配置（包含 API Key、模型名称等）
//
// 返回:
//   - *AnthropicClient: 客户端实例
//   - error: 初始化错误
func NewAnthropicClient(cfg *config.Config) (*AnthropicClient, error) {
	if cfg.AI.APIKey == "" {
		return nil, ErrNotConfigured
	}

	model, err := anthropic.New(
		anthropic.WithToken(cfg.AI.APIKey),
		anthropic.WithModel(cfg.AI.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init anthropic client: %w", err)
	}

	return &AnthropicClient{
		model:     model,
		maxTokens: cfg.AI.MaxTokens,
		timeout:   cfg.AI.Timeout,
	}, nil
}

// Complete 发起一次补全调用
// 系统指令放在第一条消息，之后按原始顺序跟上完整对话历史
func (c *AnthropicClient) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	// 调用方没有设置截止时间时，应用配置里的默认超时
	// 避免一次生成无限期阻塞整个调度批次
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := buildMessages(system, turns)

	resp, err := c.model.GenerateContent(ctx, messages, llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return "", classify(err)
	}

	// 校验响应形状：必须有至少一个非空文本段
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}

	return content, nil
}

// buildMessages 将系统指令和对话历史转换为 langchaingo 的消息格式
func buildMessages(system string, turns []Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns)+1)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))

	for _, turn := range turns {
		role := schema.ChatMessageTypeHuman
		if turn.Role == "assistant" {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}

	return messages
}

// classify 将底层错误映射到本包的错误分类
// 网络层面的失败（连接不上、超时）归为不可达，其余归为上游错误
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
