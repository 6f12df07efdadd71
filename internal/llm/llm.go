// Package llm 封装对外部 LLM 补全服务的调用
// 上层只依赖 Client 接口，具体的提供商实现可以替换
package llm

import (
	"context"
	"errors"
)

// 补全调用的错误分类
// 对生成管线而言这些错误都是终止性的，不在本层重试
var (
	ErrUnavailable     = errors.New("llm 服务不可达")       // 连接失败或超时
	ErrUpstream        = errors.New("llm 服务返回错误")      // 非成功状态或提供商错误
	ErrEmptyCompletion = errors.New("llm 返回内容为空")      // 响应里没有可用的文本段
	ErrNotConfigured   = errors.New("llm 服务未配置 API Key") // 缺少凭据
)

// Turn 对话中的一轮
// 角色取值与 model.MessageRole* 一致
type Turn struct {
	Role    string // user / assistant
	Content string // 该轮的文本内容
}

// Client LLM 补全服务的调用接口
type Client interface {
	// Complete 发起一次补全调用
	// 参数:
	//   - ctx: 上下文，携带超时和取消信号
	//   - system: 系统指令，放在对话最前面
	//   - turns: 按时间正序排列的完整对话历史
	//
	// 返回:
	//   - string: 响应的第一个文本段
	//   - error: 用上面的错误分类包装后的错误
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}
