// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"slop-factory-server/pkg/response"
	"slop-factory-server/pkg/token"
)

// ServiceAuthMiddleware 创建服务令牌认证中间件
// 验证请求头中的 Bearer Token，保护 /internal 下的调度路由
// 公开 API 不经过这个中间件
// 参数:
//   - tokenService: 服务令牌实例，用于解析和验证 Token
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func ServiceAuthMiddleware(tokenService *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Authorization 字段
		// 格式: "Bearer <token>"
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "缺少服务令牌")
			c.Abort() // 终止请求处理
			return
		}

		// 2. 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "认证格式错误")
			c.Abort()
			return
		}

		// 3. 验证 Token
		claims, err := tokenService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "服务令牌无效或已过期")
			c.Abort()
			return
		}

		// 4. 将调用方标识存入上下文，供日志使用
		c.Set("caller", claims.Caller)

		// 5. 继续处理请求
		c.Next()
	}
}
