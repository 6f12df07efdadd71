// Package token 提供服务令牌的生成和验证功能
// 调度相关的 /internal 路由只允许持有有效服务令牌的调用方访问
// （外部定时器、管理脚本等），公开 API 不使用令牌
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 定义错误类型
var (
	ErrInvalidToken = errors.New("invalid token")     // 令牌无效
	ErrExpiredToken = errors.New("token has expired") // 令牌已过期
)

// 令牌固定字段
const (
	issuer  = "slop-factory"
	subject = "dispatch"
)

// ServiceClaims 服务令牌的声明（Payload）
type ServiceClaims struct {
	// Caller 调用方标识，如 "cron" / "ops"，只用于日志
	Caller string `json:"caller"`
	jwt.RegisteredClaims
}

// Service 提供服务令牌相关操作
type Service struct {
	secret []byte        // 签名密钥
	expire time.Duration // 令牌过期时间
}

// NewService 创建 Service 实例
// 参数:
//   - secret: 签名密钥，至少 32 个字符
//   - expire: 令牌过期时间
//
// 返回:
//   - *Service: 服务令牌实例
func NewService(secret string, expire time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		expire: expire,
	}
}

// Generate 生成服务令牌
// 参数:
//   - caller: 调用方标识
//
// 返回:
//   - string: JWT 令牌字符串
//   - error: 生成错误
func (s *Service) Generate(caller string) (string, error) {
	claims := ServiceClaims{
		Caller: caller,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
			Subject:   subject,
		},
	}

	// jwt.SigningMethodHS256: 使用 HMAC SHA256 算法签名
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Validate 验证服务令牌
// 参数:
//   - tokenString: JWT 令牌字符串
//
// 返回:
//   - *ServiceClaims: 令牌声明
//   - error: ErrExpiredToken / ErrInvalidToken
func (s *Service) Validate(tokenString string) (*ServiceClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		// 只接受 HMAC 签名，防止算法替换攻击
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*ServiceClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != issuer || claims.Subject != subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
