package token

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scarecrow/internal/model"
	"github.com/scarecrow/pkg/auth"
	"github.com/scarecrow/pkg/config"
	"github.com/scarecrow/pkg/dal"
	"github.com/scarecrow/pkg/errors"
	"github.com/scarecrow/pkg/logger"
)

// LogoutAddress 登出哨兵地址
const LogoutAddress = "0.0.0.0"

// Credentials 登录凭据
// Login依次匹配用户名/昵称/邮箱
type Credentials struct {
	Login    string `json:"username"`
	Password string `json:"password"`
}

// Grant 签发结果
type Grant struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	ExpiresIn int64  `json:"expires_in"`
}

// Service 令牌服务
type Service struct {
	jwt   *auth.JWTManager
	db    *gorm.DB
	users dal.Repository[model.User]
}

// NewService 创建令牌服务
func NewService(cfg *config.TokenConfig, db *gorm.DB) *Service {
	return &Service{
		jwt:   auth.NewJWTManager(cfg),
		db:    db,
		users: dal.NewBaseRepositoryWithDB[model.User](db),
	}
}

// identify 解析凭据身份
// 必须恰好命中一个启用用户,零个或多个都判定失败
func (s *Service) identify(ctx context.Context, login string) (*model.User, error) {
	users, err := dal.NewQueryBuilder[model.User](s.db).
		Where("status = ?", 1).
		Where("(username = ? OR nickname = ? OR email = ?)", login, login, login).
		Find(ctx)
	if err != nil {
		return nil, errors.Wrap(err, 500, "数据存取失败")
	}
	if len(users) != 1 {
		return nil, errors.ErrInvalidCredential
	}
	return &users[0], nil
}

// Issue 登录签发令牌
func (s *Service) Issue(ctx context.Context, creds Credentials, loginAddress string) (*Grant, error) {
	user, err := s.identify(ctx, creds.Login)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.Password, creds.Password) {
		return nil, errors.ErrInvalidCredential
	}

	now := time.Now()
	err = s.users.UpdateFields(ctx, user.ID, map[string]interface{}{
		"login_address":      loginAddress,
		"recent_access_time": now,
	})
	if err != nil {
		return nil, errors.Wrap(err, 500, "数据存取失败")
	}

	tokenStr, err := s.jwt.GenerateToken(loginAddress, user.RoleCode, user.Code)
	if err != nil {
		return nil, errors.Wrap(err, 500, "令牌签发失败")
	}

	logger.Info("token issued",
		logger.String("user_code", user.Code),
		logger.String("login_address", loginAddress),
	)

	return &Grant{
		Token:     tokenStr,
		Username:  user.Username,
		Nickname:  user.Nickname,
		ExpiresIn: int64(s.jwt.GetExpireIn().Seconds()),
	}, nil
}

// Validate 校验令牌
// 任何解析失败统一返回nil,不向外区分原因
func (s *Service) Validate(tokenStr string) *auth.Claims {
	claims, err := s.jwt.ParseToken(tokenStr)
	if err != nil {
		return nil
	}
	return claims
}

// Revoke 登出
// login_address置为哨兵,当前地址记入last_address
func (s *Service) Revoke(ctx context.Context, tokenStr, loginAddress string) bool {
	claims := s.Validate(tokenStr)
	if claims == nil || claims.LoginAddress != loginAddress {
		return false
	}

	user, err := s.users.FindOne(ctx, map[string]interface{}{"code": claims.UserCode})
	if err != nil || user == nil {
		return false
	}

	err = s.users.UpdateFields(ctx, user.ID, map[string]interface{}{
		"login_address": LogoutAddress,
		"last_address":  loginAddress,
	})
	if err != nil {
		logger.Error("logout update failed", logger.Err(err))
		return false
	}
	return true
}

// ResetPassword 重置密码并强制重新登录
func (s *Service) ResetPassword(ctx context.Context, tokenStr, loginAddress, newPassword string) bool {
	claims := s.Validate(tokenStr)
	if claims == nil || claims.LoginAddress != loginAddress {
		return false
	}
	if newPassword == "" {
		return false
	}

	user, err := s.users.FindOne(ctx, map[string]interface{}{"code": claims.UserCode})
	if err != nil || user == nil {
		return false
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return false
	}

	err = s.users.UpdateFields(ctx, user.ID, map[string]interface{}{
		"password":      hash,
		"login_address": LogoutAddress,
		"last_address":  loginAddress,
	})
	if err != nil {
		logger.Error("password reset failed", logger.Err(err))
		return false
	}
	return true
}
