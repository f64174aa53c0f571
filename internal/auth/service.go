package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"studio/backend/internal/auth/jwt"
	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

// Service 认证服务：校验账号密码、签发与校验令牌
type Service struct {
	users  storage.UserRepository
	tokens *jwt.Manager
	now    func() time.Time
}

// NewService 创建认证服务
func NewService(users storage.UserRepository, tokens *jwt.Manager) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		now:    time.Now,
	}
}

// NewUserInput 创建后台账号的输入
type NewUserInput struct {
	Name     string
	Username string
	Password string
	Role     domain.UserRole
}

// Authenticate 校验用户名和密码
//
// 用户不存在与密码错误都返回 (nil, nil)，调用方无法区分两种情况；
// 只有存储故障才返回错误。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	const op = "authenticate"

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// 与真实校验保持相近耗时
			CheckPassword(password, dummyHash())
			return nil, nil
		}
		return nil, domain.UnavailableError(op, err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// IssueToken 为账号签发访问令牌
func (s *Service) IssueToken(user *domain.User) (string, error) {
	return s.tokens.Generate(user.ID, user.Name, user.Username, string(user.Role))
}

// TokenExpiry 令牌有效期
func (s *Service) TokenExpiry() time.Duration {
	return s.tokens.Expiry()
}

// VerifyToken 校验令牌，签名错误、过期或格式错误都归为 ErrInvalidToken
func (s *Service) VerifyToken(token string) (*jwt.Claims, error) {
	const op = "verify token"

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, domain.AuthError(op, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err))
	}
	return claims, nil
}

// CreateUser 创建后台账号，密码使用 bcrypt 哈希
func (s *Service) CreateUser(ctx context.Context, input NewUserInput) (*domain.User, error) {
	const op = "create user"

	username := strings.TrimSpace(input.Username)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, domain.ValidationError(op, err)
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, domain.ValidationError(op, err)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleAdmin
	}
	if role != domain.RoleAdmin && role != domain.RoleEditor {
		return nil, domain.ValidationError(op, fmt.Errorf("unknown role %q", role))
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(input.Name),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUsernameExists) {
			return nil, domain.ValidationError(op, err)
		}
		return nil, domain.UnavailableError(op, err)
	}
	return user, nil
}

// EnsureUser 账号不存在时创建，已存在时直接返回现有账号
func (s *Service) EnsureUser(ctx context.Context, input NewUserInput) (*domain.User, bool, error) {
	existing, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(input.Username))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, false, domain.UnavailableError("ensure user", err)
	}

	user, err := s.CreateUser(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash 用于不存在账号的占位比较
func dummyHash() string {
	dummyOnce.Do(func() {
		dummy, _ = HashPassword("studio-placeholder-password")
	})
	return dummy
}
