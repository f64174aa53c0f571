package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"studio/backend/internal/config"
	"studio/backend/internal/domain"
	"studio/backend/internal/security"
)

// ContactCreator 保存一条联系留言，MessageService 满足该接口
type ContactCreator interface {
	Create(ctx context.Context, input domain.ContactInput) (*domain.Message, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只收不发的 SMTP 入口：只接受发往配置地址的邮件，
// 每封来信转成一条联系留言，走与表单提交相同的校验。
// 其他收件地址一律返回 550，不做中继。
type Backend struct {
	contacts  ContactCreator
	addresses map[string]struct{}
	limiter   *ConnectionLimiter
	filter    *security.ContentFilter
	maxBytes  int64
	timeout   time.Duration
	log       *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(contacts ContactCreator, cfg config.IntakeConfig, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}

	addresses := make(map[string]struct{}, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		addresses[normalizeAddress(addr)] = struct{}{}
	}

	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b := &Backend{
		contacts:  contacts,
		addresses: addresses,
		maxBytes:  maxBytes,
		timeout:   timeout,
		log:       log,
	}
	if cfg.MaxConnections > 0 && cfg.MaxConnRate > 0 {
		b.limiter = NewConnectionLimiter(cfg.MaxConnections, cfg.MaxConnRate)
	}
	if cfg.ContentFilter {
		b.filter = security.NewContentFilter()
	}
	return b
}

// NewServer 按配置创建 SMTP 服务器
func NewServer(backend *Backend, cfg config.IntakeConfig) *gosmtp.Server {
	srv := gosmtp.NewServer(backend)
	srv.Addr = cfg.BindAddr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = backend.timeout
	srv.WriteTimeout = backend.timeout
	srv.MaxMessageBytes = backend.maxBytes
	srv.MaxRecipients = 10
	return srv
}

// NewSession 创建新的 SMTP 会话，超过连接上限时返回 421。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}

	s := &session{backend: b}
	if c != nil && c.Conn() != nil {
		s.remote = c.Conn().RemoteAddr().String()
	}
	return s, nil
}

type session struct {
	backend     *Backend
	remote      string
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = normalizeAddress(from)
	return nil
}

// Rcpt 只接受配置的收件地址
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if !strings.Contains(addr, "@") {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if _, ok := s.backend.addresses[addr]; !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 解析来信并保存为一条留言，多个收件人也只保存一次
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > s.backend.maxBytes {
		return &gosmtp.SMTPError{
			Code:         552,
			EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
			Message:      "message too large",
		}
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message",
		}
	}

	if s.backend.filter != nil {
		if verdict := s.backend.filter.Check(parsed.Subject, parsed.Text, parsed.HTML); !verdict.Allowed {
			s.backend.log.Warn("emailed contact message rejected by content filter",
				zap.String("remote", s.remote),
				zap.String("from", s.fromAddress),
				zap.String("reason", verdict.Reason),
			)
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
				Message:      fmt.Sprintf("message rejected: %s", verdict.Reason),
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.backend.timeout)
	defer cancel()

	message, err := s.backend.contacts.Create(ctx, toContactInput(parsed, s.fromAddress))
	if err != nil {
		return s.rejection(err)
	}

	s.backend.log.Info("contact message received by email",
		zap.String("message_id", message.ID),
		zap.String("remote", s.remote),
		zap.Strings("recipients", s.recipients),
	)
	return nil
}

// rejection 校验失败永久拒绝，其余错误让对方稍后重试
func (s *session) rejection(err error) error {
	if domain.KindOf(err) == domain.KindValidation {
		var de *domain.Error
		reason := err.Error()
		if errors.As(err, &de) {
			reason = de.Err.Error()
		}
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      fmt.Sprintf("message rejected: %s", reason),
		}
	}

	s.backend.log.Error("failed to store emailed contact message",
		zap.String("remote", s.remote),
		zap.Error(err),
	)
	return &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "temporary failure, try again later",
	}
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，归还连接许可。
func (s *session) Logout() error {
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	return nil
}

// toContactInput 发件人优先取 From 头，其次取信封地址；主题放在正文第一行，正文为空时只用主题
func toContactInput(parsed *ParsedEmail, envelopeFrom string) domain.ContactInput {
	email := parsed.FromAddress
	if email == "" {
		email = envelopeFrom
	}

	name := strings.TrimSpace(parsed.FromName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	body := parsed.Body()
	if subject := strings.TrimSpace(parsed.Subject); subject != "" {
		if body == "" {
			body = subject
		} else {
			body = subject + "\n\n" + body
		}
	}

	return domain.ContactInput{
		Name:    name,
		Email:   email,
		Message: body,
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
