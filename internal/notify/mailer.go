package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studio/backend/internal/config"
	"studio/backend/internal/domain"
	"studio/backend/internal/pool"
)

const channelEmail = "email"

// SendFunc 发送一封原始邮件，签名与 go-smtp 的 SendMail 一致
type SendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Recorder 记录通知投递结果
type Recorder interface {
	RecordNotification(channel, result string)
}

// Mailer 新留言邮件通知，投递在协程池中异步执行
type Mailer struct {
	cfg     config.NotifyConfig
	pool    *pool.WorkerPool
	send    SendFunc
	metrics Recorder
	loc     *time.Location
	log     *zap.Logger
}

// Option 配置 Mailer
type Option func(*Mailer)

// WithSendFunc 替换发送函数，测试中使用
func WithSendFunc(send SendFunc) Option {
	return func(m *Mailer) { m.send = send }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(m *Mailer) { m.metrics = r }
}

// WithLocation 设置邮件正文中时间的时区
func WithLocation(loc *time.Location) Option {
	return func(m *Mailer) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithLogger 设置日志
func WithLogger(log *zap.Logger) Option {
	return func(m *Mailer) {
		if log != nil {
			m.log = log
		}
	}
}

// NewMailer 创建邮件通知器
func NewMailer(cfg config.NotifyConfig, workers *pool.WorkerPool, opts ...Option) *Mailer {
	m := &Mailer{
		cfg:  cfg,
		pool: workers,
		send: gosmtp.SendMail,
		loc:  time.Local,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnMessageEvent 只处理新建事件；队列已满时丢弃并记录
func (m *Mailer) OnMessageEvent(_ context.Context, event domain.MessageEvent) {
	if event.Type != domain.EventMessageCreated {
		return
	}

	msg := event.Message
	if !m.pool.TrySubmit(func() { m.deliver(msg) }) {
		m.record("dropped")
		m.log.Warn("notification queue full, dropping email",
			zap.String("message_id", msg.ID),
		)
	}
}

// deliver 同步发送一封通知邮件
func (m *Mailer) deliver(msg domain.Message) {
	body := m.compose(msg, time.Now())

	if err := m.send(m.cfg.SMTPAddr, m.auth(), m.cfg.From, m.cfg.To, bytes.NewReader(body)); err != nil {
		m.record("failed")
		m.log.Error("failed to send notification email",
			zap.String("message_id", msg.ID),
			zap.String("smtp_addr", m.cfg.SMTPAddr),
			zap.Error(err),
		)
		return
	}

	m.record("sent")
	m.log.Info("notification email sent",
		zap.String("message_id", msg.ID),
		zap.Int("recipients", len(m.cfg.To)),
	)
}

// auth 配置了用户名时使用 PLAIN 认证
func (m *Mailer) auth() sasl.Client {
	if m.cfg.Username == "" {
		return nil
	}
	return sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
}

// compose 生成 RFC 5322 邮件，Reply-To 指向访客邮箱
func (m *Mailer) compose(msg domain.Message, now time.Time) []byte {
	subject := mime.QEncoding.Encode("utf-8", "New contact message from "+headerSafe(msg.Name))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&buf, "Reply-To: %s\r\n", msg.Email)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@studio>\r\n", uuid.NewString())
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "Name: %s\r\n", msg.Name)
	fmt.Fprintf(&buf, "Email: %s\r\n", msg.Email)
	fmt.Fprintf(&buf, "Received: %s\r\n", domain.FormatTimestamp(msg.CreatedAt, m.loc))
	fmt.Fprintf(&buf, "Message ID: %s\r\n", msg.ID)
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Message, "\r\n", "\n"), "\n", "\r\n"))
	buf.WriteString("\r\n")

	return buf.Bytes()
}

func (m *Mailer) record(result string) {
	if m.metrics != nil {
		m.metrics.RecordNotification(channelEmail, result)
	}
}

// headerSafe 去掉换行，防止头部注入
func headerSafe(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
