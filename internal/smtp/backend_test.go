package smtp

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/backend/internal/config"
	"studio/backend/internal/domain"
)

type fakeContacts struct {
	mu     sync.Mutex
	inputs []domain.ContactInput
	err    error
}

func (f *fakeContacts) Create(_ context.Context, input domain.ContactInput) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &domain.Message{ID: "msg-1", Name: input.Name, Email: input.Email, Message: input.Message}, nil
}

func (f *fakeContacts) received() []domain.ContactInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ContactInput(nil), f.inputs...)
}

func startIntake(t *testing.T, contacts ContactCreator) string {
	t.Helper()

	cfg := config.IntakeConfig{
		Domain:          "localhost",
		Addresses:       []string{"hello@studio.example"},
		MaxConnections:  10,
		MaxConnRate:     100,
		MaxMessageBytes: 64 << 10,
		Timeout:         5 * time.Second,
		ContentFilter:   true,
	}
	srv := NewServer(NewBackend(contacts, cfg, nil), cfg)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return l.Addr().String()
}

const inquiry = "From: Jane Doe <jane@example.com>\r\n" +
	"To: hello@studio.example\r\n" +
	"Subject: Living room refresh\r\n" +
	"\r\n" +
	"Could you send your portfolio?\r\n"

func smtpCode(t *testing.T, err error) int {
	t.Helper()
	var smtpErr *gosmtp.SMTPError
	require.True(t, errors.As(err, &smtpErr), "expected SMTP error, got %v", err)
	return smtpErr.Code
}

func TestBackend_StoresEmailAsContactMessage(t *testing.T) {
	contacts := &fakeContacts{}
	addr := startIntake(t, contacts)

	err := gosmtp.SendMail(addr, nil, "bounce@example.com", []string{"Hello@Studio.example"}, strings.NewReader(inquiry))
	require.NoError(t, err)

	got := contacts.received()
	require.Len(t, got, 1)
	assert.Equal(t, domain.ContactInput{
		Name:    "Jane Doe",
		Email:   "jane@example.com",
		Message: "Living room refresh\n\nCould you send your portfolio?",
	}, got[0])
}

func TestBackend_RejectsUnknownRecipient(t *testing.T) {
	contacts := &fakeContacts{}
	addr := startIntake(t, contacts)

	err := gosmtp.SendMail(addr, nil, "spammer@example.com", []string{"someone@elsewhere.example"}, strings.NewReader(inquiry))
	require.Error(t, err)
	assert.Equal(t, 550, smtpCode(t, err))
	assert.Empty(t, contacts.received())
}

func TestBackend_ValidationFailureIsPermanent(t *testing.T) {
	contacts := &fakeContacts{err: domain.ValidationError("create message", domain.ErrMissingField)}
	addr := startIntake(t, contacts)

	err := gosmtp.SendMail(addr, nil, "jane@example.com", []string{"hello@studio.example"}, strings.NewReader(inquiry))
	require.Error(t, err)
	assert.Equal(t, 550, smtpCode(t, err))
}

func TestBackend_StoreFailureIsTemporary(t *testing.T) {
	contacts := &fakeContacts{err: domain.UnavailableError("create message", errors.New("connection reset"))}
	addr := startIntake(t, contacts)

	err := gosmtp.SendMail(addr, nil, "jane@example.com", []string{"hello@studio.example"}, strings.NewReader(inquiry))
	require.Error(t, err)
	assert.Equal(t, 451, smtpCode(t, err))
}

func TestBackend_ContentFilterRejectsSpam(t *testing.T) {
	contacts := &fakeContacts{}
	addr := startIntake(t, contacts)

	spam := "From: Promo <promo@example.com>\r\n" +
		"To: hello@studio.example\r\n" +
		"Subject: You are a WINNER\r\n" +
		"\r\n" +
		"Act now and click here to collect free money.\r\n"

	err := gosmtp.SendMail(addr, nil, "promo@example.com", []string{"hello@studio.example"}, strings.NewReader(spam))
	require.Error(t, err)
	assert.Equal(t, 550, smtpCode(t, err))
	assert.Empty(t, contacts.received())
}

func TestToContactInput(t *testing.T) {
	t.Run("使用信封地址", func(t *testing.T) {
		input := toContactInput(&ParsedEmail{Text: "Hello there"}, "pat@example.com")
		assert.Equal(t, domain.ContactInput{Name: "pat", Email: "pat@example.com", Message: "Hello there"}, input)
	})

	t.Run("正文为空时只用主题", func(t *testing.T) {
		input := toContactInput(&ParsedEmail{Subject: " Call me back ", FromAddress: "a@example.com"}, "")
		assert.Equal(t, "Call me back", input.Message)
	})

	t.Run("主题和正文都为空", func(t *testing.T) {
		input := toContactInput(&ParsedEmail{FromAddress: "a@example.com"}, "")
		assert.Empty(t, input.Message)
	})
}

func TestBackend_SubjectOnlyMailIsStored(t *testing.T) {
	contacts := &fakeContacts{}
	addr := startIntake(t, contacts)

	mail := "From: Sam <sam@example.com>\r\n" +
		"To: hello@studio.example\r\n" +
		"Subject: Please call me about a loft conversion\r\n" +
		"\r\n"

	err := gosmtp.SendMail(addr, nil, "sam@example.com", []string{"hello@studio.example"}, strings.NewReader(mail))
	require.NoError(t, err)

	got := contacts.received()
	require.Len(t, got, 1)
	assert.Equal(t, "Please call me about a loft conversion", got[0].Message)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "hello@studio.example", normalizeAddress(" <Hello@Studio.Example> "))
}
