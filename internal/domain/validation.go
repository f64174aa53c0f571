package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// 账号校验错误
var (
	ErrPasswordTooShort = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong  = errors.New("password too long (max 72 chars)")
	ErrUsernameTooShort = errors.New("username too short (min 3 chars)")
	ErrUsernameTooLong  = errors.New("username too long (max 32 chars)")
	ErrInvalidUsername  = errors.New("invalid username format")
)

const (
	// bcrypt 只使用前 72 字节
	MinPasswordLength = 8
	MaxPasswordLength = 72

	MinUsernameLength = 3
	MaxUsernameLength = 32
)

var (
	// 联系表单邮箱格式：单词组可用单个 . 或 - 分隔，顶级域 2-3 位，可重复
	contactEmailRegex = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)
)

// ValidateMessage 校验联系表单并返回清洗后的字段
//
// 参数:
//   - input: 原始提交内容
//
// 返回值:
//   - ValidatedMessage: name/message 去除首尾空白，email 去除空白并转小写
//   - error: ErrMissingField 或 ErrInvalidEmail
func ValidateMessage(input ContactInput) (ValidatedMessage, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	message := strings.TrimSpace(input.Message)

	if name == "" || email == "" || message == "" {
		return ValidatedMessage{}, ErrMissingField
	}

	if !IsValidContactEmail(email) {
		return ValidatedMessage{}, ErrInvalidEmail
	}

	return ValidatedMessage{
		Name:    name,
		Email:   email,
		Message: message,
	}, nil
}

// IsValidContactEmail 判断邮箱是否满足联系表单的格式要求（调用方负责清洗）
func IsValidContactEmail(email string) bool {
	return contactEmailRegex.MatchString(email)
}

// ValidatePassword 校验密码长度
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateUsername 校验用户名
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

const dateOnlyLayout = "2006-01-02"

// ParseDate 解析日期参数
//
// 支持 YYYY-MM-DD（按 loc 时区的当日零点）和 RFC 3339 两种格式。
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(dateOnlyLayout, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	// 不带时区的日期时间按 loc 解释
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}

// EndOfDay 返回 t 所在日历日（loc 时区）的 23:59:59.999
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}

// StartOfDay 返回 t 所在日历日（loc 时区）的零点
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatTimestamp 生成展示用时间，例如 "January 2, 2006 at 03:04 PM"
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("January 2, 2006 at 03:04 PM")
}
