package security

import (
	"fmt"
	"regexp"
	"strings"
)

// 命中多少个垃圾关键词视为垃圾来信
const defaultSpamThreshold = 3

// ContentFilter 来信内容过滤器，拒收带脚本注入或明显垃圾内容的邮件
type ContentFilter struct {
	// 恶意内容模式
	maliciousPatterns []*regexp.Regexp

	// 垃圾邮件关键词（小写）
	spamKeywords []string

	spamThreshold int
}

// Verdict 过滤结果
type Verdict struct {
	Allowed bool
	Reason  string
}

// NewContentFilter 创建内容过滤器
func NewContentFilter() *ContentFilter {
	return &ContentFilter{
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)\bon(load|error|click|mouseover)\s*=`),
			regexp.MustCompile(`(?i)document\.cookie`),
			regexp.MustCompile(`(?i)<(iframe|object|embed)[^>]*>`),
		},
		spamKeywords: []string{
			"viagra", "casino", "lottery", "winner", "crypto investment",
			"free money", "click here", "limited time", "act now",
			"guaranteed", "no risk", "earn money", "work from home",
			"seo services", "backlinks",
		},
		spamThreshold: defaultSpamThreshold,
	}
}

// Check 检查一封来信的各个部分（主题、纯文本、HTML）
func (cf *ContentFilter) Check(parts ...string) Verdict {
	for _, part := range parts {
		if part == "" {
			continue
		}
		if reason, found := cf.checkMaliciousContent(part); found {
			return Verdict{Reason: reason}
		}
	}

	if reason, found := cf.checkSpamContent(strings.Join(parts, "\n")); found {
		return Verdict{Reason: reason}
	}
	return Verdict{Allowed: true}
}

func (cf *ContentFilter) checkMaliciousContent(content string) (string, bool) {
	for _, pattern := range cf.maliciousPatterns {
		if pattern.MatchString(content) {
			return "active content is not accepted", true
		}
	}
	return "", false
}

// checkSpamContent 关键词按出现的不同词计数，同一个词重复出现只算一次
func (cf *ContentFilter) checkSpamContent(content string) (string, bool) {
	contentLower := strings.ToLower(content)

	hits := 0
	for _, keyword := range cf.spamKeywords {
		if strings.Contains(contentLower, keyword) {
			hits++
		}
	}

	if hits >= cf.spamThreshold {
		return fmt.Sprintf("looks like spam (%d flagged phrases)", hits), true
	}
	return "", false
}
