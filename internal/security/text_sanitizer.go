package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はキャプションや説明文に含まれるHTMLを除去し、
// LLMや文字起こしのフォールバックに渡せるプレーンテキストに変換する。
type TextSanitizer interface {
	// PlainText はタグを除去し、エンティティを復号し、空白を正規化したテキストを返す。
	// 改行は段落の区切りとして保持する。同一入力に対して常に同一出力を返す。
	PlainText(raw string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

var (
	blockBoundary = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6]|/blockquote|/tr)\b[^>]*>`)
	spaceRun      = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	newlineRun    = regexp.MustCompile(`\n{3,}`)
)

// NewTextSanitizer はStrictPolicy（全タグ除去）のbluemondayポリシーでTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	// ブロック要素の終端はタグ除去前に改行へ置き換える
	withBreaks := blockBoundary.ReplaceAllString(raw, "\n")
	stripped := s.policy.Sanitize(withBreaks)
	text := html.UnescapeString(stripped)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
