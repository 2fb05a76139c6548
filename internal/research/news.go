package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/tinlens/internal/llm"
	"github.com/hitoshi/tinlens/internal/model"
)

// newsKeywordThreshold はキーワード走査だけでニュースとみなすヒット数。
const newsKeywordThreshold = 3

// newsKeywords はニュース性の手がかりとなる語。
var newsKeywords = []string{
	"breaking", "breaking news", "report", "reported", "reports", "announced", "announcement",
	"official", "officials", "government", "election", "president", "minister", "police",
	"according to", "study", "scientists", "researchers", "war", "vaccine", "percent",
	"million", "billion", "confirmed", "killed", "arrested", "crisis", "law", "court",
	"investigation", "protest", "earthquake", "flood", "outbreak", "statement",
}

var newsKeywordPatterns = phrasePatterns(newsKeywords...)

// scanNewsKeywords はテキストに現れるニュース語を定義順で返す。
func scanNewsKeywords(text string) []string {
	var hits []string
	for i, re := range newsKeywordPatterns {
		if re.MatchString(text) {
			hits = append(hits, newsKeywords[i])
		}
	}
	return hits
}

const newsSystemPrompt = `You classify social media and web content. Decide whether the text contains news or ` +
	`factual claims that could be checked against sources. Respond with JSON only: ` +
	`{"hasNewsContent":bool,"confidence":0.0-1.0,"newsKeywords":[string],"potentialClaims":[string],` +
	`"needsFactCheck":bool,"contentType":"news_factual|entertainment_opinion|satire|other"}.`

// maxNewsInput はニュース判定に渡す本文の最大文字数。
const maxNewsInput = 6000

// NewsDetector はLLMの分類と決定的なキーワード走査を組み合わせてニュース性を判定する。
type NewsDetector struct {
	gen llm.Generator
}

// NewNewsDetector はNewsDetectorを生成する。
func NewNewsDetector(gen llm.Generator) *NewsDetector {
	return &NewsDetector{gen: gen}
}

// Detect はテキストのニュース性を判定する。LLMの失敗はそのままエラーとして返す。
func (d *NewsDetector) Detect(ctx context.Context, text string) (*model.NewsDetectionResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("news detection: empty text")
	}

	out, err := d.gen.GenerateText(ctx, llm.Request{
		SystemPrompt: newsSystemPrompt,
		UserPrompt:   truncateRunes(text, maxNewsInput),
		MaxTokens:    500,
		Temperature:  0.1,
		JSON:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("news detection: %w", err)
	}

	var resp struct {
		HasNewsContent  bool     `json:"hasNewsContent"`
		Confidence      float64  `json:"confidence"`
		NewsKeywords    []string `json:"newsKeywords"`
		PotentialClaims []string `json:"potentialClaims"`
		NeedsFactCheck  bool     `json:"needsFactCheck"`
		ContentType     string   `json:"contentType"`
	}
	if err := llm.DecodeJSON(out, &resp); err != nil {
		return nil, fmt.Errorf("news detection: %w", err)
	}

	return mergeNewsDetection(resp.HasNewsContent, resp.Confidence, resp.NewsKeywords,
		resp.PotentialClaims, resp.NeedsFactCheck, resp.ContentType, scanNewsKeywords(text)), nil
}

// mergeNewsDetection はLLMの分類結果にキーワード走査の結果を合成する。
// キーワードが閾値以上ヒットした場合はLLMが否定してもニュースとして扱う。
func mergeNewsDetection(hasNews bool, confidence float64, keywords, claims []string, needsFactCheck bool, contentType string, hits []string) *model.NewsDetectionResult {
	confidence = clampUnit(confidence)
	if !hasNews && len(hits) >= newsKeywordThreshold {
		hasNews = true
		if confidence < 0.5 {
			confidence = 0.5
		}
	}

	claims = compactStrings(claims)
	if hasNews && len(claims) > 0 {
		needsFactCheck = true
	}
	if !hasNews {
		needsFactCheck = false
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		contentType = "other"
		if hasNews {
			contentType = "news_factual"
		}
	}

	return &model.NewsDetectionResult{
		HasNewsContent:  hasNews,
		Confidence:      confidence,
		NewsKeywords:    mergeKeywords(keywords, hits),
		PotentialClaims: claims,
		NeedsFactCheck:  needsFactCheck,
		ContentType:     contentType,
	}
}

func mergeKeywords(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			k = strings.TrimSpace(k)
			key := strings.ToLower(k)
			if k == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, k)
		}
	}
	return out
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
