package model

import (
	"strings"
	"time"
)

// Segment は文字起こしの1区間を表す。時間は秒単位。
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult は文字起こしステージの結果。
type TranscriptionResult struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// NewsDetectionResult はニュース性判定ステージの結果。
// Confidenceは0〜1の確率値。
type NewsDetectionResult struct {
	HasNewsContent  bool     `json:"has_news_content"`
	Confidence      float64  `json:"confidence"`
	NewsKeywords    []string `json:"news_keywords"`
	PotentialClaims []string `json:"potential_claims"`
	NeedsFactCheck  bool     `json:"needs_fact_check"`
	ContentType     string   `json:"content_type"`
}

// Verdict はファクトチェックの判定結果を表す。
type Verdict string

const (
	VerdictVerified   Verdict = "verified"
	VerdictMisleading Verdict = "misleading"
	VerdictFalse      Verdict = "false"
	VerdictUnverified Verdict = "unverified"
	VerdictSatire     Verdict = "satire"
)

// Valid は定義済みの判定値かどうかを返す。
func (v Verdict) Valid() bool {
	switch v {
	case VerdictVerified, VerdictMisleading, VerdictFalse, VerdictUnverified, VerdictSatire:
		return true
	}
	return false
}

// FlagFactCheckUnavailable は検証サブシステム自体に到達できなかったことを示すフラグ。
const FlagFactCheckUnavailable = "fact_check_unavailable"

// maxContentSnippet はファクトチェック対象として保持する本文の最大文字数。
const maxContentSnippet = 500

// FactCheckSource はファクトチェックの根拠となった情報源。
// Credibilityはドメイン信頼度（0〜10）。
type FactCheckSource struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Credibility float64 `json:"credibility"`
}

// FactCheckResult はファクトチェックステージの結果。
// Confidenceは0〜100の整数値。
type FactCheckResult struct {
	Verdict        Verdict           `json:"verdict"`
	Confidence     int               `json:"confidence"`
	Explanation    string            `json:"explanation"`
	ContentSnippet string            `json:"content_snippet"`
	Sources        []FactCheckSource `json:"sources"`
	Flags          []string          `json:"flags"`
}

// HasFlag は指定フラグを含むかどうかを返す。
func (f *FactCheckResult) HasFlag(flag string) bool {
	if f == nil {
		return false
	}
	for _, fl := range f.Flags {
		if fl == flag {
			return true
		}
	}
	return false
}

// ClampConfidence は信頼度を0〜100に収める。
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// ContentSnippet はチェック対象の本文を500文字に切り詰める。
// 切り詰めた場合は末尾に "..." を付与する。
func ContentSnippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxContentSnippet {
		return text
	}
	return string(runes[:maxContentSnippet]) + "..."
}

// NewFallbackFactCheck は検証サブシステムに到達できなかった場合の代替結果を生成する。
func NewFallbackFactCheck(text, reason string) *FactCheckResult {
	explanation := "Fact-check service is currently unavailable."
	if reason != "" {
		explanation = explanation + " " + reason
	}
	return &FactCheckResult{
		Verdict:        VerdictUnverified,
		Confidence:     0,
		Explanation:    explanation,
		ContentSnippet: ContentSnippet(text),
		Sources:        []FactCheckSource{},
		Flags:          []string{FlagFactCheckUnavailable},
	}
}

// AnalysisMetadata はBaseAnalysisResultに含まれる正規化済みメタデータ。
type AnalysisMetadata struct {
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Creator       string      `json:"creator"`
	OriginalURL   string      `json:"original_url"`
	Platform      Platform    `json:"platform"`
	ContentType   ContentType `json:"content_type"`
	ThumbnailURL  string      `json:"thumbnail_url,omitempty"`
	Hashtags      []string    `json:"hashtags"`
	CreatorHandle string      `json:"creator_handle,omitempty"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
	Duration      *float64    `json:"duration,omitempty"`
	Stats         *Stats      `json:"stats,omitempty"`
}

// BaseAnalysisResult はパイプラインが組み立てる最終結果。
// 組み立て後は変更しない。
type BaseAnalysisResult struct {
	Transcription            *TranscriptionResult `json:"transcription"`
	Metadata                 AnalysisMetadata     `json:"metadata"`
	NewsDetection            *NewsDetectionResult `json:"news_detection"`
	FactCheck                *FactCheckResult     `json:"fact_check"`
	RequiresFactCheck        bool                 `json:"requires_fact_check"`
	CreatorCredibilityRating *float64             `json:"creator_credibility_rating"`
}

// RequiresFactCheck はニュース判定がファクトチェックを要求しているにもかかわらず
// ファクトチェック結果が存在しない場合にtrueを返す。
func RequiresFactCheck(news *NewsDetectionResult, factCheck *FactCheckResult) bool {
	return news != nil && news.NeedsFactCheck && factCheck == nil
}
