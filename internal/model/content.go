// Package model はドメインモデルを定義する。
package model

import (
	"math"
	"time"
)

// Platform はコンテンツの取得元プラットフォームを表す。
type Platform string

const (
	// PlatformInstagram はInstagramの投稿・リール。
	PlatformInstagram Platform = "instagram"
	// PlatformTikTok はTikTokの動画。
	PlatformTikTok Platform = "tiktok"
	// PlatformTwitter はTwitter/Xのポスト。
	PlatformTwitter Platform = "twitter"
	// PlatformYouTube はYouTubeの動画。
	PlatformYouTube Platform = "youtube"
	// PlatformWeb は汎用Webページ。
	PlatformWeb Platform = "web"
	// PlatformText はURLを伴わない生テキスト入力。
	PlatformText Platform = "text"
)

// ContentType は抽出したコンテンツの種類を表す。
type ContentType string

const (
	ContentTypeVideo   ContentType = "video"
	ContentTypeImage   ContentType = "image"
	ContentTypeText    ContentType = "text"
	ContentTypeArticle ContentType = "article"
	ContentTypeAudio   ContentType = "audio"
)

// UnknownCreator は投稿者が特定できない場合の表示名。
const UnknownCreator = "Unknown"

// ProcessingContext は1リクエストの解析処理に付随する情報を保持する。
// エントリポイントが生成し、パイプラインの実行中のみ使用される。
type ProcessingContext struct {
	RequestID string
	UserID    string
	Platform  Platform
	URL       string
	StartedAt time.Time
	RawText   string

	// StrictMode が有効な場合、上流サービスの失敗をフォールバックせずエラーとして返す。
	StrictMode bool
}

// Stats はプラットフォームが報告するエンゲージメント数値。
// 正の有限値のみ保持し、それ以外はnilとする。
type Stats struct {
	Views    *int64 `json:"views,omitempty"`
	Likes    *int64 `json:"likes,omitempty"`
	Comments *int64 `json:"comments,omitempty"`
	Shares   *int64 `json:"shares,omitempty"`
	Saves    *int64 `json:"saves,omitempty"`
	Plays    *int64 `json:"plays,omitempty"`
}

// IsEmpty はいずれの数値も保持していない場合にtrueを返す。
func (s Stats) IsEmpty() bool {
	return s.Views == nil && s.Likes == nil && s.Comments == nil &&
		s.Shares == nil && s.Saves == nil && s.Plays == nil
}

// PositiveCount は正の有限値の場合のみポインタを返す。
func PositiveCount(v float64) *int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil
	}
	n := int64(math.Round(v))
	if n <= 0 {
		return nil
	}
	return &n
}

// ExtractedContent は抽出ステージが生成するプラットフォーム固有のコンテンツ。
// 後続ステージで消費され、永続化されるのは正規化済みのメタデータのみ。
type ExtractedContent struct {
	Title         string
	Description   string
	Content       string // Web記事やテキスト入力の本文
	Creator       string
	CreatorHandle string
	MediaURL      string
	ThumbnailURL  string
	PublishedAt   *time.Time
	Hashtags      []string
	Duration      float64 // 秒
	Type          ContentType
	OriginalURL   string
	Platform      Platform
	Stats         Stats
}

// CaptionText は文字起こしのフォールバックに使用するキャプション本文を返す。
// Content、Descriptionの順に空でないものを採用し、タイトルは含めない。
func (e *ExtractedContent) CaptionText() string {
	if e == nil {
		return ""
	}
	if e.Content != "" {
		return e.Content
	}
	return e.Description
}
