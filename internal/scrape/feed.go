package scrape

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/tinlens/internal/security"
)

// feedContentTypes はフィードとして認識するContent-Typeのリスト。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// xmlContentTypes はXMLとして認識するContent-Type（ボディ解析が必要）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// IsDirectFeed はContent-Typeとボディを解析して、
// レスポンスがRSS/Atomフィードかどうかを判定する。
func IsDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}

	if !isXML || len(body) == 0 {
		return false
	}

	return isRSSOrAtomXML(body)
}

// isRSSOrAtomXML はXMLボディの先頭4KBを解析してRSS/Atomフィードかを判定する。
func isRSSOrAtomXML(body []byte) bool {
	checkSize := 4096
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// parseFeed はフィードの最新エピソードを抽出結果に変換する。
// 音声・動画のエンクロージャーがあればMediaURLとして文字起こしに回す。
func parseFeed(body []byte, sanitizer security.TextSanitizer) (*Result, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	item := latestItem(parsed.Items)
	if item == nil {
		return nil, fmt.Errorf("フィードに記事がありません")
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}
	if author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}
	if author == "" && parsed.Author != nil {
		author = parsed.Author.Name
	}

	result := &Result{
		Title:       item.Title,
		Content:     sanitizer.PlainText(content),
		Author:      author,
		Description: sanitizer.PlainText(item.Description),
		MediaURL:    enclosureURL(item),
		IsFeed:      true,
		Metadata: Metadata{
			Keywords: appendKeywords(nil, item.Categories...),
			Language: parsed.Language,
			SiteName: parsed.Title,
		},
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		result.Metadata.PublishedTime = &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		result.Metadata.ModifiedTime = &t
	}
	if item.Image != nil {
		result.Metadata.ImageURL = item.Image.URL
	} else if parsed.Image != nil {
		result.Metadata.ImageURL = parsed.Image.URL
	}
	return result, nil
}

// latestItem は公開日時が最も新しい記事を返す。日時が無い場合は先頭の記事を優先する。
func latestItem(items []*gofeed.Item) *gofeed.Item {
	var best *gofeed.Item
	var bestTime time.Time
	for _, item := range items {
		if item == nil {
			continue
		}
		t := itemTime(item)
		if best == nil || t.After(bestTime) {
			best = item
			bestTime = t
		}
	}
	return best
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// enclosureURL は音声・動画のエンクロージャーURLを返す。
func enclosureURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		t := strings.ToLower(enc.Type)
		if t == "" || strings.HasPrefix(t, "audio/") || strings.HasPrefix(t, "video/") {
			return enc.URL
		}
	}
	return ""
}
