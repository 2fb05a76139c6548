package analysis

import (
	"regexp"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/platform"
)

// hashtagPattern は本文中のハッシュタグ。
var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// fallbackContent は取得に失敗した場合の最小限の抽出結果を返す。
// 後続ステージがnilチェックせずに扱えるよう、必須項目はすべて埋める。
func fallbackContent(rawURL string, p model.Platform, contentType model.ContentType) *model.ExtractedContent {
	title := platform.Hostname(rawURL)
	if title == "" {
		title = rawURL
	}
	if title == "" {
		title = string(p)
	}
	return &model.ExtractedContent{
		Title:       title,
		Description: "",
		Content:     "",
		Creator:     model.UnknownCreator,
		Hashtags:    []string{},
		Type:        contentType,
		OriginalURL: rawURL,
		Platform:    p,
	}
}

// extractHashtags は本文から#を除いたハッシュタグを出現順・重複なしで返す。
func extractHashtags(texts ...string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, text := range texts {
		for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
			key := strings.ToLower(m[1])
			if seen[key] {
				continue
			}
			seen[key] = true
			tags = append(tags, m[1])
		}
	}
	return tags
}

// normalizeHashtags は先頭の#を除き、空と重複を取り除く。
func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// truncate はrune単位でn文字に切り詰める。
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// firstLine は最初の空でない行を返す。
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// creatorOrUnknown は空の場合にUnknownを返す。
func creatorOrUnknown(names ...string) string {
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return model.UnknownCreator
}
