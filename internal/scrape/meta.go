package scrape

import (
	"bytes"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// pageMeta はheadから読み取ったメタ情報。
type pageMeta struct {
	title       string
	description string
	author      string
	published   *time.Time
	modified    *time.Time
	keywords    []string
	language    string
	siteName    string
	imageURL    string
	videoURL    string
}

// metaDateLayouts はpublished_time等で見られる日時形式。
var metaDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseMeta はHTMLのhead（html要素のlang属性を含む）を走査してメタ情報を抽出する。
// 同じ項目が複数ある場合はOpen Graphを優先し、それ以外は最初に出現したものを採用する。
func parseMeta(body []byte) pageMeta {
	var m pageMeta
	var ogTitle, ogDescription, nameDescription, twitterDescription, docTitle string

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return finishMeta(m, ogTitle, docTitle, ogDescription, nameDescription, twitterDescription)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			switch tagName {
			case "body":
				return finishMeta(m, ogTitle, docTitle, ogDescription, nameDescription, twitterDescription)
			case "title":
				inTitle = tt == html.StartTagToken
				continue
			case "html", "meta":
			default:
				continue
			}
			if !hasAttr {
				continue
			}

			attrs := readAttrs(tokenizer)
			if tagName == "html" {
				if m.language == "" {
					m.language = attrs["lang"]
				}
				continue
			}

			key := attrs["property"]
			if key == "" {
				key = attrs["name"]
			}
			key = strings.ToLower(strings.TrimSpace(key))
			content := strings.TrimSpace(attrs["content"])
			if key == "" || content == "" {
				continue
			}

			switch key {
			case "og:title":
				setOnce(&ogTitle, content)
			case "og:description":
				setOnce(&ogDescription, content)
			case "description":
				setOnce(&nameDescription, content)
			case "twitter:description":
				setOnce(&twitterDescription, content)
			case "author", "article:author", "byl":
				setOnce(&m.author, content)
			case "article:published_time", "date", "pubdate", "datepublished":
				if m.published == nil {
					m.published = parseMetaTime(content)
				}
			case "article:modified_time", "og:updated_time":
				if m.modified == nil {
					m.modified = parseMetaTime(content)
				}
			case "keywords":
				m.keywords = appendKeywords(m.keywords, strings.Split(content, ",")...)
			case "article:tag":
				m.keywords = appendKeywords(m.keywords, content)
			case "og:locale":
				if m.language == "" {
					m.language = content
				}
			case "og:site_name":
				setOnce(&m.siteName, content)
			case "og:image", "og:image:url":
				setOnce(&m.imageURL, content)
			case "og:video", "og:video:url", "og:video:secure_url", "og:audio":
				setOnce(&m.videoURL, content)
			}

		case html.TextToken:
			if inTitle {
				docTitle += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				return finishMeta(m, ogTitle, docTitle, ogDescription, nameDescription, twitterDescription)
			}
		}
	}
}

func finishMeta(m pageMeta, ogTitle, docTitle, ogDescription, nameDescription, twitterDescription string) pageMeta {
	m.title = firstNonEmpty(ogTitle, strings.TrimSpace(docTitle))
	m.description = firstNonEmpty(ogDescription, nameDescription, twitterDescription)
	return m
}

// readAttrs は現在のタグの属性を小文字キーのマップで返す。
func readAttrs(tokenizer *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		key, val, more := tokenizer.TagAttr()
		k := strings.ToLower(string(key))
		if _, ok := attrs[k]; !ok {
			attrs[k] = string(val)
		}
		if !more {
			return attrs
		}
	}
}

func parseMetaTime(s string) *time.Time {
	for _, layout := range metaDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func appendKeywords(dst []string, words ...string) []string {
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if strings.EqualFold(existing, w) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, w)
		}
	}
	return dst
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
