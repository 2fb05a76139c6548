// Package platform はURLからのプラットフォーム判定と正規化を提供する。
// いずれの関数もI/Oを行わない純粋関数である。
package platform

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
)

// trackingParams は除去対象のトラッキング用クエリパラメータ。
// utm_ で始まるパラメータはプレフィックス一致で除去する。
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"ref_src": {},
	"ref_url": {},
	"_nc_ht":  {},
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(strings.ToLower(key), "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// SanitizeURL はトラッキング用クエリパラメータを除去したURLを返す。
// パースできない入力はそのまま返す。
func SanitizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.RawQuery == "" {
		return u.String()
	}

	// 順序を保つため、url.Valuesを経由せず&区切りで処理する
	parts := strings.Split(u.RawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		key := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			key = p[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if isTrackingParam(key) {
			continue
		}
		kept = append(kept, p)
	}
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

// hostname はURLのホスト名を小文字・www.なしで返す。
func hostname(u *url.URL) string {
	h := strings.ToLower(u.Hostname())
	h = strings.TrimPrefix(h, "www.")
	h = strings.TrimPrefix(h, "m.")
	return h
}

func hostIs(host string, domains ...string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// DetectPlatform はURLをプラットフォームに分類する。
// 既知のパターンに一致しないURL、パースできないURLはwebとして扱う。
func DetectPlatform(raw string) model.Platform {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return model.PlatformWeb
	}
	host := hostname(u)

	switch {
	case hostIs(host, "instagram.com", "instagr.am"):
		return model.PlatformInstagram
	case hostIs(host, "tiktok.com"):
		return model.PlatformTikTok
	case hostIs(host, "twitter.com", "x.com"):
		return model.PlatformTwitter
	case hostIs(host, "youtube.com", "youtu.be", "youtube-nocookie.com"):
		return model.PlatformYouTube
	default:
		return model.PlatformWeb
	}
}

var (
	instagramPath   = regexp.MustCompile(`^/(?:[A-Za-z0-9_.]+/)?(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)/?$`)
	tiktokVideoPath = regexp.MustCompile(`^/@[A-Za-z0-9_.-]+/(?:video|photo)/(\d+)/?$`)
	tiktokShortPath = regexp.MustCompile(`^/(?:t/)?[A-Za-z0-9]+/?$`)
	twitterPath     = regexp.MustCompile(`^/(?:[A-Za-z0-9_]{1,15}|i/web)/status(?:es)?/(\d+)(?:/.*)?$`)
	youtubeIDPath   = regexp.MustCompile(`^/(?:shorts|embed|live)/([A-Za-z0-9_-]{6,})/?$`)
	youtubeShortID  = regexp.MustCompile(`^/([A-Za-z0-9_-]{6,})/?$`)
	youtubeIDParam  = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)
)

// ErrInvalidURL はURLの構造がプラットフォームの形式に合わない場合のエラー。
var ErrInvalidURL = errors.New("invalid url")

// ValidatePlatformURL はURLがプラットフォームごとのパス形式に一致するかを検証する。
// webは http/https のスキームとホストがあれば有効とする。
func ValidatePlatformURL(raw string, p model.Platform) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidURL)
	}

	host := hostname(u)
	switch p {
	case model.PlatformInstagram:
		if !instagramPath.MatchString(u.Path) {
			return fmt.Errorf("%w: instagram url must point to /p/, /reel/ or /tv/", ErrInvalidURL)
		}
	case model.PlatformTikTok:
		if hostIs(host, "vm.tiktok.com", "vt.tiktok.com") {
			if !tiktokShortPath.MatchString(u.Path) {
				return fmt.Errorf("%w: malformed tiktok short link", ErrInvalidURL)
			}
			return nil
		}
		if !tiktokVideoPath.MatchString(u.Path) {
			return fmt.Errorf("%w: tiktok url must point to /@user/video/<id>", ErrInvalidURL)
		}
	case model.PlatformTwitter:
		if TweetID(raw) == "" {
			return fmt.Errorf("%w: twitter url must point to /<user>/status/<id>", ErrInvalidURL)
		}
	case model.PlatformYouTube:
		if YouTubeVideoID(raw) == "" {
			return fmt.Errorf("%w: youtube url must contain a video id", ErrInvalidURL)
		}
	case model.PlatformWeb:
	default:
		return fmt.Errorf("%w: unsupported platform %q", ErrInvalidURL, p)
	}
	return nil
}

// TweetID はTwitter/XのURLから数値のポストIDを取り出す。見つからない場合は空文字列。
func TweetID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	m := twitterPath.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}

// YouTubeVideoID はYouTubeのURLから動画IDを取り出す。見つからない場合は空文字列。
func YouTubeVideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := hostname(u)

	if hostIs(host, "youtu.be") {
		if m := youtubeShortID.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
		return ""
	}
	if u.Path == "/watch" || u.Path == "/watch/" {
		if v := u.Query().Get("v"); youtubeIDParam.MatchString(v) {
			return v
		}
		return ""
	}
	if m := youtubeIDPath.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// Hostname はURLのホスト名を小文字で返す。www.などのサブドメインも残す。パースできない場合は入力を返す。
// フォールバックレコードのタイトルに使用する。
func Hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.ToLower(u.Hostname())
}

// Resolve はURLを正規化し、プラットフォームの判定と形式の検証を行う。
// エントリポイントからの呼び出しを想定している。
func Resolve(raw string) (string, model.Platform, error) {
	clean := SanitizeURL(raw)
	p := DetectPlatform(clean)
	if err := ValidatePlatformURL(clean, p); err != nil {
		return clean, p, err
	}
	return clean, p, nil
}
