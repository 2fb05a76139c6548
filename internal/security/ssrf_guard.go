// Package security はユーザー入力由来のURL取得とテキストの安全化を提供する。
package security

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL は安全でないURLへのアクセスを拒否した場合のエラー。
var ErrBlockedURL = errors.New("blocked url")

// ErrResponseTooLarge はレスポンスボディが上限を超えた場合のエラー。
var ErrResponseTooLarge = errors.New("response body too large")

// Guard はユーザーが投稿したURLを取得する際のSSRF防止機能を定義する。
// ページ取得とメディアのダウンロードの両方で使用される。
type Guard interface {
	// NewSafeClient はプライベートIP・ループバック・リンクローカル・メタデータIPへの
	// 接続をDialerレベルで拒否するHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はDNS解決を伴わない静的な事前検証を行う。
	ValidateURL(rawURL string) error
}

// allowedSchemes はSSRF防止で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はValidateURLで拒否するネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::/128",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

// blockedHostnames はホスト名で拒否する名前。.localhost と .internal はサフィックスでも拒否する。
var blockedHostnames = []string{
	"localhost",
	"metadata.google.internal",
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

type ssrfGuard struct{}

// NewSSRFGuard はGuardの新しいインスタンスを生成する。
func NewSSRFGuard() Guard {
	return &ssrfGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// DNS解決後のIPをDialerのControlフックで検証するため、DNS再バインディングにも対応する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLのスキーム・ホスト・IPアドレスを検証する。
// 拒否した場合はErrBlockedURLをラップしたエラーを返す。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrBlockedURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrBlockedURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("%w: disallowed scheme: %s", ErrBlockedURL, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host in URL: %s", ErrBlockedURL, rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: blocked IP address: %s", ErrBlockedURL, ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("%w: blocked host: %s", ErrBlockedURL, host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal")
}

// ReadLimited はmaxBytesまでボディを読み込む。上限を超えた場合はErrResponseTooLargeを返す。
// maxBytesが0以下の場合は上限なしで読み込む。
func ReadLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, maxBytes)
	}
	return data, nil
}
