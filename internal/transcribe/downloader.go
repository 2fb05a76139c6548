package transcribe

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/hitoshi/tinlens/internal/security"
)

// Downloader はメディアURLからバイト列を取得する。
type Downloader interface {
	Download(ctx context.Context, mediaURL string) (Media, error)
}

// HTTPDownloader はSSRF防止付きクライアントでメディアを取得するDownloader。
type HTTPDownloader struct {
	client  *http.Client
	guard   security.Guard
	maxSize int64
}

// NewHTTPDownloader はHTTPDownloaderを生成する。
// clientにはSSRF防止付きクライアントを渡す。nilの場合はhttp.DefaultClientを使用する。
func NewHTTPDownloader(client *http.Client, guard security.Guard, maxSize int64) *HTTPDownloader {
	return &HTTPDownloader{client: client, guard: guard, maxSize: maxSize}
}

// getHTTPClient はHTTPクライアントを返す。nilの場合はデフォルトクライアントを使用する。
func (d *HTTPDownloader) getHTTPClient() *http.Client {
	if d.client != nil {
		return d.client
	}
	return http.DefaultClient
}

// Download はメディアを取得する。maxSizeを超える場合はエラーを返す。
func (d *HTTPDownloader) Download(ctx context.Context, mediaURL string) (Media, error) {
	if d.guard != nil {
		if err := d.guard.ValidateURL(mediaURL); err != nil {
			return Media{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return Media{}, fmt.Errorf("メディアリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TinLens/1.0)")

	resp, err := d.getHTTPClient().Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Media{}, fmt.Errorf("メディアURLがステータス %d を返しました", resp.StatusCode)
	}
	if resp.ContentLength > 0 && d.maxSize > 0 && resp.ContentLength > d.maxSize {
		return Media{}, fmt.Errorf("%w: content-length %d exceeds %d bytes", security.ErrResponseTooLarge, resp.ContentLength, d.maxSize)
	}

	data, err := security.ReadLimited(resp.Body, d.maxSize)
	if err != nil {
		return Media{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	return Media{
		Data:        data,
		ContentType: contentType,
		Filename:    mediaFilename(mediaURL, contentType),
	}, nil
}

// mediaFilename は音声認識APIが形式を判別できるよう拡張子付きのファイル名を決める。
func mediaFilename(mediaURL, contentType string) string {
	if u, err := url.Parse(mediaURL); err == nil {
		if base := path.Base(u.Path); path.Ext(base) != "" {
			return base
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "audio/mpeg":
			return "media.mp3"
		case "audio/mp4", "audio/x-m4a":
			return "media.m4a"
		case "audio/wav", "audio/x-wav":
			return "media.wav"
		case "audio/ogg":
			return "media.ogg"
		case "video/webm", "audio/webm":
			return "media.webm"
		}
	}
	return "media.mp4"
}
