// Package transcribe はメディアの文字起こしを提供する。
// メディアのダウンロード、OpenAI互換の音声認識API呼び出し、
// セグメント形式の正規化、キャプションの文分割フォールバックを含む。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/upstream"
)

// Media はダウンロード済みのメディア。
type Media struct {
	Data        []byte
	ContentType string
	Filename    string
}

// RawTranscription は音声認識APIの応答。セグメントは上流の形式のまま保持する。
type RawTranscription struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Segments []RawSegment `json:"segments"`
}

// Transcriber は音声認識のインターフェース。
type Transcriber interface {
	Transcribe(ctx context.Context, media Media) (*RawTranscription, error)
}

// Client はOpenAI互換の /audio/transcriptions APIのクライアント。
type Client struct {
	http   *upstream.Client
	apiKey string
	apiURL string
	model  string
	logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(apiKey, apiURL, modelName string, httpClient *upstream.Client, logger *slog.Logger) *Client {
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "whisper-1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, apiKey: apiKey, apiURL: apiURL, model: modelName, logger: logger}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Transcribe はメディアを音声認識APIに送信する。
func (c *Client) Transcribe(ctx context.Context, media Media) (*RawTranscription, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("transcribe: %w", model.ErrNotConfigured)
	}
	if len(media.Data) == 0 {
		return nil, fmt.Errorf("transcribe: empty media")
	}

	body, contentType, err := c.multipartBody(media)
	if err != nil {
		return nil, fmt.Errorf("transcribe: build form: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/audio/transcriptions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", contentType)
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
		return r, nil
	})
	if err != nil {
		c.logger.Error("音声認識APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("media_bytes", len(media.Data)),
		)
		return nil, err
	}

	var out RawTranscription
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("transcribe: decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) multipartBody(media Media) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := media.Filename
	if filename == "" {
		filename = "media.mp4"
	}
	contentType := media.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(media.Data); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"model":                     c.model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
	}
	for _, k := range []string{"model", "response_format", "timestamp_granularities[]"} {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
