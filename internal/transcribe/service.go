package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
)

// ErrEmptyTranscription は音声認識がテキストを返さなかった場合のエラー。
var ErrEmptyTranscription = errors.New("transcription is empty")

// Service はメディアURLのダウンロードから正規化済み文字起こしまでを行う。
type Service struct {
	downloader  Downloader
	transcriber Transcriber
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(downloader Downloader, transcriber Transcriber, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{downloader: downloader, transcriber: transcriber, logger: logger}
}

// TranscribeURL はメディアを取得して文字起こしを行う。
func (s *Service) TranscribeURL(ctx context.Context, mediaURL string) (*model.TranscriptionResult, error) {
	media, err := s.downloader.Download(ctx, mediaURL)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}

	raw, err := s.transcriber.Transcribe(ctx, media)
	if err != nil {
		return nil, err
	}

	segments := NormalizeSegments(raw.Segments)
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		parts := make([]string, 0, len(segments))
		for _, seg := range segments {
			parts = append(parts, seg.Text)
		}
		text = strings.Join(parts, " ")
	}
	if text == "" {
		return nil, ErrEmptyTranscription
	}

	s.logger.Debug("文字起こしが完了しました",
		slog.Int("media_bytes", len(media.Data)),
		slog.Int("segments", len(segments)),
		slog.String("language", raw.Language),
	)

	return &model.TranscriptionResult{
		Text:     text,
		Segments: segments,
		Language: raw.Language,
	}, nil
}
