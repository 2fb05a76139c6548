package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/platform"
	"github.com/hitoshi/tinlens/internal/security"
)

// Request は解析リクエストの入力。URLとTextのどちらか一方を指定する。
type Request struct {
	URL       string
	Text      string
	UserID    string
	RequestID string
}

// Service はリクエストを検証してProcessingContextを組み立て、
// パイプラインの実行と結果の受け渡しを行うエントリーポイント。
type Service struct {
	processor  Processor
	consumer   ResultConsumer
	guard      security.Guard
	strictMode bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// consumerがnilの場合は結果を受け渡さない。guardがnilの場合はSSRF検証を行わない。
func NewService(processor Processor, consumer ResultConsumer, guard security.Guard, strictMode bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		processor:  processor,
		consumer:   consumer,
		guard:      guard,
		strictMode: strictMode,
		now:        time.Now,
		logger:     logger,
	}
}

// Analyze はリクエストを解析する。
//
// 入力不備は *model.APIError、パイプラインの失敗は *model.PipelineError として返す。
// 結果の受け渡しに失敗しても解析結果は返す。
func (s *Service) Analyze(ctx context.Context, req Request) (*model.BaseAnalysisResult, error) {
	pc, err := s.newContext(req)
	if err != nil {
		return nil, err
	}

	result, err := s.processor.Process(ctx, pc.URL, pc)
	if err != nil {
		return nil, err
	}

	if s.consumer != nil {
		if err := s.consumer.Consume(ctx, pc, result); err != nil {
			s.logger.Error("failed to consume analysis result",
				slog.String("request_id", pc.RequestID),
				slog.String("platform", string(pc.Platform)),
				slog.String("error", err.Error()),
			)
		}
	}
	return result, nil
}

// newContext はリクエストからProcessingContextを生成する。
func (s *Service) newContext(req Request) (*model.ProcessingContext, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	pc := &model.ProcessingContext{
		RequestID:  requestID,
		UserID:     strings.TrimSpace(req.UserID),
		StartedAt:  s.now(),
		StrictMode: s.strictMode,
	}

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return nil, model.NewInvalidRequestError("url or text is required")
		}
		pc.Platform = model.PlatformText
		pc.RawText = text
		return pc, nil
	}

	clean, p, err := platform.Resolve(rawURL)
	if err != nil {
		if errors.Is(err, platform.ErrInvalidURL) {
			return nil, model.NewInvalidURLError(err.Error())
		}
		return nil, err
	}
	if s.guard != nil {
		if err := s.guard.ValidateURL(clean); err != nil {
			s.logger.Warn("blocked url",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSSRFBlockedError()
		}
	}

	pc.Platform = p
	pc.URL = clean
	return pc, nil
}
