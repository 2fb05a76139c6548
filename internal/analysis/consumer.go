package analysis

import (
	"context"
	"log/slog"

	"github.com/hitoshi/tinlens/internal/model"
)

// ResultConsumer は組み立てた解析結果を受け取る。保存先は外部に委ねる。
type ResultConsumer interface {
	Consume(ctx context.Context, pc *model.ProcessingContext, result *model.BaseAnalysisResult) error
}

// LoggingConsumer は結果の要約を構造化ログに出力するResultConsumer。
type LoggingConsumer struct {
	logger *slog.Logger
}

// NewLoggingConsumer はLoggingConsumerの新しいインスタンスを生成する。
func NewLoggingConsumer(logger *slog.Logger) *LoggingConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingConsumer{logger: logger}
}

// Consume は判定結果と投稿者信頼度をログに記録する。
func (c *LoggingConsumer) Consume(_ context.Context, pc *model.ProcessingContext, result *model.BaseAnalysisResult) error {
	attrs := []any{
		slog.String("request_id", pc.RequestID),
		slog.String("platform", string(pc.Platform)),
		slog.String("content_type", string(result.Metadata.ContentType)),
		slog.Bool("requires_fact_check", result.RequiresFactCheck),
	}
	if pc.UserID != "" {
		attrs = append(attrs, slog.String("user_id", pc.UserID))
	}
	if result.FactCheck != nil {
		attrs = append(attrs,
			slog.String("verdict", string(result.FactCheck.Verdict)),
			slog.Int("confidence", result.FactCheck.Confidence),
		)
	}
	if result.CreatorCredibilityRating != nil {
		attrs = append(attrs, slog.Float64("creator_credibility", *result.CreatorCredibilityRating))
	}
	c.logger.Info("analysis result", attrs...)
	return nil
}
