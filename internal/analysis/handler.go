// Package analysis はコンテンツ解析パイプラインを提供する。
// プラットフォームごとのハンドラーが抽出ステージを実装し、文字起こし・ニュース判定・
// ファクトチェック・投稿者信頼度の各ステージは共通のStagesを合成して共有する。
package analysis

import (
	"context"
	"log/slog"

	"github.com/hitoshi/tinlens/internal/metrics"
	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/research"
)

// Handler は1プラットフォーム分の5ステージを実装する。
// Orchestratorはこのインターフェースにのみ依存する。
type Handler interface {
	Platform() model.Platform
	ExtractContent(ctx context.Context, url string, pc *model.ProcessingContext) (*model.ExtractedContent, error)
	TranscribeContent(ctx context.Context, extracted *model.ExtractedContent, pc *model.ProcessingContext) (*model.TranscriptionResult, error)
	DetectNews(ctx context.Context, transcription *model.TranscriptionResult, extracted *model.ExtractedContent, pc *model.ProcessingContext) model.StageOutcome[model.NewsDetectionResult]
	PerformFactCheck(ctx context.Context, transcription *model.TranscriptionResult, extracted *model.ExtractedContent, pc *model.ProcessingContext) (*model.FactCheckResult, error)
	CalculateCredibility(ctx context.Context, factCheck *model.FactCheckResult, extracted *model.ExtractedContent, pc *model.ProcessingContext) model.StageOutcome[float64]
}

// MediaTranscriber はメディアURLを文字起こしする。
type MediaTranscriber interface {
	TranscribeURL(ctx context.Context, mediaURL string) (*model.TranscriptionResult, error)
}

// NewsClassifier はテキストのニュース性を判定する。
type NewsClassifier interface {
	Detect(ctx context.Context, text string) (*model.NewsDetectionResult, error)
}

// Stages は抽出以外の4ステージの共通実装。各ハンドラーが埋め込んで使用する。
type Stages struct {
	transcriber MediaTranscriber
	news        NewsClassifier
	verifier    research.Verifier
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewStages はStagesの新しいインスタンスを生成する。
// nilの協調オブジェクトは未設定として扱い、該当ステージはフォールバックする。
func NewStages(transcriber MediaTranscriber, news NewsClassifier, verifier research.Verifier, rec metrics.Recorder, logger *slog.Logger) *Stages {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stages{
		transcriber: transcriber,
		news:        news,
		verifier:    verifier,
		metrics:     rec,
		logger:      logger,
	}
}
