package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/tinlens/internal/metrics"
	"github.com/hitoshi/tinlens/internal/model"
)

// ステージ結果の種別。ログとメトリクスのoutcomeラベルに使用する。
const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

// Processor はURLまたはテキストを解析して結果を返す。
type Processor interface {
	Process(ctx context.Context, url string, pc *model.ProcessingContext) (*model.BaseAnalysisResult, error)
}

// Orchestrator はプラットフォームに応じたHandlerを選び、5つのステージを順に実行する。
// 各ステージは処理時間・結果をログとメトリクスに記録する。
type Orchestrator struct {
	handlers map[model.Platform]Handler
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// 同じプラットフォームのHandlerが複数ある場合は後のものが優先される。
func NewOrchestrator(handlers []Handler, rec metrics.Recorder, logger *slog.Logger) *Orchestrator {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	byPlatform := make(map[model.Platform]Handler, len(handlers))
	for _, h := range handlers {
		byPlatform[h.Platform()] = h
	}
	return &Orchestrator{handlers: byPlatform, metrics: rec, logger: logger}
}

// Process はパイプラインを実行する。
// いずれかのステージがエラーを返した場合は部分的な結果を返さずにエラーを返す。
func (o *Orchestrator) Process(ctx context.Context, url string, pc *model.ProcessingContext) (*model.BaseAnalysisResult, error) {
	handler, ok := o.handlers[pc.Platform]
	if !ok {
		err := model.NewUnsupportedPlatformError(pc.Platform)
		o.logger.Error("pipeline failed",
			slog.String("request_id", pc.RequestID),
			slog.String("platform", string(pc.Platform)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	run := &stageRun{o: o, pc: pc, started: time.Now()}

	var extracted *model.ExtractedContent
	err := run.stage(model.StageExtract, func() (string, error) {
		var err error
		extracted, err = handler.ExtractContent(ctx, url, pc)
		return presence(extracted != nil), err
	})
	if err != nil {
		return nil, err
	}

	var transcription *model.TranscriptionResult
	err = run.stage(model.StageTranscribe, func() (string, error) {
		var err error
		transcription, err = handler.TranscribeContent(ctx, extracted, pc)
		return presence(transcription != nil), err
	})
	if err != nil {
		return nil, err
	}

	var news model.StageOutcome[model.NewsDetectionResult]
	_ = run.stage(model.StageDetectNews, func() (string, error) {
		news = handler.DetectNews(ctx, transcription, extracted, pc)
		return string(news.Status), nil
	})

	var factCheck *model.FactCheckResult
	err = run.stage(model.StageFactCheck, func() (string, error) {
		var err error
		factCheck, err = handler.PerformFactCheck(ctx, transcription, extracted, pc)
		return presence(factCheck != nil), err
	})
	if err != nil {
		return nil, err
	}

	var credibility model.StageOutcome[float64]
	_ = run.stage(model.StageCredibility, func() (string, error) {
		credibility = handler.CalculateCredibility(ctx, factCheck, extracted, pc)
		return string(credibility.Status), nil
	})

	newsResult := news.Ptr()
	result := &model.BaseAnalysisResult{
		Transcription:            transcription,
		Metadata:                 projectMetadata(extracted, pc),
		NewsDetection:            newsResult,
		FactCheck:                factCheck,
		RequiresFactCheck:        model.RequiresFactCheck(newsResult, factCheck),
		CreatorCredibilityRating: credibility.Ptr(),
	}

	o.logger.Info("pipeline completed",
		slog.String("request_id", pc.RequestID),
		slog.String("platform", string(pc.Platform)),
		slog.Float64("duration_ms", msSince(run.started)),
	)
	return result, nil
}

// stageRun は1回のパイプライン実行におけるステージ計測を行う。
type stageRun struct {
	o       *Orchestrator
	pc      *model.ProcessingContext
	started time.Time
}

// stage はfnを実行し、ステージ名・結果・所要時間を記録する。
// エラー時はパイプライン開始からの経過時間も記録する。
func (r *stageRun) stage(name string, fn func() (string, error)) error {
	start := time.Now()
	outcome, err := fn()
	elapsed := time.Since(start)
	if err != nil {
		outcome = outcomeError
	}

	platform := string(r.pc.Platform)
	r.o.metrics.RecordStage(platform, name, outcome, elapsed)

	if err != nil {
		r.o.logger.Error("pipeline_stage",
			slog.String("request_id", r.pc.RequestID),
			slog.String("platform", platform),
			slog.String("stage", name),
			slog.String("outcome", outcome),
			slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
			slog.Float64("elapsed_ms", msSince(r.started)),
			slog.String("error", err.Error()),
		)
		return err
	}

	r.o.logger.Info("pipeline_stage",
		slog.String("request_id", r.pc.RequestID),
		slog.String("platform", platform),
		slog.String("stage", name),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	)
	return nil
}

func presence(ok bool) string {
	if ok {
		return outcomeOK
	}
	return outcomeEmpty
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

// projectMetadata は抽出結果を結果に含める正規化済みメタデータに変換する。
func projectMetadata(extracted *model.ExtractedContent, pc *model.ProcessingContext) model.AnalysisMetadata {
	if extracted == nil {
		extracted = fallbackContent(pc.URL, pc.Platform, model.ContentTypeText)
	}

	meta := model.AnalysisMetadata{
		Title:         extracted.Title,
		Description:   extracted.Description,
		Creator:       creatorOrUnknown(extracted.Creator),
		OriginalURL:   extracted.OriginalURL,
		Platform:      extracted.Platform,
		ContentType:   extracted.Type,
		ThumbnailURL:  extracted.ThumbnailURL,
		Hashtags:      normalizeHashtags(extracted.Hashtags),
		CreatorHandle: strings.TrimPrefix(extracted.CreatorHandle, "@"),
		PublishedAt:   extracted.PublishedAt,
	}
	if meta.OriginalURL == "" {
		meta.OriginalURL = pc.URL
	}
	if meta.Platform == "" {
		meta.Platform = pc.Platform
	}
	if extracted.Duration > 0 {
		d := extracted.Duration
		meta.Duration = &d
	}
	if !extracted.Stats.IsEmpty() {
		s := extracted.Stats
		meta.Stats = &s
	}
	return meta
}
