package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/research"
	"github.com/hitoshi/tinlens/internal/transcribe"
)

// maxClaimLength はファクトチェックに渡す主張の最大文字数。
const maxClaimLength = 1000

// TranscribeContent はメディアがあれば文字起こしを行い、失敗した場合や
// メディアが無い場合はキャプション本文を文に分割して疑似的な文字起こしとする。
// メディアもキャプションも無い場合はnilを返す。
func (s *Stages) TranscribeContent(ctx context.Context, extracted *model.ExtractedContent, pc *model.ProcessingContext) (*model.TranscriptionResult, error) {
	if extracted == nil {
		return nil, nil
	}

	if extracted.MediaURL != "" {
		result, err := s.transcribeMedia(ctx, extracted.MediaURL)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if pc.StrictMode {
			return nil, model.NewTranscriptionError(pc.Platform, err)
		}
		s.logger.Warn("文字起こしに失敗したためキャプションを使用します",
			slog.String("request_id", pc.RequestID),
			slog.String("platform", string(pc.Platform)),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordFallback(string(pc.Platform), model.StageTranscribe)
	}

	return transcribe.SplitSentences(extracted.CaptionText()), nil
}

func (s *Stages) transcribeMedia(ctx context.Context, mediaURL string) (*model.TranscriptionResult, error) {
	if s.transcriber == nil {
		return nil, fmt.Errorf("transcribe: %w", model.ErrNotConfigured)
	}
	return s.transcriber.TranscribeURL(ctx, mediaURL)
}

// DetectNews はタイトルと本文からニュース性を判定する。
// テキストが無い場合は呼び出しを行わずNoDataを返し、失敗は警告ログを出してSuppressedとする。
func (s *Stages) DetectNews(ctx context.Context, transcription *model.TranscriptionResult, extracted *model.ExtractedContent, pc *model.ProcessingContext) model.StageOutcome[model.NewsDetectionResult] {
	text := analysisText(transcription, extracted)
	if text == "" {
		return model.NoData[model.NewsDetectionResult]()
	}

	if s.news == nil {
		return model.Suppressed[model.NewsDetectionResult](fmt.Errorf("news detection: %w", model.ErrNotConfigured))
	}

	result, err := s.news.Detect(ctx, withTitle(extracted, text))
	if err == nil && result == nil {
		err = errors.New("news detection returned no result")
	}
	if err != nil {
		s.logger.Warn("ニュース判定に失敗しました",
			slog.String("request_id", pc.RequestID),
			slog.String("platform", string(pc.Platform)),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordFallback(string(pc.Platform), model.StageDetectNews)
		return model.Suppressed[model.NewsDetectionResult](err)
	}
	return model.Value(*result)
}

// PerformFactCheck は本文の主張を検証する。
// 検証エンジンが未設定などで検証を試みなかった場合は fact_check_unavailable フラグ付きの
// 代替結果を返し、StrictMode時はFactCheckErrorを返す。検証中の失敗はエンジンが
// 判定不能として返すため、そのままunverifiedの結果になる。テキストが無い場合はnilを返す。
func (s *Stages) PerformFactCheck(ctx context.Context, transcription *model.TranscriptionResult, extracted *model.ExtractedContent, pc *model.ProcessingContext) (*model.FactCheckResult, error) {
	text := analysisText(transcription, extracted)
	if text == "" {
		return nil, nil
	}

	var res *research.Result
	if s.verifier != nil {
		res = s.verifier.Verify(ctx, claimFor(extracted, text))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if res == nil || !res.Success || res.Data == nil {
		reason := "verification engine not configured"
		if res != nil && res.Error != "" {
			reason = res.Error
		}
		if pc.StrictMode {
			return nil, model.NewFactCheckError(pc.Platform, errors.New(reason))
		}
		s.logger.Warn("ファクトチェックを利用できないため代替結果を返します",
			slog.String("request_id", pc.RequestID),
			slog.String("platform", string(pc.Platform)),
			slog.String("reason", reason),
		)
		s.metrics.RecordFallback(string(pc.Platform), model.StageFactCheck)
		fallback := model.NewFallbackFactCheck(text, "")
		s.metrics.RecordVerdict(string(pc.Platform), string(fallback.Verdict))
		return fallback, nil
	}

	result := toFactCheckResult(res.Data, text)
	s.metrics.RecordVerdict(string(pc.Platform), string(result.Verdict))
	return result, nil
}

// CalculateCredibility は投稿者の信頼度（0〜10）を算出する。
// factCheckまたはextractedが無い場合は算出しない。
func (s *Stages) CalculateCredibility(_ context.Context, factCheck *model.FactCheckResult, extracted *model.ExtractedContent, pc *model.ProcessingContext) model.StageOutcome[float64] {
	if factCheck == nil || extracted == nil {
		return model.NoData[float64]()
	}
	rating, err := CreatorRating(factCheck, extracted)
	if err != nil {
		s.logger.Warn("投稿者信頼度の算出に失敗しました",
			slog.String("request_id", pc.RequestID),
			slog.String("platform", string(pc.Platform)),
			slog.String("error", err.Error()),
		)
		return model.Suppressed[float64](err)
	}
	return model.Value(rating)
}

// toFactCheckResult は検証エンジンの結果をFactCheckResultに変換する。
// 確信度は0〜1から0〜100の整数に変換する。
func toFactCheckResult(data *research.Data, text string) *model.FactCheckResult {
	verdict := model.VerdictUnverified
	switch data.Status {
	case research.StatusVerified:
		verdict = model.VerdictVerified
	case research.StatusMisleading:
		verdict = model.VerdictMisleading
	}

	explanation := data.Summary
	if explanation == "" {
		explanation = data.Reasoning
	}

	sources := make([]model.FactCheckSource, 0, len(data.Sources))
	for _, src := range data.Sources {
		title := src.Title
		if title == "" {
			title = src.Domain
		}
		sources = append(sources, model.FactCheckSource{
			Title:       title,
			URL:         src.URL,
			Credibility: src.Credibility,
		})
	}

	return &model.FactCheckResult{
		Verdict:        verdict,
		Confidence:     model.ClampConfidence(int(math.Round(data.Confidence * 100))),
		Explanation:    explanation,
		ContentSnippet: model.ContentSnippet(text),
		Sources:        sources,
		Flags:          []string{},
	}
}

// analysisText は後続ステージの入力テキストを返す。文字起こしを優先し、
// 無ければキャプション本文を使う。タイトルだけのコンテンツはテキスト無しとして扱う。
func analysisText(transcription *model.TranscriptionResult, extracted *model.ExtractedContent) string {
	if transcription != nil {
		if t := strings.TrimSpace(transcription.Text); t != "" {
			return t
		}
	}
	return strings.TrimSpace(extracted.CaptionText())
}

// withTitle は本文に含まれていないタイトルを先頭に付ける。
func withTitle(extracted *model.ExtractedContent, text string) string {
	if extracted == nil {
		return text
	}
	title := strings.TrimSpace(extracted.Title)
	if title == "" || strings.Contains(text, title) {
		return text
	}
	return title + "\n\n" + text
}

func claimFor(extracted *model.ExtractedContent, text string) string {
	claim := withTitle(extracted, text)
	runes := []rune(claim)
	if len(runes) > maxClaimLength {
		return string(runes[:maxClaimLength])
	}
	return claim
}
