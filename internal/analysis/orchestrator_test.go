package analysis

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/research"
	"github.com/hitoshi/tinlens/internal/tiktok"
)

const scenarioText = "Breaking: the city council announced today that the central bridge will close for six weeks. Officials said repairs start Monday."

type pipelineFixture struct {
	rec      *fakeRecorder
	logs     *bytes.Buffer
	news     *fakeNews
	verifier *fakeVerifier
	orch     *Orchestrator
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		rec:  &fakeRecorder{},
		logs: &bytes.Buffer{},
		news: &fakeNews{result: &model.NewsDetectionResult{
			HasNewsContent:  true,
			Confidence:      0.8,
			NewsKeywords:    []string{"breaking", "announced"},
			PotentialClaims: []string{"the central bridge will close for six weeks"},
			NeedsFactCheck:  true,
			ContentType:     "news_factual",
		}},
		verifier: &fakeVerifier{result: verifiedResult(research.StatusMisleading, 0.9)},
	}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	stages := NewStages(nil, f.news, f.verifier, f.rec, logger)

	f.orch = NewOrchestrator([]Handler{
		NewTextHandler(stages, nil),
		NewInstagramHandler(stages, failingClient(), nil, nil, logger),
		NewTikTokHandler(stages, &fakeTikTok{err: tiktok.ErrUnavailable}, nil, logger),
		NewWebHandler(stages, &fakeScraper{err: errors.New("unreachable")}, logger),
	}, f.rec, logger)
	return f
}

func textContext() *model.ProcessingContext {
	pc := ctxFor(model.PlatformText)
	pc.RawText = scenarioText
	return pc
}

func TestProcess_TextClaimIsMisleading(t *testing.T) {
	f := newPipelineFixture()

	got, err := f.orch.Process(context.Background(), "", textContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Transcription == nil || len(got.Transcription.Segments) != 2 {
		t.Fatalf("Transcription = %+v, want 2 synthetic segments", got.Transcription)
	}
	if got.NewsDetection == nil || !got.NewsDetection.NeedsFactCheck {
		t.Errorf("NewsDetection = %+v", got.NewsDetection)
	}
	if got.FactCheck == nil || got.FactCheck.Verdict != model.VerdictMisleading || got.FactCheck.Confidence != 90 {
		t.Fatalf("FactCheck = %+v, want misleading/90", got.FactCheck)
	}
	if got.RequiresFactCheck {
		t.Error("RequiresFactCheck should be false when a fact check exists")
	}
	if got.CreatorCredibilityRating == nil || *got.CreatorCredibilityRating != 3.6 {
		t.Errorf("CreatorCredibilityRating = %v, want 3.6", got.CreatorCredibilityRating)
	}
	if got.Metadata.Platform != model.PlatformText || got.Metadata.Creator != model.UnknownCreator {
		t.Errorf("Metadata = %+v", got.Metadata)
	}
}

func TestProcess_InstagramNetworkError(t *testing.T) {
	f := newPipelineFixture()
	url := "https://www.instagram.com/p/abc123/"
	pc := ctxFor(model.PlatformInstagram)
	pc.URL = url

	got, err := f.orch.Process(context.Background(), url, pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	meta := got.Metadata
	if meta.Title != "www.instagram.com" || meta.Creator != "Unknown" || meta.ContentType != model.ContentTypeImage {
		t.Errorf("Metadata = %+v", meta)
	}
	if meta.Hashtags == nil || len(meta.Hashtags) != 0 {
		t.Errorf("Hashtags = %v, want empty non-nil", meta.Hashtags)
	}
	if meta.Stats != nil || meta.Duration != nil {
		t.Errorf("Stats/Duration = %v/%v, want nil", meta.Stats, meta.Duration)
	}
	if got.Transcription != nil || got.NewsDetection != nil || got.FactCheck != nil || got.CreatorCredibilityRating != nil {
		t.Errorf("expected no downstream results, got %+v", got)
	}
	if got.RequiresFactCheck {
		t.Error("RequiresFactCheck should be false")
	}
	if len(f.news.texts) != 0 || len(f.verifier.claims) != 0 {
		t.Error("no-text content must not reach news detection or fact check")
	}

	wantStages := []stageRecord{
		{"instagram", model.StageExtract, outcomeOK},
		{"instagram", model.StageTranscribe, outcomeEmpty},
		{"instagram", model.StageDetectNews, string(model.OutcomeNoData)},
		{"instagram", model.StageFactCheck, outcomeEmpty},
		{"instagram", model.StageCredibility, string(model.OutcomeNoData)},
	}
	if !reflect.DeepEqual(f.rec.stages, wantStages) {
		t.Errorf("recorded stages = %v, want %v", f.rec.stages, wantStages)
	}
	if n := strings.Count(f.logs.String(), `"msg":"pipeline_stage"`); n != 5 {
		t.Errorf("pipeline_stage logs = %d, want 5", n)
	}
}

func TestProcess_TikTokUnavailable(t *testing.T) {
	f := newPipelineFixture()
	url := "https://www.tiktok.com/@someone/video/7300000000000000000"
	pc := ctxFor(model.PlatformTikTok)

	got, err := f.orch.Process(context.Background(), url, pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Metadata.ContentType != model.ContentTypeVideo || got.Metadata.Title != "www.tiktok.com" {
		t.Errorf("Metadata = %+v", got.Metadata)
	}
	if got.Metadata.OriginalURL != url {
		t.Errorf("OriginalURL = %q", got.Metadata.OriginalURL)
	}
}

func TestProcess_StrictModeStopsPipeline(t *testing.T) {
	f := newPipelineFixture()
	pc := ctxFor(model.PlatformTikTok)
	pc.StrictMode = true

	got, err := f.orch.Process(context.Background(), "https://www.tiktok.com/@someone/video/1", pc)
	if got != nil {
		t.Errorf("expected no partial result, got %+v", got)
	}
	var pe *model.PipelineError
	if !errors.As(err, &pe) || pe.Stage != model.StageExtract {
		t.Fatalf("err = %v, want extract-stage PipelineError", err)
	}
	if len(f.rec.stages) != 1 || f.rec.stages[0].outcome != outcomeError {
		t.Errorf("recorded stages = %v", f.rec.stages)
	}
	if !strings.Contains(f.logs.String(), `"elapsed_ms"`) || !strings.Contains(f.logs.String(), `"request_id":"req-1"`) {
		t.Errorf("error log should include elapsed time and request id: %s", f.logs.String())
	}
}

func TestProcess_UnsupportedPlatform(t *testing.T) {
	f := newPipelineFixture()

	_, err := f.orch.Process(context.Background(), "https://example.com", ctxFor(model.PlatformYouTube))
	var pe *model.PipelineError
	if !errors.As(err, &pe) || pe.Code != model.ErrCodeUnsupportedPlatform {
		t.Fatalf("err = %v, want UNSUPPORTED_PLATFORM", err)
	}
}

func TestProcess_TitleOnlyPageHasNoCredibility(t *testing.T) {
	f := newPipelineFixture()
	url := "https://news.example.com/story"

	got, err := f.orch.Process(context.Background(), url, ctxFor(model.PlatformWeb))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FactCheck != nil || got.CreatorCredibilityRating != nil {
		t.Errorf("FactCheck/Credibility = %v/%v, want nil", got.FactCheck, got.CreatorCredibilityRating)
	}
}

func TestProcess_RequiresFactCheckWhenVerifierSkipped(t *testing.T) {
	rec := &fakeRecorder{}
	news := &fakeNews{result: &model.NewsDetectionResult{HasNewsContent: true, NeedsFactCheck: true}}
	stages := NewStages(nil, news, nil, rec, discardLogger())
	h := &skipFactCheck{TextHandler: NewTextHandler(stages, nil)}
	orch := NewOrchestrator([]Handler{h}, rec, discardLogger())

	got, err := orch.Process(context.Background(), "", textContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.RequiresFactCheck {
		t.Error("RequiresFactCheck should be true when news needs a fact check that is missing")
	}
}

// skipFactCheck はファクトチェック結果を返さないHandler。
type skipFactCheck struct {
	*TextHandler
}

func (skipFactCheck) PerformFactCheck(context.Context, *model.TranscriptionResult, *model.ExtractedContent, *model.ProcessingContext) (*model.FactCheckResult, error) {
	return nil, nil
}

func TestProcess_Idempotent(t *testing.T) {
	first, err := newPipelineFixture().orch.Process(context.Background(), "", textContext())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := newPipelineFixture().orch.Process(context.Background(), "", textContext())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestProjectMetadata(t *testing.T) {
	extracted := &model.ExtractedContent{
		Title:         "t",
		Creator:       "  ",
		CreatorHandle: "@handle",
		Hashtags:      []string{"#a", "b"},
		Duration:      12,
		Stats:         model.Stats{Likes: model.PositiveCount(3)},
		Type:          model.ContentTypeVideo,
	}
	pc := &model.ProcessingContext{Platform: model.PlatformTikTok, URL: "https://vm.tiktok.com/x"}

	got := projectMetadata(extracted, pc)
	if got.Creator != model.UnknownCreator || got.CreatorHandle != "handle" {
		t.Errorf("Creator/Handle = %q/%q", got.Creator, got.CreatorHandle)
	}
	if strings.Join(got.Hashtags, ",") != "a,b" {
		t.Errorf("Hashtags = %v", got.Hashtags)
	}
	if got.Duration == nil || *got.Duration != 12 || got.Stats == nil || *got.Stats.Likes != 3 {
		t.Errorf("Duration/Stats = %v/%v", got.Duration, got.Stats)
	}
	if got.OriginalURL != pc.URL || got.Platform != model.PlatformTikTok {
		t.Errorf("OriginalURL/Platform = %q/%q", got.OriginalURL, got.Platform)
	}
}

func TestLoggingConsumer(t *testing.T) {
	var buf bytes.Buffer
	c := NewLoggingConsumer(slog.New(slog.NewJSONHandler(&buf, nil)))
	rating := 7.5
	result := &model.BaseAnalysisResult{
		FactCheck:                &model.FactCheckResult{Verdict: model.VerdictVerified, Confidence: 80},
		CreatorCredibilityRating: &rating,
	}

	if err := c.Consume(context.Background(), ctxFor(model.PlatformWeb), result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{`"verdict":"verified"`, `"confidence":80`, `"creator_credibility":7.5`, `"request_id":"req-1"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log %s missing %s", buf.String(), want)
		}
	}
}
