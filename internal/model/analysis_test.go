package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestRequiresFactCheck_TruthTable(t *testing.T) {
	needs := &NewsDetectionResult{NeedsFactCheck: true}
	noNeed := &NewsDetectionResult{NeedsFactCheck: false}
	fc := &FactCheckResult{Verdict: VerdictVerified}

	tests := []struct {
		name string
		news *NewsDetectionResult
		fc   *FactCheckResult
		want bool
	}{
		{"ニュース判定なし・ファクトチェックなし", nil, nil, false},
		{"ニュース判定なし・ファクトチェックあり", nil, fc, false},
		{"要チェック・ファクトチェックなし", needs, nil, true},
		{"要チェック・ファクトチェックあり", needs, fc, false},
		{"チェック不要・ファクトチェックなし", noNeed, nil, false},
		{"チェック不要・ファクトチェックあり", noNeed, fc, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiresFactCheck(tt.news, tt.fc); got != tt.want {
				t.Errorf("RequiresFactCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContentSnippet_TruncatesAt500Runes(t *testing.T) {
	long := strings.Repeat("あ", 600)
	got := ContentSnippet(long)

	if !strings.HasSuffix(got, "...") {
		t.Errorf("切り詰め時は ... で終わるべき: %q", got[len(got)-10:])
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != 500 {
		t.Errorf("本文の長さ = %d, want 500", n)
	}
}

func TestContentSnippet_ShortTextUnchanged(t *testing.T) {
	if got := ContentSnippet("  short text  "); got != "short text" {
		t.Errorf("ContentSnippet() = %q, want %q", got, "short text")
	}
}

func TestClampConfidence(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 150: 100}
	for in, want := range cases {
		if got := ClampConfidence(in); got != want {
			t.Errorf("ClampConfidence(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNewFallbackFactCheck(t *testing.T) {
	fc := NewFallbackFactCheck("Some claim.", "")

	if fc.Verdict != VerdictUnverified {
		t.Errorf("Verdict = %q, want %q", fc.Verdict, VerdictUnverified)
	}
	if fc.Confidence != 0 {
		t.Errorf("Confidence = %d, want 0", fc.Confidence)
	}
	if !fc.HasFlag(FlagFactCheckUnavailable) {
		t.Error("fact_check_unavailable フラグを含むべき")
	}
	if fc.ContentSnippet != "Some claim." {
		t.Errorf("ContentSnippet = %q", fc.ContentSnippet)
	}
	if fc.Sources == nil {
		t.Error("Sources は空スライスであるべき")
	}
}

func TestVerdict_Valid(t *testing.T) {
	for _, v := range []Verdict{VerdictVerified, VerdictMisleading, VerdictFalse, VerdictUnverified, VerdictSatire} {
		if !v.Valid() {
			t.Errorf("%q は有効な判定値であるべき", v)
		}
	}
	if Verdict("unverifiable").Valid() {
		t.Error("unverifiable は FactCheckResult の判定値ではない")
	}
}

func TestPositiveCount(t *testing.T) {
	if PositiveCount(0) != nil {
		t.Error("0 は保持しない")
	}
	if PositiveCount(-3) != nil {
		t.Error("負数は保持しない")
	}
	if PositiveCount(math.NaN()) != nil || PositiveCount(math.Inf(1)) != nil {
		t.Error("非有限値は保持しない")
	}
	if got := PositiveCount(1234); got == nil || *got != 1234 {
		t.Errorf("PositiveCount(1234) = %v", got)
	}
}

func TestStageOutcome(t *testing.T) {
	v := Value(7.5)
	if p := v.Ptr(); p == nil || *p != 7.5 {
		t.Errorf("Value.Ptr() = %v", p)
	}

	if NoData[float64]().Ptr() != nil {
		t.Error("NoData.Ptr() は nil であるべき")
	}

	s := Suppressed[float64](errors.New("boom"))
	if s.Ptr() != nil {
		t.Error("Suppressed.Ptr() は nil であるべき")
	}
	if s.Err == nil || s.Status != OutcomeSuppressed {
		t.Error("Suppressed はエラーを保持するべき")
	}
}

func TestPipelineError_Unwrap(t *testing.T) {
	cause := errors.New("api down")
	err := NewExtractionError(PlatformTikTok, cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is で原因エラーを辿れるべき")
	}
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Code != ErrCodeExtractionFailed {
		t.Errorf("errors.As で PipelineError を取得できるべき: %v", err)
	}
}

func TestPipelineError_ConfigMissing(t *testing.T) {
	err := NewTranscriptionError(PlatformWeb, fmt.Errorf("transcribe: %w", ErrNotConfigured))
	if err.Code != ErrCodeConfigMissing || err.Stage != StageTranscribe {
		t.Errorf("Code/Stage = %s/%s, want CONFIG_MISSING/transcribe", err.Code, err.Stage)
	}
}

func TestExtractedContent_CaptionText(t *testing.T) {
	var nilContent *ExtractedContent
	if nilContent.CaptionText() != "" {
		t.Error("nil の場合は空文字列")
	}

	e := &ExtractedContent{Title: "title only"}
	if e.CaptionText() != "" {
		t.Error("タイトルはキャプションに含めない")
	}

	e.Description = "desc"
	if e.CaptionText() != "desc" {
		t.Errorf("CaptionText() = %q", e.CaptionText())
	}
	e.Content = "body"
	if e.CaptionText() != "body" {
		t.Errorf("CaptionText() = %q", e.CaptionText())
	}
}
