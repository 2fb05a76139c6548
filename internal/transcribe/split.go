package transcribe

import (
	"regexp"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
)

// syntheticSegmentSeconds は文分割による疑似セグメント1件あたりの秒数。
const syntheticSegmentSeconds = 2

// sentencePattern は終端記号（. ! ?）までを1文として切り出す。改行も区切りとして扱う。
var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]*`)

// SplitSentences はキャプション等のテキストを文に分割し、
// i番目の文を [i*2, i*2+2) 秒の疑似セグメントとした文字起こし結果を返す。
// 空白のみのテキストの場合はnilを返す。
func SplitSentences(text string) *model.TranscriptionResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var segments []model.Segment
	for _, m := range sentencePattern.FindAllString(trimmed, -1) {
		sentence := strings.TrimSpace(m)
		if sentence == "" || strings.Trim(sentence, ".!? ") == "" {
			continue
		}
		i := float64(len(segments))
		segments = append(segments, model.Segment{
			Start: i * syntheticSegmentSeconds,
			End:   i*syntheticSegmentSeconds + syntheticSegmentSeconds,
			Text:  sentence,
		})
	}
	if len(segments) == 0 {
		return nil
	}

	return &model.TranscriptionResult{
		Text:     trimmed,
		Segments: segments,
	}
}
