package transcribe

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
)

// segmentShape は上流が返すセグメントの形式。
type segmentShape int

const (
	// shapeStartEnd は {start, end, text} 形式（Whisper verbose_json）。
	shapeStartEnd segmentShape = iota + 1
	// shapeStartSecond は {startSecond, endSecond, text} 形式。
	shapeStartSecond
)

// RawSegment は上流から受け取ったセグメント。
// JSONデコード時に形式を判別し、Normalizeで正規形に変換する。
type RawSegment struct {
	shape segmentShape
	start float64
	end   float64
	text  string
}

// errUnknownSegmentShape は開始時刻のフィールドが見つからないセグメントのエラー。
var errUnknownSegmentShape = errors.New("segment has neither start/end nor startSecond/endSecond")

// UnmarshalJSON はセグメントの形式を判別してデコードする。
func (s *RawSegment) UnmarshalJSON(data []byte) error {
	var probe struct {
		Start       *float64 `json:"start"`
		End         *float64 `json:"end"`
		StartSecond *float64 `json:"startSecond"`
		EndSecond   *float64 `json:"endSecond"`
		Text        string   `json:"text"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch {
	case probe.Start != nil:
		s.shape = shapeStartEnd
		s.start = *probe.Start
		s.end = deref(probe.End, s.start)
	case probe.StartSecond != nil:
		s.shape = shapeStartSecond
		s.start = *probe.StartSecond
		s.end = deref(probe.EndSecond, s.start)
	default:
		return errUnknownSegmentShape
	}
	s.text = probe.Text
	return nil
}

func deref(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// NewRawSegment はテストやアダプターからRawSegmentを組み立てる。
func NewRawSegment(start, end float64, text string) RawSegment {
	return RawSegment{shape: shapeStartEnd, start: start, end: end, text: text}
}

// NormalizeSegments は上流形式のセグメントを正規形に変換する。
// 空テキストを除き、開始時刻で安定ソートした上で、前の区間と重ならないよう
// 開始時刻を切り上げる。終了時刻が開始時刻より前の場合は開始時刻に揃える。
func NormalizeSegments(raw []RawSegment) []model.Segment {
	out := make([]model.Segment, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.text)
		if text == "" || r.shape == 0 {
			continue
		}
		start := r.start
		if start < 0 {
			start = 0
		}
		out = append(out, model.Segment{Start: start, End: r.end, Text: text})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	prevEnd := 0.0
	for i := range out {
		if out[i].Start < prevEnd {
			out[i].Start = prevEnd
		}
		if out[i].End < out[i].Start {
			out[i].End = out[i].Start
		}
		prevEnd = out[i].End
	}
	return out
}
