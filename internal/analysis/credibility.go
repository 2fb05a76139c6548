package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/hitoshi/tinlens/internal/model"
)

const (
	neutralRating = 5.0
	// shortContentRunes 未満の本文は判断材料が少ないため中立に寄せる。
	shortContentRunes = 80
)

// verdictBaseRating は判定ごとの基準値（0〜10）。
var verdictBaseRating = map[model.Verdict]float64{
	model.VerdictVerified:   8.5,
	model.VerdictSatire:     6.0,
	model.VerdictUnverified: 5.0,
	model.VerdictMisleading: 3.0,
	model.VerdictFalse:      1.5,
}

// CreatorRating はファクトチェック結果と抽出コンテンツから投稿者の信頼度（0〜10）を算出する。
// 判定の基準値を確信度に応じて中立値5.0から離し、本文が短い場合と投稿者が不明な場合は
// 中立値に寄せる。結果は小数第1位に丸める。
func CreatorRating(factCheck *model.FactCheckResult, extracted *model.ExtractedContent) (float64, error) {
	base, ok := verdictBaseRating[factCheck.Verdict]
	if !ok {
		return 0, fmt.Errorf("unknown verdict %q", factCheck.Verdict)
	}

	confidence := float64(model.ClampConfidence(factCheck.Confidence)) / 100
	rating := neutralRating + (base-neutralRating)*confidence

	if len([]rune(strings.TrimSpace(extracted.CaptionText()))) < shortContentRunes {
		rating = neutralRating + (rating-neutralRating)*0.5
	}
	if creator := strings.TrimSpace(extracted.Creator); creator == "" || creator == model.UnknownCreator {
		rating = neutralRating + (rating-neutralRating)*0.8
	}

	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("rating is not finite")
	}
	rating = math.Max(0, math.Min(10, rating))
	return math.Round(rating*10) / 10, nil
}
