package research

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hitoshi/tinlens/internal/llm"
)

// Status は調査エンジンの判定結果。
type Status string

const (
	StatusVerified     Status = "verified"
	StatusMisleading   Status = "misleading"
	StatusUnverifiable Status = "unverifiable"
)

// Valid は定義済みの判定かどうかを返す。
func (s Status) Valid() bool {
	switch s {
	case StatusVerified, StatusMisleading, StatusUnverifiable:
		return true
	}
	return false
}

// Classification は判定とその確信度（0〜1）。
type Classification struct {
	Status     Status
	Confidence float64
	Reasoning  string
}

// Classifier は主張と根拠テキストから判定を下す。
type Classifier interface {
	Classify(ctx context.Context, claim, text string) (Classification, error)
}

// --- LLM ---

const classifySystemPrompt = `You are a fact-checking assistant. Given a claim and an analysis of web evidence, ` +
	`decide whether the claim is verified, misleading, or unverifiable. ` +
	`Respond with JSON only: {"status":"verified|misleading|unverifiable","confidence":0.0-1.0,"reasoning":"one or two sentences"}.`

// LLMClassifier はLLMのJSON応答で判定する。
type LLMClassifier struct {
	gen llm.Generator
}

// NewLLMClassifier はLLMClassifierを生成する。
func NewLLMClassifier(gen llm.Generator) *LLMClassifier {
	return &LLMClassifier{gen: gen}
}

// Classify はLLMに判定を依頼する。未知の判定値はエラーとする。
func (c *LLMClassifier) Classify(ctx context.Context, claim, text string) (Classification, error) {
	out, err := c.gen.GenerateText(ctx, llm.Request{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   fmt.Sprintf("Claim:\n%s\n\nEvidence analysis:\n%s", claim, text),
		MaxTokens:    300,
		Temperature:  0.1,
		JSON:         true,
	})
	if err != nil {
		return Classification{}, err
	}

	var resp struct {
		Status     string  `json:"status"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := llm.DecodeJSON(out, &resp); err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	status := Status(strings.ToLower(strings.TrimSpace(resp.Status)))
	if !status.Valid() {
		return Classification{}, fmt.Errorf("classify: unknown status %q", resp.Status)
	}
	return Classification{
		Status:     status,
		Confidence: clampUnit(resp.Confidence),
		Reasoning:  strings.TrimSpace(resp.Reasoning),
	}, nil
}

// --- ルールベース ---

var (
	supportingPhrases = phrasePatterns(
		"confirmed", "verified", "accurate", "is correct", "evidence shows", "evidence confirms",
		"consistent with", "according to official", "officially announced", "corroborated",
		"supported by", "substantiated",
	)
	contradictingPhrases = phrasePatterns(
		"false", "misleading", "debunked", "no evidence", "fabricated", "hoax", "incorrect",
		"inaccurate", "not true", "misinformation", "disinformation", "out of context",
		"doctored", "manipulated", "unfounded", "satire",
	)
)

func phrasePatterns(phrases ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(p)+`\b`))
	}
	return patterns
}

func countPhrases(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(text, -1))
	}
	return n
}

// RuleClassifier は肯定・否定の定型句を数えて判定する。外部呼び出しを行わない。
type RuleClassifier struct{}

// Classify は定型句の出現数の差から判定する。
func (RuleClassifier) Classify(_ context.Context, _ string, text string) (Classification, error) {
	support := countPhrases(text, supportingPhrases)
	contradict := countPhrases(text, contradictingPhrases)
	reasoning := fmt.Sprintf("Found %d supporting and %d contradicting indicators in the evidence.", support, contradict)

	switch {
	case contradict > support:
		return Classification{
			Status:     StatusMisleading,
			Confidence: phraseConfidence(contradict - support),
			Reasoning:  reasoning,
		}, nil
	case support > contradict:
		return Classification{
			Status:     StatusVerified,
			Confidence: phraseConfidence(support - contradict),
			Reasoning:  reasoning,
		}, nil
	case support == 0:
		return Classification{Status: StatusUnverifiable, Confidence: 0.2, Reasoning: reasoning}, nil
	default:
		return Classification{Status: StatusUnverifiable, Confidence: 0.4, Reasoning: reasoning}, nil
	}
}

// phraseConfidence は差が大きいほど高くなる確信度を返す。上限は0.9。
func phraseConfidence(margin int) float64 {
	c := 0.5 + 0.1*float64(margin)
	if c > 0.9 {
		return 0.9
	}
	return c
}

// --- チェーン ---

// ChainClassifier は主の判定器が失敗した場合に代替の判定器へ切り替える。
type ChainClassifier struct {
	primary  Classifier
	fallback Classifier
	logger   *slog.Logger
}

// NewChainClassifier はChainClassifierを生成する。
func NewChainClassifier(primary, fallback Classifier, logger *slog.Logger) *ChainClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainClassifier{primary: primary, fallback: fallback, logger: logger}
}

// Classify は主の判定器を試し、失敗時は代替の判定器の結果を返す。
func (c *ChainClassifier) Classify(ctx context.Context, claim, text string) (Classification, error) {
	if c.primary != nil {
		result, err := c.primary.Classify(ctx, claim, text)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return Classification{}, ctx.Err()
		}
		c.logger.Warn("判定器が失敗したため代替の判定器を使用します",
			slog.String("error", err.Error()),
		)
	}
	return c.fallback.Classify(ctx, claim, text)
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
