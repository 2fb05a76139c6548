// Package research はWeb検索とLLMによる主張の検証エンジンを提供する。
// 検索クエリの生成、検索、本文取得、情報源の信頼度評価、根拠の分析、判定までを行う。
package research

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/hitoshi/tinlens/internal/exa"
	"github.com/hitoshi/tinlens/internal/llm"
)

const (
	searchResults        = 10
	contentFetchLimit    = 5
	evidenceTextLimit    = 2000
	summaryLimit         = 500
	credibleRelevance    = 0.7
	maxClaimForQuery     = 200
	errorReasoning       = "Error occurred during verification."
	noEvidenceReasoning  = "No relevant sources were found for this claim."
	errExaNotConfigured  = "Exa API key not configured"
	errLLMNotConfigured  = "OpenAI API key not configured"
	querySystemPrompt    = "You turn social media claims into concise web search queries for fact-checking. Reply with the query only, no quotes, at most 12 words."
	analysisSystemPrompt = "You are a careful fact-checker. Compare the claim against the numbered sources. " +
		"State which sources support or contradict the claim, note missing context, and conclude whether the claim is verified, misleading, or unverifiable."
)

// SearchClient は検索と本文取得のクライアント。
type SearchClient interface {
	exa.Searcher
	Configured() bool
}

// TextGenerator はテキスト生成のクライアント。
type TextGenerator interface {
	llm.Generator
	Configured() bool
}

// Source はランク付けされた情報源。
type Source struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	Credibility   float64 `json:"credibility"`
	Relevance     float64 `json:"relevance"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// Data は検証結果の本体。Confidenceは0〜1。
type Data struct {
	Claim                string   `json:"claim"`
	Query                string   `json:"query"`
	Status               Status   `json:"status"`
	Confidence           float64  `json:"confidence"`
	IsVerified           bool     `json:"is_verified"`
	IsMisleading         bool     `json:"is_misleading"`
	IsUnverifiable       bool     `json:"is_unverifiable"`
	Summary              string   `json:"summary"`
	Analysis             string   `json:"analysis"`
	Sources              []Source `json:"sources"`
	CredibleSourcesCount int      `json:"credible_sources_count"`
	Reasoning            string   `json:"reasoning"`
}

// Result は検証の成否とデータ。
// SuccessがfalseになるのはAPIキー未設定で検証を試みなかった場合のみ。
// 検証中の失敗はSuccess=trueかつ判定不能のDataとして返す。
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    *Data  `json:"data,omitempty"`
}

// Verifier は主張の検証のインターフェース。
type Verifier interface {
	Verify(ctx context.Context, claim string) *Result
}

// Engine はWeb検索とLLMによる検証エンジン。
type Engine struct {
	search     SearchClient
	gen        TextGenerator
	evaluator  *Evaluator
	classifier Classifier
	logger     *slog.Logger
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(search SearchClient, gen TextGenerator, evaluator *Evaluator, classifier Classifier, logger *slog.Logger) *Engine {
	if evaluator == nil {
		evaluator = NewEvaluator(DefaultRules())
	}
	if classifier == nil {
		classifier = RuleClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{search: search, gen: gen, evaluator: evaluator, classifier: classifier, logger: logger}
}

// Verify は主張をWeb上の情報源と照合する。
// APIキー未設定の場合は通信を行わずに失敗を返す。
// クエリ生成、検索、本文取得、分析、判定のいずれかが失敗した場合は判定不能を返す。
func (e *Engine) Verify(ctx context.Context, claim string) *Result {
	if e.search == nil || !e.search.Configured() {
		return &Result{Success: false, Error: errExaNotConfigured}
	}
	if e.gen == nil || !e.gen.Configured() {
		return &Result{Success: false, Error: errLLMNotConfigured}
	}

	data, err := e.verify(ctx, claim)
	if err != nil {
		e.logger.Warn("検証に失敗したため判定不能とします",
			slog.String("error", err.Error()),
		)
		return &Result{
			Success: true,
			Data: &Data{
				Claim:          claim,
				Status:         StatusUnverifiable,
				IsUnverifiable: true,
				Sources:        []Source{},
				Reasoning:      errorReasoning,
			},
		}
	}
	return &Result{Success: true, Data: data}
}

func (e *Engine) verify(ctx context.Context, claim string) (*Data, error) {
	query, err := e.searchQuery(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	results, err := e.search.Search(ctx, query, searchResults)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	contents, err := e.fetchContents(ctx, results)
	if err != nil {
		return nil, fmt.Errorf("contents: %w", err)
	}
	sources, evidence := e.rankEvidence(results, contents)

	data := &Data{Claim: claim, Query: query, Sources: sources}
	for _, s := range sources {
		if s.Relevance > credibleRelevance {
			data.CredibleSourcesCount++
		}
	}

	if len(evidence) == 0 {
		data.Status = StatusUnverifiable
		data.IsUnverifiable = true
		data.Reasoning = noEvidenceReasoning
		data.Summary = noEvidenceReasoning
		return data, nil
	}

	analysis, err := e.gen.GenerateText(ctx, llm.Request{
		SystemPrompt: analysisSystemPrompt,
		UserPrompt:   fmt.Sprintf("Claim:\n%s\n\nSources:\n%s", claim, strings.Join(evidence, "\n\n")),
		MaxTokens:    2000,
		Temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	analysis = strings.TrimSpace(analysis)

	classifyInput := analysis
	if classifyInput == "" {
		classifyInput = strings.Join(evidence, "\n\n")
	}
	verdict, err := e.classifier.Classify(ctx, claim, classifyInput)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	data.Status = verdict.Status
	data.Confidence = clampUnit(verdict.Confidence)
	data.IsVerified = verdict.Status == StatusVerified
	data.IsMisleading = verdict.Status == StatusMisleading
	data.IsUnverifiable = verdict.Status == StatusUnverifiable
	data.Analysis = analysis
	data.Summary = truncateRunes(analysis, summaryLimit)
	data.Reasoning = verdict.Reasoning
	return data, nil
}

// searchQuery はLLMで検索クエリを生成する。応答が空の場合は主張をそのまま使う。
func (e *Engine) searchQuery(ctx context.Context, claim string) (string, error) {
	fallback := truncateRunes(strings.TrimSpace(claim), maxClaimForQuery)
	out, err := e.gen.GenerateText(ctx, llm.Request{
		SystemPrompt: querySystemPrompt,
		UserPrompt:   claim,
		MaxTokens:    100,
		Temperature:  0.1,
	})
	if err != nil {
		return "", err
	}
	query := strings.Trim(strings.TrimSpace(out), `"'`)
	if query == "" {
		return fallback, nil
	}
	return query, nil
}

// fetchContents は上位の検索結果の本文を取得する。
// 応答に含まれなかったURLは検索スニペットで代替される。
func (e *Engine) fetchContents(ctx context.Context, results []exa.SearchResult) (map[string]exa.ContentResult, error) {
	urls := make([]string, 0, contentFetchLimit)
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		urls = append(urls, r.URL)
		if len(urls) == contentFetchLimit {
			break
		}
	}

	byURL := make(map[string]exa.ContentResult, len(urls))
	if len(urls) == 0 {
		return byURL, nil
	}

	contents, err := e.search.GetContents(ctx, urls)
	if err != nil {
		return nil, err
	}
	for _, c := range contents {
		byURL[c.URL] = c
	}
	return byURL, nil
}

type rankedEvidence struct {
	source Source
	block  string
}

// rankEvidence は情報源ごとに信頼度と関連度を算出し、関連度の降順に並べる。
// 関連度は信頼度/10と検索スコアの小さい方。スコアが無い場合は1とみなす。
func (e *Engine) rankEvidence(results []exa.SearchResult, contents map[string]exa.ContentResult) ([]Source, []string) {
	ranked := make([]rankedEvidence, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		credibility := e.evaluator.Score(r.URL)
		score := 1.0
		if r.Score != nil {
			score = *r.Score
		}
		relevance := math.Min(credibility/10, score)

		src := Source{
			Title:         r.Title,
			URL:           r.URL,
			Domain:        hostOf(r.URL),
			Credibility:   credibility,
			Relevance:     relevance,
			PublishedDate: r.PublishedDate,
		}
		ranked = append(ranked, rankedEvidence{source: src, block: evidenceBlock(r, contents)})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].source.Relevance > ranked[j].source.Relevance })

	sources := make([]Source, 0, len(ranked))
	blocks := make([]string, 0, len(ranked))
	for i, r := range ranked {
		sources = append(sources, r.source)
		blocks = append(blocks, fmt.Sprintf("[%d] %s", i+1, r.block))
	}
	return sources, blocks
}

// evidenceBlock は1件の情報源をLLMに渡すテキストにまとめる。
func evidenceBlock(r exa.SearchResult, contents map[string]exa.ContentResult) string {
	title, text, summary, highlights, published := r.Title, r.Text, r.Summary, r.Highlights, r.PublishedDate
	if c, ok := contents[r.URL]; ok {
		if c.Title != "" {
			title = c.Title
		}
		if c.Text != "" {
			text = c.Text
		}
		if c.Summary != "" {
			summary = c.Summary
		}
		if len(c.Highlights) > 0 {
			highlights = c.Highlights
		}
		if c.PublishedDate != "" {
			published = c.PublishedDate
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nSource: %s", title, hostname(r.URL))
	if published != "" {
		fmt.Fprintf(&b, "\nPublished: %s", published)
	}
	if text = strings.TrimSpace(text); text != "" {
		fmt.Fprintf(&b, "\nContent: %s", truncateRunes(text, evidenceTextLimit))
	}
	if summary != "" {
		fmt.Fprintf(&b, "\nSummary: %s", summary)
	}
	if len(highlights) > 0 {
		fmt.Fprintf(&b, "\nHighlights: %s", strings.Join(highlights, " | "))
	}
	return b.String()
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
