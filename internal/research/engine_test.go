package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/tinlens/internal/exa"
	"github.com/hitoshi/tinlens/internal/llm"
)

type fakeSearch struct {
	configured  bool
	results     []exa.SearchResult
	contents    []exa.ContentResult
	searchErr   error
	contentsErr error

	queries     []string
	contentURLs []string
}

func (f *fakeSearch) Configured() bool { return f.configured }

func (f *fakeSearch) Search(_ context.Context, query string, n int) ([]exa.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.searchErr
}

func (f *fakeSearch) GetContents(_ context.Context, urls []string) ([]exa.ContentResult, error) {
	f.contentURLs = append(f.contentURLs, urls...)
	return f.contents, f.contentsErr
}

func score(v float64) *float64 { return &v }

// scriptedGenerator はSystemPromptで呼び出し元を判別して応答する。
func scriptedGenerator(analysis string, analysisErr error) *fakeGenerator {
	return &fakeGenerator{configured: true, respond: func(req llm.Request) (string, error) {
		switch req.SystemPrompt {
		case querySystemPrompt:
			return `"coastal barrier failure June 2025"`, nil
		case analysisSystemPrompt:
			return analysis, analysisErr
		default:
			return `{"status":"verified","confidence":0.8,"reasoning":"Multiple outlets confirm."}`, nil
		}
	}}
}

func newTestEngine(search *fakeSearch, gen *fakeGenerator) *Engine {
	return NewEngine(search, gen, nil, NewChainClassifier(NewLLMClassifier(gen), RuleClassifier{}, discardLogger()), discardLogger())
}

func TestVerify_NotConfigured_NoNetworkCall(t *testing.T) {
	search := &fakeSearch{configured: false}
	gen := scriptedGenerator("", nil)

	got := newTestEngine(search, gen).Verify(context.Background(), "claim")
	if got.Success || got.Error != "Exa API key not configured" {
		t.Errorf("got = %+v", got)
	}

	search.configured = true
	gen.configured = false
	got = newTestEngine(search, gen).Verify(context.Background(), "claim")
	if got.Success || got.Error != "OpenAI API key not configured" {
		t.Errorf("got = %+v", got)
	}

	if len(search.queries) != 0 || len(gen.calls) != 0 {
		t.Error("no upstream call expected when keys are missing")
	}
}

func TestVerify_RanksSourcesAndClassifies(t *testing.T) {
	search := &fakeSearch{
		configured: true,
		results: []exa.SearchResult{
			{URL: "https://random-blog.example/post", Title: "Blog", Score: score(0.9), Text: "blog text"},
			{URL: "https://www.reuters.com/world/flood", Title: "Reuters", Score: score(0.8), Text: "snippet"},
			{URL: "", Title: "no url"},
			{URL: "https://www.reddit.com/r/news/1", Title: "Reddit"},
			{URL: "https://apnews.com/article/flood", Title: "AP", Text: "ap snippet"},
		},
		contents: []exa.ContentResult{
			{URL: "https://www.reuters.com/world/flood", Text: strings.Repeat("r", 3000), Summary: "Barrier failed."},
		},
	}
	gen := scriptedGenerator("Reuters and AP both confirm the barrier failed. "+strings.Repeat("x", 600), nil)

	got := newTestEngine(search, gen).Verify(context.Background(), "The flood barrier failed")
	if !got.Success {
		t.Fatalf("expected success, got %+v", got)
	}
	data := got.Data

	if search.queries[0] != "coastal barrier failure June 2025" {
		t.Errorf("query = %q, quotes should be trimmed", search.queries[0])
	}
	if len(search.contentURLs) != 4 {
		t.Errorf("content URLs = %v, want the 4 results that have a URL", search.contentURLs)
	}

	// AP: min(9.5/10, 1.0)=0.95, Reuters: min(0.95, 0.8)=0.8, Blog: min(0.5, 0.9)=0.5, Reddit: min(0.3, 1)=0.3
	wantOrder := []string{"apnews.com", "reuters.com", "random-blog.example", "reddit.com"}
	if len(data.Sources) != len(wantOrder) {
		t.Fatalf("Sources = %+v", data.Sources)
	}
	for i, d := range wantOrder {
		if data.Sources[i].Domain != d {
			t.Errorf("Sources[%d].Domain = %q, want %q", i, data.Sources[i].Domain, d)
		}
	}
	if data.CredibleSourcesCount != 2 {
		t.Errorf("CredibleSourcesCount = %d, want 2", data.CredibleSourcesCount)
	}
	if data.Status != StatusVerified || !data.IsVerified || data.IsMisleading || data.IsUnverifiable {
		t.Errorf("status flags = %+v", data)
	}
	if data.Confidence != 0.8 {
		t.Errorf("Confidence = %v", data.Confidence)
	}
	if len([]rune(data.Summary)) != 500 {
		t.Errorf("Summary length = %d, want 500", len([]rune(data.Summary)))
	}

	// 分析プロンプトには本文の先頭2000文字のみを含める
	var analysisPrompt string
	for _, c := range gen.calls {
		if c.SystemPrompt == analysisSystemPrompt {
			analysisPrompt = c.UserPrompt
			if c.MaxTokens != 2000 || c.Temperature != 0.1 {
				t.Errorf("analysis request = %+v", c)
			}
		}
	}
	if strings.Contains(analysisPrompt, strings.Repeat("r", 2001)) || !strings.Contains(analysisPrompt, strings.Repeat("r", 2000)) {
		t.Error("evidence text should be truncated to 2000 chars")
	}
	if !strings.Contains(analysisPrompt, "Summary: Barrier failed.") {
		t.Error("evidence should include fetched summary")
	}
	if !strings.Contains(analysisPrompt, "ap snippet") {
		t.Error("evidence should fall back to search text when contents are missing")
	}
}

// assertUnverifiable は検証中の失敗が判定不能の結果になることを確認する。
func assertUnverifiable(t *testing.T, got *Result) {
	t.Helper()
	if !got.Success || got.Error != "" {
		t.Fatalf("Success/Error = %v/%q, want true/empty", got.Success, got.Error)
	}
	if got.Data == nil {
		t.Fatal("Data should be populated")
	}
	if got.Data.Status != StatusUnverifiable || !got.Data.IsUnverifiable || got.Data.Confidence != 0 {
		t.Errorf("Data = %+v", got.Data)
	}
	if got.Data.Sources == nil || len(got.Data.Sources) != 0 {
		t.Errorf("Sources = %v, want empty non-nil", got.Data.Sources)
	}
	if got.Data.Reasoning != "Error occurred during verification." {
		t.Errorf("Reasoning = %q", got.Data.Reasoning)
	}
}

func TestVerify_ContentsFailure(t *testing.T) {
	search := &fakeSearch{
		configured:  true,
		results:     []exa.SearchResult{{URL: "https://www.bbc.com/news/1", Title: "BBC", Text: "bbc snippet"}},
		contentsErr: errors.New("contents unavailable"),
	}
	gen := scriptedGenerator("confirmed", nil)

	got := newTestEngine(search, gen).Verify(context.Background(), "claim")
	assertUnverifiable(t, got)
	for _, c := range gen.calls {
		if c.SystemPrompt == analysisSystemPrompt {
			t.Error("analysis should not run after a contents failure")
		}
	}
}

func TestVerify_MissingContentsUseSnippets(t *testing.T) {
	search := &fakeSearch{
		configured: true,
		results:    []exa.SearchResult{{URL: "https://www.bbc.com/news/1", Title: "BBC", Text: "bbc snippet"}},
		contents:   []exa.ContentResult{},
	}
	gen := scriptedGenerator("confirmed", nil)

	got := newTestEngine(search, gen).Verify(context.Background(), "claim")
	if !got.Success || got.Data.Status != StatusVerified || len(got.Data.Sources) != 1 {
		t.Fatalf("got = %+v", got)
	}
	for _, c := range gen.calls {
		if c.SystemPrompt == analysisSystemPrompt && !strings.Contains(c.UserPrompt, "bbc snippet") {
			t.Errorf("analysis prompt should use the search snippet: %q", c.UserPrompt)
		}
	}
}

func TestVerify_NoEvidence(t *testing.T) {
	search := &fakeSearch{configured: true}
	gen := scriptedGenerator("", nil)

	got := newTestEngine(search, gen).Verify(context.Background(), "claim")
	if !got.Success {
		t.Fatalf("got = %+v", got)
	}
	if got.Data.Status != StatusUnverifiable || got.Data.Confidence != 0 || len(got.Data.Sources) != 0 {
		t.Errorf("Data = %+v", got.Data)
	}
	for _, c := range gen.calls {
		if c.SystemPrompt == analysisSystemPrompt {
			t.Error("analysis should not run without evidence")
		}
	}
}

// Scenario C: 検索が例外を投げた場合は判定不能・確信度0・情報源なしを返す。
func TestVerify_SearchFailure(t *testing.T) {
	search := &fakeSearch{configured: true, searchErr: errors.New("exa: unexpected status 500")}

	got := newTestEngine(search, scriptedGenerator("", nil)).Verify(context.Background(), "claim")
	assertUnverifiable(t, got)
}

func TestVerify_AnalysisFailure(t *testing.T) {
	search := &fakeSearch{configured: true, results: []exa.SearchResult{{URL: "https://apnews.com/a"}}}
	got := newTestEngine(search, scriptedGenerator("", errors.New("openai down"))).Verify(context.Background(), "claim")
	assertUnverifiable(t, got)
}

func TestVerify_QueryGeneration(t *testing.T) {
	t.Run("LLMの失敗は判定不能", func(t *testing.T) {
		search := &fakeSearch{configured: true}
		gen := &fakeGenerator{configured: true, respond: func(req llm.Request) (string, error) {
			if req.SystemPrompt == querySystemPrompt {
				return "", errors.New("timeout")
			}
			return "", nil
		}}

		got := newTestEngine(search, gen).Verify(context.Background(), "The mayor resigned")
		assertUnverifiable(t, got)
		if len(search.queries) != 0 {
			t.Errorf("search should not run, queries = %v", search.queries)
		}
	})

	t.Run("空の応答は主張をそのまま使う", func(t *testing.T) {
		search := &fakeSearch{configured: true}
		gen := &fakeGenerator{configured: true, respond: func(llm.Request) (string, error) {
			return "  ", nil
		}}

		newTestEngine(search, gen).Verify(context.Background(), "  The mayor resigned  ")
		if len(search.queries) != 1 || search.queries[0] != "The mayor resigned" {
			t.Errorf("queries = %v", search.queries)
		}
	})
}

func TestVerify_NilLogger(t *testing.T) {
	search := &fakeSearch{configured: true, searchErr: errors.New("exa: unexpected status 500")}
	engine := NewEngine(search, scriptedGenerator("", nil), nil, nil, nil)

	assertUnverifiable(t, engine.Verify(context.Background(), "claim"))
}
