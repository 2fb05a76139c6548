package research

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCredibility はどのルールにも一致しないドメインの信頼度。
const DefaultCredibility = 5.0

//go:embed credibility_rules.yaml
var defaultRulesYAML []byte

// TLDPattern はドメイン末尾に対する信頼度ルール。
type TLDPattern struct {
	Suffix      string  `yaml:"suffix"`
	Score       float64 `yaml:"score"`
	Description string  `yaml:"description"`
}

// DomainGroup は同じ信頼度を持つドメインの集合。
type DomainGroup struct {
	Category    string   `yaml:"category"`
	Score       float64  `yaml:"score"`
	Description string   `yaml:"description"`
	Domains     []string `yaml:"domains"`
}

// Rules はドメイン信頼度の判定ルール。
type Rules struct {
	TLDPatterns  []TLDPattern  `yaml:"tld_patterns"`
	DomainGroups []DomainGroup `yaml:"domain_groups"`
	DefaultScore float64       `yaml:"default_score"`
}

// DefaultRules は組み込みのルールを返す。
func DefaultRules() Rules {
	rules, err := parseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded credibility rules: %v", err))
	}
	return rules
}

// LoadRules はYAMLファイルからルールを読み込む。pathが空の場合は組み込みルールを返す。
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("信頼度ルールの読み込みに失敗しました: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("信頼度ルールの解析に失敗しました: %w", err)
	}
	if rules.DefaultScore <= 0 {
		rules.DefaultScore = DefaultCredibility
	}
	for i, p := range rules.TLDPatterns {
		if err := checkScore(p.Score); err != nil {
			return Rules{}, fmt.Errorf("tld_patterns[%d] %q: %w", i, p.Suffix, err)
		}
		rules.TLDPatterns[i].Suffix = strings.ToLower(p.Suffix)
	}
	for i, g := range rules.DomainGroups {
		if err := checkScore(g.Score); err != nil {
			return Rules{}, fmt.Errorf("domain_groups[%d] %q: %w", i, g.Category, err)
		}
	}
	return rules, checkScore(rules.DefaultScore)
}

func checkScore(score float64) error {
	if score < 0 || score > 10 {
		return fmt.Errorf("score %v out of range [0, 10]", score)
	}
	return nil
}

// Evaluator はホスト名から情報源の信頼度（0〜10）を決定的に算出する。
type Evaluator struct {
	rules Rules
}

// NewEvaluator はEvaluatorを生成する。
func NewEvaluator(rules Rules) *Evaluator {
	if rules.DefaultScore <= 0 {
		rules.DefaultScore = DefaultCredibility
	}
	return &Evaluator{rules: rules}
}

// Score はURLまたはホスト名の信頼度を返す。
// TLDパターン、ドメイングループの順に評価し、どれにも一致しない場合は既定値を返す。
func (e *Evaluator) Score(rawURL string) float64 {
	host := hostOf(rawURL)
	if host == "" {
		return e.rules.DefaultScore
	}

	for _, p := range e.rules.TLDPatterns {
		if strings.HasSuffix(host, p.Suffix) {
			return p.Score
		}
	}
	for _, g := range e.rules.DomainGroups {
		for _, d := range g.Domains {
			if domainMatches(host, d) {
				return g.Score
			}
		}
	}
	return e.rules.DefaultScore
}

// domainMatches は完全一致またはサブドメイン境界での一致を判定する。
// news.bbc.co.uk は bbc.co.uk に一致するが、notbbc.co.uk は一致しない。
func domainMatches(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// hostOf はURLまたはホスト名から小文字のホスト名を取り出し、先頭のwww.を除く。
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		host = u.Hostname()
	} else if i := strings.IndexAny(raw, "/:?#"); i >= 0 {
		host = raw[:i]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.TrimPrefix(host, "www.")
}
