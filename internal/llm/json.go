package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// DecodeJSON はLLMの応答からJSONオブジェクトを取り出してvにデコードする。
// コードフェンスで囲まれた応答や、前後に説明文を含む応答にも対応する。
func DecodeJSON(response string, v any) error {
	text := strings.TrimSpace(response)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return errors.New("llm: response does not contain a JSON object")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
