package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, analysis, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnsupportedPlatform = "UNSUPPORTED_PLATFORM"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeExtractionFailed    = "EXTRACTION_FAILED"
	ErrCodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
	ErrCodeFactCheckFailed     = "FACT_CHECK_FAILED"
	ErrCodeConfigMissing       = "CONFIG_MISSING"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// ErrNotConfigured は必要な認証情報が設定されていない上流サービスを呼び出した場合のエラー。
var ErrNotConfigured = errors.New("upstream not configured")

// PipelineError はパイプラインのステージが返す構造化エラー。
// StrictMode時のフォールバック禁止や設定不備で発生する。
type PipelineError struct {
	Code     string
	Stage    string
	Platform Platform
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s stage failed (%s)", e.Code, e.Stage, e.Platform)
	}
	return fmt.Sprintf("[%s] %s stage failed (%s): %v", e.Code, e.Stage, e.Platform, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// stageCode は認証情報の未設定が原因の場合にCONFIG_MISSINGを返す。
func stageCode(code string, err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return ErrCodeConfigMissing
	}
	return code
}

// NewExtractionError は抽出ステージの構造化エラーを生成する。
func NewExtractionError(platform Platform, err error) *PipelineError {
	return &PipelineError{Code: stageCode(ErrCodeExtractionFailed, err), Stage: StageExtract, Platform: platform, Err: err}
}

// NewTranscriptionError は文字起こしステージの構造化エラーを生成する。
func NewTranscriptionError(platform Platform, err error) *PipelineError {
	return &PipelineError{Code: stageCode(ErrCodeTranscriptionFailed, err), Stage: StageTranscribe, Platform: platform, Err: err}
}

// NewFactCheckError はファクトチェックステージの構造化エラーを生成する。
func NewFactCheckError(platform Platform, err error) *PipelineError {
	return &PipelineError{Code: stageCode(ErrCodeFactCheckFailed, err), Stage: StageFactCheck, Platform: platform, Err: err}
}

// NewUnsupportedPlatformError はハンドラーが登録されていないプラットフォームのエラーを生成する。
func NewUnsupportedPlatformError(platform Platform) *PipelineError {
	return &PipelineError{
		Code:     ErrCodeUnsupportedPlatform,
		Stage:    StageExtract,
		Platform: platform,
		Err:      fmt.Errorf("no handler for platform %q", platform),
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "対応プラットフォームの投稿URL（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewInvalidRequestError はリクエストボディの検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "url または text のいずれかを指定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewAnalysisFailedError はパイプラインエラーをAPIエラーに変換する。
func NewAnalysisFailedError(pe *PipelineError) *APIError {
	return &APIError{
		Code:     pe.Code,
		Message:  fmt.Sprintf("コンテンツの解析に失敗しました（%sステージ）。", pe.Stage),
		Category: "analysis",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}
