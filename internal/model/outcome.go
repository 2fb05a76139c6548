package model

// パイプラインのステージ名。ログ・メトリクス・PipelineErrorで共通に使用する。
const (
	StageExtract     = "extract"
	StageTranscribe  = "transcribe"
	StageDetectNews  = "detect_news"
	StageFactCheck   = "fact_check"
	StageCredibility = "credibility"
)

// OutcomeStatus はベストエフォートステージの結果種別。
type OutcomeStatus string

const (
	// OutcomeValue は値が得られたことを示す。
	OutcomeValue OutcomeStatus = "value"
	// OutcomeNoData は入力が無く処理対象が存在しなかったことを示す。
	OutcomeNoData OutcomeStatus = "no_data"
	// OutcomeSuppressed はエラーが発生したがログ出力のみで握りつぶしたことを示す。
	OutcomeSuppressed OutcomeStatus = "suppressed"
)

// StageOutcome はニュース判定・信頼度算出など、失敗してもパイプラインを止めない
// ステージの結果を表す。エラーをnilに潰さず、観測できる形で保持する。
type StageOutcome[T any] struct {
	Status OutcomeStatus
	Value  T
	Err    error
}

// Value は値を保持するStageOutcomeを返す。
func Value[T any](v T) StageOutcome[T] {
	return StageOutcome[T]{Status: OutcomeValue, Value: v}
}

// NoData は処理対象が無かったことを示すStageOutcomeを返す。
func NoData[T any]() StageOutcome[T] {
	return StageOutcome[T]{Status: OutcomeNoData}
}

// Suppressed はエラーを保持したStageOutcomeを返す。
func Suppressed[T any](err error) StageOutcome[T] {
	return StageOutcome[T]{Status: OutcomeSuppressed, Err: err}
}

// Ptr は値がある場合のみポインタを返す。NoDataとSuppressedはnilになる。
func (o StageOutcome[T]) Ptr() *T {
	if o.Status != OutcomeValue {
		return nil
	}
	v := o.Value
	return &v
}
