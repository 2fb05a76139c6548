package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator はjsonタグ名でエラーを報告するvalidatorのシングルトンを返す。
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "" || tag == "-" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		validate = v
	})
	return validate
}

// decodeJSON はリクエストボディをTにデコードし、validateタグで検証する。
// 未知のフィールド、空ボディ、複数のJSON値は拒否する。
func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, errors.New("empty body")
		}
		return v, fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return v, errors.New("body must contain a single JSON object")
	}

	if err := getValidator().Struct(v); err != nil {
		return v, validationMessage(err)
	}
	return v, nil
}

// validationMessage はvalidatorのエラーを「field: rule」形式の1行に変換する。
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Field()+": "+rule)
	}
	return errors.New(strings.Join(parts, ", "))
}
