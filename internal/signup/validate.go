package signup

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/brandshield/internal/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名をJSONキーにそろえる
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation("keywords", validateKeywordList); err != nil {
		panic(fmt.Sprintf("failed to register keywords validation: %v", err))
	}
	if err := validate.RegisterValidation("domains", validateDomainList); err != nil {
		panic(fmt.Sprintf("failed to register domains validation: %v", err))
	}
}

// fieldMessages はバリデーションタグごとのメッセージ。
var fieldMessages = map[string]string{
	"required": "The field '%s' is required.",
	"email":    "The field '%s' must be a valid email address.",
	"min":      "The field '%s' must be at least %s characters long.",
	"max":      "The field '%s' must be no longer than %s characters.",
	"eq":       "The field '%s' must be accepted.",
	"keywords": "Please enter at least one brand keyword to monitor.",
	"domains":  "The field '%s' must be a comma separated list of domain names.",
}

// ValidationError はフィールド単位の入力検証エラー。
// errors.Is(err, model.ErrInvalidRegistration) でも判定できる。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("validation failed: %s", strings.Join(keys, ", "))
}

func (e *ValidationError) Unwrap() error {
	return model.ErrInvalidRegistration
}

func fieldMessage(e validator.FieldError) string {
	msg, ok := fieldMessages[e.Tag()]
	if !ok {
		return fmt.Sprintf("Field '%s' is invalid: %s", e.Field(), e.Tag())
	}
	switch strings.Count(msg, "%s") {
	case 0:
		return msg
	case 1:
		return fmt.Sprintf(msg, e.Field())
	default:
		return fmt.Sprintf(msg, e.Field(), e.Param())
	}
}

// checkStruct は構造体を検証し、フィールド別のエラーと必須項目の欠落有無を返す。
func checkStruct(s any) (fields map[string]string, missing bool) {
	err := validate.Struct(s)
	if err == nil {
		return nil, false
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}, false
	}

	fields = make(map[string]string, len(verrs))
	for _, e := range verrs {
		if e.Tag() == "required" {
			missing = true
		}
		fields[e.Field()] = fieldMessage(e)
	}
	return fields, missing
}

// SplitList はカンマ区切りの入力を空白除去済みの要素に分割する。空の要素は捨てる。
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateKeywordList(fl validator.FieldLevel) bool {
	return len(SplitList(fl.Field().String())) > 0
}

func validateDomainList(fl validator.FieldLevel) bool {
	for _, d := range SplitList(fl.Field().String()) {
		if err := validate.Var(d, "fqdn"); err != nil {
			return false
		}
	}
	return true
}
