// Package validation checks question records against the bank's schema before
// they are persisted or imported.
package validation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/qbank/internal/domain"
)

// Field names as they appear in stored and interchange records.
const (
	FieldID           = "id"
	FieldQuestion     = "question"
	FieldAnswer       = "answer"
	FieldShowInReview = "showInReview"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Result is the outcome of a schema check.
type Result struct {
	Valid  bool                `json:"valid"`
	Errors []domain.FieldError `json:"errors"`
}

// Err returns nil for a valid result and a *domain.ValidationError otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &domain.ValidationError{Errors: r.Errors}
}

func (r *Result) add(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, domain.FieldError{Field: field, Message: message})
}

// Validate fills field defaults on a partial record and checks field types.
// The returned question carries the defaulted values; it is only meaningful
// when the result is valid. Unknown keys are ignored.
func Validate(raw map[string]any) (domain.Question, Result) {
	res := Result{Valid: true, Errors: []domain.FieldError{}}
	q := domain.Question{ShowInReview: true}

	if v, ok := raw[FieldID]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			res.add(FieldID, expected("string", v))
		}
		q.ID = s
	}
	if v, ok := raw[FieldQuestion]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			res.add(FieldQuestion, expected("string", v))
		}
		q.Question = s
	}
	if v, ok := raw[FieldAnswer]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			res.add(FieldAnswer, expected("string", v))
		}
		q.Answer = s
	}
	if v, ok := raw[FieldShowInReview]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			res.add(FieldShowInReview, expected("boolean", v))
			b = true
		}
		q.ShowInReview = b
	}

	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Field < res.Errors[j].Field })
	return q, res
}

// ValidateQuestion checks a fully typed record, including its identifier.
func ValidateQuestion(q domain.Question) Result {
	res := Result{Valid: true, Errors: []domain.FieldError{}}
	err := validate.Struct(q)
	if err == nil {
		return res
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		res.add("", err.Error())
		return res
	}
	for _, fe := range verrs {
		res.add(fe.Field(), message(fe))
	}
	return res
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("Failed %q check", fe.Tag())
	}
}

func expected(kind string, got any) string {
	return fmt.Sprintf("Expected %s, received %s", kind, describe(got))
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
