package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/addrnorm/internal/core"
)

// recordRequest is the body of POST /api/normalize/record.
type recordRequest struct {
	core.RawAddressRecord
	Enrich bool `json:"enrich"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RecordError lists every rejected field of a record request.
type RecordError []FieldError

func (e RecordError) Error() string {
	msgs := make([]string, len(e))
	for i, f := range e {
		msgs[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("invalid record: %s", strings.Join(msgs, "; "))
}

type recordValidator struct {
	validate *validator.Validate
}

func newRecordValidator() *recordValidator {
	v := validator.New()
	// Report JSON names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &recordValidator{validate: v}
}

func (v *recordValidator) Validate(req *recordRequest) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid record: %w", err)
	}

	out := make(RecordError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Error()
		if fe.Tag() == "max" {
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
