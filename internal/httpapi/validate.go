package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"feedbackdesk/internal/apperr"
	"feedbackdesk/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds the feedback_status and sentiment tags to gin's
// validator and makes errors report json field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("feedback_status", func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseStatus(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
			return ok
		})
		_ = v.RegisterValidation("sentiment", func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseSentiment(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
			return ok
		})
	})
}

// bindJSON decodes and validates the body into dst. An empty body is allowed
// when optional is set.
func bindJSON(c *gin.Context, dst any, optional bool) error {
	err := c.ShouldBindBodyWith(dst, binding.JSON)
	if err == nil {
		return nil
	}
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return apperr.Validation(msgs[0]).WithDetails(strings.Join(msgs, "; "))
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Validation("Request body must be valid JSON")
	case errors.As(err, &typeErr):
		return apperr.Validation(fmt.Sprintf("%s has the wrong type", typeErr.Field))
	}
	return apperr.Validation("Invalid request body").WithDetails(err.Error())
}

// hasField reports whether the already bound JSON body carries key, even
// with a null value.
func hasField(c *gin.Context, key string) bool {
	var fields map[string]json.RawMessage
	if err := c.ShouldBindBodyWith(&fields, binding.JSON); err != nil {
		return false
	}
	_, ok := fields[key]
	return ok
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "feedback_status":
		return "Invalid or missing status"
	case "sentiment":
		return fmt.Sprintf("%s must be POSITIVE, NEUTRAL or NEGATIVE", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
