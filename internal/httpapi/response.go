// Package httpapi exposes the admin/management REST surface and the
// client-facing subscription-link endpoint over gin (SPEC_FULL.md §6).
package httpapi

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/moguard/panel/internal/shared/errors"
)

// detailResponse is the envelope every error response uses: a 422 carries a
// flattened field→message object, everything else a single string (§6 "401/
// 403/404/409/422 error codes with {detail: string|object} body").
type detailResponse struct {
	Detail any `json:"detail"`
}

// respondError translates a domain/application error into the HTTP response
// shape described by §6/§7, the way the teacher's ErrorResponseWithError maps
// AppError.Code to a status code and body.
func respondError(c *gin.Context, err error) {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		c.JSON(http.StatusUnprocessableEntity, detailResponse{Detail: flattenValidationErrors(validationErrs)})
		return
	}

	if appErr := apperrors.GetAppError(err); appErr != nil {
		if appErr.Type == apperrors.ErrorTypeValidation {
			c.JSON(http.StatusUnprocessableEntity, detailResponse{Detail: map[string]string{"error": appErr.Message}})
			return
		}
		c.JSON(appErr.Code, detailResponse{Detail: appErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, detailResponse{Detail: "internal server error"})
}

// respondBindError handles the narrower case of a request-body bind/parse
// failure (malformed JSON, not just failed field validation), which should
// surface as 422 rather than the generic 500 fallback.
func respondBindError(c *gin.Context, err error) {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		c.JSON(http.StatusUnprocessableEntity, detailResponse{Detail: flattenValidationErrors(validationErrs)})
		return
	}
	c.JSON(http.StatusUnprocessableEntity, detailResponse{Detail: map[string]string{"error": err.Error()}})
}

// flattenValidationErrors turns go-playground/validator's error list into the
// {field: message} map §6 calls for (teacher's formatValidationErrors joins
// these into one string instead; the spec wants them addressable by field).
func flattenValidationErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := toSnakeCase(fe.Field())
		out[field] = fieldErrorMessage(field, fe.Tag(), fe.Param(), fe.Kind())
	}
	return out
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func fieldErrorMessage(field, tag, param string, kind reflect.Kind) string {
	switch tag {
	case "required":
		return field + " is required"
	case "min":
		if kind == reflect.String {
			return field + " must be at least " + param + " characters long"
		}
		return field + " must be at least " + param
	case "max":
		if kind == reflect.String {
			return field + " must be at most " + param + " characters long"
		}
		return field + " must be at most " + param
	case "len":
		return field + " must be exactly " + param + " characters long"
	case "gt":
		return field + " must be greater than " + param
	case "gte":
		return field + " must be greater than or equal to " + param
	case "oneof":
		return field + " must be one of: " + param
	case "alphanum":
		return field + " must be alphanumeric"
	default:
		return field + " is invalid"
	}
}

func respondJSON(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
