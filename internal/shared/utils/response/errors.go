package response

import (
	"errors"
	"net/http"

	"adspace/internal/shared/errs"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// StatusFor maps an error kind to the HTTP status the client sees.
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindDateConflict, errs.KindRaceLost:
		return http.StatusConflict
	case errs.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case errs.KindPaymentFailure:
		return http.StatusPaymentRequired
	case errs.KindPayoutFailure:
		return http.StatusBadGateway
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindForbidden:
		return http.StatusForbidden
	}
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error writes the standard error envelope for err.
func Error(c *gin.Context, err error) {
	code := StatusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "Internal server error"
	}

	details := gin.H{"kind": errs.KindOf(err)}
	if errs.IsRetryable(err) {
		details["retryable"] = true
	}
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		details["kind"] = errs.KindValidation
		fields := make(map[string]string, len(verr))
		for _, fe := range verr {
			fields[fe.Field()] = fe.Tag()
		}
		details["fields"] = fields
	}

	_ = c.Error(err)
	RespondJSON(c, "error", code, message, nil, details)
}

// BadRequest writes a validation failure for malformed input.
func BadRequest(c *gin.Context, message string, err error) {
	var details interface{}
	if err != nil {
		details = err.Error()
	}
	RespondJSON(c, "error", http.StatusBadRequest, message, nil, details)
}

// OK writes a success envelope.
func OK(c *gin.Context, code int, message string, data interface{}) {
	RespondJSON(c, "success", code, message, data, nil)
}
