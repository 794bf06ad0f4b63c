package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

const codeInvalidRequest = "invalid_request"

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

var statusByCode = map[string]int{
	common.CodeInvalidCaptcha:      http.StatusBadRequest,
	common.CodeUserLockedOut:       http.StatusLocked,
	common.CodeInvalidCredentials:  http.StatusUnauthorized,
	common.CodeEmailNotConfirmed:   http.StatusForbidden,
	common.CodeTransactionFailed:   http.StatusInternalServerError,
	common.CodeInvalidRefreshToken: http.StatusUnauthorized,
	common.CodeInvalidToken:        http.StatusUnauthorized,
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorResponse. Anything that is not a
// domain error is reported as transaction_failed without details.
func respondError(c *gin.Context, err error) {
	de, ok := common.AsDomainError(err)
	if !ok {
		de = common.ErrTransactionFailed
	}
	c.AbortWithStatusJSON(StatusFor(de.Code), ErrorResponse{Code: de.Code, Message: de.Message})
}

func respondValidationError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			field := lowerCamel(fe.Field())
			switch fe.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    codeInvalidRequest,
			Message: "validation failed",
			Details: details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: codeInvalidRequest, Message: "invalid body"})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
