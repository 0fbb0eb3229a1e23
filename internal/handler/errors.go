package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
)

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	CodeMissingToken = "MISSING_TOKEN"
	CodeInvalidToken = "INVALID_TOKEN"
)

func SendError(c *gin.Context, statusCode int, errorCode, errorMessage, detailedMessage string, details interface{}) {
	response := ErrorResponse{
		Error:   errorMessage,
		Message: detailedMessage,
		Code:    errorCode,
	}
	if details != nil {
		response.Details = details
	}
	c.AbortWithStatusJSON(statusCode, response)
}

func SendValidationError(c *gin.Context, message string, details interface{}) {
	SendError(c, http.StatusBadRequest, domain.CodeValidation, "Validation failed", message, details)
}

// httpStatus maps an error kind to its response status.
func httpStatus(e *domain.Error) (int, string) {
	switch e.Code {
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests, "Too many requests"
	case domain.CodeBadCredentials:
		return http.StatusUnauthorized, "Authentication failed"
	}
	switch e.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest, "Validation failed"
	case domain.KindConflict:
		return http.StatusConflict, "Conflict"
	case domain.KindPermission:
		return http.StatusForbidden, "Access denied"
	case domain.KindNotFound:
		return http.StatusNotFound, "Resource not found"
	case domain.KindState:
		return http.StatusConflict, "Invalid state"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// sendDomainError writes err in the standard envelope. Internal errors never
// leak their cause to the client.
func sendDomainError(c *gin.Context, logger *logrus.Logger, err error) {
	de := domain.AsError(err)
	status, title := httpStatus(de)
	if de.Kind == domain.KindInternal {
		logger.WithFields(logrus.Fields{
			"Function":  "sendDomainError",
			"Path":      c.FullPath(),
			"RequestID": c.GetString(requestIDKey),
			"Error":     err,
		}).Error("Request failed")
		SendError(c, status, domain.CodeInternal, title, "Something went wrong, please try again later", nil)
		return
	}
	var details interface{}
	if len(de.Details) > 0 {
		details = de.Details
	}
	SendError(c, status, de.Code, title, de.Message, details)
}
