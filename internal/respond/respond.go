// Package respond writes the {success, data, error} envelope used by every
// endpoint.
package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campustrack/internal/apperr"
)

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data"`
	Error   *ErrorBody `json:"error"`
}

// OK writes a successful envelope.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// Fail writes e as an error envelope.
func Fail(c *gin.Context, e *apperr.Error) {
	c.JSON(e.Status, Envelope{Error: &ErrorBody{Code: e.Code, Message: e.Message}})
}

// Abort writes e and stops the handler chain.
func Abort(c *gin.Context, e *apperr.Error) {
	c.AbortWithStatusJSON(e.Status, Envelope{Error: &ErrorBody{Code: e.Code, Message: e.Message}})
}

// Internal is the fallback for uncoded errors. The code names the failed
// operation; the cause is never sent to the client.
func Internal(code, message string) *apperr.Error {
	return apperr.New(http.StatusInternalServerError, code, message)
}
