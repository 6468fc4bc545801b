// Package response writes the {code,msg,data} envelope every endpoint returns.
// Failures are still sent with HTTP 200; clients branch on code.
package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// APIError carries an errcode value through proxyutil.FailJson.
type APIError struct {
	Status  uint32
	Message string
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Code() uint32 { return e.Status }

func NewAPIError(code int, msg string) *APIError {
	return &APIError{Status: uint32(code), Message: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// OK acknowledges a mutation that has nothing to return.
func OK(c *gin.Context) {
	proxyutil.SuccessJson(c, gin.H{"ok": true})
}

func Error(c *gin.Context, code int, msg string) {
	proxyutil.FailJson(c, 200, NewAPIError(code, msg))
}
