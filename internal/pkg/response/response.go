package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code int, msg string) error {
	return codeErr{code: uint32(code), msg: msg}
}

type Page struct {
	Items  interface{} `json:"items"`
	Offset uint        `json:"offset"`
	Limit  uint        `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func SuccessPage(c *gin.Context, items interface{}, offset, limit uint) {
	proxyutil.SuccessJson(c, Page{Items: items, Offset: offset, Limit: limit})
}

// Error replies with HTTP 200 and the failure carried in the envelope's
// code and message.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(code, message))
}
