package response

import (
	"net/http"

	"codelab/pkg/errors"
	"codelab/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
	Details interface{}      `json:"details,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

// List wraps a collection with its size.
type List struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// Success sends a 200 reply carrying data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.Success,
		Message: errors.Success.Message(),
		Data:    data,
		TraceID: traceID(c),
	})
}

// SuccessWithList sends a 200 reply carrying a collection.
func SuccessWithList(c *gin.Context, items interface{}, total int) {
	Success(c, List{Items: items, Total: total})
}

// Error sends the reply for err, deriving status and code from it. Server
// side failures are logged with their stack.
func Error(c *gin.Context, err error) {
	coded := errors.GetError(err)
	status := coded.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request error",
			zap.Int("code", int(coded.Code)),
			zap.String("message", coded.Error()),
			zap.Any("details", coded.Details),
			zap.String("stack", coded.Stack),
		)
	} else {
		logger.Warn(c.Request.Context(), "request rejected",
			zap.Int("code", int(coded.Code)),
			zap.String("message", coded.Error()),
		)
	}

	resp := Response{
		Code:    coded.Code,
		Message: coded.Error(),
		TraceID: traceID(c),
	}
	if len(coded.Details) > 0 {
		resp.Details = coded.Details
	}
	c.JSON(status, resp)
}

// ErrorWithCode sends an error reply for code. An empty message falls back to
// the code's default.
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	Error(c, errors.New(code).WithMessage(message))
}

// BadRequest sends a 400 reply.
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, errors.InvalidParams, message)
}

// AbortWithError sends the reply for err and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}
